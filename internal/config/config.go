package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Offline backends understood by the updater.
const (
	BackendAuto   = "auto"
	BackendMtools = "mtools"
	BackendDiskfs = "diskfs"
)

const (
	// DefaultImagePath is the disk image updated when none is configured.
	DefaultImagePath = "./disk.img"

	// DefaultScratchDir is the transient mount point.
	DefaultScratchDir = "./mnt"

	// DefaultTargetDir is the directory inside the image receiving the file.
	DefaultTargetDir = "/sbin"

	// DefaultLockTimeout bounds how long an update waits for a concurrent one.
	DefaultLockTimeout = 30 * time.Second

	// DefaultFilePermissions is used when saving configuration files.
	DefaultFilePermissions = 0o644
)

var (
	errConfigIsNotSet     = errors.New("configuration is not set")
	errUnknownBackend     = errors.New("unknown offline backend")
	errUnknownFormat      = errors.New("unknown configuration format")
	errEmptyImagePath     = errors.New("image path must be provided")
	errEmptyScratchDir    = errors.New("scratch directory must be provided")
	errRelativeTargetDir  = errors.New("target directory must be absolute inside the image")
	errInvalidServerPort  = errors.New("server port must be between 1 and 65535")
	errInvalidUploadLimit = errors.New("upload limit must be positive")
)

// Config represents the updater configuration.
type Config struct {
	// Image and placement
	ImagePath  string `json:"image_path" yaml:"image_path" toml:"image_path"`
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir" toml:"scratch_dir"`
	TargetDir  string `json:"target_dir" yaml:"target_dir" toml:"target_dir"`

	// Run mount/umount through sudo when not already root
	UseSudo bool `json:"use_sudo" yaml:"use_sudo" toml:"use_sudo"`

	// auto, mtools or diskfs
	OfflineBackend string `json:"offline_backend" yaml:"offline_backend" toml:"offline_backend"`

	// Read the file back after writing and compare digests
	Verify bool `json:"verify" yaml:"verify" toml:"verify"`

	Lock        bool     `json:"lock" yaml:"lock" toml:"lock"`
	LockTimeout Duration `json:"lock_timeout" yaml:"lock_timeout" toml:"lock_timeout"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	Server ServerConfig `json:"server" yaml:"server" toml:"server"`
}

// ServerConfig contains HTTP server settings for the serve command.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port"`

	ReadTimeout  Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout  Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`

	// Maximum upload size in MB
	MaxUploadMB int64 `json:"max_upload_mb" yaml:"max_upload_mb" toml:"max_upload_mb"`

	CORS CORSConfig `json:"cors" yaml:"cors" toml:"cors"`

	// DNS-SD instance name announced through Avahi, empty to disable
	AdvertiseName string `json:"advertise_name" yaml:"advertise_name" toml:"advertise_name"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" toml:"allow_credentials"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		ImagePath:      DefaultImagePath,
		ScratchDir:     DefaultScratchDir,
		TargetDir:      DefaultTargetDir,
		UseSudo:        true,
		OfflineBackend: BackendAuto,
		Verify:         false,
		Lock:           true,
		LockTimeout:    Duration(DefaultLockTimeout),
		LogLevel:       "info",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(60 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
			MaxUploadMB:  200,
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
		},
	}
}

// Load reads configuration from path on top of the defaults. An empty path
// returns the defaults. The format is picked from the file extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, in the format matching its extension.
func (c *Config) Save(path string) error {
	if c == nil {
		return errConfigIsNotSet
	}

	if err := c.Validate(); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		return fmt.Errorf("%w: %s", errUnknownFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks required fields and normalizes the target directory.
func (c *Config) Validate() error {
	if c == nil {
		return errConfigIsNotSet
	}

	if strings.TrimSpace(c.ImagePath) == "" {
		return errEmptyImagePath
	}

	if strings.TrimSpace(c.ScratchDir) == "" {
		return errEmptyScratchDir
	}

	if !strings.HasPrefix(c.TargetDir, "/") {
		return fmt.Errorf("%w: %q", errRelativeTargetDir, c.TargetDir)
	}
	c.TargetDir = path.Clean(c.TargetDir)

	switch c.OfflineBackend {
	case BackendAuto, BackendMtools, BackendDiskfs:
	case "":
		c.OfflineBackend = BackendAuto
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, c.OfflineBackend)
	}

	if c.LockTimeout <= 0 {
		c.LockTimeout = Duration(DefaultLockTimeout)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errInvalidServerPort
	}

	if c.Server.MaxUploadMB <= 0 {
		return errInvalidUploadLimit
	}

	return nil
}
