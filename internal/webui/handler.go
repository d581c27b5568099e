package webui

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/jgarman/disk-updater/internal/config"
	"github.com/jgarman/disk-updater/internal/diskmanager"
	"github.com/jgarman/disk-updater/internal/lock"
	"github.com/jgarman/disk-updater/internal/logger"
)

// Injector copies a host file into the disk image.
type Injector interface {
	Update(ctx context.Context, sourcePath string) (*diskmanager.Result, error)
}

// Handler manages HTTP requests for the web UI
type Handler struct {
	injector       Injector
	templates      *template.Template
	maxUploadBytes int64
	stagingRoot    string

	// One update at a time: the image and scratch directory are shared.
	mu sync.Mutex
}

// Option configures a Handler.
type Option func(*Handler)

// WithStagingRoot sets the directory under which uploads are staged.
func WithStagingRoot(dir string) Option {
	return func(h *Handler) {
		h.stagingRoot = dir
	}
}

// New creates a new web UI handler
func New(injector Injector, maxUploadBytes int64, opts ...Option) (*Handler, error) {
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	h := &Handler{
		injector:       injector,
		templates:      tmpl,
		maxUploadBytes: maxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// Router registers the handler routes behind the CORS middleware.
func (h *Handler) Router(c config.CORSConfig) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", h.IndexHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/inject", h.InjectHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/health", h.HealthHandler).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		AllowCredentials: c.AllowCredentials,
	}).Handler(r)
}

// IndexHandler serves the upload page
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := h.templates.ExecuteTemplate(w, "index", nil); err != nil {
		logger.ErrorKV(r.Context(), "Error rendering template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

type injectResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Result  *diskmanager.Result `json:"result,omitempty"`
}

// InjectHandler stages the uploaded "file" part on the host and copies it
// into the disk image under its base name.
func (h *Handler) InjectHandler(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	ctx := logger.WithKV(logger.WithName(r.Context(), "webui"), "request_id", requestID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, injectResponse{Error: "Invalid multipart request"})
		return
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.uploadFailed(ctx, w, err)
			return
		}

		if part.FormName() != "file" {
			part.Close()
			continue
		}

		filename := sanitizeFilename(part.FileName())
		if filename == "" {
			part.Close()
			writeJSON(w, http.StatusBadRequest, injectResponse{Error: "Empty filename"})
			return
		}

		stagingDir, err := os.MkdirTemp(h.stagingRoot, "disk-updater-"+requestID+"-")
		if err != nil {
			part.Close()
			logger.ErrorKV(ctx, "Failed to create staging directory", "error", err)
			writeJSON(w, http.StatusInternalServerError, injectResponse{Error: "Failed to stage upload"})
			return
		}
		defer os.RemoveAll(stagingDir)

		staged := filepath.Join(stagingDir, filename)
		err = stageFile(staged, part)
		part.Close()
		if err != nil {
			h.uploadFailed(ctx, w, err)
			return
		}

		logger.InfoKV(ctx, "Injecting uploaded file", "filename", filename)

		h.mu.Lock()
		result, err := h.injector.Update(ctx, staged)
		h.mu.Unlock()

		if err != nil {
			logger.ErrorKV(ctx, "Failed to inject file", "error", err)
			status, message := injectFailure(err)
			writeJSON(w, status, injectResponse{Error: message})
			return
		}

		writeJSON(w, http.StatusOK, injectResponse{Success: true, Result: result})
		return
	}

	writeJSON(w, http.StatusBadRequest, injectResponse{Error: "No file provided"})
}

// HealthHandler provides a health check endpoint
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status": "ok"}`)
}

func (h *Handler) uploadFailed(ctx context.Context, w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, injectResponse{
			Error: fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit),
		})
		return
	}

	logger.WarnKV(ctx, "Error reading upload", "error", err)
	writeJSON(w, http.StatusBadRequest, injectResponse{Error: "Error reading upload"})
}

// stageFile streams r into a new executable file at path.
func stageFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o755)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, bufio.NewReaderSize(r, 1024*1024)); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// sanitizeFilename keeps the last path element so uploads cannot escape the
// staging directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

func injectFailure(err error) (int, string) {
	switch {
	case errors.Is(err, diskmanager.ErrImageNotFound):
		return http.StatusServiceUnavailable, "Disk image not found. Build the disk image first."
	case errors.Is(err, lock.ErrTimeout):
		return http.StatusServiceUnavailable, "Another update is in progress. Try again later."
	case errors.Is(err, diskmanager.ErrDiskFull):
		return http.StatusInsufficientStorage, "Disk image is full."
	case errors.Is(err, diskmanager.ErrSourceNotFound):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Failed to inject file: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
