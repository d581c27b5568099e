package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgarman/disk-updater/internal/config"
	"github.com/jgarman/disk-updater/internal/diskmanager"
	"github.com/jgarman/disk-updater/internal/logger"
	"github.com/jgarman/disk-updater/internal/mdns"
	"github.com/jgarman/disk-updater/internal/webui"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var (
		host      string
		port      int
		advertise string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a web page and API that inject uploaded files into the disk image",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("%w: serve takes no arguments", ErrUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("advertise") {
				cfg.Server.AdvertiseName = advertise
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}

			u := diskmanager.NewSystem(diskmanager.ConfigFrom(cfg), cfg.UseSudo, cfg.Lock)
			return serve(cmd.Context(), cfg, u)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVar(&host, "host", defaults.Server.Host, "address to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", defaults.Server.Port, "port to listen on")
	cmd.Flags().StringVar(&advertise, "advertise", defaults.Server.AdvertiseName, "announce the page over mDNS under this name")

	return cmd
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, injector webui.Injector) error {
	ctx = logger.WithName(ctx, "serve")

	h, err := webui.New(injector, cfg.Server.MaxUploadMB*1024*1024)
	if err != nil {
		return fmt.Errorf("failed to initialize web UI: %w", err)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      h.Router(cfg.Server.CORS),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
		// Requests keep the logger but not the shutdown signal, so an
		// in-flight update finishes during Shutdown.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoKV(ctx, "Starting server", "addr", addr, "image", cfg.ImagePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.Server.AdvertiseName != "" {
		if a := announce(ctx, cfg); a != nil {
			defer func() {
				if err := a.Close(); err != nil {
					logger.WarnKV(ctx, "Failed to withdraw mDNS announcement", "error", err)
				}
			}()
		}
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info(ctx, "Server exited")
	return nil
}

// announce publishes the server over mDNS. Failures are logged and the
// server keeps running without an announcement.
func announce(ctx context.Context, cfg *config.Config) mdns.Announcer {
	service, err := mdns.NewHTTPService(cfg.Server.AdvertiseName, cfg.Server.Port,
		"path=/", "api=/api/inject", "image="+filepath.Base(cfg.ImagePath))
	if err != nil {
		logger.WarnKV(ctx, "Not announcing over mDNS", "error", err)
		return nil
	}

	a, err := mdns.NewAvahiAnnouncer()
	if err != nil {
		logger.WarnKV(ctx, "Not announcing over mDNS", "error", err)
		return nil
	}

	if err := a.Announce(ctx, service); err != nil {
		logger.WarnKV(ctx, "Failed to announce over mDNS", "error", err)
		_ = a.Close()
		return nil
	}

	logger.InfoKV(ctx, "Announced over mDNS", "name", service.Name, "type", service.Type)
	return a
}
