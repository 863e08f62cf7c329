package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/projectform/internal/config"
	"github.com/vango-dev/projectform/internal/errors"
	"github.com/vango-dev/projectform/pkg/metrics"
	"github.com/vango-dev/projectform/pkg/middleware"
	"github.com/vango-dev/projectform/pkg/server"
	"github.com/vango-dev/projectform/pkg/upload"
)

type serveOptions struct {
	dir       string
	host      string
	port      int
	store     string
	uploadDir string
	debug     bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the project form server.

Configuration is read from projectform.json in --config; defaults apply
when the file is missing. Flags override the file.

Examples:
  projectform serve
  projectform serve --port=8080 --store=s3
  projectform serve --config=deploy --host=0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "config", "c", ".", "Directory containing projectform.json")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Host to bind to (default from projectform.json)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from projectform.json)")
	cmd.Flags().StringVar(&opts.store, "store", "", "Upload store: disk or s3")
	cmd.Flags().StringVar(&opts.uploadDir, "upload-dir", "", "Disk store directory")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Log at debug level")

	return cmd
}

// loadConfig reads the configuration, applies flag overrides and
// validates the result.
func loadConfig(opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		if errors.CodeOf(err) != "C301" {
			return nil, err
		}
		cfg = config.New()
	}

	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.store != "" {
		cfg.Upload.Store = opts.store
	}
	if opts.uploadDir != "" {
		cfg.Upload.Dir = opts.uploadDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore builds the configured upload store.
func openStore(ctx context.Context, cfg *config.Config) (upload.Store, error) {
	switch cfg.Upload.Store {
	case config.StoreS3:
		s3cfg := cfg.Upload.S3
		client, err := upload.NewS3Client(ctx, upload.S3Options{
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return upload.NewS3Store(client, s3cfg.Bucket, s3cfg.Prefix, cfg.Upload.MaxRequestSize), nil
	default:
		return upload.NewDiskStore(cfg.UploadDir(), cfg.Upload.MaxRequestSize)
	}
}

// newServerConfig assembles the server configuration with metrics and
// tracing middleware when metrics are enabled.
func newServerConfig(cfg *config.Config, store upload.Store, logger *slog.Logger) *server.Config {
	sc := server.FromConfig(cfg, store)
	sc.Logger = logger
	sc.Middleware = append(sc.Middleware, middleware.OpenTelemetry(
		middleware.WithTracerName("projectform"),
		middleware.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
	))

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sc.Metrics = metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(registry),
		)
		sc.Middleware = append(sc.Middleware, middleware.Prometheus(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(registry),
		))
	}
	return sc
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runServe(ctx context.Context, stderr io.Writer, opts serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, opts.debug)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Upload.Store, err)
	}

	srv, err := server.New(newServerConfig(cfg, store, logger))
	if err != nil {
		return err
	}

	info(stderr, "Listening on http://%s", cfg.Address())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		cleanupLoop(ctx, store, cfg.CleanupInterval(), cfg.TempExpiry(), logger)
		return nil
	})
	return g.Wait()
}

// cleanupLoop removes expired staged bytes every interval until ctx ends.
func cleanupLoop(ctx context.Context, store upload.Store, interval, maxAge time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Cleanup(ctx, maxAge)
			if err != nil {
				logger.Warn("upload cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("removed expired uploads", "count", n)
			}
		}
	}
}
