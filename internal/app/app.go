// Package app assembles a runnable server from configuration: route
// discovery, the router, the connection server and optional metrics.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/volki/internal/config"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/metrics"
	"github.com/conneroisu/volki/internal/router"
	"github.com/conneroisu/volki/internal/scanner"
	"github.com/conneroisu/volki/internal/server"
	"github.com/conneroisu/volki/internal/static"
	"github.com/conneroisu/volki/internal/version"
)

// Options supplies what configuration cannot express.
type Options struct {
	// Bindings maps handler files to compiled handlers. Unbound files get
	// the file-backed runtime.
	Bindings router.Bindings
	// Logger overrides the logger built from the logging config.
	Logger logging.Logger
}

// App is an assembled server.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *metrics.Metrics
	Routes  []scanner.DiscoveredRoute
	Router  *router.Router
	Server  *server.Server
}

// NewLogger builds the logger described by cfg, writing to w.
func NewLogger(cfg config.LoggingConfig, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: w,
	}), nil
}

// Discover walks the configured root for handler files.
func Discover(ctx context.Context, cfg *config.Config, logger logging.Logger) ([]scanner.DiscoveredRoute, error) {
	opts := cfg.Routes.ScannerOptions()
	opts.Logger = logger
	return scanner.New(opts).Discover(ctx, cfg.Server.Root)
}

// New discovers routes, builds the router and prepares the server. Every
// discovery and registration error is reported at once.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		l, err := NewLogger(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	routes, err := Discover(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("discovering routes: %w", err)
	}

	var publicDir *static.Server
	if info, statErr := os.Stat(cfg.Server.PublicPath()); statErr == nil && info.IsDir() {
		publicDir, err = static.New(cfg.Server.PublicPath())
		if err != nil {
			return nil, fmt.Errorf("public directory: %w", err)
		}
	} else {
		logger.Debug(ctx, "no public directory, static files disabled", "path", cfg.Server.PublicPath())
	}

	rt, err := router.Build(routes, opts.Bindings, router.Options{Static: publicDir, Logger: logger})
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		m.SetRoutes(rt.Len())
	}

	limits, budget := cfg.Security.Limits()
	srvOpts := server.Options{
		Addr:            cfg.Server.Addr(),
		Workers:         cfg.Server.Workers,
		Limits:          limits,
		Budget:          budget,
		GlobalRateLimit: cfg.Security.RateLimit(),
		ServerName:      version.ServerHeader(),
		DrainTimeout:    cfg.Server.ShutdownTimeout,
		Logger:          logger,
		Metrics:         m,
	}
	if cfg.TLS.Enabled() {
		tlsConfig, err := server.LoadTLSConfig(resolve(cfg.Server.Root, cfg.TLS.CertFile), resolve(cfg.Server.Root, cfg.TLS.KeyFile))
		if err != nil {
			return nil, err
		}
		srvOpts.TLS = tlsConfig
	}

	logger.Info(ctx, "routes registered", "routes", rt.Len(), "files", len(routes))

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Routes:  routes,
		Router:  rt,
		Server:  server.New(rt, srvOpts),
	}, nil
}

// Run serves until ctx is cancelled, then gives open connections up to the
// configured shutdown timeout to finish before closing them. The metrics
// listener runs alongside when enabled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Server.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Server.Start(gctx)
	})
	if a.Metrics != nil {
		g.Go(func() error {
			return a.Metrics.ListenAndServe(gctx, a.Config.Metrics.Address, a.Logger)
		})
	}
	return g.Wait()
}

// resolve anchors a relative path at root.
func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
