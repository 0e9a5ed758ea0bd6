package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/volki/internal/app"
)

var serveBindings = map[string]string{
	"host":             "server.host",
	"port":             "server.port",
	"workers":          "server.workers",
	"public-dir":       "server.public_dir",
	"shutdown-timeout": "server.shutdown_timeout",
	"tls-cert":         "tls.cert_file",
	"tls-key":          "tls.key_file",
	"metrics":          "metrics.enabled",
	"metrics-addr":     "metrics.address",
}

func newServeCommand() *cobra.Command {
	var flags *StandardFlags

	cmd := &cobra.Command{
		Use:     "serve [root]",
		Aliases: []string{"s"},
		Short:   "Serve a project directory",
		Long: `Discover routes under root (default: the configured server.root) and
serve them until interrupted. SIGINT or SIGTERM stops accepting new
connections and drains in-flight requests for up to server.shutdown_timeout.

Examples:
  volki serve                      # Serve the current directory
  volki serve ./site -p 8080       # Serve ./site on port 8080
  volki serve --metrics            # Also expose /metrics on 127.0.0.1:9090
  volki serve --tls-cert c.pem --tls-key k.pem`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, flags)
		},
	}

	cmd.Flags().String("host", "", "Host to bind to (default 127.0.0.1)")
	cmd.Flags().IntP("port", "p", 0, "Port to serve on (default 3000)")
	cmd.Flags().Int("workers", 0, "Accept loops (default: number of CPUs)")
	cmd.Flags().String("public-dir", "", "Static file directory below root (default public)")
	cmd.Flags().Duration("shutdown-timeout", 0, "Time allowed for draining connections (default: keep-alive timeout)")
	cmd.Flags().String("tls-cert", "", "TLS certificate file (PEM)")
	cmd.Flags().String("tls-key", "", "TLS private key file (PEM)")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics")
	cmd.Flags().String("metrics-addr", "", "Metrics listener address (default 127.0.0.1:9090)")
	flags = AddStandardFlags(cmd, nil, "verbose")

	return cmd
}

func runServe(cmd *cobra.Command, args []string, flags *StandardFlags) error {
	cfg, err := loadConfig(cmd, serveBindings, args)
	if err != nil {
		return err
	}
	if flags.Verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := app.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}

	scheme := "http"
	if cfg.TLS.Enabled() {
		scheme = "https"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s (%d routes) at %s://%s\n", cfg.Server.Root, a.Router.Len(), scheme, cfg.Server.Addr())
	if a.Metrics != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Metrics at http://%s/metrics\n", cfg.Metrics.Address)
	}

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}
