package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/volki/internal/app"
	"github.com/conneroisu/volki/internal/config"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/router"
	"github.com/conneroisu/volki/internal/watcher"
)

// RouteInfo is one row of the route table.
type RouteInfo struct {
	Kind    string   `json:"kind" yaml:"kind"`
	Pattern string   `json:"pattern" yaml:"pattern"`
	Methods []string `json:"methods" yaml:"methods"`
	File    string   `json:"file" yaml:"file"`
}

var routeFormats = []string{"table", "json", "yaml"}

func newRoutesCommand() *cobra.Command {
	var (
		flags *StandardFlags
		watch bool
	)

	cmd := &cobra.Command{
		Use:     "routes [root]",
		Aliases: []string{"r"},
		Short:   "Print the discovered route table",
		Long: `Discover routes under root and print them in registration order.
Conflicting or malformed route files are reported together.

With --watch the table is reprinted whenever route files change. This
only re-runs discovery; it does not affect a running server.

Examples:
  volki routes                  # Table of routes under the current directory
  volki routes ./site -o json   # JSON output
  volki routes --watch          # Reprint on change`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateFlags(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			cfg, err := loadConfig(cmd, nil, args)
			if err != nil {
				return err
			}

			level := logging.LevelWarn
			if flags.Verbose {
				level = logging.LevelDebug
			}
			logger := logging.NewLogger(&logging.LoggerConfig{Level: level, Format: cfg.Logging.Format, Output: cmd.ErrOrStderr()})

			out := cmd.OutOrStdout()
			if !watch {
				routes, err := collectRoutes(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				return printRoutes(out, routes, flags.Format())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchRoutes(ctx, out, cfg, logger, flags.Format())
		},
	}

	flags = AddStandardFlags(cmd, routeFormats, "output", "verbose")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reprint the table when route files change")

	return cmd
}

// collectRoutes discovers and registers the routes under cfg's root.
func collectRoutes(ctx context.Context, cfg *config.Config, logger logging.Logger) ([]RouteInfo, error) {
	discovered, err := app.Discover(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rt, err := router.Build(discovered, nil, router.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	routes := rt.Routes()
	infos := make([]RouteInfo, 0, len(routes))
	for _, r := range routes {
		// Routes of one API file are merged into a single row.
		if n := len(infos); n > 0 && infos[n-1].File == r.File && infos[n-1].Pattern == r.Pattern.String() {
			infos[n-1].Methods = append(infos[n-1].Methods, methodNames(r)...)
			continue
		}
		infos = append(infos, RouteInfo{
			Kind:    r.Handler.Kind.String(),
			Pattern: r.Pattern.String(),
			Methods: methodNames(r),
			File:    r.File,
		})
	}
	return infos, nil
}

func methodNames(r *router.Route) []string {
	methods := r.Methods.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}
	return names
}

func printRoutes(w io.Writer, routes []RouteInfo, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(routes, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(routes)
	case "table", "":
		return printRouteTable(w, routes)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printRouteTable(w io.Writer, routes []RouteInfo) error {
	if len(routes) == 0 {
		_, err := fmt.Fprintln(w, "No routes found.")
		return err
	}

	upper := cases.Upper(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPATTERN\tMETHODS\tFILE")
	for _, r := range routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", upper.String(r.Kind), r.Pattern, strings.Join(r.Methods, ","), r.File)
	}
	return tw.Flush()
}

// watchRoutes prints the table, then reprints it after each batch of
// route file changes until ctx is cancelled.
func watchRoutes(ctx context.Context, w io.Writer, cfg *config.Config, logger logging.Logger, format string) error {
	var mu sync.Mutex
	reprint := func() {
		mu.Lock()
		defer mu.Unlock()
		routes, err := collectRoutes(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return
		}
		if err := printRoutes(w, routes, format); err != nil {
			logger.Warn(ctx, err, "printing routes")
		}
	}

	fw, err := watcher.New(300*time.Millisecond, logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.ExtensionFilter(cfg.Routes.Extension))
	fw.AddFilter(watcher.NoHiddenFilter)

	watched := 0
	for _, dir := range []string{cfg.Routes.PagesDir, cfg.Routes.APIDir} {
		path := filepath.Join(cfg.Server.Root, dir)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}
		if err := fw.AddRecursive(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no %s or %s directory under %s", cfg.Routes.PagesDir, cfg.Routes.APIDir, cfg.Server.Root)
	}

	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, e := range events {
			logger.Debug(ctx, "route file changed", "path", e.Path, "event", e.Type.String())
		}
		mu.Lock()
		fmt.Fprintf(w, "\n%d change(s) detected, rediscovering\n", len(events))
		mu.Unlock()
		reprint()
		return nil
	})

	reprint()
	if err := fw.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
