// Package scanner discovers file-system routes.
//
// A project root holds an optional pages/ subtree of page handlers and an
// optional api/ subtree of API handlers. Every regular file carrying the
// handler extension becomes one route: its path relative to the subtree
// is translated into a pattern (index segments drop out, [name] is a
// dynamic segment, [...name] a catch-all) and API patterns are mounted
// under /api. Directory entries are visited in lexical order so discovery
// is reproducible.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/route"
)

// Defaults for Options.
const (
	DefaultExtension = ".volki"
	DefaultPagesDir  = "pages"
	DefaultAPIDir    = "api"
)

// APIPrefix is the static segment API patterns are mounted under.
const APIPrefix = "api"

// Options configures a RouteScanner.
type Options struct {
	Extension string
	PagesDir  string
	APIDir    string
	Logger    logging.Logger
}

// DiscoveredRoute is one handler file and the pattern it serves.
type DiscoveredRoute struct {
	Pattern route.Pattern
	// File is the handler path relative to the root, slash-separated,
	// e.g. "pages/users/[id].volki".
	File string
	// Path is the handler path on disk.
	Path  string
	IsAPI bool
}

// Kind returns "page" or "api".
func (d DiscoveredRoute) Kind() string {
	if d.IsAPI {
		return "api"
	}
	return "page"
}

// RouteScanner walks a project root for handler files.
type RouteScanner struct {
	opts   Options
	logger logging.Logger
}

// New creates a scanner, filling unset options with defaults.
func New(opts Options) *RouteScanner {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.PagesDir == "" {
		opts.PagesDir = DefaultPagesDir
	}
	if opts.APIDir == "" {
		opts.APIDir = DefaultAPIDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RouteScanner{opts: opts, logger: logger.WithComponent("scanner")}
}

// Extension returns the handler extension in use.
func (s *RouteScanner) Extension() string {
	return s.opts.Extension
}

// Discover walks pages/ then api/ under root.
//
// A subtree that does not exist is skipped. An I/O error inside a subtree
// is logged and that subtree's routes are dropped; the other subtree is
// still processed. Files whose names do not form a valid pattern are
// reported together in the returned error, which names each file.
func (s *RouteScanner) Discover(ctx context.Context, root string) ([]DiscoveredRoute, error) {
	collector := errors.NewErrorCollector()

	pages := s.walkSubtree(ctx, root, s.opts.PagesDir, false, collector)
	apis := s.walkSubtree(ctx, root, s.opts.APIDir, true, collector)

	if err := collector.Err(); err != nil {
		return nil, err
	}

	routes := make([]DiscoveredRoute, 0, len(pages)+len(apis))
	routes = append(routes, pages...)
	routes = append(routes, apis...)
	return routes, nil
}

func (s *RouteScanner) walkSubtree(ctx context.Context, root, dir string, isAPI bool, collector *errors.ErrorCollector) []DiscoveredRoute {
	base := filepath.Join(root, dir)

	info, err := os.Stat(base)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn(ctx, err, "skipping route directory", "dir", base)
		} else {
			s.logger.Debug(ctx, "route directory not present", "dir", base)
		}
		return nil
	}
	if !info.IsDir() {
		s.logger.Warn(ctx, nil, "route directory is not a directory", "dir", base)
		return nil
	}

	var routes []DiscoveredRoute
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), s.opts.Extension) {
			return nil
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		file := path.Join(dir, rel)

		pattern, err := route.FilePathToPattern(rel, s.opts.Extension)
		if err != nil {
			var e *errors.Error
			if errors.As(err, &e) {
				e.WithFile(file)
			}
			collector.AddError(err)
			return nil
		}
		if isAPI {
			pattern = pattern.WithPrefix(APIPrefix)
		}

		routes = append(routes, DiscoveredRoute{Pattern: pattern, File: file, Path: p, IsAPI: isAPI})
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, err, "route discovery failed, skipping subtree", "dir", base)
		return nil
	}

	s.logger.Debug(ctx, "discovered routes", "dir", base, "count", len(routes))
	return routes
}
