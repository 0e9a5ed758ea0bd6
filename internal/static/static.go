// Package static serves files from the public directory when no route
// matches a GET or HEAD request.
package static

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/volki/internal/http11"
)

// CacheControl is sent with every static file.
const CacheControl = "public, max-age=3600"

// IndexFile is served for directory requests.
const IndexFile = "index.html"

// Server resolves request paths inside Root.
type Server struct {
	root string
}

// New returns a Server rooted at root. root is made absolute so
// containment checks do not depend on the working directory.
func New(root string) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Server{root: abs}, nil
}

// Root returns the absolute public directory.
func (s *Server) Root() string {
	return s.root
}

// Sanitize turns a request path into a slash-separated path relative to
// the public root. It percent-decodes, strips the leading "/", and rejects
// any segment that is ".." or starts with ".", and any NUL or backslash.
// ok is false when the path must not be served.
func Sanitize(routePath string) (clean string, ok bool) {
	decoded, err := url.PathUnescape(routePath)
	if err != nil {
		return "", false
	}
	if strings.ContainsAny(decoded, "\x00\\") {
		return "", false
	}

	trimmed := strings.TrimLeft(decoded, "/")
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" {
			continue
		}
		if seg == ".." || strings.HasPrefix(seg, ".") {
			return "", false
		}
	}

	return path.Clean("/" + trimmed)[1:], true
}

// Resolve returns the file on disk that routePath maps to, or false.
// Directories resolve to their index.html.
func (s *Server) Resolve(routePath string) (string, bool) {
	clean, ok := Sanitize(routePath)
	if !ok {
		return "", false
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if !s.contains(full) {
		return "", false
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		full = filepath.Join(full, IndexFile)
		info, err = os.Stat(full)
		if err != nil {
			return "", false
		}
	}
	if !info.Mode().IsRegular() {
		return "", false
	}

	// Symlinks inside the public tree must not lead out of it.
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", false
	}
	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil || !within(realRoot, resolved) {
		return "", false
	}

	return full, true
}

// Serve returns a 200 response with the file's bytes, or false when the
// path is rejected or no regular file exists.
func (s *Server) Serve(routePath string) (*http11.Response, bool) {
	full, ok := s.Resolve(routePath)
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false
	}

	resp := http11.OK().Bytes(MimeType(filepath.Ext(full)), data)
	resp.Header("Cache-Control", CacheControl)
	return resp, true
}

func (s *Server) contains(p string) bool {
	return within(s.root, p)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
