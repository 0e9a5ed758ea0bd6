// Package router binds discovered route files to handlers and dispatches
// parsed requests to them.
//
// A Router is assembled once by a Builder and is immutable afterwards, so a
// single instance is shared by every connection without locking. Dispatch
// never writes to the network: it turns a request into a Result that the
// connection loop serializes.
package router

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/ratelimit"
	"github.com/conneroisu/volki/internal/route"
	"github.com/conneroisu/volki/internal/scanner"
	"github.com/conneroisu/volki/internal/static"
)

// NotFoundPattern is the page pattern that doubles as the not-found handler.
const NotFoundPattern = "/404"

// apiMethods are the methods an API file answers when no binding narrows
// them. HEAD is served through GET.
var apiMethods = []http11.Method{
	http11.MethodGet,
	http11.MethodPost,
	http11.MethodPut,
	http11.MethodDelete,
	http11.MethodPatch,
	http11.MethodOptions,
}

// RateLimit caps requests per client within a sliding window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Binding supplies compiled handlers for one route file.
type Binding struct {
	Page PageHandler
	// API maps each accepted method to its handler.
	API       map[http11.Method]APIHandler
	RateLimit *RateLimit
}

// Bindings maps a route file, relative to the project root
// (e.g. "pages/users/[id].volki"), to its handlers.
type Bindings map[string]Binding

// Route is one registered (pattern, methods, handler) triple.
type Route struct {
	Pattern route.Pattern
	Methods http11.MethodSet
	Handler Handler
	File    string

	limiter *ratelimit.Limiter
}

// Options configures a Builder.
type Options struct {
	// Static serves files for GET/HEAD requests no route matches.
	// Nil disables static fall-through.
	Static *static.Server
	Logger logging.Logger
}

// Builder collects routes before freezing them into a Router.
type Builder struct {
	trie     *route.Trie[*Route]
	owners   map[string]string
	notFound *Route
	opts     Options
}

// NewBuilder returns an empty builder.
func NewBuilder(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Builder{
		trie:   route.NewTrie[*Route](),
		owners: make(map[string]string),
		opts:   opts,
	}
}

// Page registers a page for GET and HEAD. The /404 page is also kept as
// the not-found handler.
func (b *Builder) Page(pattern route.Pattern, file string, h PageHandler) error {
	r := &Route{
		Pattern: pattern,
		Methods: http11.NewMethodSet(http11.MethodGet, http11.MethodHead),
		Handler: PageFunc(h),
		File:    file,
	}
	if err := b.add(r); err != nil {
		return err
	}
	if pattern.String() == NotFoundPattern {
		b.notFound = r
	}
	return nil
}

// API registers h for one method. A non-nil rl limits each client to
// rl.Requests per rl.Window on this route.
func (b *Builder) API(pattern route.Pattern, file string, method http11.Method, h APIHandler, rl *RateLimit) error {
	r := &Route{
		Pattern: pattern,
		Methods: http11.NewMethodSet(method),
		Handler: APIFunc(h),
		File:    file,
	}
	if rl != nil && rl.Requests > 0 && rl.Window > 0 {
		r.limiter = ratelimit.New(rl.Requests, rl.Window)
	}
	return b.add(r)
}

func (b *Builder) add(r *Route) error {
	const op = "router.add"

	shape := shapeKey(r.Pattern)
	for _, m := range r.Methods.Methods() {
		if prev, ok := b.owners[m.String()+" "+shape]; ok {
			return errors.Newf(errors.KindBadPattern, op, "route %s %s is defined by both %s and %s",
				m, r.Pattern, prev, r.File).WithFile(r.File)
		}
	}

	if err := b.trie.Insert(route.Entry[*Route]{Pattern: r.Pattern, Methods: r.Methods, Handler: r}); err != nil {
		return err
	}
	for _, m := range r.Methods.Methods() {
		b.owners[m.String()+" "+shape] = r.File
	}
	return nil
}

// Build freezes the registered routes into a Router.
func (b *Builder) Build() *Router {
	b.trie.Freeze()
	return &Router{
		trie:     b.trie,
		notFound: b.notFound,
		static:   b.opts.Static,
		logger:   b.opts.Logger.WithComponent("router"),
	}
}

// Build registers every discovered route and returns the router. Files with
// a binding use its handlers. Unbound pages serve their file content; unbound
// API files answer 501. All registration failures are reported together.
func Build(discovered []scanner.DiscoveredRoute, bindings Bindings, opts Options) (*Router, error) {
	b := NewBuilder(opts)
	collector := errors.NewErrorCollector()

	for _, d := range discovered {
		binding, bound := bindings[d.File]
		if d.IsAPI {
			collector.AddError(b.registerAPI(d, binding, bound))
			continue
		}

		page := binding.Page
		if !bound || page == nil {
			content, err := os.ReadFile(d.Path)
			if err != nil {
				collector.AddError(&errors.Error{Kind: errors.KindConfig, Op: "router.Build", Message: "reading page", Cause: err, File: d.File})
				continue
			}
			page = FilePage(string(content))
		}
		collector.AddError(b.Page(d.Pattern, d.File, page))
	}

	if err := collector.Err(); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func (b *Builder) registerAPI(d scanner.DiscoveredRoute, binding Binding, bound bool) error {
	if !bound || len(binding.API) == 0 {
		b.opts.Logger.Debug(context.Background(), "api route has no binding", "file", d.File)
		for _, m := range apiMethods {
			if err := b.API(d.Pattern, d.File, m, NotImplementedAPI, nil); err != nil {
				return err
			}
		}
		return nil
	}

	methods := make([]http11.Method, 0, len(binding.API))
	for m := range binding.API {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })

	for _, m := range methods {
		if err := b.API(d.Pattern, d.File, m, binding.API[m], binding.RateLimit); err != nil {
			return err
		}
	}
	return nil
}

// shapeKey renders p with placeholder names erased, so patterns that
// match the same paths compare equal.
func shapeKey(p route.Pattern) string {
	var sb strings.Builder
	for _, s := range p.Segments {
		sb.WriteByte('/')
		switch s.Kind {
		case route.SegmentDynamic:
			sb.WriteString("[]")
		case route.SegmentCatchAll:
			sb.WriteString("[...]")
		default:
			sb.WriteString(s.Name)
		}
	}
	return sb.String()
}

// Router is an immutable route table plus fall-through handlers.
type Router struct {
	trie     *route.Trie[*Route]
	notFound *Route
	static   *static.Server
	logger   logging.Logger
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route {
	entries := r.trie.Entries()
	out := make([]*Route, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Handler)
	}
	return out
}

// Len returns the number of registered routes.
func (r *Router) Len() int {
	return r.trie.Len()
}
