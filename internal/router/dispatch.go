package router

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/valyala/bytebufferpool"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
)

// Result is the outcome of dispatching one request.
type Result struct {
	Response *http11.Response
	// OmitBody is set for HEAD requests.
	OmitBody bool
	// Close asks the connection loop to close after writing.
	Close bool
	// Pattern is the matched route pattern, "static" for files, or empty.
	Pattern string
	// Err is the handler failure behind a 500, if any.
	Err error
}

// Dispatch routes req and runs the matched handler. Unmatched GET and HEAD
// requests fall through to the static server and then to the not-found
// handler. Handler errors and panics become an opaque 500 that closes the
// connection.
func (r *Router) Dispatch(ctx context.Context, req *http11.Request) Result {
	res := r.dispatch(ctx, req)
	if req.Method == http11.MethodHead {
		res.OmitBody = true
	}
	return res
}

func (r *Router) dispatch(ctx context.Context, req *http11.Request) Result {
	m, err := r.trie.Lookup(req.Method, req.Path)
	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindMethodNotAllowed:
			resp := r.errorPage(ctx, http11.StatusMethodNotAllowed)
			resp.SetHeader("Allow", errors.ContextValue(err, "allow"))
			return Result{Response: resp}
		default:
			return r.fallThrough(ctx, req)
		}
	}

	rt := m.Entry.Handler

	params, err := decodeParams(m.Params)
	if err != nil {
		r.logger.Debug(ctx, "rejecting parameter", "path", req.Path, "error", err.Error())
		return Result{Response: http11.ErrorResponse(http11.StatusBadRequest), Pattern: rt.Pattern.String()}
	}
	req.Params = params

	if rt.limiter != nil {
		if res := rt.limiter.Check(clientKey(req.RemoteAddr) + " " + req.Path); !res.Allowed {
			resp := http11.ErrorResponse(http11.StatusTooManyRequests)
			resp.SetHeader("Retry-After", RetryAfter(res.RetryAfter.Seconds()))
			return Result{Response: resp, Close: true, Pattern: rt.Pattern.String()}
		}
	}

	resp, err := r.invoke(ctx, rt, req)
	if err != nil {
		r.logger.Error(ctx, err, "handler failed", "file", rt.File, "path", req.Path)
		return Result{Response: http11.InternalError(), Close: true, Pattern: rt.Pattern.String(), Err: err}
	}
	return Result{Response: resp, Pattern: rt.Pattern.String()}
}

// fallThrough answers a request no route matched.
func (r *Router) fallThrough(ctx context.Context, req *http11.Request) Result {
	if req.Method == http11.MethodGet || req.Method == http11.MethodHead {
		if r.static != nil {
			if resp, ok := r.static.Serve(req.Path); ok {
				return Result{Response: resp, Pattern: "static"}
			}
		}
		if r.notFound != nil {
			resp, err := r.invoke(ctx, r.notFound, req)
			if err == nil {
				return Result{Response: resp.WithStatus(http11.StatusNotFound), Pattern: NotFoundPattern}
			}
			r.logger.Error(ctx, err, "not-found page failed", "file", r.notFound.File)
		}
	}
	return Result{Response: r.errorPage(ctx, http11.StatusNotFound)}
}

// invoke runs a handler, converting panics and nil responses to errors.
func (r *Router) invoke(ctx context.Context, rt *Route, req *http11.Request) (resp *http11.Response, err error) {
	const op = "router.invoke"

	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = errors.Newf(errors.KindHandlerFailed, op, "panic: %v", p).WithFile(rt.File)
		}
	}()

	switch rt.Handler.Kind {
	case KindPage:
		c, err := rt.Handler.Page(req)
		if err != nil {
			return nil, errors.Wrap(errors.KindHandlerFailed, op, err, rt.File)
		}
		if c == nil {
			return nil, errors.New(errors.KindHandlerFailed, op, "page returned no component").WithFile(rt.File)
		}
		body, err := render(ctx, c)
		if err != nil {
			return nil, errors.Wrap(errors.KindHandlerFailed, op, err, "rendering "+rt.File)
		}
		return http11.OK().Bytes(http11.ContentTypeHTML, body), nil

	case KindAPI:
		resp, err := rt.Handler.API(req)
		if err != nil {
			return nil, errors.Wrap(errors.KindHandlerFailed, op, err, rt.File)
		}
		if resp == nil {
			return nil, errors.New(errors.KindHandlerFailed, op, "handler returned no response").WithFile(rt.File)
		}
		return resp, nil

	default:
		return nil, errors.New(errors.KindHandlerFailed, op, fmt.Sprintf("unknown handler kind %d", rt.Handler.Kind)).WithFile(rt.File)
	}
}

// errorPage renders the default page for status, falling back to plain text.
func (r *Router) errorPage(ctx context.Context, status int) *http11.Response {
	body, err := render(ctx, ErrorPage(status))
	if err != nil {
		return http11.ErrorResponse(status)
	}
	return http11.NewResponse(status).Bytes(http11.ContentTypeHTML, body)
}

func render(ctx context.Context, c templ.Component) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := c.Render(ctx, buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// decodeParams percent-decodes raw parameter values.
func decodeParams(raw map[string]string) (map[string]string, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		d, err := url.PathUnescape(v)
		if err != nil {
			return nil, errors.Wrap(errors.KindBadRequest, "router.decodeParams", err, "parameter "+name)
		}
		out[name] = d
	}
	return out, nil
}

// clientKey strips the port from a remote address.
func clientKey(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// RetryAfter formats a wait in seconds for the Retry-After header,
// rounding up to at least one second.
func RetryAfter(seconds float64) string {
	s := int64(math.Ceil(seconds))
	if s < 1 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}
