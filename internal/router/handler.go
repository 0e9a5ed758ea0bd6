package router

import (
	"context"
	"io"
	"regexp"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/volki/internal/http11"
)

// HandlerKind tags the variant held by a Handler.
type HandlerKind uint8

const (
	KindPage HandlerKind = iota + 1
	KindAPI
)

func (k HandlerKind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// PageHandler renders an HTML page for a request.
type PageHandler func(req *http11.Request) (templ.Component, error)

// APIHandler produces a full response for a request.
type APIHandler func(req *http11.Request) (*http11.Response, error)

// Handler is either a page or an API handler, selected by Kind.
type Handler struct {
	Kind HandlerKind
	Page PageHandler
	API  APIHandler
}

// PageFunc wraps a page handler.
func PageFunc(h PageHandler) Handler {
	return Handler{Kind: KindPage, Page: h}
}

// APIFunc wraps an API handler.
func APIFunc(h APIHandler) Handler {
	return Handler{Kind: KindAPI, API: h}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// FilePage returns a page handler serving content, with every {{name}}
// replaced by the HTML-escaped value of path parameter name.
func FilePage(content string) PageHandler {
	return func(req *http11.Request) (templ.Component, error) {
		html := placeholderRe.ReplaceAllStringFunc(content, func(m string) string {
			name := placeholderRe.FindStringSubmatch(m)[1]
			return templ.EscapeString(req.Param(name))
		})
		return templ.Raw(html), nil
	}
}

// NotImplementedAPI answers every request with 501.
func NotImplementedAPI(*http11.Request) (*http11.Response, error) {
	return http11.ErrorResponse(http11.StatusNotImplemented), nil
}

// ErrorPage renders the default HTML page for an error status.
func ErrorPage(status int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := templ.EscapeString(strconv.Itoa(status) + " " + http11.StatusText(status))
		_, err := io.WriteString(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>"+
			title+"</title></head><body><h1>"+title+"</h1></body></html>\n")
		return err
	})
}
