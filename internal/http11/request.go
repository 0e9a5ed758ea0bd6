package http11

import (
	"io"
	"strings"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http/httpguts"
)

// Request is a parsed HTTP/1.x request.
//
// Body aliases a buffer owned by the Parser and is only valid until the
// next request is read from the same connection.
type Request struct {
	Method  Method
	RawPath string // request target as received
	Path    string // target with the query removed
	Query   string // text after '?', empty when absent

	Proto      string // "HTTP/1.0" or "HTTP/1.1"
	ProtoMinor int

	Headers Headers
	Body    []byte

	// Params holds path parameters bound by the router.
	Params map[string]string

	RemoteAddr string

	contentLength int64 // -1 when no Content-Length was sent
	chunked       bool
}

// QueryParam is one k=v token of a query string.
type QueryParam struct {
	Key   string
	Value string
}

// Param returns a bound path parameter, or "".
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Header returns the first value of the named header.
func (r *Request) Header(name string) string {
	return r.Headers.Get(name)
}

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// ContentLength returns the announced body length, or -1.
func (r *Request) ContentLength() int64 {
	return r.contentLength
}

// Chunked reports whether the body uses chunked transfer coding.
func (r *Request) Chunked() bool {
	return r.chunked
}

// QueryParams splits the raw query on '&'. Each token is k=v; a bare token
// yields an empty value and empty tokens are skipped. Values are returned
// as sent, without percent-decoding.
func (r *Request) QueryParams() []QueryParam {
	if r.Query == "" {
		return nil
	}

	var out []QueryParam
	for _, tok := range strings.Split(r.Query, "&") {
		if tok == "" {
			continue
		}
		k, v, _ := strings.Cut(tok, "=")
		out = append(out, QueryParam{Key: k, Value: v})
	}
	return out
}

// QueryValue returns the first value for key in the query string.
func (r *Request) QueryValue(key string) string {
	for _, p := range r.QueryParams() {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// KeepAlive reports whether the connection may carry another request after
// this one. HTTP/1.1 is persistent unless "Connection: close" is sent;
// HTTP/1.0 is persistent only with "Connection: keep-alive".
func (r *Request) KeepAlive() bool {
	conn := r.Headers.Values("Connection")
	if httpguts.HeaderValuesContainsToken(conn, "close") {
		return false
	}
	if r.ProtoMinor == 0 {
		return httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return true
}

// WriteTo writes the request in wire form. Headers are written in arrival
// order as "Name: Value" and the body is written verbatim.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString(r.Method.String())
	buf.WriteByte(' ')
	buf.WriteString(r.RawPath)
	buf.WriteByte(' ')
	buf.WriteString(r.Proto)
	buf.WriteString("\r\n")
	for _, h := range r.Headers.All() {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)

	n, err := w.Write(buf.B)
	return int64(n), err
}
