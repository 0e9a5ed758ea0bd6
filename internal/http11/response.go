package http11

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Content types set by the response helpers.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// Response is a status, an ordered header list and a body.
type Response struct {
	Status  int
	Headers Headers
	Body    []byte
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// OK returns an empty 200 response.
func OK() *Response {
	return NewResponse(StatusOK)
}

// NotFound returns a plain-text 404 response.
func NotFound() *Response {
	return NewResponse(StatusNotFound).Text("404 Not Found")
}

// InternalError returns the opaque 500 response sent when a handler fails.
func InternalError() *Response {
	return NewResponse(StatusInternalServerError).Text("500 Internal Server Error")
}

// ErrorResponse returns a plain-text response for an error status.
func ErrorResponse(status int) *Response {
	return NewResponse(status).Text(strconv.Itoa(status) + " " + StatusText(status))
}

// Header appends a header.
func (r *Response) Header(name, value string) *Response {
	r.Headers.Add(name, value)
	return r
}

// SetHeader replaces a header.
func (r *Response) SetHeader(name, value string) *Response {
	r.Headers.Set(name, value)
	return r
}

// WithStatus sets the status code.
func (r *Response) WithStatus(status int) *Response {
	r.Status = status
	return r
}

// Text sets a plain-text body.
func (r *Response) Text(s string) *Response {
	return r.Bytes(ContentTypeText, []byte(s))
}

// HTML sets an HTML body.
func (r *Response) HTML(s string) *Response {
	return r.Bytes(ContentTypeHTML, []byte(s))
}

// Bytes sets the body and its Content-Type.
func (r *Response) Bytes(contentType string, b []byte) *Response {
	r.Headers.Set("Content-Type", contentType)
	r.Body = b
	return r
}

// JSON encodes v as the body of a response with the given status.
func JSON(status int, v any) (*Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return NewResponse(status).Bytes(ContentTypeJSON, b), nil
}

// Redirect returns a redirect to location. status defaults to 302 when it
// is not a 3xx code.
func Redirect(location string, status int) *Response {
	if status < 300 || status > 399 {
		status = StatusFound
	}
	return NewResponse(status).SetHeader("Location", location)
}
