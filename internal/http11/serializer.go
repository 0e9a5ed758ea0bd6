package http11

import (
	"io"
	"strconv"
	"time"

	"github.com/valyala/bytebufferpool"
)

// TimeFormat is the IMF-fixdate layout used for the Date header.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// DefaultServerName is sent in the Server header.
const DefaultServerName = "volki"

// WriteOptions controls per-response serialization.
type WriteOptions struct {
	// OmitBody drops the body bytes while keeping Content-Length, as for
	// a HEAD answered by a GET handler.
	OmitBody bool
	// Close adds "Connection: close".
	Close bool
	// KeepAlive adds "Connection: keep-alive" when Close is unset. HTTP/1.0
	// clients only reuse a connection that says so.
	KeepAlive bool
}

// Serializer renders responses to wire bytes.
type Serializer struct {
	Server string
	Now    func() time.Time
}

// NewSerializer returns a serializer with the default Server name.
func NewSerializer() *Serializer {
	return &Serializer{Server: DefaultServerName, Now: time.Now}
}

// WriteTo writes resp to w in a single write.
func (s *Serializer) WriteTo(w io.Writer, resp *Response, opts WriteOptions) (int64, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	s.Append(buf, resp, opts)

	n, err := w.Write(buf.B)
	return int64(n), err
}

// Append renders resp into buf.
func (s *Serializer) Append(buf *bytebufferpool.ByteBuffer, resp *Response, opts WriteOptions) {
	status := resp.Status
	if status == 0 {
		status = StatusOK
	}

	buf.B = append(buf.B, "HTTP/1.1 "...)
	buf.B = strconv.AppendInt(buf.B, int64(status), 10)
	buf.B = append(buf.B, ' ')
	buf.B = append(buf.B, StatusText(status)...)
	buf.B = append(buf.B, "\r\n"...)

	contentLength := int64(len(resp.Body))
	if n, ok := resp.Headers.ContentLength(); ok && len(resp.Body) == 0 {
		contentLength = n
	}

	for _, h := range resp.Headers.All() {
		switch foldName(h.Name) {
		case "content-length", "transfer-encoding":
			continue
		case "connection":
			if opts.Close {
				continue
			}
		}
		appendHeader(buf, h.Name, h.Value)
	}

	if !bodyless(status) {
		buf.B = append(buf.B, "Content-Length: "...)
		buf.B = strconv.AppendInt(buf.B, contentLength, 10)
		buf.B = append(buf.B, "\r\n"...)
	}

	if !resp.Headers.Has("Date") {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		buf.B = append(buf.B, "Date: "...)
		buf.B = now().UTC().AppendFormat(buf.B, TimeFormat)
		buf.B = append(buf.B, "\r\n"...)
	}

	if !resp.Headers.Has("Server") {
		name := s.Server
		if name == "" {
			name = DefaultServerName
		}
		appendHeader(buf, "Server", name)
	}

	if opts.Close {
		appendHeader(buf, "Connection", "close")
	} else if opts.KeepAlive && !resp.Headers.Has("Connection") {
		appendHeader(buf, "Connection", "keep-alive")
	}

	buf.B = append(buf.B, "\r\n"...)

	if !opts.OmitBody && !bodyless(status) {
		buf.B = append(buf.B, resp.Body...)
	}
}

func appendHeader(buf *bytebufferpool.ByteBuffer, name, value string) {
	buf.B = append(buf.B, name...)
	buf.B = append(buf.B, ": "...)
	buf.B = append(buf.B, value...)
	buf.B = append(buf.B, "\r\n"...)
}
