package http11

import (
	"bytes"
	"strings"
	"testing"

	"github.com/conneroisu/volki/internal/errors"
)

// FuzzReadRequest feeds arbitrary bytes to the parser. It must never panic,
// every failure must carry a kind, and accepted requests must respect the
// configured limits.
func FuzzReadRequest(f *testing.F) {
	f.Add("GET / HTTP/1.1\r\nHost: a\r\n\r\n")
	f.Add("POST /x HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc")
	f.Add("POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n\r\n")
	f.Add("GET /x HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	f.Add("GET / HTTP/1.1\r\nX: a\r\n b\r\n\r\n")
	f.Add("\r\n\r\nDELETE /a/b?c=d HTTP/1.1\r\n\r\n")
	f.Add("GET /x HTTP/1.1\r\nContent-Length: 9999999999\r\n\r\n")

	limits := Limits{MaxHeaderSize: 256, MaxBodySize: 64, MaxURILength: 64}

	f.Fuzz(func(t *testing.T, raw string) {
		p := NewParser(strings.NewReader(raw), limits)
		req, err := p.ReadRequest()
		if err != nil {
			if errors.KindOf(err) == errors.KindUnknown {
				t.Fatalf("unclassified error: %v", err)
			}
			return
		}

		if len(req.RawPath) > limits.MaxURILength {
			t.Fatalf("target of %d bytes accepted", len(req.RawPath))
		}
		if int64(len(req.Body)) > limits.MaxBodySize {
			t.Fatalf("body of %d bytes accepted", len(req.Body))
		}
		if req.Method == MethodUnknown {
			t.Fatal("unknown method accepted")
		}
		if !strings.HasPrefix(req.Path, "/") {
			t.Fatalf("path %q accepted", req.Path)
		}

		var out bytes.Buffer
		if _, err := req.WriteTo(&out); err != nil {
			t.Fatal(err)
		}
	})
}
