package http11

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/conneroisu/volki/internal/errors"
	"golang.org/x/net/http/httpguts"
)

// Limits bounds the resources a single request may consume.
type Limits struct {
	// MaxHeaderSize bounds the header block: every field line including
	// its CRLF plus the terminating empty line.
	MaxHeaderSize int
	// MaxBodySize bounds the decoded body.
	MaxBodySize int64
	// MaxURILength bounds the request target.
	MaxURILength int
}

const (
	DefaultMaxHeaderSize = 8 << 10
	DefaultMaxBodySize   = 10 << 20
	DefaultMaxURILength  = 8192
)

// DefaultLimits returns the default request limits.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderSize: DefaultMaxHeaderSize,
		MaxBodySize:   DefaultMaxBodySize,
		MaxURILength:  DefaultMaxURILength,
	}
}

// requestLineSlack covers the method, the protocol token, two spaces and
// the CRLF around a maximal request target.
const requestLineSlack = len("OPTIONS") + len(" ") + len(" HTTP/1.1\r\n")

// maxLeadingEmptyLines is how many stray CRLFs are tolerated before a
// request line.
const maxLeadingEmptyLines = 4

var errLineTooLong = stderrors.New("line too long")

// Parser reads requests from one connection. Its scratch and body buffers
// are reused across keep-alive requests.
type Parser struct {
	r       *bufio.Reader
	limits  Limits
	line    []byte
	body    []byte
	started bool
}

// NewParser wraps r. A *bufio.Reader is used as is.
func NewParser(r io.Reader, limits Limits) *Parser {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 4096)
	}
	return &Parser{r: br, limits: limits}
}

// Started reports whether any byte of the current request has been read.
func (p *Parser) Started() bool {
	return p.started
}

// Reset prepares the parser for the next request on the same connection.
func (p *Parser) Reset() {
	p.started = false
}

// Buffered returns the number of bytes already read from the connection
// but not yet consumed.
func (p *Parser) Buffered() int {
	return p.r.Buffered()
}

// Wait blocks until at least one byte of a new request is available. It
// consumes nothing.
func (p *Parser) Wait() error {
	if _, err := p.r.Peek(1); err != nil {
		return p.readErr("http11.Wait", err)
	}
	return nil
}

// ReadRequest reads a complete request: head then body.
func (p *Parser) ReadRequest() (*Request, error) {
	req, err := p.ReadHead()
	if err != nil {
		return nil, err
	}
	if err := p.ReadBody(req); err != nil {
		return nil, err
	}
	return req, nil
}

// ReadHead reads the request line and header block. A Content-Length
// above MaxBodySize fails here with KindPayloadTooLarge, before any body
// byte is consumed.
func (p *Parser) ReadHead() (*Request, error) {
	const op = "http11.ReadHead"

	p.started = false

	line, err := p.readRequestLine()
	if err != nil {
		return nil, err
	}

	req := &Request{contentLength: -1}
	if err := p.parseRequestLine(req, line); err != nil {
		return nil, err
	}

	if err := p.readHeaders(&req.Headers, p.limits.MaxHeaderSize, op); err != nil {
		return nil, err
	}

	if err := p.parseFraming(req); err != nil {
		return nil, err
	}

	return req, nil
}

func (p *Parser) readRequestLine() ([]byte, error) {
	const op = "http11.ReadHead"
	limit := p.limits.MaxURILength + requestLineSlack

	for i := 0; ; i++ {
		line, err := p.readLine(limit)
		if err != nil {
			if stderrors.Is(err, errLineTooLong) {
				return nil, errors.Newf(errors.KindURITooLong, op, "request target exceeds %d bytes", p.limits.MaxURILength)
			}
			return nil, p.readErr(op, err)
		}
		if len(line) > 0 {
			return line, nil
		}
		if i >= maxLeadingEmptyLines {
			return nil, errors.New(errors.KindBadRequest, op, "empty request line")
		}
	}
}

func (p *Parser) parseRequestLine(req *Request, line []byte) error {
	const op = "http11.ReadHead"

	method, rest, ok1 := bytes.Cut(line, []byte{' '})
	target, proto, ok2 := bytes.Cut(rest, []byte{' '})
	if !ok1 || !ok2 || bytes.IndexByte(proto, ' ') >= 0 {
		return errors.New(errors.KindBadRequest, op, "malformed request line")
	}

	req.Method = ParseMethod(method)
	if req.Method == MethodUnknown {
		return errors.Newf(errors.KindBadRequest, op, "unrecognized method %q", truncate(method, 16))
	}

	if len(target) > p.limits.MaxURILength {
		return errors.Newf(errors.KindURITooLong, op, "request target exceeds %d bytes", p.limits.MaxURILength)
	}

	switch string(proto) {
	case "HTTP/1.1":
		req.Proto, req.ProtoMinor = "HTTP/1.1", 1
	case "HTTP/1.0":
		req.Proto, req.ProtoMinor = "HTTP/1.0", 0
	default:
		return errors.Newf(errors.KindBadRequest, op, "unsupported protocol %q", truncate(proto, 16))
	}

	if len(target) == 0 || target[0] != '/' {
		return errors.New(errors.KindBadRequest, op, "request target must be in origin form")
	}
	for _, c := range target {
		if c <= ' ' || c == 0x7f {
			return errors.New(errors.KindBadRequest, op, "invalid byte in request target")
		}
	}

	req.RawPath = string(target)
	req.Path, req.Query, _ = strings.Cut(req.RawPath, "?")

	return nil
}

// readHeaders reads field lines up to and including the empty line. budget
// bounds the bytes consumed.
func (p *Parser) readHeaders(h *Headers, budget int, op string) error {
	for {
		line, n, err := p.readLineCounted(budget)
		if err != nil {
			if stderrors.Is(err, errLineTooLong) {
				return errors.Newf(errors.KindHeaderFieldsTooLarge, op, "header block exceeds %d bytes", p.limits.MaxHeaderSize)
			}
			return p.readErr(op, err)
		}
		budget -= n

		if len(line) == 0 {
			return nil
		}

		if line[0] == ' ' || line[0] == '\t' {
			return errors.New(errors.KindBadRequest, op, "obsolete line folding is not accepted")
		}

		name, value, ok := bytes.Cut(line, []byte{':'})
		if !ok {
			return errors.New(errors.KindBadRequest, op, "header line without colon")
		}
		if !httpguts.ValidHeaderFieldName(string(name)) {
			return errors.Newf(errors.KindBadRequest, op, "invalid header name %q", truncate(name, 32))
		}
		value = bytes.Trim(value, " \t")
		if !httpguts.ValidHeaderFieldValue(string(value)) {
			return errors.Newf(errors.KindBadRequest, op, "invalid value for header %q", name)
		}

		h.Add(string(name), string(value))
	}
}

func (p *Parser) parseFraming(req *Request) error {
	const op = "http11.ReadHead"

	if cl := req.Headers.Values("Content-Length"); len(cl) > 0 {
		first := strings.TrimSpace(cl[0])
		for _, v := range cl[1:] {
			if strings.TrimSpace(v) != first {
				return errors.New(errors.KindBadRequest, op, "conflicting Content-Length values")
			}
		}
		n, err := parseContentLength(first)
		switch {
		case stderrors.Is(err, strconv.ErrRange):
			return errors.New(errors.KindPayloadTooLarge, op, "Content-Length overflows")
		case err != nil:
			return errors.Newf(errors.KindBadRequest, op, "invalid Content-Length %q", truncate([]byte(first), 32))
		}
		req.contentLength = n
	}

	if te := req.Headers.Values("Transfer-Encoding"); len(te) > 0 {
		if req.contentLength >= 0 {
			return errors.New(errors.KindBadRequest, op, "both Content-Length and Transfer-Encoding present")
		}
		codings := splitTokens(te)
		if len(codings) != 1 || !strings.EqualFold(codings[0], "chunked") {
			return errors.Newf(errors.KindNotImplemented, op, "unsupported transfer coding %q", strings.Join(codings, ", "))
		}
		req.chunked = true
	}

	if req.contentLength > p.limits.MaxBodySize {
		return errors.Newf(errors.KindPayloadTooLarge, op, "Content-Length %d exceeds %d", req.contentLength, p.limits.MaxBodySize)
	}

	return nil
}

// ReadBody reads the body announced by req's framing headers into a
// buffer reused across requests.
func (p *Parser) ReadBody(req *Request) error {
	const op = "http11.ReadBody"

	p.body = p.body[:0]

	switch {
	case req.chunked:
		cr := NewChunkedReader(p.r, p.limits.MaxBodySize, p.limits.MaxHeaderSize)
		body, err := cr.ReadAll(p.body)
		p.body = body
		if err != nil {
			return p.readErr(op, err)
		}
	case req.contentLength > 0:
		n := int(req.contentLength)
		if cap(p.body) < n {
			p.body = make([]byte, n)
		}
		p.body = p.body[:n]
		if _, err := io.ReadFull(p.r, p.body); err != nil {
			return p.readErr(op, err)
		}
	}

	if len(p.body) > 0 {
		req.Body = p.body
	}
	return nil
}

// readLine returns one CRLF-terminated line without the terminator.
func (p *Parser) readLine(limit int) ([]byte, error) {
	line, _, err := p.readLineCounted(limit)
	return line, err
}

// readLineCounted reads one line of at most limit bytes including CRLF. It
// returns the line without CRLF and the number of bytes consumed.
func (p *Parser) readLineCounted(limit int) ([]byte, int, error) {
	p.line = p.line[:0]
	for {
		chunk, err := p.r.ReadSlice('\n')
		if len(chunk) > 0 {
			p.started = true
		}
		if len(p.line)+len(chunk) > limit {
			return nil, 0, errLineTooLong
		}
		p.line = append(p.line, chunk...)
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return nil, 0, err
		}
	}

	n := len(p.line)
	if n < 2 || p.line[n-2] != '\r' {
		return nil, 0, errors.New(errors.KindBadRequest, "http11.readLine", "line not terminated by CRLF")
	}
	return p.line[:n-2], n, nil
}

// readErr classifies a read failure.
func (p *Parser) readErr(op string, err error) error {
	if errors.KindOf(err) != errors.KindUnknown {
		return err
	}
	if isTimeout(err) {
		return errors.Wrap(errors.KindRequestTimeout, op, err, "read deadline exceeded")
	}
	if p.started {
		return errors.Wrap(errors.KindIOClosed, op, err, "connection closed mid-request")
	}
	return errors.Wrap(errors.KindIOClosed, op, err, "connection closed")
}

func isTimeout(err error) bool {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

// splitTokens splits comma separated header values into trimmed, non-empty
// tokens.
func splitTokens(values []string) []string {
	var out []string
	for _, v := range values {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
