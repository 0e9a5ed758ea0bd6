package http11

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io"

	"github.com/conneroisu/volki/internal/errors"
)

// maxChunkSizeDigits bounds the hex size field so it cannot overflow int64.
const maxChunkSizeDigits = 15

// chunkLineLimit bounds a chunk-size line including extensions.
const chunkLineLimit = 4096

// ChunkedReader decodes a chunked request body (RFC 9112 §7.1).
//
// Chunk extensions are ignored. Trailer fields are read and discarded
// within trailerBudget bytes. The running total is checked against
// maxBody as soon as each chunk size is known, so an oversized chunk is
// rejected before its data is read.
type ChunkedReader struct {
	r             *bufio.Reader
	remaining     int64
	total         int64
	maxBody       int64
	trailerBudget int
	line          []byte
	err           error
	eof           bool
}

// NewChunkedReader decodes chunks from r.
func NewChunkedReader(r *bufio.Reader, maxBody int64, trailerBudget int) *ChunkedReader {
	return &ChunkedReader{r: r, maxBody: maxBody, trailerBudget: trailerBudget}
}

// Read implements io.Reader.
func (cr *ChunkedReader) Read(b []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	if cr.eof {
		return 0, io.EOF
	}

	if cr.remaining == 0 {
		if err := cr.nextChunk(); err != nil {
			cr.err = err
			return 0, err
		}
		if cr.eof {
			return 0, io.EOF
		}
	}

	if int64(len(b)) > cr.remaining {
		b = b[:cr.remaining]
	}
	n, err := cr.r.Read(b)
	cr.remaining -= int64(n)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		cr.err = err
		return n, err
	}

	if cr.remaining == 0 {
		if err := cr.expectCRLF(); err != nil {
			cr.err = err
			return n, err
		}
	}
	return n, nil
}

// ReadAll appends the whole decoded body to dst.
func (cr *ChunkedReader) ReadAll(dst []byte) ([]byte, error) {
	for {
		if len(dst) == cap(dst) {
			dst = append(dst, 0)[:len(dst)]
		}
		n, err := cr.Read(dst[len(dst):cap(dst)])
		dst = dst[:len(dst)+n]
		if err == io.EOF {
			return dst, nil
		}
		if err != nil {
			return dst, err
		}
	}
}

func (cr *ChunkedReader) nextChunk() error {
	const op = "http11.ChunkedReader"

	line, err := cr.readLine(chunkLineLimit)
	if err != nil {
		if stderrors.Is(err, errLineTooLong) {
			return errors.New(errors.KindBadRequest, op, "chunk size line too long")
		}
		return err
	}

	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimRight(line, " \t")

	size, err := parseHexSize(line)
	if err != nil {
		return errors.Wrap(errors.KindBadRequest, op, err, "invalid chunk size")
	}

	if size == 0 {
		if err := cr.discardTrailers(); err != nil {
			return err
		}
		cr.eof = true
		return nil
	}

	cr.total += size
	if cr.total > cr.maxBody {
		return errors.Newf(errors.KindPayloadTooLarge, op, "chunked body exceeds %d bytes", cr.maxBody)
	}
	cr.remaining = size
	return nil
}

func (cr *ChunkedReader) discardTrailers() error {
	const op = "http11.ChunkedReader"
	budget := cr.trailerBudget
	for {
		line, err := cr.readLine(budget)
		if err != nil {
			if stderrors.Is(err, errLineTooLong) {
				return errors.Newf(errors.KindHeaderFieldsTooLarge, op, "trailer section exceeds %d bytes", cr.trailerBudget)
			}
			return err
		}
		budget -= len(line) + 2
		if len(line) == 0 {
			return nil
		}
		if bytes.IndexByte(line, ':') < 0 {
			return errors.New(errors.KindBadRequest, op, "malformed trailer field")
		}
	}
}

func (cr *ChunkedReader) expectCRLF() error {
	var crlf [2]byte
	if _, err := io.ReadFull(cr.r, crlf[:]); err != nil {
		return err
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return errors.New(errors.KindBadRequest, "http11.ChunkedReader", "chunk data not followed by CRLF")
	}
	return nil
}

func (cr *ChunkedReader) readLine(limit int) ([]byte, error) {
	cr.line = cr.line[:0]
	for {
		chunk, err := cr.r.ReadSlice('\n')
		if len(cr.line)+len(chunk) > limit {
			return nil, errLineTooLong
		}
		cr.line = append(cr.line, chunk...)
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	n := len(cr.line)
	if n < 2 || cr.line[n-2] != '\r' {
		return nil, errors.New(errors.KindBadRequest, "http11.ChunkedReader", "line not terminated by CRLF")
	}
	return cr.line[:n-2], nil
}

var errBadHexSize = stderrors.New("not a hex size")

func parseHexSize(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > maxChunkSizeDigits {
		return 0, errBadHexSize
	}
	var n int64
	for _, c := range b {
		var d byte
		switch {
		case '0' <= c && c <= '9':
			d = c - '0'
		case 'a' <= c && c <= 'f':
			d = c - 'a' + 10
		case 'A' <= c && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, errBadHexSize
		}
		n = n<<4 | int64(d)
	}
	return n, nil
}
