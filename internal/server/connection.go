package server

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/router"
)

const (
	// lingerTimeout bounds how long unread input is drained after an error
	// response before the socket is closed.
	lingerTimeout  = 500 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// connection serves the requests of one client in order.
type connection struct {
	srv    *Server
	conn   net.Conn
	state  *trackedConn
	parser *http11.Parser
	remote string
}

func (c *connection) serve(ctx context.Context) {
	budget := c.srv.opts.Budget
	idle := budget.ReadTimeout
	first := true

	for {
		c.state.idle.Store(true)
		c.setReadDeadline(idle)
		if c.srv.closing.Load() {
			return
		}
		err := c.parser.Wait()
		c.state.idle.Store(false)
		if err != nil {
			c.readFailed(ctx, err)
			return
		}

		// The first request line and headers share the read budget armed
		// before Wait. After a keep-alive wait they get a fresh one.
		if !first {
			c.setReadDeadline(budget.ReadTimeout)
		}
		if !c.serveRequest(ctx) {
			return
		}

		c.parser.Reset()
		idle = budget.KeepAliveTimeout
		first = false
	}
}

// serveRequest reads, dispatches and answers one request under the read
// deadline already set. It reports whether the connection stays open.
func (c *connection) serveRequest(ctx context.Context) bool {
	req, err := c.parser.ReadHead()
	if err != nil {
		c.readFailed(ctx, err)
		return false
	}
	req.RemoteAddr = c.remote
	start := time.Now()

	if c.srv.rate != nil {
		if res := c.srv.rate.Check(hostOf(c.remote)); !res.Allowed {
			c.srv.metrics.ConnectionRejected("rate_limit")
			resp := http11.ErrorResponse(http11.StatusTooManyRequests).
				SetHeader("Retry-After", router.RetryAfter(res.RetryAfter.Seconds()))
			if c.respond(ctx, req, resp, req.Method == http11.MethodHead, true, start) == nil {
				c.lingerClose()
			}
			return false
		}
	}

	// The body gets a fresh read budget of its own.
	c.setReadDeadline(c.srv.opts.Budget.ReadTimeout)
	if err := c.parser.ReadBody(req); err != nil {
		c.readFailed(ctx, err)
		return false
	}

	res := c.srv.dispatcher.Dispatch(ctx, req)
	if res.Response == nil {
		res.Response = http11.InternalError()
		res.Close = true
	}

	keepAlive := req.KeepAlive() && !res.Close && !c.srv.closing.Load()
	if err := c.respond(ctx, req, res.Response, res.OmitBody, !keepAlive, start); err != nil {
		return false
	}
	return keepAlive
}

// respond writes resp and records the access log entry.
func (c *connection) respond(ctx context.Context, req *http11.Request, resp *http11.Response, omitBody, closeConn bool, start time.Time) error {
	c.setWriteDeadline()
	_, err := c.srv.serializer.WriteTo(c.conn, resp, http11.WriteOptions{
		OmitBody:  omitBody,
		Close:     closeConn,
		KeepAlive: req.ProtoMinor == 0,
	})

	elapsed := time.Since(start)
	c.srv.metrics.ServerRequest(req.Method.String(), resp.Status, elapsed)
	logging.LogRequest(c.srv.logger, ctx, req.Method.String(), logging.SanitizeForLog(req.RawPath), resp.Status, elapsed)

	if err != nil {
		c.srv.logger.Debug(ctx, "write failed", "remote", c.remote, "error", err.Error())
	}
	return err
}

// readFailed answers a read or parse failure. The connection is closed
// afterwards in every case.
func (c *connection) readFailed(ctx context.Context, err error) {
	kind := errors.KindOf(err)

	switch kind {
	case errors.KindIOClosed:
		if c.parser.Started() {
			c.srv.logger.Debug(ctx, "connection closed mid-request", "remote", c.remote)
		}
		return

	case errors.KindRequestTimeout:
		if c.srv.closing.Load() || c.parser.Started() || c.parser.Buffered() > 0 {
			c.srv.logger.Debug(ctx, "read timed out", "remote", c.remote)
			return
		}
	}

	c.srv.metrics.ParseError(kind.String())
	c.srv.logger.Debug(ctx, "rejecting request", "remote", c.remote, "error", err.Error())

	c.setWriteDeadline()
	resp := http11.ErrorResponse(kind.Status())
	if _, werr := c.srv.serializer.WriteTo(c.conn, resp, http11.WriteOptions{Close: true}); werr != nil {
		c.srv.logger.Debug(ctx, "write failed", "remote", c.remote, "error", werr.Error())
		return
	}
	c.lingerClose()
}

// lingerClose half-closes the connection and discards pending input, so
// the peer reads the response before the close instead of a reset.
func (c *connection) lingerClose() {
	cw, ok := c.conn.(interface{ CloseWrite() error })
	if !ok || cw.CloseWrite() != nil {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.CopyN(io.Discard, c.conn, maxLingerBytes)
}

func (c *connection) setReadDeadline(d time.Duration) {
	var t time.Time
	if d > 0 {
		t = time.Now().Add(d)
	}
	_ = c.conn.SetReadDeadline(t)
}

func (c *connection) setWriteDeadline() {
	var t time.Time
	if d := c.srv.opts.Budget.WriteTimeout; d > 0 {
		t = time.Now().Add(d)
	}
	_ = c.conn.SetWriteDeadline(t)
}
