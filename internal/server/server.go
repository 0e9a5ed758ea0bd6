// Package server accepts connections and runs the HTTP/1.1 request loop.
//
// Each accepted connection is served by one goroutine to completion;
// requests on a connection are strictly ordered. Connection slots are
// taken from a Limiter on accept and released on every exit path.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/metrics"
	"github.com/conneroisu/volki/internal/ratelimit"
	"github.com/conneroisu/volki/internal/router"
)

// Budget holds the connection timeouts and limits.
type Budget struct {
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	KeepAliveTimeout    time.Duration
	HandshakeTimeout    time.Duration
	MaxConnections      int
	MaxConnectionsPerIP int
}

// DefaultBudget returns the default connection budget.
func DefaultBudget() Budget {
	return Budget{
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		KeepAliveTimeout:    60 * time.Second,
		HandshakeTimeout:    10 * time.Second,
		MaxConnections:      1024,
		MaxConnectionsPerIP: 64,
	}
}

// Dispatcher turns a parsed request into a response.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *http11.Request) router.Result
}

// Options configures a Server.
type Options struct {
	Addr string
	// Workers is the number of accept loops. Defaults to runtime.NumCPU().
	Workers int
	Limits  http11.Limits
	Budget  Budget
	// TLS enables TLS termination when non-nil.
	TLS *tls.Config
	// GlobalRateLimit admits each client IP at most Requests per Window.
	GlobalRateLimit *router.RateLimit
	// ServerName is sent in the Server header. Defaults to "volki".
	ServerName string
	// DrainTimeout bounds how long open connections may finish after the
	// serve context is cancelled before they are closed. Defaults to
	// Budget.KeepAliveTimeout.
	DrainTimeout time.Duration
	Logger     logging.Logger
	Metrics    *metrics.Metrics
}

// Server is an HTTP/1.1 server.
type Server struct {
	opts       Options
	dispatcher Dispatcher
	serializer *http11.Serializer
	limiter    *Limiter
	rate       *ratelimit.Limiter
	logger     logging.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	ln    net.Listener
	conns map[*trackedConn]struct{}

	closing      atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// trackedConn is an open connection and whether it is waiting for the
// next request.
type trackedConn struct {
	net.Conn
	idle atomic.Bool
}

// New creates a server dispatching to d.
func New(d Dispatcher, opts Options) *Server {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Limits == (http11.Limits{}) {
		opts.Limits = http11.DefaultLimits()
	}
	if opts.Budget == (Budget{}) {
		opts.Budget = DefaultBudget()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = opts.Budget.KeepAliveTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	serializer := http11.NewSerializer()
	if opts.ServerName != "" {
		serializer.Server = opts.ServerName
	}

	s := &Server{
		opts:       opts,
		dispatcher: d,
		serializer: serializer,
		limiter:    NewLimiter(opts.Budget.MaxConnections, opts.Budget.MaxConnectionsPerIP),
		logger:     opts.Logger.WithComponent("server"),
		metrics:    opts.Metrics,
		conns:      make(map[*trackedConn]struct{}),
		done:       make(chan struct{}),
	}
	if rl := opts.GlobalRateLimit; rl != nil && rl.Requests > 0 && rl.Window > 0 {
		s.rate = ratelimit.New(rl.Requests, rl.Window)
	}
	return s
}

// LoadTLSConfig builds a server TLS config from a PEM certificate and key.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}, nil
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the address unless already bound and serves until ctx is
// cancelled or Shutdown is called. Cancelling ctx drains connections for
// up to Options.DrainTimeout.
func (s *Server) Start(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	return s.Serve(ctx, ln)
}

// Serve runs the accept loops on ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	scheme := "http"
	if s.opts.TLS != nil {
		scheme = "https"
	}
	s.logger.Info(ctx, "server listening", "addr", scheme+"://"+ln.Addr().String(), "workers", s.opts.Workers)

	connCtx := context.WithoutCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Workers; i++ {
		g.Go(func() error { return s.acceptLoop(connCtx, ln) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.done:
			return nil
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), s.opts.DrainTimeout)
		defer cancel()
		if err := s.Shutdown(drainCtx); err != nil {
			s.logger.Warn(drainCtx, err, "connections did not drain")
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				s.logger.Warn(ctx, err, "accept failed, retrying", "delay", delay.String())
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		delay = 0

		release, err := s.limiter.Acquire(conn.RemoteAddr().String())
		if err != nil {
			reason := errors.ContextValue(err, "reason")
			s.metrics.ConnectionRejected(reason)
			s.logger.Debug(ctx, "connection rejected", "remote", conn.RemoteAddr().String(), "reason", reason)
			_ = conn.Close()
			continue
		}

		tc := &trackedConn{Conn: conn}
		if !s.track(tc) {
			release()
			_ = conn.Close()
			return nil
		}
		go s.serveConn(ctx, tc, release)
	}
}

// track registers an accepted connection. It fails once shutdown began.
func (s *Server) track(tc *trackedConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[tc] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(tc *trackedConn) {
	s.mu.Lock()
	delete(s.conns, tc)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) serveConn(ctx context.Context, tc *trackedConn, release func()) {
	remote := tc.RemoteAddr().String()
	s.metrics.ConnectionOpened()

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error(ctx, fmt.Errorf("panic: %v", p), "connection goroutine panicked", "remote", remote)
		}
		_ = tc.Close()
		release()
		s.metrics.ConnectionClosed()
		s.untrack(tc)
	}()

	var conn net.Conn = tc.Conn
	if s.opts.TLS != nil {
		tlsConn, err := s.handshake(ctx, tc.Conn)
		if err != nil {
			s.metrics.ConnectionRejected("tls")
			s.logger.Debug(ctx, "tls handshake failed", "remote", remote, "error", err.Error())
			return
		}
		conn = tlsConn
	}

	c := &connection{
		srv:    s,
		conn:   conn,
		state:  tc,
		parser: http11.NewParser(conn, s.opts.Limits),
		remote: remote,
	}
	c.serve(ctx)
}

func (s *Server) handshake(ctx context.Context, raw net.Conn) (*tls.Conn, error) {
	tlsConn := tls.Server(raw, s.opts.TLS)
	if d := s.opts.Budget.HandshakeTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// Shutdown stops accepting, wakes idle connections and waits for busy ones
// to finish their current request. When ctx expires first, the remaining
// connections are closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closing.Store(true)
		ln := s.ln
		for tc := range s.conns {
			if tc.idle.Load() {
				_ = tc.SetReadDeadline(time.Now())
			}
		}
		s.mu.Unlock()
		close(s.done)

		if ln != nil {
			_ = ln.Close()
		}
		s.logger.Info(ctx, "server shutting down")
	})

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for tc := range s.conns {
			_ = tc.Close()
		}
		s.mu.Unlock()
		<-drained
		return ctx.Err()
	}
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	return s.limiter.Active()
}
