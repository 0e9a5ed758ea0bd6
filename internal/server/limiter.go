package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/conneroisu/volki/internal/errors"
)

// Limiter caps open connections globally and per client IP.
// A zero limit disables that check.
type Limiter struct {
	max      int64
	maxPerIP int

	active atomic.Int64
	perIP  *xsync.MapOf[string, int]
}

// NewLimiter returns a limiter admitting at most max connections overall
// and maxPerIP from any one address.
func NewLimiter(max, maxPerIP int) *Limiter {
	return &Limiter{
		max:      int64(max),
		maxPerIP: maxPerIP,
		perIP:    xsync.NewMapOf[string, int](),
	}
}

// Acquire reserves a slot for a connection from addr. The returned release
// must be called exactly once when the connection ends; extra calls are
// ignored. On rejection the error is KindTooManyRequests with the reason
// ("global" or "per_ip") in the "reason" context key.
func (l *Limiter) Acquire(addr string) (release func(), err error) {
	const op = "server.Acquire"

	if n := l.active.Add(1); l.max > 0 && n > l.max {
		l.active.Add(-1)
		return nil, errors.New(errors.KindTooManyRequests, op, "connection limit reached").
			WithContext("reason", "global")
	}

	ip := hostOf(addr)
	admitted := true
	l.perIP.Compute(ip, func(n int, _ bool) (int, bool) {
		if l.maxPerIP > 0 && n >= l.maxPerIP {
			admitted = false
			return n, n == 0
		}
		return n + 1, false
	})
	if !admitted {
		l.active.Add(-1)
		return nil, errors.Newf(errors.KindTooManyRequests, op, "connection limit reached for %s", ip).
			WithContext("reason", "per_ip")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.perIP.Compute(ip, func(n int, _ bool) (int, bool) {
				n--
				return n, n <= 0
			})
			l.active.Add(-1)
		})
	}, nil
}

// Active returns the number of open connections.
func (l *Limiter) Active() int {
	return int(l.active.Load())
}

// ActiveFor returns the number of open connections from addr's host.
func (l *Limiter) ActiveFor(addr string) int {
	n, _ := l.perIP.Load(hostOf(addr))
	return n
}

// hostOf strips the port from a network address.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
