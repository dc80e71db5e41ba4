package bridge

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterPruneAbove = 4096
)

// hostLimiter applies a token bucket per remote host.
type hostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*hostBucket
	now      func() time.Time
}

type hostBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newHostLimiter returns nil when perSecond <= 0, which disables limiting.
func newHostLimiter(perSecond float64, burst int) *hostLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &hostLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*hostBucket),
		now:      time.Now,
	}
}

// Allow reports whether a request from remoteAddr may proceed.
func (l *hostLimiter) Allow(remoteAddr string) bool {
	if l == nil {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.limiters[host]
	if !ok {
		if len(l.limiters) >= limiterPruneAbove {
			l.pruneLocked(now)
		}
		b = &hostBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[host] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *hostLimiter) pruneLocked(now time.Time) {
	for host, b := range l.limiters {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.limiters, host)
		}
	}
}
