package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter applies a token bucket per client IP. Idle buckets are
// swept so the map cannot grow unbounded under address churn.
type IPRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*ipBucket
	limit    rate.Limit
	burst    int
	lastSeen time.Duration
}

type ipBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewIPRateLimiter allows ratePerSec requests per second with the given
// burst for each distinct IP.
func NewIPRateLimiter(ratePerSec float64, burst int) *IPRateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &IPRateLimiter{
		buckets:  make(map[string]*ipBucket),
		limit:    rate.Limit(ratePerSec),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
		if len(l.buckets)%256 == 0 {
			l.sweepLocked()
		}
	}
	b.seen = time.Now()
	return b.limiter.Allow()
}

func (l *IPRateLimiter) sweepLocked() {
	cutoff := time.Now().Add(-l.lastSeen)
	for ip, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}
