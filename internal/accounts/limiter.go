package accounts

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyedLimiter gives every key its own token bucket of perMinute tokens.
// TODO: evict idle buckets; the map grows with every distinct login email.
type keyedLimiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*rate.Limiter
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &keyedLimiter{perMinute: perMinute, buckets: make(map[string]*rate.Limiter)}
}

func (l *keyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
