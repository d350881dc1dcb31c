// Package ratelimit provides per-key token bucket limiting.
package ratelimit

import (
	"container/list"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxKeys bounds the number of tracked buckets. When it is reached the
// least recently used bucket is dropped.
const maxKeys = 4096

// Config holds rate limit settings.
type Config struct {
	Rate  float64 // tokens per second refill rate
	Burst int     // maximum burst size (bucket capacity)
}

type bucket struct {
	key     string
	limiter *rate.Limiter
}

// Limiter tracks per-key rate limits using token buckets.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*list.Element
	recent  *list.List // front is most recently used
}

// NewLimiter creates a Limiter with the given config.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*list.Element),
		recent:  list.New(),
	}
}

// Allow checks if the given key is within rate limits.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	el, ok := l.buckets[key]
	if ok {
		l.recent.MoveToFront(el)
	} else {
		if l.recent.Len() >= maxKeys {
			oldest := l.recent.Back()
			l.recent.Remove(oldest)
			delete(l.buckets, oldest.Value.(*bucket).key)
		}
		el = l.recent.PushFront(&bucket{
			key:     key,
			limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst),
		})
		l.buckets[key] = el
	}
	limiter := el.Value.(*bucket).limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Reset removes all tracked keys.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*list.Element)
	l.recent.Init()
}

// ClientIP returns the host part of the request's remote address. Behind a
// trusted proxy the server rewrites RemoteAddr from forwarding headers first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware limits requests per client IP. Rejected requests are answered
// by reject.
func (l *Limiter) Middleware(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
