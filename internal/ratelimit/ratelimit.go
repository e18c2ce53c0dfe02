package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	defaultIdleTTL       = 15 * time.Minute
)

// TokenBucket holds up to maxTokens tokens and gains one every refillRate.
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate time.Duration
	lastRefill time.Time
	lastSeen   time.Time
	mu         sync.Mutex
}

func NewTokenBucket(maxTokens int, refillRate time.Duration, now time.Time) *TokenBucket {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: refillRate,
		lastRefill: now,
		lastSeen:   now,
	}
}

// Take spends one token if available. When it is not, retryAfter is the
// time until the next token arrives.
func (t *TokenBucket) Take(now time.Time) (ok bool, remaining int, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refill(now)
	t.lastSeen = now

	if t.tokens >= 1 {
		t.tokens--
		return true, int(math.Floor(t.tokens)), 0
	}

	missing := 1 - t.tokens
	return false, 0, time.Duration(missing * float64(t.refillRate))
}

func (t *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(t.lastRefill)
	if elapsed <= 0 {
		return
	}
	t.tokens = math.Min(t.maxTokens, t.tokens+float64(elapsed)/float64(t.refillRate))
	t.lastRefill = now
}

func (t *TokenBucket) idleSince(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastSeen)
}

// Limiter keeps one TokenBucket per client key and forgets idle clients.
type Limiter struct {
	burst      int
	refillRate time.Duration
	idleTTL    time.Duration
	sweepEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	lastSweep time.Time
}

func NewLimiter(burst int, refillRate time.Duration) *Limiter {
	return &Limiter{
		burst:      burst,
		refillRate: refillRate,
		idleTTL:    defaultIdleTTL,
		sweepEvery: defaultSweepInterval,
		now:        time.Now,
		buckets:    make(map[string]*TokenBucket),
		lastSweep:  time.Now(),
	}
}

// Allow spends a token from key's bucket.
func (l *Limiter) Allow(key string) (ok bool, remaining int, retryAfter time.Duration) {
	now := l.now()
	return l.bucket(key, now).Take(now)
}

func (l *Limiter) bucket(key string, now time.Time) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.sweepEvery {
		for k, b := range l.buckets {
			if b.idleSince(now) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b := l.buckets[key]
	if b == nil {
		b = NewTokenBucket(l.burst, l.refillRate, now)
		l.buckets[key] = b
	}
	return b
}

// Size returns the number of tracked clients.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware throttles requests per client address. Put it behind
// middleware.RealIP so RemoteAddr carries the forwarded client address.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(l.burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, retryAfter := l.Allow(clientKey(r))

		w.Header().Set("X-RateLimit-Limit", limit)
		if !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
