package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const (
	defaultIdleAfter     = 10 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

// RateLimiter is a per-client token bucket. Idle buckets are evicted by Run.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64
	burst     int
	idleAfter time.Duration
	sweep     time.Duration
	now       func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimiter allows rate requests per second per client with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		rate:      rate,
		burst:     burst,
		idleAfter: defaultIdleAfter,
		sweep:     defaultSweepInterval,
		now:       time.Now,
	}
}

// Allow spends one token from the client's bucket.
func (rl *RateLimiter) Allow(client string) bool {
	if rl == nil || rl.rate <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastSeen: now}
		rl.buckets[client] = b
	}
	b.tokens += now.Sub(b.lastSeen).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastSeen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Sweep drops buckets idle since before now minus the idle window and returns how many went.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := now.Add(-rl.idleAfter)
	removed := 0
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(rl.now())
		}
	}
}

// RateLimit rejects requests over the limiter's budget with 429.
func RateLimit(limiter *RateLimiter, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if !limiter.Allow(client) {
				logger.Warn("rate limit exceeded", "client", client, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers X-Real-Ip, which chi's RealIP middleware fills in.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
