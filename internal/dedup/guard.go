package dedup

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const (
	// DefaultRetention is how long a key is remembered after first acceptance.
	DefaultRetention = 30 * time.Second
	// DefaultSweepInterval is how often the reaper purges expired keys.
	DefaultSweepInterval = time.Minute
)

// Guard rejects re-delivery of an inbound event already seen within the retention window.
// Accept must check and mark the key as one atomic step.
type Guard interface {
	Accept(ctx context.Context, key string) (bool, error)
}

// MemoryGuard is a process-local Guard backed by a map of key to first-seen time.
type MemoryGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	sweep     time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

// Option customizes a MemoryGuard.
type Option func(*MemoryGuard)

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) Option {
	return func(g *MemoryGuard) {
		if d > 0 {
			g.retention = d
		}
	}
}

// WithSweepInterval overrides the reaper interval.
func WithSweepInterval(d time.Duration) Option {
	return func(g *MemoryGuard) {
		if d > 0 {
			g.sweep = d
		}
	}
}

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(g *MemoryGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger attaches a logger for reaper activity.
func WithLogger(logger *logging.Logger) Option {
	return func(g *MemoryGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewMemoryGuard creates an in-memory guard with the default 30s retention.
func NewMemoryGuard(opts ...Option) *MemoryGuard {
	g := &MemoryGuard{
		seen:      make(map[string]time.Time),
		retention: DefaultRetention,
		sweep:     DefaultSweepInterval,
		now:       time.Now,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Accept returns true the first time key is seen within the retention window.
// A repeat returns false and leaves the stored first-seen time untouched.
func (g *MemoryGuard) Accept(_ context.Context, key string) (bool, error) {
	return g.accept(key), nil
}

func (g *MemoryGuard) accept(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if firstSeen, ok := g.seen[key]; ok && now.Sub(firstSeen) <= g.retention {
		return false
	}
	g.seen[key] = now
	return true
}

// Len reports how many keys are currently tracked.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Sweep removes every entry older than the retention window and returns how many were purged.
func (g *MemoryGuard) Sweep() int {
	cutoff := g.now().Add(-g.retention)

	g.mu.Lock()
	defer g.mu.Unlock()
	purged := 0
	for key, firstSeen := range g.seen {
		if firstSeen.Before(cutoff) {
			delete(g.seen, key)
			purged++
		}
	}
	return purged
}

// Run sweeps expired entries every sweep interval until ctx is done.
func (g *MemoryGuard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := g.Sweep(); purged > 0 {
				g.logger.Debug("dedup sweep", "purged", purged, "remaining", g.Len())
			}
		}
	}
}
