package session

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 30 * time.Minute
)

// Store persists sessions by normalized identity. Get returns (nil, nil) when absent.
type Store interface {
	Get(ctx context.Context, identity string) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, identity string) error
}

// MemoryStore keeps sessions in process memory and expires idle ones.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	sweep    time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewMemoryStore creates an in-memory store. Non-positive durations use the defaults.
func NewMemoryStore(ttl, sweep time.Duration, logger *logging.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		sweep:    sweep,
		now:      time.Now,
		logger:   logger,
	}
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, identity string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[identity]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.now().Sub(s.UpdatedAt) > m.ttl {
		return nil, nil
	}
	return clone(&s), nil
}

// Set stores a copy of s and stamps UpdatedAt.
func (m *MemoryStore) Set(_ context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	cp := clone(s)
	cp.UpdatedAt = m.now()
	s.UpdatedAt = cp.UpdatedAt

	m.mu.Lock()
	m.sessions[s.Identity] = *cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	delete(m.sessions, identity)
	m.mu.Unlock()
	return nil
}

// Len reports how many sessions are held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL.
func (m *MemoryStore) Sweep() int {
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged
}

// Run sweeps expired sessions until ctx is done.
func (m *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := m.Sweep(); purged > 0 {
				m.logger.Info("expired sessions purged", "purged", purged)
			}
		}
	}
}

func clone(s *Session) *Session {
	cp := *s
	if s.Bills != nil {
		cp.Bills = append(cp.Bills[:0:0], s.Bills...)
	}
	return &cp
}
