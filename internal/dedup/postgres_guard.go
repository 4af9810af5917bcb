package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresGuard records inbound event keys in the processed_events table.
// A row older than the retention window is overwritten, which re-admits the key.
type PostgresGuard struct {
	db        execer
	retention time.Duration
	sweep     time.Duration
	logger    *logging.Logger
}

func NewPostgresGuard(pool *pgxpool.Pool, retention time.Duration, logger *logging.Logger) *PostgresGuard {
	if pool == nil {
		panic("dedup: pgx pool required")
	}
	return newPostgresGuardWithExec(pool, retention, logger)
}

func newPostgresGuardWithExec(db execer, retention time.Duration, logger *logging.Logger) *PostgresGuard {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresGuard{db: db, retention: retention, sweep: DefaultSweepInterval, logger: logger}
}

// Accept inserts the key, or refreshes a stale row. Zero rows affected means a duplicate.
func (g *PostgresGuard) Accept(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	query := `
		INSERT INTO processed_events (event_key, seen_at)
		VALUES ($1, now())
		ON CONFLICT (event_key) DO UPDATE SET seen_at = now()
		WHERE processed_events.seen_at < now() - make_interval(secs => $2)
	`
	ct, err := g.db.Exec(ctx, query, key, g.retention.Seconds())
	if err != nil {
		return false, fmt.Errorf("dedup: mark %s: %w", key, err)
	}
	return ct.RowsAffected() > 0, nil
}

// Sweep deletes rows older than the retention window.
func (g *PostgresGuard) Sweep(ctx context.Context) (int64, error) {
	ct, err := g.db.Exec(ctx, `DELETE FROM processed_events WHERE seen_at < now() - make_interval(secs => $1)`, g.retention.Seconds())
	if err != nil {
		return 0, fmt.Errorf("dedup: sweep processed events: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Run sweeps on a ticker until ctx is cancelled.
func (g *PostgresGuard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Sweep(ctx)
			if err != nil {
				g.logger.Warn("dedup sweep failed", "error", err)
				continue
			}
			if n > 0 {
				g.logger.Debug("dedup entries purged", "count", n)
			}
		}
	}
}
