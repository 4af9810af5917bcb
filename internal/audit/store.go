package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one payment instrument handed to a customer.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	Identity    string    `json:"identity"`
	CustomerID  string    `json:"customer_id"`
	ServiceID   string    `json:"service_id"`
	BillID      string    `json:"bill_id"`
	Method      string    `json:"method"`
	KeyKind     string    `json:"key_kind,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists delivered instruments in Postgres.
type Store struct {
	db  querier
	now func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("audit: pgx pool required")
	}
	return &Store{db: pool, now: time.Now}
}

func newStoreWithQuerier(db querier) *Store {
	if db == nil {
		panic("audit: querier required")
	}
	return &Store{db: db, now: time.Now}
}

// Record inserts an entry, filling in the id and timestamp when missing.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.Identity == "" || entry.BillID == "" {
		return errors.New("audit: identity and bill id are required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.DeliveredAt.IsZero() {
		entry.DeliveredAt = s.now().UTC()
	}
	query := `
		INSERT INTO payment_deliveries (id, identity, customer_id, service_id, bill_id, method, key_kind, amount_cents, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		entry.ID, entry.Identity, entry.CustomerID, entry.ServiceID, entry.BillID,
		entry.Method, entry.KeyKind, entry.AmountCents, entry.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record delivery: %w", err)
	}
	return nil
}

// ListByIdentity returns the latest deliveries for a customer, newest first.
func (s *Store) ListByIdentity(ctx context.Context, identity string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
		SELECT id, identity, customer_id, service_id, bill_id, method, key_kind, amount_cents, delivered_at
		FROM payment_deliveries
		WHERE identity = $1
		ORDER BY delivered_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Identity, &e.CustomerID, &e.ServiceID, &e.BillID,
			&e.Method, &e.KeyKind, &e.AmountCents, &e.DeliveredAt); err != nil {
			return nil, fmt.Errorf("audit: scan delivery: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate deliveries: %w", err)
	}
	return out, nil
}
