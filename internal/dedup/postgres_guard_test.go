package dedup

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

func TestPostgresGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	g := newPostgresGuardWithExec(mock, 30*time.Second, logging.Discard())
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("wamid.1", float64(30)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := g.Accept(ctx, "wamid.1")
	if err != nil || !ok {
		t.Fatalf("expected first delivery to pass, got ok=%v err=%v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("wamid.1", float64(30)).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = g.Accept(ctx, "wamid.1")
	if err != nil || ok {
		t.Fatalf("expected duplicate to be rejected, got ok=%v err=%v", ok, err)
	}

	ok, err = g.Accept(ctx, "   ")
	if err != nil || ok {
		t.Fatalf("expected empty key to be rejected without a query, got ok=%v err=%v", ok, err)
	}

	mock.ExpectExec("DELETE FROM processed_events").WithArgs(float64(30)).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	n, err := g.Sweep(ctx)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 purged rows, got %d err=%v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
