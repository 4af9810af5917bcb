package billing

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// maxPages bounds pagination when the backend keeps reporting more pages.
const maxPages = 100

// Source is the slice of the billing backend the aggregator reads from.
type Source interface {
	ListServices(ctx context.Context, customerID string) ([]Service, error)
	ListBills(ctx context.Context, customerID, serviceID string, page int) (Page, error)
}

// Aggregator collects every page of bills for a service and returns the unpaid ones in menu order.
type Aggregator struct {
	source Source
	logger *logging.Logger
}

// NewAggregator builds an Aggregator.
func NewAggregator(source Source, logger *logging.Logger) *Aggregator {
	if source == nil {
		panic("billing: source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{source: source, logger: logger}
}

// FirstService returns the first service of the customer, or ErrNotFound when there is none.
func (a *Aggregator) FirstService(ctx context.Context, customerID string) (Service, error) {
	services, err := a.source.ListServices(ctx, customerID)
	if err != nil {
		return Service{}, fmt.Errorf("billing: list services: %w", err)
	}
	for _, svc := range services {
		if svc.ID != "" {
			return svc, nil
		}
	}
	return Service{}, fmt.Errorf("billing: customer %s has no service: %w", customerID, ErrNotFound)
}

// ListUnpaidBills fetches pages sequentially from page 1 until the reported total is reached
// or a page comes back empty, then filters and orders the result.
func (a *Aggregator) ListUnpaidBills(ctx context.Context, customerID, serviceID string) ([]Bill, error) {
	var all []Bill
	for page := 1; page <= maxPages; page++ {
		res, err := a.source.ListBills(ctx, customerID, serviceID, page)
		if err != nil {
			return nil, fmt.Errorf("billing: list bills page %d: %w", page, err)
		}
		all = append(all, res.Records...)
		if len(res.Records) == 0 || page >= res.TotalPages {
			break
		}
	}
	unpaid := FilterUnpaid(all)
	SortByDueDate(unpaid)
	a.logger.Debug("bills aggregated", "customer_id", customerID, "service_id", serviceID, "fetched", len(all), "unpaid", len(unpaid))
	return unpaid, nil
}

// FilterUnpaid keeps records with an id and no payment date, preserving order.
func FilterUnpaid(bills []Bill) []Bill {
	out := make([]Bill, 0, len(bills))
	for _, b := range bills {
		if b.ID == "" || !b.Unpaid() {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SortByDueDate orders bills by ascending due date. Bills without one go last in input order.
// Menu choices refer to bills by position in this order.
func SortByDueDate(bills []Bill) {
	slices.SortStableFunc(bills, func(a, b Bill) int {
		return compareDue(a.DueDate, b.DueDate)
	})
}

func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
