package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// Directory looks a customer up by a (possibly partial) tax id. A miss is (nil, nil).
type Directory interface {
	LookupCustomerByTaxID(ctx context.Context, value string) (*Customer, error)
}

// Candidate is one rung of the resolution ladder.
type Candidate struct {
	Strategy string
	Value    string
}

type candidateRule struct {
	name   string
	derive func(cpf string) (string, bool)
}

// Stored identifiers may have gained or lost leading digits, so the lookup widens step by step.
var ladder = []candidateRule{
	{name: "exact", derive: func(cpf string) (string, bool) {
		return cpf, true
	}},
	{name: "suffix_10", derive: func(cpf string) (string, bool) {
		return cpf[1:], true
	}},
	{name: "strip_leading_zeros", derive: func(cpf string) (string, bool) {
		if !strings.HasPrefix(cpf, "0") {
			return "", false
		}
		trimmed := strings.TrimLeft(cpf, "0")
		return trimmed, len(trimmed) >= 10
	}},
	{name: "suffix_9", derive: func(cpf string) (string, bool) {
		return cpf[2:], true
	}},
}

// Candidates lists the lookup values for an 11-digit cpf in attempt order.
// Values already produced by an earlier rung are not repeated.
func Candidates(cpf string) []Candidate {
	if len(cpf) != 11 {
		return nil
	}
	out := make([]Candidate, 0, len(ladder))
	seen := make(map[string]struct{}, len(ladder))
	for _, rule := range ladder {
		value, ok := rule.derive(cpf)
		if !ok {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, Candidate{Strategy: rule.name, Value: value})
	}
	return out
}

// Resolver walks the candidate ladder against a Directory.
type Resolver struct {
	dir    Directory
	logger *logging.Logger
}

// NewResolver builds a Resolver.
func NewResolver(dir Directory, logger *logging.Logger) *Resolver {
	if dir == nil {
		panic("billing: directory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns the first customer found along the ladder, or (nil, nil) when every rung misses.
// Lookups run sequentially and the first lookup error aborts the ladder.
func (r *Resolver) Resolve(ctx context.Context, cpf string) (*Customer, error) {
	candidates := Candidates(cpf)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("billing: cpf must have 11 digits, got %d", len(cpf))
	}
	for _, c := range candidates {
		customer, err := r.dir.LookupCustomerByTaxID(ctx, c.Value)
		if err != nil {
			return nil, fmt.Errorf("billing: lookup %s: %w", c.Strategy, err)
		}
		if customer != nil {
			r.logger.Debug("customer resolved", "strategy", c.Strategy, "customer_id", customer.ID)
			return customer, nil
		}
	}
	return nil, nil
}
