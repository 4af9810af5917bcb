package session

import (
	"fmt"
	"time"

	"github.com/wolfman30/isp-support-bot/internal/billing"
)

// State is the position of a customer in the payment flow.
type State string

const (
	StateIdle             State = "IDLE"
	StateAwaitingCPF      State = "AWAITING_CPF"
	StateSelectingBill    State = "SELECTING_BILL"
	StateSelectingPayment State = "SELECTING_PAYMENT"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateAwaitingCPF, StateSelectingBill, StateSelectingPayment:
		return true
	}
	return false
}

// Flags suppress repeated error replies while awaiting a CPF.
type Flags struct {
	FormatErrorShown   bool   `json:"format_error_shown"`
	NotFoundErrorShown bool   `json:"not_found_error_shown"`
	LastAttemptedCPF   string `json:"last_attempted_cpf,omitempty"`
}

// Session is the per-identity payment flow state.
type Session struct {
	Identity     string         `json:"identity"`
	State        State          `json:"state"`
	CPF          string         `json:"cpf,omitempty"`
	CustomerID   string         `json:"customer_id,omitempty"`
	CustomerName string         `json:"customer_name,omitempty"`
	ServiceID    string         `json:"service_id,omitempty"`
	ServiceType  string         `json:"service_type,omitempty"`
	BillID       string         `json:"bill_id,omitempty"`
	Bills        []billing.Bill `json:"bills,omitempty"`
	Flags        Flags          `json:"flags"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// New starts a session awaiting a CPF.
func New(identity string, now time.Time) *Session {
	return &Session{Identity: identity, State: StateAwaitingCPF, UpdatedAt: now}
}

// SelectBill stores the bill at index as the selection. The index is 0-based.
func (s *Session) SelectBill(index int) (billing.Bill, error) {
	if index < 0 || index >= len(s.Bills) {
		return billing.Bill{}, fmt.Errorf("session: bill index %d out of range [0,%d)", index, len(s.Bills))
	}
	bill := s.Bills[index]
	s.BillID = bill.ID
	return bill, nil
}

// SelectedBill returns the currently selected bill.
func (s *Session) SelectedBill() (billing.Bill, bool) {
	if s.BillID == "" {
		return billing.Bill{}, false
	}
	return billing.FindBill(s.Bills, s.BillID)
}
