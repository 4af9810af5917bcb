package billing

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound means the customer or its billable service does not exist upstream.
	ErrNotFound = errors.New("billing: not found")
	// ErrDownstreamUnavailable wraps transport, auth and 5xx failures of the billing backend.
	ErrDownstreamUnavailable = errors.New("billing: downstream unavailable")
)

// Bill is one charge as returned by the billing backend. Amount is in cents.
type Bill struct {
	ID          string     `json:"id"`
	Amount      int64      `json:"amount"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Description string     `json:"description,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	Reference   *time.Time `json:"reference,omitempty"`
	// PaidAt holds the raw payment date. Empty means unpaid.
	PaidAt string `json:"paid_at,omitempty"`
}

// Unpaid reports whether no payment date was recorded. Status codes are ignored.
func (b Bill) Unpaid() bool {
	return b.PaidAt == ""
}

// Page is one page of bills plus the total page count reported upstream (0 when absent).
type Page struct {
	Records    []Bill
	TotalPages int
}

// Customer is a resolved billing customer.
type Customer struct {
	ID   string
	Name string
	Raw  map[string]any
}

// Service is a contracted service of a customer (usually INTERNET).
type Service struct {
	ID   string
	Type string
	Raw  map[string]any
}

// FindBill returns the bill with the given id from bills.
func FindBill(bills []Bill, id string) (Bill, bool) {
	for _, b := range bills {
		if b.ID == id {
			return b, true
		}
	}
	return Bill{}, false
}

// Method is a payment method offered for a bill.
type Method string

const (
	MethodPix    Method = "PIX"
	MethodBoleto Method = "BOLETO"
)

// Document is a generated boleto, either inline base64 or a download URL.
type Document struct {
	Base64 string
	URL    string
}

// Empty reports whether the backend returned nothing usable.
func (d Document) Empty() bool {
	return d.Base64 == "" && d.URL == ""
}

// File returns the value to hand to the gateway: a PDF data URI or the URL.
func (d Document) File() string {
	if d.Base64 != "" {
		if strings.HasPrefix(d.Base64, "data:") {
			return d.Base64
		}
		return "data:application/pdf;base64," + d.Base64
	}
	return d.URL
}
