package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the DTO for incoming payment initiations.
type PaymentRequest struct {
	CustomerName      string          `json:"customer_name"`
	PhoneNumber       string          `json:"phone_number"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalReference string          `json:"external_reference"`
}

// PendingPayment is the bookkeeping record for money expected but not yet
// confirmed credited. Records are replace-only: once stored they are never
// partially updated, only removed (by credit or expiry).
type PendingPayment struct {
	Reference    string          `json:"reference"`
	PhoneNumber  string          `json:"phone_number"`
	CustomerName string          `json:"customer_name"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"timestamp"`
}

// Status is a gateway-reported payment state.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// TerminalSuccess reports whether s is the one status that triggers a
// ledger credit.
func (s Status) TerminalSuccess() bool {
	return s == StatusSuccess
}

// Terminal reports whether the gateway will never change s again.
// Unknown statuses are treated as non-terminal so polling continues.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// InitiateResult carries the fields the engine needs from a gateway
// initiation plus the gateway's response body verbatim for passthrough.
type InitiateResult struct {
	Reference string
	Status    Status
	Body      json.RawMessage
}

// StatusResult is the gateway's answer to a status poll. Body is returned
// to callers unchanged; crediting is driven by Status alone. Any amount
// field inside Body is deliberately ignored when applying the credit.
type StatusResult struct {
	Status            Status
	ProviderReference string
	Body              json.RawMessage
}

// Account represents a user's balance row.
type Account struct {
	ID          int64           `json:"id"`
	PhoneNumber string          `json:"phone_number"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
}
