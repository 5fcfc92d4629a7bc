package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/promo-storefront/internal/pricing"
)

// Status is the lifecycle state of a checkout attempt.
type Status string

const (
	StatusPending       Status = "pending"
	StatusCharged       Status = "charged"
	StatusCompleted     Status = "completed"
	StatusDeclined      Status = "declined"
	StatusChargeUnknown Status = "charge_unknown"
	StatusOrphaned      Status = "orphaned"
	StatusVoided        Status = "voided"
	// StatusAborted means the charge request was never sent. The same key may
	// restart the attempt.
	StatusAborted Status = "aborted"
)

var (
	// ErrAttemptNotFound is returned when no attempt matches the lookup.
	ErrAttemptNotFound = errors.New("checkout: attempt not found")
	// ErrDuplicateKey is returned when an attempt already exists for the user and key.
	ErrDuplicateKey = errors.New("checkout: attempt already exists for idempotency key")
	// ErrInvalidTransition is returned when the attempt is not in a state the
	// requested transition may leave from.
	ErrInvalidTransition = errors.New("checkout: invalid attempt transition")
)

// allowedFrom lists the states each state may be entered from.
var allowedFrom = map[Status][]Status{
	StatusCharged:       {StatusPending},
	StatusDeclined:      {StatusPending},
	StatusChargeUnknown: {StatusPending},
	StatusAborted:       {StatusPending},
	StatusCompleted:     {StatusCharged},
	StatusOrphaned:      {StatusCharged},
	StatusVoided:        {StatusOrphaned},
}

// AllowedFrom returns the states a transition to s may start from.
func AllowedFrom(s Status) []Status {
	return slices.Clone(allowedFrom[s])
}

// CanTransition reports whether from -> to is a valid move.
func CanTransition(from, to Status) bool {
	return slices.Contains(allowedFrom[to], from)
}

// Attempt is one row of the checkout ledger, keyed by user and idempotency key.
type Attempt struct {
	ID                uuid.UUID
	UserID            string
	IdempotencyKey    string
	Fingerprint       string
	Status            Status
	AmountTotal       pricing.Money
	ShippingFee       pricing.Money
	Currency          string
	BillingAddressID  string
	ShippingAddressID string
	TransactionID     string
	OrderID           string
	Order             json.RawMessage
	DeclineMessage    string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Update carries the columns written alongside a status transition. Nil
// fields keep their stored value.
type Update struct {
	TransactionID  *string
	OrderID        *string
	Order          json.RawMessage
	DeclineMessage *string
	LastError      *string
}

func (u Update) apply(a *Attempt) {
	if u.TransactionID != nil {
		a.TransactionID = *u.TransactionID
	}
	if u.OrderID != nil {
		a.OrderID = *u.OrderID
	}
	if u.Order != nil {
		a.Order = u.Order
	}
	if u.DeclineMessage != nil {
		a.DeclineMessage = *u.DeclineMessage
	}
	if u.LastError != nil {
		a.LastError = *u.LastError
	}
}

// AttemptStore persists checkout attempts.
type AttemptStore interface {
	Create(ctx context.Context, a Attempt) (Attempt, error)
	Get(ctx context.Context, id uuid.UUID) (Attempt, error)
	FindByKey(ctx context.Context, userID, key string) (Attempt, error)
	Transition(ctx context.Context, id uuid.UUID, to Status, upd Update) (Attempt, error)
	// Restart moves an aborted attempt back to pending with freshly priced
	// amounts and addresses.
	Restart(ctx context.Context, a Attempt) (Attempt, error)
	// ListOrphaned returns orphaned attempts last updated before the cutoff,
	// oldest first.
	ListOrphaned(ctx context.Context, before time.Time, limit int) ([]Attempt, error)
}

// AttemptView is the API representation of an attempt.
type AttemptView struct {
	ID                string          `json:"id"`
	Status            Status          `json:"status"`
	AmountTotal       string          `json:"amount_total"`
	ShippingFee       string          `json:"shipping_fee"`
	Currency          string          `json:"currency"`
	BillingAddressID  string          `json:"billing_address_id"`
	ShippingAddressID string          `json:"shipping_address_id"`
	TransactionID     string          `json:"transaction_id,omitempty"`
	OrderID           string          `json:"order_id,omitempty"`
	Order             json.RawMessage `json:"order,omitempty"`
	DeclineMessage    string          `json:"decline_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// View renders the attempt without internal fields.
func (a Attempt) View() AttemptView {
	return AttemptView{
		ID:                a.ID.String(),
		Status:            a.Status,
		AmountTotal:       pricing.Format(a.AmountTotal),
		ShippingFee:       pricing.Format(a.ShippingFee),
		Currency:          a.Currency,
		BillingAddressID:  a.BillingAddressID,
		ShippingAddressID: a.ShippingAddressID,
		TransactionID:     a.TransactionID,
		OrderID:           a.OrderID,
		Order:             a.Order,
		DeclineMessage:    a.DeclineMessage,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}
