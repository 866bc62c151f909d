package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// SESSION STATUS
// ============================================================================

// SessionStatus is the lifecycle state of a payment session
type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusPaid    SessionStatus = "paid"
	SessionStatusExpired SessionStatus = "expired"
	SessionStatusFailed  SessionStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusPaid || s == SessionStatusExpired || s == SessionStatusFailed
}

// CanTransitionTo reports whether s -> to is a legal edge of the state machine.
// Only pending has outgoing edges and every edge ends in a terminal state.
func (s SessionStatus) CanTransitionTo(to SessionStatus) bool {
	return s == SessionStatusPending && to.IsTerminal()
}

// Outcome is how a session was resolved, used to derive the booking record
type Outcome string

const (
	OutcomePaid    Outcome = "paid"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailed  Outcome = "failed"
)

// Fail reasons recorded on sessions and bookings
const (
	FailReasonTimeout           = "timeout"
	FailReasonUserCancelled     = "user_cancelled"
	FailReasonInsufficientSeats = "insufficient_seats"
	FailReasonProviderError     = "provider_error"
	FailReasonProviderDeclined  = "provider_declined"
	FailReasonHoldError         = "hold_error"
)

// DeclineReason formats the fail reason for a non-success provider result code
func DeclineReason(resultCode int) string {
	return fmt.Sprintf("%s:%d", FailReasonProviderDeclined, resultCode)
}

// ============================================================================
// LINE ITEMS
// ============================================================================

// MaxTravellersPerType caps adults and children on a single line item
const MaxTravellersPerType = 100

// SessionItem is one line of a payment session. Name, image and prices are
// computed server-side when the session is created and never re-derived later.
type SessionItem struct {
	TourID     uuid.UUID `json:"tourId"`
	Date       string    `json:"date"`
	Adults     int       `json:"adults"`
	Children   int       `json:"children"`
	TourName   string    `json:"name"`
	Image      string    `json:"image,omitempty"`
	PriceAdult int64     `json:"priceAdult"`
	PriceChild int64     `json:"priceChild"`
	Subtotal   int64     `json:"subtotal"`
}

// Seats is the number of seats the item occupies on its departure
func (i SessionItem) Seats() int {
	return i.Adults + i.Children
}

// SameSelection reports whether two items describe the same cart selection
func (i SessionItem) SameSelection(o SessionItem) bool {
	return i.TourID == o.TourID && i.Date == o.Date && i.Adults == o.Adults && i.Children == o.Children
}

// Validate checks the client-supplied part of an item
func (i SessionItem) Validate() error {
	if i.TourID == uuid.Nil {
		return fmt.Errorf("%w: tourId is required", ErrInvalidItem)
	}
	if _, err := time.Parse(DateLayout, i.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidItem)
	}
	if i.Adults < 0 || i.Children < 0 {
		return fmt.Errorf("%w: party size cannot be negative", ErrInvalidItem)
	}
	if i.Adults > MaxTravellersPerType || i.Children > MaxTravellersPerType {
		return fmt.Errorf("%w: at most %d adults and %d children per item", ErrInvalidItem, MaxTravellersPerType, MaxTravellersPerType)
	}
	if i.Seats() <= 0 {
		return fmt.Errorf("%w: at least one traveller is required", ErrInvalidItem)
	}
	return nil
}

// SessionItems is stored as a jsonb array
type SessionItems []SessionItem

func (s SessionItems) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (s *SessionItems) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("type assertion to []byte failed for SessionItems")
	}
}

// Total sums the frozen subtotals
func (s SessionItems) Total() int64 {
	var total int64
	for _, item := range s {
		total += item.Subtotal
	}
	return total
}

// OrderInfo is the human readable description sent to the provider
func (s SessionItems) OrderInfo() string {
	names := make([]string, 0, len(s))
	for _, item := range s {
		names = append(names, item.TourName)
	}
	return "Travyy: " + strings.Join(names, ", ")
}

// ============================================================================
// PAYMENT SESSION
// ============================================================================

// PaymentSession tracks one provider round-trip. Once Status is terminal the
// only field still written is ReleasedAt, the release idempotency marker.
type PaymentSession struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	OrderID     string        `json:"orderId" db:"order_id"`
	RequestID   string        `json:"requestId" db:"request_id"`
	Provider    string        `json:"provider" db:"provider"`
	UserID      uuid.UUID     `json:"userId" db:"user_id"`
	UserPhone   *string       `json:"-" db:"user_phone"`
	Items       SessionItems  `json:"items" db:"items"`
	TotalAmount int64         `json:"totalAmount" db:"total_amount"`
	Currency    string        `json:"currency" db:"currency"`
	Status      SessionStatus `json:"status" db:"status"`
	FailReason  *string       `json:"failReason,omitempty" db:"fail_reason"`
	TransID     *string       `json:"transId,omitempty" db:"trans_id"`
	RedirectURL *string       `json:"redirectUrl,omitempty" db:"redirect_url"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	ExpiresAt   time.Time     `json:"expiresAt" db:"expires_at"`
	HeldAt      *time.Time    `json:"heldAt,omitempty" db:"held_at"`
	ReleasedAt  *time.Time    `json:"releasedAt,omitempty" db:"released_at"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty" db:"resolved_at"`
}

// IsOverdue reports whether a pending session has passed its deadline
func (s *PaymentSession) IsOverdue(now time.Time) bool {
	return s.Status == SessionStatusPending && now.After(s.ExpiresAt)
}

// NeedsRelease reports whether a terminal non-paid session still holds seats
func (s *PaymentSession) NeedsRelease() bool {
	return s.HeldAt != nil && s.ReleasedAt == nil &&
		(s.Status == SessionStatusExpired || s.Status == SessionStatusFailed)
}

// NeedsBooking reports whether a terminal session must carry a booking.
// Sessions closed before their hold completed never get one.
func (s *PaymentSession) NeedsBooking() bool {
	return s.HeldAt != nil && s.Status.IsTerminal()
}

// Transition is a requested compare-and-set from pending to a terminal status
type Transition struct {
	To      SessionStatus
	Outcome Outcome
	Reason  string
	TransID string
}

// OutcomeOf maps a terminal session back to the outcome that produced it
func OutcomeOf(s *PaymentSession) Outcome {
	switch s.Status {
	case SessionStatusPaid:
		return OutcomePaid
	case SessionStatusExpired:
		return OutcomeTimeout
	default:
		return OutcomeFailed
	}
}

// SessionStatusResponse is the poll view returned to the owning user
type SessionStatusResponse struct {
	OrderID     string        `json:"orderId"`
	Status      SessionStatus `json:"status"`
	FailReason  *string       `json:"failReason,omitempty"`
	TotalAmount int64         `json:"totalAmount"`
	Currency    string        `json:"currency"`
	Items       SessionItems  `json:"items"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	RedirectURL *string       `json:"redirectUrl,omitempty"`
}

// ToStatusResponse builds the poll view
func (s *PaymentSession) ToStatusResponse() *SessionStatusResponse {
	return &SessionStatusResponse{
		OrderID:     s.OrderID,
		Status:      s.Status,
		FailReason:  s.FailReason,
		TotalAmount: s.TotalAmount,
		Currency:    s.Currency,
		Items:       s.Items,
		ExpiresAt:   s.ExpiresAt,
		RedirectURL: s.RedirectURL,
	}
}

// InitiatePaymentRequest is the authenticated request that starts a session.
// Prices in the request are ignored; only the selection is read.
type InitiatePaymentRequest struct {
	Items []SessionItem `json:"items"`
}

// InitiatePaymentResponse carries the provider redirect
type InitiatePaymentResponse struct {
	RedirectURL string    `json:"redirectUrl"`
	OrderID     string    `json:"orderId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
