package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// SeatLedger owns the per-departure seatsLeft counter.
// AdjustSeats applies delta only if 0 <= seatsLeft+delta <= seatsTotal holds
// afterwards; applied is false when the guard rejected the change.
type SeatLedger interface {
	GetDeparture(ctx context.Context, tourID uuid.UUID, date string) (*models.Departure, error)
	AdjustSeats(ctx context.Context, tourID uuid.UUID, date string, delta int) (seatsLeft int, applied bool, err error)
}

// SessionStore persists payment sessions. Every status change is a
// compare-and-set from pending; the bool result reports whether it won.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.PaymentSession) error
	GetSessionByOrderID(ctx context.Context, orderID string) (*models.PaymentSession, error)
	MarkHeld(ctx context.Context, orderID string) (bool, error)
	SetRedirectURL(ctx context.Context, orderID, url string) error
	TransitionStatus(ctx context.Context, orderID string, tr models.Transition) (bool, error)
	MarkReleased(ctx context.Context, orderID string) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.PaymentSession, error)
	ListPending(ctx context.Context, limit int) ([]*models.PaymentSession, error)
	ListUnreleased(ctx context.Context, limit int) ([]*models.PaymentSession, error)
	ListUnbooked(ctx context.Context, limit int) ([]*models.PaymentSession, error)
}

// BookingStore persists bookings; InsertBooking returns models.ErrDuplicateBooking
// when (provider, orderId) already exists.
type BookingStore interface {
	GetBookingByPayment(ctx context.Context, provider, orderID string) (*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
}

// CartStore persists user carts. AddItemIfAbsent checks and inserts atomically.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	AddItemIfAbsent(ctx context.Context, userID string, item models.CartItem) (bool, error)
	RemoveItems(ctx context.Context, userID string, items []models.SessionItem) error
}

// AuditLogger records payment audit entries
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// EventPublisher emits session outcome events
type EventPublisher interface {
	Publish(ctx context.Context, event *SessionEvent) error
}

// Notifier delivers user notifications; implementations must not block the caller
type Notifier interface {
	NotifySessionExpired(ctx context.Context, session *models.PaymentSession)
}

// PaymentProvider is the external payment gateway boundary
type PaymentProvider interface {
	Name() string
	CreatePayment(ctx context.Context, session *models.PaymentSession) (*PaymentPage, error)
	VerifyCallback(body []byte) (*CallbackResult, error)
}

// PaymentPage is the provider redirect for a session
type PaymentPage struct {
	RedirectURL string
	Deeplink    string
}

// CallbackResult is a verified provider notification
type CallbackResult struct {
	OrderID    string
	RequestID  string
	ResultCode int
	TransID    string
	Amount     int64
	Message    string
	// Raw is the verified notification as received, kept for the audit trail
	Raw map[string]interface{}
}

// Success reports whether the provider settled the payment
func (r *CallbackResult) Success() bool {
	return r.ResultCode == 0
}

// SessionEvent is published after a session reaches a terminal state
type SessionEvent struct {
	Type        string               `json:"type"`
	OrderID     string               `json:"orderId"`
	UserID      uuid.UUID            `json:"userId"`
	Status      models.SessionStatus `json:"status"`
	Outcome     models.Outcome       `json:"outcome"`
	Reason      string               `json:"reason,omitempty"`
	TotalAmount int64                `json:"totalAmount"`
	Currency    string               `json:"currency"`
	OccurredAt  time.Time            `json:"occurredAt"`
}
