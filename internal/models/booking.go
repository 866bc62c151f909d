package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a historical booking record
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusRefunded  BookingStatus = "refunded"
)

// BookingPayment is the payment reference of a booking.
// (Provider, OrderID) is unique across all bookings.
type BookingPayment struct {
	Provider string  `json:"provider" db:"payment_provider"`
	OrderID  string  `json:"orderId" db:"payment_order_id"`
	TransID  *string `json:"transId,omitempty" db:"payment_trans_id"`
	Status   string  `json:"status" db:"payment_status"`
}

// Booking is materialized once per resolved payment session
type Booking struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	UserID         uuid.UUID    `json:"userId" db:"user_id"`
	Items          SessionItems `json:"items" db:"items"`
	TotalAmount    int64        `json:"totalAmount" db:"total_amount"`
	Currency       string       `json:"currency" db:"currency"`
	BookingPayment `json:"payment"`
	Status         BookingStatus `json:"status" db:"status"`
	FailReason     *string       `json:"failReason,omitempty" db:"fail_reason"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`
}

// NewBookingFromSession builds a booking from the session's frozen snapshot.
// paid maps to paid; timeout and failed both map to cancelled with a reason.
func NewBookingFromSession(s *PaymentSession, outcome Outcome, reason string) *Booking {
	now := time.Now()
	items := make(SessionItems, len(s.Items))
	copy(items, s.Items)

	b := &Booking{
		ID:          uuid.New(),
		UserID:      s.UserID,
		Items:       items,
		TotalAmount: s.TotalAmount,
		Currency:    s.Currency,
		BookingPayment: BookingPayment{
			Provider: s.Provider,
			OrderID:  s.OrderID,
			TransID:  s.TransID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch outcome {
	case OutcomePaid:
		b.Status = BookingStatusPaid
		b.BookingPayment.Status = string(SessionStatusPaid)
	case OutcomeTimeout:
		b.Status = BookingStatusCancelled
		b.BookingPayment.Status = string(SessionStatusExpired)
		r := FailReasonTimeout
		b.FailReason = &r
	default:
		b.Status = BookingStatusCancelled
		b.BookingPayment.Status = string(SessionStatusFailed)
		if reason == "" {
			reason = string(OutcomeFailed)
		}
		b.FailReason = &reason
	}
	return b
}
