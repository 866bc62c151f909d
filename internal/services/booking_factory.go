package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// BookingFactory materializes exactly one booking per (provider, orderId)
type BookingFactory struct {
	bookings BookingStore
	auditRecorder
}

// NewBookingFactory creates a new booking factory
func NewBookingFactory(bookings BookingStore, audit AuditLogger, logger *logrus.Logger) *BookingFactory {
	return &BookingFactory{
		bookings:      bookings,
		auditRecorder: auditRecorder{audit: audit, logger: logger},
	}
}

// Create returns the existing booking for the session's order or inserts a new
// one from the session snapshot. The store's unique constraint decides races:
// a losing insert re-reads and returns the winner's booking.
func (f *BookingFactory) Create(ctx context.Context, session *models.PaymentSession, outcome models.Outcome, reason string) (*models.Booking, bool, error) {
	existing, err := f.bookings.GetBookingByPayment(ctx, session.Provider, session.OrderID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrBookingNotFound) {
		return nil, false, fmt.Errorf("failed to look up booking: %w", err)
	}

	booking := models.NewBookingFromSession(session, outcome, reason)
	err = f.bookings.InsertBooking(ctx, booking)
	if errors.Is(err, models.ErrDuplicateBooking) {
		existing, getErr := f.bookings.GetBookingByPayment(ctx, session.Provider, session.OrderID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to re-read booking after conflict: %w", getErr)
		}
		f.logger.WithField("order_id", session.OrderID).Debug("Booking created concurrently, using existing")
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create booking: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"order_id":   session.OrderID,
		"booking_id": booking.ID,
		"status":     booking.Status,
		"outcome":    outcome,
	}).Info("Booking created")
	f.record(ctx, models.NewPaymentAudit(models.PaymentEventBookingCreated, models.PaymentSourceBackend).
		SetOrder(session.OrderID).
		SetDetail("booking_id", booking.ID.String()).
		SetDetail("status", string(booking.Status)))

	return booking, true, nil
}
