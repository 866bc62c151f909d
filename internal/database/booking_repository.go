package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// BookingRepository persists bookings. The bookings_payment_key constraint on
// (payment_provider, payment_order_id) is what makes creation exactly-once.
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetBookingByPayment returns the booking for a provider order
func (r *BookingRepository) GetBookingByPayment(ctx context.Context, provider, orderID string) (*models.Booking, error) {
	var b models.Booking
	query := `
		SELECT id, user_id, items, total_amount, currency,
		       payment_provider, payment_order_id, payment_trans_id, payment_status,
		       status, fail_reason, created_at, updated_at
		FROM bookings
		WHERE payment_provider = $1 AND payment_order_id = $2`

	err := r.db.GetContext(ctx, &b, query, provider, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// InsertBooking inserts a booking; a conflicting (provider, orderId) yields ErrDuplicateBooking
func (r *BookingRepository) InsertBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, items, total_amount, currency,
			payment_provider, payment_order_id, payment_trans_id, payment_status,
			status, fail_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.Items, b.TotalAmount, b.Currency,
		b.Provider, b.OrderID, b.TransID, b.BookingPayment.Status,
		b.Status, b.FailReason, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicateBooking
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}
