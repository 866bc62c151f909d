package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/travyy/tour-booking-backend/internal/models"
)

const sessionColumns = `id, order_id, request_id, provider, user_id, user_phone, items,
	total_amount, currency, status, fail_reason, trans_id, redirect_url,
	created_at, expires_at, held_at, released_at, resolved_at`

// PaymentSessionRepository persists payment sessions. Status changes are
// guarded UPDATEs whose RowsAffected decides the compare-and-set winner.
type PaymentSessionRepository struct {
	db DB
}

// NewPaymentSessionRepository creates a new payment session repository
func NewPaymentSessionRepository(db DB) *PaymentSessionRepository {
	return &PaymentSessionRepository{db: db}
}

// CreateSession inserts a pending session
func (r *PaymentSessionRepository) CreateSession(ctx context.Context, s *models.PaymentSession) error {
	query := `
		INSERT INTO payment_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.OrderID, s.RequestID, s.Provider, s.UserID, s.UserPhone, s.Items,
		s.TotalAmount, s.Currency, s.Status, s.FailReason, s.TransID, s.RedirectURL,
		s.CreatedAt, s.ExpiresAt, s.HeldAt, s.ReleasedAt, s.ResolvedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicateSession
		}
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

// GetSessionByOrderID loads a session by its provider order id
func (r *PaymentSessionRepository) GetSessionByOrderID(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	var s models.PaymentSession
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE order_id = $1`

	err := r.db.GetContext(ctx, &s, query, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	return &s, nil
}

// MarkHeld records that every line item was decremented
func (r *PaymentSessionRepository) MarkHeld(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE payment_sessions SET held_at = NOW()
		WHERE order_id = $1 AND status = 'pending' AND held_at IS NULL`
	return r.execGuarded(ctx, "mark session held", query, orderID)
}

// SetRedirectURL stores the provider redirect while the session is pending
func (r *PaymentSessionRepository) SetRedirectURL(ctx context.Context, orderID, url string) error {
	query := `UPDATE payment_sessions SET redirect_url = $2 WHERE order_id = $1 AND status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, orderID, url); err != nil {
		return fmt.Errorf("failed to set redirect url: %w", err)
	}
	return nil
}

// TransitionStatus moves a pending session to a terminal status.
// Returns false when the session was no longer pending.
func (r *PaymentSessionRepository) TransitionStatus(ctx context.Context, orderID string, tr models.Transition) (bool, error) {
	if !models.SessionStatusPending.CanTransitionTo(tr.To) {
		return false, fmt.Errorf("invalid target status: %s", tr.To)
	}
	query := `
		UPDATE payment_sessions
		SET status = $2,
		    fail_reason = NULLIF($3, ''),
		    trans_id = COALESCE(NULLIF($4, ''), trans_id),
		    resolved_at = NOW()
		WHERE order_id = $1 AND status = 'pending'`
	return r.execGuarded(ctx, "transition session", query, orderID, tr.To, tr.Reason, tr.TransID)
}

// MarkReleased sets the release marker once. Paid and never-held sessions are
// never released.
func (r *PaymentSessionRepository) MarkReleased(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE payment_sessions SET released_at = NOW()
		WHERE order_id = $1
		  AND released_at IS NULL
		  AND held_at IS NOT NULL
		  AND status <> 'paid'`
	return r.execGuarded(ctx, "mark session released", query, orderID)
}

// ListOverdue returns pending sessions whose deadline has passed
func (r *PaymentSessionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`
	return r.list(ctx, "overdue", query, now, limit)
}

// ListPending returns pending sessions, earliest deadline first
func (r *PaymentSessionRepository) ListPending(ctx context.Context, limit int) ([]*models.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions
		WHERE status = 'pending'
		ORDER BY expires_at ASC
		LIMIT $1`
	return r.list(ctx, "pending", query, limit)
}

// ListUnreleased returns terminal non-paid sessions whose holds were not released
func (r *PaymentSessionRepository) ListUnreleased(ctx context.Context, limit int) ([]*models.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions
		WHERE status IN ('expired', 'failed') AND held_at IS NOT NULL AND released_at IS NULL
		ORDER BY resolved_at ASC
		LIMIT $1`
	return r.list(ctx, "unreleased", query, limit)
}

// ListUnbooked returns held terminal sessions that have no booking row
func (r *PaymentSessionRepository) ListUnbooked(ctx context.Context, limit int) ([]*models.PaymentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM payment_sessions s
		WHERE s.status IN ('paid', 'expired', 'failed') AND s.held_at IS NOT NULL
		AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.payment_provider = s.provider AND b.payment_order_id = s.order_id
		)
		ORDER BY s.resolved_at ASC
		LIMIT $1`
	return r.list(ctx, "unbooked", query, limit)
}

func (r *PaymentSessionRepository) list(ctx context.Context, name, query string, args ...interface{}) ([]*models.PaymentSession, error) {
	var sessions []*models.PaymentSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s sessions: %w", name, err)
	}
	return sessions, nil
}

func (r *PaymentSessionRepository) execGuarded(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	return rows == 1, nil
}
