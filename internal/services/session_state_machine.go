package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

const defaultPublishTimeout = 2 * time.Second

// SessionResolver moves a payment session from pending to exactly one
// terminal status. Only the caller that wins the compare-and-set runs the
// side effects; everyone else gets (false, nil).
type SessionResolver struct {
	sessions  SessionStore
	hold      *HoldManager
	bookings  *BookingFactory
	carts     *CartSynchronizer
	notifier  Notifier
	publisher EventPublisher
	auditRecorder

	// bounds how long a resolution waits on the event broker
	publishTimeout time.Duration
}

// NewSessionResolver creates a new session resolver. notifier and publisher may be nil.
func NewSessionResolver(
	sessions SessionStore,
	hold *HoldManager,
	bookings *BookingFactory,
	carts *CartSynchronizer,
	notifier Notifier,
	publisher EventPublisher,
	audit AuditLogger,
	logger *logrus.Logger,
) *SessionResolver {
	return &SessionResolver{
		sessions:       sessions,
		hold:           hold,
		bookings:       bookings,
		carts:          carts,
		notifier:       notifier,
		publisher:      publisher,
		auditRecorder:  auditRecorder{audit: audit, logger: logger},
		publishTimeout: defaultPublishTimeout,
	}
}

// Resolve attempts the pending -> tr.To transition and finalizes on success
func (r *SessionResolver) Resolve(ctx context.Context, session *models.PaymentSession, tr models.Transition) (bool, error) {
	if !models.SessionStatusPending.CanTransitionTo(tr.To) {
		return false, fmt.Errorf("illegal transition to %q", tr.To)
	}

	won, err := r.sessions.TransitionStatus(ctx, session.OrderID, tr)
	if err != nil {
		return false, fmt.Errorf("failed to transition session: %w", err)
	}
	if !won {
		r.logger.WithFields(logrus.Fields{
			"order_id": session.OrderID,
			"to":       tr.To,
		}).Debug("Session already resolved, transition skipped")
		return false, nil
	}

	resolved := *session
	resolved.Status = tr.To
	if tr.Reason != "" {
		reason := tr.Reason
		resolved.FailReason = &reason
	}
	if tr.TransID != "" {
		transID := tr.TransID
		resolved.TransID = &transID
	}
	now := time.Now()
	resolved.ResolvedAt = &now
	*session = resolved

	r.logger.WithFields(logrus.Fields{
		"order_id": session.OrderID,
		"status":   tr.To,
		"reason":   tr.Reason,
	}).Info("Payment session resolved")

	return true, r.finalize(ctx, session, tr.Outcome, tr.Reason)
}

// finalize runs the side effects owed by the winner of a transition.
// Every step is idempotent, so Repair can run it again after a crash.
func (r *SessionResolver) finalize(ctx context.Context, session *models.PaymentSession, outcome models.Outcome, reason string) error {
	// the caller's request may be gone; the winner must still finish
	ctx = context.WithoutCancel(ctx)
	var errs []error

	if outcome != models.OutcomePaid {
		if _, err := r.hold.Release(ctx, session); err != nil {
			errs = append(errs, err)
		}
		if _, err := r.carts.Restore(ctx, session); err != nil {
			r.logger.WithError(err).WithField("order_id", session.OrderID).Warn("Cart restore incomplete")
			errs = append(errs, err)
		}
	}

	if _, _, err := r.bookings.Create(ctx, session, outcome, reason); err != nil {
		errs = append(errs, err)
	}

	r.record(ctx, models.NewPaymentAudit(resolvedEventType(session.Status), models.PaymentSourceBackend).
		SetOrder(session.OrderID).
		SetDetail("outcome", string(outcome)).
		SetDetail("reason", reason))

	if outcome == models.OutcomeTimeout && r.notifier != nil {
		r.notifier.NotifySessionExpired(ctx, session)
	}
	r.publish(ctx, session, outcome, reason)

	return errors.Join(errs...)
}

// Expire re-reads the session and resolves it to expired if still pending
func (r *SessionResolver) Expire(ctx context.Context, orderID string) (bool, error) {
	session, err := r.sessions.GetSessionByOrderID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if session.Status != models.SessionStatusPending {
		return false, nil
	}
	return r.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusExpired,
		Outcome: models.OutcomeTimeout,
		Reason:  models.FailReasonTimeout,
	})
}

// Repair finishes a terminal session whose side effects were interrupted:
// seats never returned, or a booking never written. Both steps are idempotent.
func (r *SessionResolver) Repair(ctx context.Context, session *models.PaymentSession) error {
	if !session.NeedsRelease() && !session.NeedsBooking() {
		return nil
	}
	var errs []error

	if session.NeedsRelease() {
		released, err := r.hold.Release(ctx, session)
		if err != nil {
			errs = append(errs, err)
		}
		if released {
			if _, err := r.carts.Restore(ctx, session); err != nil {
				r.logger.WithError(err).WithField("order_id", session.OrderID).Warn("Cart restore incomplete during repair")
			}
			r.logger.WithField("order_id", session.OrderID).Warn("Repaired unreleased session")
			r.record(ctx, models.NewPaymentAudit(models.PaymentEventRepairedRelease, models.PaymentSourceScheduler).
				SetOrder(session.OrderID).
				SetDetail("status", string(session.Status)))
		}
	}

	if session.NeedsBooking() {
		created, err := r.EnsureBooking(ctx, session)
		if err != nil {
			errs = append(errs, err)
		} else if created {
			r.logger.WithField("order_id", session.OrderID).Warn("Repaired missing booking")
			r.record(ctx, models.NewPaymentAudit(models.PaymentEventRepairedBooking, models.PaymentSourceScheduler).
				SetOrder(session.OrderID).
				SetDetail("status", string(session.Status)))
		}
	}
	return errors.Join(errs...)
}

// EnsureBooking writes the booking owed by a resolved session if it is
// missing; created reports whether this call inserted it.
func (r *SessionResolver) EnsureBooking(ctx context.Context, session *models.PaymentSession) (bool, error) {
	if !session.NeedsBooking() {
		return false, nil
	}
	reason := ""
	if session.FailReason != nil {
		reason = *session.FailReason
	}
	_, created, err := r.bookings.Create(ctx, session, models.OutcomeOf(session), reason)
	return created, err
}

func (r *SessionResolver) publish(ctx context.Context, session *models.PaymentSession, outcome models.Outcome, reason string) {
	if r.publisher == nil {
		return
	}
	event := &SessionEvent{
		Type:        "payment_session." + string(session.Status),
		OrderID:     session.OrderID,
		UserID:      session.UserID,
		Status:      session.Status,
		Outcome:     outcome,
		Reason:      reason,
		TotalAmount: session.TotalAmount,
		Currency:    session.Currency,
		OccurredAt:  time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.WithError(err).WithField("order_id", session.OrderID).Warn("Failed to publish session event")
	}
}

func resolvedEventType(status models.SessionStatus) models.PaymentEventType {
	switch status {
	case models.SessionStatusPaid:
		return models.PaymentEventSessionPaid
	case models.SessionStatusExpired:
		return models.PaymentEventSessionExpired
	default:
		return models.PaymentEventSessionFailed
	}
}
