package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// HoldManager reserves and releases seats for a payment session
type HoldManager struct {
	ledger   SeatLedger
	sessions SessionStore
	auditRecorder
}

// NewHoldManager creates a new hold manager
func NewHoldManager(ledger SeatLedger, sessions SessionStore, audit AuditLogger, logger *logrus.Logger) *HoldManager {
	return &HoldManager{
		ledger:        ledger,
		sessions:      sessions,
		auditRecorder: auditRecorder{audit: audit, logger: logger},
	}
}

// Hold decrements every line item. If one item does not fit, the decrements
// already applied for this session are compensated before returning
// *models.InsufficientSeatsError.
func (h *HoldManager) Hold(ctx context.Context, session *models.PaymentSession) error {
	applied := make([]models.SessionItem, 0, len(session.Items))

	for _, item := range session.Items {
		needed := item.Seats()
		if needed <= 0 {
			h.compensate(ctx, session, applied)
			return fmt.Errorf("%w: item for %s on %s occupies no seats", models.ErrInvalidItem, item.TourName, item.Date)
		}
		left, ok, err := h.ledger.AdjustSeats(ctx, item.TourID, item.Date, -needed)
		if err != nil {
			h.compensate(ctx, session, applied)
			return fmt.Errorf("failed to hold seats: %w", err)
		}
		if !ok {
			h.compensate(ctx, session, applied)
			h.record(ctx, models.NewPaymentAudit(models.PaymentEventHoldRejected, models.PaymentSourceBackend).
				SetOrder(session.OrderID).
				SetDetail("tour_id", item.TourID.String()).
				SetDetail("date", item.Date).
				SetDetail("needed", needed).
				SetDetail("available", left))
			return &models.InsufficientSeatsError{
				TourName:  item.TourName,
				Date:      item.Date,
				Needed:    needed,
				Available: left,
			}
		}
		applied = append(applied, item)
	}

	marked, err := h.sessions.MarkHeld(ctx, session.OrderID)
	if err != nil {
		h.compensate(ctx, session, applied)
		return fmt.Errorf("failed to mark session held: %w", err)
	}
	if !marked {
		// resolved while we were decrementing; nobody else will release these
		h.compensate(ctx, session, applied)
		return models.ErrSessionResolved
	}

	h.logger.WithFields(logrus.Fields{
		"order_id": session.OrderID,
		"items":    len(applied),
	}).Info("Seats held")
	h.record(ctx, models.NewPaymentAudit(models.PaymentEventHoldPlaced, models.PaymentSourceBackend).
		SetOrder(session.OrderID).
		SetDetail("items", len(applied)))
	return nil
}

// compensate returns the seats of already-applied items, logging each action
func (h *HoldManager) compensate(ctx context.Context, session *models.PaymentSession, applied []models.SessionItem) {
	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		fields := logrus.Fields{
			"order_id": session.OrderID,
			"tour_id":  item.TourID,
			"date":     item.Date,
			"seats":    item.Seats(),
		}
		left, ok, err := h.ledger.AdjustSeats(context.WithoutCancel(ctx), item.TourID, item.Date, item.Seats())

		entry := models.NewPaymentAudit(models.PaymentEventHoldCompensated, models.PaymentSourceBackend).
			SetOrder(session.OrderID).
			SetDetail("tour_id", item.TourID.String()).
			SetDetail("date", item.Date).
			SetDetail("seats", item.Seats()).
			SetDetail("applied", ok).
			SetError(err)
		h.record(ctx, entry)

		switch {
		case err != nil:
			h.logger.WithError(err).WithFields(fields).Error("Hold compensation failed")
		case !ok:
			h.logger.WithFields(fields).Error("Hold compensation rejected by seat guard")
		default:
			h.logger.WithFields(fields).WithField("seats_left", left).Warn("Hold compensated")
		}
	}
}

// Release returns the session's seats exactly once. The released marker is
// set first with a compare-and-set, so concurrent or repeated callers are
// no-ops. Paid and never-held sessions are never released.
func (h *HoldManager) Release(ctx context.Context, session *models.PaymentSession) (bool, error) {
	won, err := h.sessions.MarkReleased(ctx, session.OrderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark session released: %w", err)
	}
	if !won {
		h.logger.WithField("order_id", session.OrderID).Debug("Release skipped, already released or not held")
		return false, nil
	}

	var errs []error
	for _, item := range session.Items {
		left, ok, err := h.ledger.AdjustSeats(ctx, item.TourID, item.Date, item.Seats())
		fields := logrus.Fields{
			"order_id": session.OrderID,
			"tour_id":  item.TourID,
			"date":     item.Date,
			"seats":    item.Seats(),
		}
		if err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("seat guard rejected release of %d seats for %s on %s", item.Seats(), item.TourID, item.Date)
			}
			errs = append(errs, err)
			h.logger.WithError(err).WithFields(fields).Error("Seat release failed")
			h.record(ctx, models.NewPaymentAudit(models.PaymentEventReleaseFailed, models.PaymentSourceBackend).
				SetOrder(session.OrderID).
				SetDetail("tour_id", item.TourID.String()).
				SetDetail("date", item.Date).
				SetDetail("seats", item.Seats()).
				SetError(err))
			continue
		}
		h.logger.WithFields(fields).WithField("seats_left", left).Info("Seats released")
	}

	h.record(ctx, models.NewPaymentAudit(models.PaymentEventSeatsReleased, models.PaymentSourceBackend).
		SetOrder(session.OrderID).
		SetDetail("items", len(session.Items)).
		SetDetail("failed", len(errs)))

	return true, errors.Join(errs...)
}
