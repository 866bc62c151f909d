package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/config"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// Payer identifies the authenticated user starting a payment
type Payer struct {
	UserID uuid.UUID
	Phone  string
}

// PaymentSessionService drives a payment session from initiation to resolution
type PaymentSessionService struct {
	ledger    SeatLedger
	sessions  SessionStore
	hold      *HoldManager
	carts     *CartSynchronizer
	resolver  *SessionResolver
	scheduler *ExpiryScheduler
	provider  PaymentProvider
	config    *config.ReservationConfig
	auditRecorder

	now func() time.Time
}

// NewPaymentSessionService creates a new payment session service
func NewPaymentSessionService(
	ledger SeatLedger,
	sessions SessionStore,
	hold *HoldManager,
	carts *CartSynchronizer,
	resolver *SessionResolver,
	scheduler *ExpiryScheduler,
	provider PaymentProvider,
	cfg *config.ReservationConfig,
	audit AuditLogger,
	logger *logrus.Logger,
) *PaymentSessionService {
	return &PaymentSessionService{
		ledger:        ledger,
		sessions:      sessions,
		hold:          hold,
		carts:         carts,
		resolver:      resolver,
		scheduler:     scheduler,
		provider:      provider,
		config:        cfg,
		auditRecorder: auditRecorder{audit: audit, logger: logger},
		now:           time.Now,
	}
}

// Initiate creates a pending session, holds its seats and returns the
// provider redirect. The selection comes from the request, or from the
// user's selected cart items when the request carries none.
func (s *PaymentSessionService) Initiate(ctx context.Context, payer Payer, req *models.InitiatePaymentRequest, meta models.RequestMeta) (*models.InitiatePaymentResponse, error) {
	selection := req.Items
	if len(selection) == 0 {
		fromCart, err := s.carts.SelectedItems(ctx, payer.UserID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to read cart: %w", err)
		}
		selection = fromCart
	}
	if len(selection) == 0 {
		return nil, models.ErrEmptySelection
	}

	items, err := s.priceItems(ctx, selection)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.PaymentSession{
		ID:          uuid.New(),
		OrderID:     newOrderID(now),
		RequestID:   uuid.NewString(),
		Provider:    s.provider.Name(),
		UserID:      payer.UserID,
		Items:       items,
		TotalAmount: items.Total(),
		Currency:    s.config.Currency,
		Status:      models.SessionStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.SessionTTL),
	}
	if payer.Phone != "" {
		phone := payer.Phone
		session.UserPhone = &phone
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}
	s.record(ctx, models.NewPaymentAudit(models.PaymentEventSessionCreated, models.PaymentSourceUser).
		SetOrder(session.OrderID).
		SetMetadata(meta.IP, meta.UserAgent, meta.Client).
		SetDetail("total_amount", session.TotalAmount).
		SetDetail("items", len(items)))

	if err := s.hold.Hold(ctx, session); err != nil {
		var insufficient *models.InsufficientSeatsError
		reason := models.FailReasonHoldError
		if errors.As(err, &insufficient) {
			reason = models.FailReasonInsufficientSeats
		}
		if !errors.Is(err, models.ErrSessionResolved) {
			s.failUnheld(ctx, session, reason)
		}
		return nil, err
	}

	s.scheduler.Schedule(session.OrderID, session.ExpiresAt)

	if err := s.carts.Consume(ctx, session); err != nil {
		s.logger.WithError(err).WithField("order_id", session.OrderID).Warn("Cart not cleared after hold")
	}

	page, err := s.provider.CreatePayment(ctx, session)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", session.OrderID).Error("Payment provider call failed")
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventProviderError, models.PaymentSourceMoMoAPI).
			SetOrder(session.OrderID).
			SetError(err))

		if _, rerr := s.resolver.Resolve(ctx, session, models.Transition{
			To:      models.SessionStatusFailed,
			Outcome: models.OutcomeFailed,
			Reason:  models.FailReasonProviderError,
		}); rerr != nil {
			s.logger.WithError(rerr).WithField("order_id", session.OrderID).Error("Failed to resolve session after provider error")
		}
		s.scheduler.Cancel(session.OrderID)

		if errors.Is(err, models.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	if err := s.sessions.SetRedirectURL(ctx, session.OrderID, page.RedirectURL); err != nil {
		s.logger.WithError(err).WithField("order_id", session.OrderID).Warn("Failed to store redirect URL")
	}
	s.record(ctx, models.NewPaymentAudit(models.PaymentEventRedirectIssued, models.PaymentSourceMoMoAPI).
		SetOrder(session.OrderID))

	s.logger.WithFields(logrus.Fields{
		"order_id":     session.OrderID,
		"user_id":      payer.UserID,
		"total_amount": session.TotalAmount,
		"expires_at":   session.ExpiresAt,
	}).Info("Payment session initiated")

	return &models.InitiatePaymentResponse{
		RedirectURL: page.RedirectURL,
		OrderID:     session.OrderID,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// priceItems freezes server-side names, images and prices into the snapshot
func (s *PaymentSessionService) priceItems(ctx context.Context, selection []models.SessionItem) (models.SessionItems, error) {
	items := make(models.SessionItems, 0, len(selection))
	for _, sel := range selection {
		if err := sel.Validate(); err != nil {
			return nil, err
		}
		dep, err := s.ledger.GetDeparture(ctx, sel.TourID, sel.Date)
		if err != nil {
			return nil, err
		}
		if !dep.IsOpen() {
			return nil, fmt.Errorf("%w: %s on %s", models.ErrDepartureClosed, dep.TourName, sel.Date)
		}
		items = append(items, models.SessionItem{
			TourID:     sel.TourID,
			Date:       dep.DateKey(),
			Adults:     sel.Adults,
			Children:   sel.Children,
			TourName:   dep.TourName,
			Image:      dep.TourImage,
			PriceAdult: dep.PriceAdult,
			PriceChild: dep.PriceChild,
			Subtotal:   dep.Price(sel.Adults, sel.Children),
		})
	}
	return items, nil
}

// failUnheld closes a session whose hold never completed. No seats are
// held and the cart was never consumed, so there is nothing to undo.
func (s *PaymentSessionService) failUnheld(ctx context.Context, session *models.PaymentSession, reason string) {
	_, err := s.sessions.TransitionStatus(context.WithoutCancel(ctx), session.OrderID, models.Transition{
		To:      models.SessionStatusFailed,
		Outcome: models.OutcomeFailed,
		Reason:  reason,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", session.OrderID).Error("Failed to close unheld session")
	}
	s.record(ctx, models.NewPaymentAudit(models.PaymentEventSessionFailed, models.PaymentSourceBackend).
		SetOrder(session.OrderID).
		SetDetail("reason", reason).
		SetError(err))
}

// HandleCallback processes a provider notification. Invalid signatures are
// rejected before any field is used. Duplicates and late arrivals are
// audited and otherwise ignored.
func (s *PaymentSessionService) HandleCallback(ctx context.Context, body []byte, meta models.RequestMeta) error {
	result, err := s.provider.VerifyCallback(body)
	if err != nil {
		s.logger.WithError(err).WithField("ip", meta.IP).Warn("Rejected payment callback")
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventIPNRejected, models.PaymentSourceMoMoIPN).
			SetMetadata(meta.IP, meta.UserAgent, meta.Client).
			SetError(err))
		return err
	}

	session, err := s.sessions.GetSessionByOrderID(ctx, result.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			s.logger.WithField("order_id", result.OrderID).Warn("Callback for unknown order")
		}
		return err
	}

	received := models.NewPaymentAudit(models.PaymentEventIPNReceived, models.PaymentSourceMoMoIPN).
		SetOrder(session.OrderID).
		SetResult(result.ResultCode, result.TransID).
		SetMetadata(meta.IP, meta.UserAgent, meta.Client).
		SetDetail("message", result.Message)
	if result.Raw != nil {
		received.SetDetail("payload", result.Raw)
	}
	amountsMatch := received.SetAmounts(session.TotalAmount, result.Amount)
	s.record(ctx, received)

	fields := logrus.Fields{
		"order_id":    session.OrderID,
		"result_code": result.ResultCode,
		"trans_id":    result.TransID,
	}

	if session.Status.IsTerminal() {
		s.scheduler.Cancel(session.OrderID)
		s.recordLateOrDuplicate(ctx, session, result)
		return s.ensureBooking(ctx, session)
	}

	if !result.Success() {
		won, err := s.resolver.Resolve(ctx, session, models.Transition{
			To:      models.SessionStatusFailed,
			Outcome: models.OutcomeFailed,
			Reason:  models.DeclineReason(result.ResultCode),
			TransID: result.TransID,
		})
		if err != nil && !won {
			return err
		}
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("Declined payment finalized with errors")
		}
		s.scheduler.Cancel(session.OrderID)
		s.logger.WithFields(fields).Info("Payment declined by provider")
		return nil
	}

	if !amountsMatch {
		s.logger.WithFields(fields).WithFields(logrus.Fields{
			"expected": session.TotalAmount,
			"received": result.Amount,
		}).Error("Payment amount mismatch, session left pending")
		mismatch := models.NewPaymentAudit(models.PaymentEventAmountMismatch, models.PaymentSourceMoMoIPN).
			SetOrder(session.OrderID).
			SetResult(result.ResultCode, result.TransID).
			SetMetadata(meta.IP, meta.UserAgent, meta.Client)
		mismatch.SetAmounts(session.TotalAmount, result.Amount)
		s.record(ctx, mismatch)
		return nil
	}

	won, err := s.resolver.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusPaid,
		Outcome: models.OutcomePaid,
		TransID: result.TransID,
	})
	if err != nil && !won {
		return err
	}
	if err != nil {
		// the session is paid; a provider retry or the sweep writes the missing booking
		s.logger.WithError(err).WithFields(fields).Error("Paid session finalized with errors")
		return err
	}
	if !won {
		latest, gerr := s.sessions.GetSessionByOrderID(ctx, session.OrderID)
		if gerr != nil {
			return gerr
		}
		s.recordLateOrDuplicate(ctx, latest, result)
		if err := s.ensureBooking(ctx, latest); err != nil {
			return err
		}
	}
	s.scheduler.Cancel(session.OrderID)
	if won {
		s.logger.WithFields(fields).Info("Payment confirmed")
	}
	return nil
}

// recordLateOrDuplicate audits a callback that arrived after resolution.
// A success against a non-paid session means money moved with no seats held.
func (s *PaymentSessionService) recordLateOrDuplicate(ctx context.Context, session *models.PaymentSession, result *CallbackResult) {
	eventType := models.PaymentEventDuplicateIPN
	if result.Success() && session.Status != models.SessionStatusPaid {
		eventType = models.PaymentEventLatePayment
		s.logger.WithFields(logrus.Fields{
			"order_id": session.OrderID,
			"status":   session.Status,
			"trans_id": result.TransID,
		}).Error("Payment succeeded after session was resolved, refund required")
	}
	s.record(ctx, models.NewPaymentAudit(eventType, models.PaymentSourceMoMoIPN).
		SetOrder(session.OrderID).
		SetResult(result.ResultCode, result.TransID).
		SetDetail("session_status", string(session.Status)))
}

// ensureBooking retries the booking of a resolved session. An error makes the
// handler answer 5xx so the provider redelivers.
func (s *PaymentSessionService) ensureBooking(ctx context.Context, session *models.PaymentSession) error {
	created, err := s.resolver.EnsureBooking(ctx, session)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", session.OrderID).Error("Booking still missing for resolved session")
		return err
	}
	if created {
		s.logger.WithField("order_id", session.OrderID).Warn("Booking written on provider retry")
	}
	return nil
}

// GetStatus returns the owner's view of a session. An overdue pending
// session is expired inline before it is returned.
func (s *PaymentSessionService) GetStatus(ctx context.Context, userID uuid.UUID, orderID string) (*models.SessionStatusResponse, error) {
	session, err := s.ownedSession(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if session.IsOverdue(s.now()) {
		if _, err := s.resolver.Resolve(ctx, session, models.Transition{
			To:      models.SessionStatusExpired,
			Outcome: models.OutcomeTimeout,
			Reason:  models.FailReasonTimeout,
		}); err != nil {
			s.logger.WithError(err).WithField("order_id", orderID).Warn("Lazy expiry incomplete")
		}
		s.scheduler.Cancel(orderID)
		if session, err = s.sessions.GetSessionByOrderID(ctx, orderID); err != nil {
			return nil, err
		}
	}
	return session.ToStatusResponse(), nil
}

// Cancel fails a pending session at the owner's request. Cancelling an
// already resolved session returns its current state.
func (s *PaymentSessionService) Cancel(ctx context.Context, userID uuid.UUID, orderID string, meta models.RequestMeta) (*models.SessionStatusResponse, error) {
	session, err := s.ownedSession(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	won, err := s.resolver.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusFailed,
		Outcome: models.OutcomeFailed,
		Reason:  models.FailReasonUserCancelled,
	})
	if err != nil && !won {
		return nil, err
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Cancelled session finalized with errors")
	}
	if won {
		s.scheduler.Cancel(orderID)
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventSessionFailed, models.PaymentSourceUser).
			SetOrder(orderID).
			SetMetadata(meta.IP, meta.UserAgent, meta.Client).
			SetDetail("reason", models.FailReasonUserCancelled))
	}

	latest, err := s.sessions.GetSessionByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return latest.ToStatusResponse(), nil
}

// ownedSession hides other users' sessions behind not found
func (s *PaymentSessionService) ownedSession(ctx context.Context, userID uuid.UUID, orderID string) (*models.PaymentSession, error) {
	session, err := s.sessions.GetSessionByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, models.ErrSessionNotFound
	}
	return session, nil
}

// newOrderID returns a provider-safe order id, e.g. TRV1760700000000A1B2C3D4
func newOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TRV%d%s", now.UnixMilli(), suffix)
}
