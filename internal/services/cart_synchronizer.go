package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// CartSynchronizer moves selections between a user's cart and payment sessions
type CartSynchronizer struct {
	carts CartStore
	auditRecorder
}

// NewCartSynchronizer creates a new cart synchronizer
func NewCartSynchronizer(carts CartStore, audit AuditLogger, logger *logrus.Logger) *CartSynchronizer {
	return &CartSynchronizer{
		carts:         carts,
		auditRecorder: auditRecorder{audit: audit, logger: logger},
	}
}

// Restore recreates each session item in the cart as selected, unless an
// equal item already exists. Safe to call any number of times.
func (c *CartSynchronizer) Restore(ctx context.Context, session *models.PaymentSession) (int, error) {
	userID := session.UserID.String()
	restored := 0
	var errs []error

	for _, item := range session.Items {
		added, err := c.carts.AddItemIfAbsent(ctx, userID, models.CartItemFromSession(item))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if added {
			restored++
		}
	}

	if restored > 0 {
		c.logger.WithFields(logrus.Fields{
			"order_id": session.OrderID,
			"user_id":  userID,
			"restored": restored,
		}).Info("Cart items restored")
		c.record(ctx, models.NewPaymentAudit(models.PaymentEventCartRestored, models.PaymentSourceBackend).
			SetOrder(session.OrderID).
			SetDetail("restored", restored))
	}

	if len(errs) > 0 {
		return restored, fmt.Errorf("failed to restore cart: %w", errors.Join(errs...))
	}
	return restored, nil
}

// Consume removes the selections folded into a session from the cart
func (c *CartSynchronizer) Consume(ctx context.Context, session *models.PaymentSession) error {
	if err := c.carts.RemoveItems(ctx, session.UserID.String(), session.Items); err != nil {
		return fmt.Errorf("failed to consume cart items: %w", err)
	}
	return nil
}

// SelectedItems returns the user's selected cart lines
func (c *CartSynchronizer) SelectedItems(ctx context.Context, userID string) ([]models.SessionItem, error) {
	cart, err := c.carts.GetCart(ctx, userID)
	if errors.Is(err, models.ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cart.SelectedItems(), nil
}
