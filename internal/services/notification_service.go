package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
	"github.com/travyy/tour-booking-backend/pkg/sms"
	"github.com/travyy/tour-booking-backend/pkg/validator"
)

// SMSNotifier tells users by SMS that their reservation lapsed.
// Delivery runs in the background and failures are only logged.
type SMSNotifier struct {
	gateway   sms.Gateway
	validator *validator.PhoneValidator
	logger    *logrus.Logger
	timeout   time.Duration
}

// NewSMSNotifier creates a new SMS notifier
func NewSMSNotifier(gateway sms.Gateway, logger *logrus.Logger) *SMSNotifier {
	return &SMSNotifier{
		gateway:   gateway,
		validator: validator.NewPhoneValidator(),
		logger:    logger,
		timeout:   10 * time.Second,
	}
}

func (n *SMSNotifier) NotifySessionExpired(ctx context.Context, session *models.PaymentSession) {
	if session.UserPhone == nil || *session.UserPhone == "" {
		return
	}
	phone, err := n.validator.ToInternational(*session.UserPhone)
	if err != nil {
		n.logger.WithError(err).WithField("order_id", session.OrderID).Debug("Skipping expiry SMS, invalid phone")
		return
	}

	message := fmt.Sprintf("Travyy: dat cho %s da het han thanh toan. Cac tour da duoc tra lai gio hang cua ban.", session.OrderID)

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if err := n.gateway.Send(sendCtx, phone, message); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"order_id": session.OrderID,
				"gateway":  n.gateway.Name(),
			}).Warn("Expiry SMS failed")
			return
		}
		n.logger.WithField("order_id", session.OrderID).Debug("Expiry SMS sent")
	}()
}
