package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// auditRecorder writes audit entries without ever failing the caller
type auditRecorder struct {
	audit  AuditLogger
	logger *logrus.Logger
}

func (a auditRecorder) record(ctx context.Context, entry *models.PaymentAudit) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.WithError(err).WithField("event_type", entry.EventType).Error("AUDIT ERROR")
	}
}
