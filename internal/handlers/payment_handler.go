package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/middleware"
	"github.com/travyy/tour-booking-backend/internal/models"
	"github.com/travyy/tour-booking-backend/internal/services"
	"github.com/travyy/tour-booking-backend/internal/utils"
)

const maxIPNBodyBytes = 64 << 10

// PaymentHandler exposes payment session endpoints
type PaymentHandler struct {
	sessionService *services.PaymentSessionService
	logger         *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(sessionService *services.PaymentSessionService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// ============================================================================
// INITIATE - POST /api/v1/payments/momo/initiate
// ============================================================================

// Initiate creates a payment session, holds seats and returns the MoMo redirect.
// An empty items list pays for the selected cart items.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.InitiatePaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}

	payer := services.Payer{UserID: userCtx.UserID, Phone: userCtx.Phone}
	response, err := h.sessionService.Initiate(c.Request.Context(), payer, &req, utils.RequestMeta(c))
	if err != nil {
		h.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ============================================================================
// IPN - POST /api/v1/payments/momo/ipn
// ============================================================================

// IPN receives MoMo's server-to-server notification. MoMo retries anything
// other than 2xx, so storage failures answer 500 and everything already
// settled answers 204.
func (h *PaymentHandler) IPN(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIPNBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	err = h.sessionService.HandleCallback(c.Request.Context(), body, utils.RequestMeta(c))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, models.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case errors.Is(err, models.ErrSessionNotFound):
		// unknown orders are never going to succeed on retry
		c.Status(http.StatusNoContent)
	default:
		h.logger.WithError(err).Error("Failed to process MoMo IPN")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure"})
	}
}

// ============================================================================
// STATUS - GET /api/v1/payments/sessions/:orderId
// ============================================================================

// GetStatus returns the session state for client-side polling
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	status, err := h.sessionService.GetStatus(c.Request.Context(), userCtx.UserID, c.Param("orderId"))
	if err != nil {
		h.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ============================================================================
// CANCEL - POST /api/v1/payments/sessions/:orderId/cancel
// ============================================================================

// Cancel abandons a pending session and returns its seats and cart items
func (h *PaymentHandler) Cancel(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	status, err := h.sessionService.Cancel(c.Request.Context(), userCtx.UserID, c.Param("orderId"), utils.RequestMeta(c))
	if err != nil {
		h.writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *PaymentHandler) writeSessionError(c *gin.Context, err error) {
	var insufficient *models.InsufficientSeatsError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "insufficient_seats",
			"message":   insufficient.Error(),
			"tour_name": insufficient.TourName,
			"date":      insufficient.Date,
			"needed":    insufficient.Needed,
			"available": insufficient.Available,
		})
	case errors.Is(err, models.ErrEmptySelection), errors.Is(err, models.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrDepartureNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDepartureClosed), errors.Is(err, models.ErrSessionResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrProviderUnavailable):
		h.logger.WithError(err).Warn("Payment provider unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable, please try again"})
	default:
		h.logger.WithError(err).Error("Payment session request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
