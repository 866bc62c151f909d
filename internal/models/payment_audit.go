package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventSessionCreated  PaymentEventType = "session_created"
	PaymentEventHoldPlaced      PaymentEventType = "hold_placed"
	PaymentEventHoldCompensated PaymentEventType = "hold_compensated"
	PaymentEventHoldRejected    PaymentEventType = "hold_rejected"
	PaymentEventSeatsReleased   PaymentEventType = "seats_released"
	PaymentEventReleaseFailed   PaymentEventType = "release_failed"
	PaymentEventRedirectIssued  PaymentEventType = "redirect_issued"
	PaymentEventProviderError   PaymentEventType = "provider_error"
	PaymentEventIPNReceived     PaymentEventType = "ipn_received"
	PaymentEventIPNRejected     PaymentEventType = "ipn_rejected"
	PaymentEventAmountMismatch  PaymentEventType = "amount_mismatch"
	PaymentEventDuplicateIPN    PaymentEventType = "duplicate_ipn"
	PaymentEventLatePayment     PaymentEventType = "late_payment"
	PaymentEventSessionPaid     PaymentEventType = "session_paid"
	PaymentEventSessionExpired  PaymentEventType = "session_expired"
	PaymentEventSessionFailed   PaymentEventType = "session_failed"
	PaymentEventBookingCreated  PaymentEventType = "booking_created"
	PaymentEventCartRestored    PaymentEventType = "cart_restored"
	PaymentEventRepairedRelease PaymentEventType = "repaired_release"
	PaymentEventRepairedBooking PaymentEventType = "repaired_booking"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend   PaymentEventSource = "backend"
	PaymentSourceMoMoIPN   PaymentEventSource = "momo_ipn"
	PaymentSourceMoMoAPI   PaymentEventSource = "momo_api"
	PaymentSourceUser      PaymentEventSource = "user"
	PaymentSourceScheduler PaymentEventSource = "scheduler"
)

// PaymentAudit is an append-only audit entry
type PaymentAudit struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	OrderID     *string            `json:"order_id,omitempty" db:"order_id"`
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *int64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool  `json:"amounts_match,omitempty" db:"amounts_match"`

	ResultCode *int    `json:"result_code,omitempty" db:"result_code"`
	TransID    *string `json:"trans_id,omitempty" db:"trans_id"`

	Details      JSONB   `json:"details,omitempty" db:"details"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
	Client    *string `json:"client,omitempty" db:"client"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

func (pa *PaymentAudit) SetOrder(orderID string) *PaymentAudit {
	pa.OrderID = &orderID
	return pa
}

// SetAmounts records expected and received amounts and returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received int64) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	match := expected == received
	pa.AmountsMatch = &match
	return match
}

func (pa *PaymentAudit) SetResult(resultCode int, transID string) *PaymentAudit {
	pa.ResultCode = &resultCode
	if transID != "" {
		pa.TransID = &transID
	}
	return pa
}

// SetDetail adds one key to the details payload
func (pa *PaymentAudit) SetDetail(key string, value interface{}) *PaymentAudit {
	if pa.Details == nil {
		pa.Details = JSONB{}
	}
	pa.Details[key] = value
	return pa
}

func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		pa.ErrorMessage = &msg
	}
	return pa
}

// SetMetadata sets request metadata; empty values are left unset
func (pa *PaymentAudit) SetMetadata(ip, userAgent, client string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if client != "" {
		pa.Client = &client
	}
	return pa
}

// RequestMeta is client metadata captured by the HTTP layer for auditing
type RequestMeta struct {
	IP        string
	UserAgent string
	Client    string
}
