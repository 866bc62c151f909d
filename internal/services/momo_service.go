package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/travyy/tour-booking-backend/internal/config"
	"github.com/travyy/tour-booking-backend/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const momoCreatePath = "/v2/gateway/api/create"

// MoMoService integrates the MoMo v2 payment gateway
type MoMoService struct {
	config  *config.PaymentConfig
	logger  *logrus.Logger
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*MoMoCreateResponse]
}

// MoMoCreateRequest is the body of a create-payment call
type MoMoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// MoMoCreateResponse is MoMo's answer to a create-payment call
type MoMoCreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	RequestID    string `json:"requestId"`
	OrderID      string `json:"orderId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink,omitempty"`
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
}

// MoMoIPNPayload is the server-to-server notification MoMo posts after payment
type MoMoIPNPayload struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// NewMoMoService creates a new MoMo payment service
func NewMoMoService(cfg *config.PaymentConfig, logger *logrus.Logger) *MoMoService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	s := &MoMoService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	s.breaker = gobreaker.NewCircuitBreaker[*MoMoCreateResponse](gobreaker.Settings{
		Name:        "momo-create",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return s
}

func (s *MoMoService) Name() string {
	return "momo"
}

// IsConfigured returns true if merchant credentials are present
func (s *MoMoService) IsConfigured() bool {
	return s.config.PartnerCode != "" && s.config.AccessKey != "" && s.config.SecretKey != ""
}

// Sign returns the lowercase hex HMAC-SHA256 of payload with the secret key
func (s *MoMoService) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.config.SecretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateSignaturePayload builds the fixed-order raw string MoMo signs for create
func (s *MoMoService) CreateSignaturePayload(req *MoMoCreateRequest) string {
	return "accessKey=" + s.config.AccessKey +
		"&amount=" + strconv.FormatInt(req.Amount, 10) +
		"&extraData=" + req.ExtraData +
		"&ipnUrl=" + req.IPNURL +
		"&orderId=" + req.OrderID +
		"&orderInfo=" + req.OrderInfo +
		"&partnerCode=" + req.PartnerCode +
		"&redirectUrl=" + req.RedirectURL +
		"&requestId=" + req.RequestID +
		"&requestType=" + req.RequestType
}

// IPNSignaturePayload builds the fixed-order raw string MoMo signs for an IPN
func (s *MoMoService) IPNSignaturePayload(p *MoMoIPNPayload) string {
	return "accessKey=" + s.config.AccessKey +
		"&amount=" + strconv.FormatInt(p.Amount, 10) +
		"&extraData=" + p.ExtraData +
		"&message=" + p.Message +
		"&orderId=" + p.OrderID +
		"&orderInfo=" + p.OrderInfo +
		"&orderType=" + p.OrderType +
		"&partnerCode=" + p.PartnerCode +
		"&payType=" + p.PayType +
		"&requestId=" + p.RequestID +
		"&responseTime=" + strconv.FormatInt(p.ResponseTime, 10) +
		"&resultCode=" + strconv.Itoa(p.ResultCode) +
		"&transId=" + strconv.FormatInt(p.TransID, 10)
}

// CreatePayment requests a payment page for the session
func (s *MoMoService) CreatePayment(ctx context.Context, session *models.PaymentSession) (*PaymentPage, error) {
	if !s.IsConfigured() {
		if s.config.Environment == "production" {
			return nil, fmt.Errorf("payment gateway not configured: missing merchant credentials")
		}
		// local development: send the user straight to the return page
		placeholder := fmt.Sprintf("%s?orderId=%s&resultCode=0&placeholder=1",
			s.config.RedirectURL, url.QueryEscape(session.OrderID))
		s.logger.WithField("order_id", session.OrderID).Warn("MoMo not configured, issuing placeholder redirect")
		return &PaymentPage{RedirectURL: placeholder}, nil
	}

	req := &MoMoCreateRequest{
		PartnerCode: s.config.PartnerCode,
		AccessKey:   s.config.AccessKey,
		RequestID:   session.RequestID,
		Amount:      session.TotalAmount,
		OrderID:     session.OrderID,
		OrderInfo:   session.Items.OrderInfo(),
		RedirectURL: s.config.RedirectURL,
		IPNURL:      s.config.IPNURL,
		RequestType: s.config.RequestType,
		Lang:        "vi",
	}
	req.Signature = s.Sign(s.CreateSignaturePayload(req))

	s.logger.WithFields(logrus.Fields{
		"order_id": req.OrderID,
		"amount":   req.Amount,
		"endpoint": s.config.Endpoint,
	}).Info("Initiating MoMo payment")

	resp, err := s.breaker.Execute(func() (*MoMoCreateResponse, error) {
		return s.postCreate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
		}
		return nil, err
	}

	if resp.ResultCode != 0 {
		return nil, fmt.Errorf("payment initiation failed: resultCode=%d message=%s", resp.ResultCode, resp.Message)
	}
	if resp.PayURL == "" {
		return nil, fmt.Errorf("payment initiation failed: no payUrl returned")
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": resp.OrderID,
		"pay_url":  resp.PayURL,
	}).Info("MoMo payment initiated successfully")

	return &PaymentPage{RedirectURL: resp.PayURL, Deeplink: resp.Deeplink}, nil
}

func (s *MoMoService) postCreate(ctx context.Context, req *MoMoCreateRequest) (*MoMoCreateResponse, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(s.config.Endpoint, "/") + momoCreatePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"order_id":    req.OrderID,
	}).Debug("MoMo response received")

	var createResp MoMoCreateResponse
	if err := json.Unmarshal(body, &createResp); err != nil {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, createResp.Message)
	}
	return &createResp, nil
}

// VerifyCallback checks the IPN signature before any field is trusted
func (s *MoMoService) VerifyCallback(body []byte) (*CallbackResult, error) {
	var payload MoMoIPNPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", models.ErrInvalidSignature, err)
	}
	if payload.OrderID == "" || payload.Signature == "" {
		return nil, fmt.Errorf("%w: missing orderId or signature", models.ErrInvalidSignature)
	}
	if s.config.SecretKey == "" {
		return nil, fmt.Errorf("%w: no secret key configured", models.ErrInvalidSignature)
	}
	if s.config.PartnerCode != "" && payload.PartnerCode != s.config.PartnerCode {
		return nil, fmt.Errorf("%w: partner code mismatch", models.ErrInvalidSignature)
	}

	expected := s.Sign(s.IPNSignaturePayload(&payload))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(payload.Signature))) {
		return nil, models.ErrInvalidSignature
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", models.ErrInvalidSignature, err)
	}

	transID := ""
	if payload.TransID != 0 {
		transID = strconv.FormatInt(payload.TransID, 10)
	}

	return &CallbackResult{
		OrderID:    payload.OrderID,
		RequestID:  payload.RequestID,
		ResultCode: payload.ResultCode,
		TransID:    transID,
		Amount:     payload.Amount,
		Message:    payload.Message,
		Raw:        raw,
	}, nil
}

// SignIPN fills in the signature of an IPN payload (dev tooling and tests)
func (s *MoMoService) SignIPN(p *MoMoIPNPayload) {
	p.Signature = s.Sign(s.IPNSignaturePayload(p))
}
