package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travyy/tour-booking-backend/internal/config"
	"github.com/travyy/tour-booking-backend/internal/models"
)

func momoConfig(endpoint string) *config.PaymentConfig {
	return &config.PaymentConfig{
		Provider:    "momo",
		Environment: "sandbox",
		Endpoint:    endpoint,
		PartnerCode: "MOMOBKUN20180529",
		AccessKey:   "klm05TvNBzhg7h7j",
		SecretKey:   "at67qH6mk8w5Y1nAyMoYKMWACiEi2bsa",
		RedirectURL: "https://travyy.vn/payment/result",
		IPNURL:      "https://api.travyy.vn/api/v1/payments/momo/ipn",
		RequestType: "captureWallet",
		Timeout:     5 * time.Second,
	}
}

func momoSession() *models.PaymentSession {
	return &models.PaymentSession{
		OrderID:     "TRV1760700000000ABCD1234",
		RequestID:   "req-1",
		Provider:    "momo",
		UserID:      uuid.New(),
		Items:       models.SessionItems{{TourName: "Sa Pa Trekking", Adults: 1, Subtotal: 2000000}},
		TotalAmount: 2000000,
		Currency:    "VND",
	}
}

func TestMoMoService_CreateSignaturePayloadOrder(t *testing.T) {
	svc := NewMoMoService(momoConfig(""), quietLogger())
	req := &MoMoCreateRequest{
		PartnerCode: "P",
		RequestID:   "R",
		Amount:      1000,
		OrderID:     "O",
		OrderInfo:   "I",
		RedirectURL: "U",
		IPNURL:      "N",
		RequestType: "captureWallet",
	}
	assert.Equal(t,
		"accessKey=klm05TvNBzhg7h7j&amount=1000&extraData=&ipnUrl=N&orderId=O&orderInfo=I&partnerCode=P&redirectUrl=U&requestId=R&requestType=captureWallet",
		svc.CreateSignaturePayload(req))

	sig := svc.Sign("abc")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, svc.Sign("abc"))
	assert.NotEqual(t, sig, svc.Sign("abd"))
}

func TestMoMoService_CreatePayment(t *testing.T) {
	var received MoMoCreateRequest
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, momoCreatePath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(MoMoCreateResponse{
			OrderID:    received.OrderID,
			ResultCode: 0,
			Message:    "Successful.",
			PayURL:     "https://test-payment.momo.vn/pay/abc",
		})
	}))
	defer server.Close()

	svc := NewMoMoService(momoConfig(server.URL), quietLogger())
	page, err := svc.CreatePayment(context.Background(), momoSession())
	require.NoError(t, err)
	assert.Equal(t, "https://test-payment.momo.vn/pay/abc", page.RedirectURL)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	assert.Equal(t, int64(2000000), received.Amount)
	assert.Equal(t, "Travyy: Sa Pa Trekking", received.OrderInfo)
	assert.Equal(t, svc.Sign(svc.CreateSignaturePayload(&received)), received.Signature)
}

func TestMoMoService_CreatePaymentRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(MoMoCreateResponse{ResultCode: 22, Message: "Invalid amount"})
	}))
	defer server.Close()

	svc := NewMoMoService(momoConfig(server.URL), quietLogger())
	_, err := svc.CreatePayment(context.Background(), momoSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resultCode=22")
}

func TestMoMoService_BreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	svc := NewMoMoService(momoConfig(server.URL), quietLogger())
	for i := 0; i < 5; i++ {
		_, err := svc.CreatePayment(context.Background(), momoSession())
		require.Error(t, err)
	}

	_, err := svc.CreatePayment(context.Background(), momoSession())
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls), "open breaker must not reach the gateway")
}

func TestMoMoService_PlaceholderWhenUnconfigured(t *testing.T) {
	cfg := momoConfig("")
	cfg.PartnerCode = ""
	svc := NewMoMoService(cfg, quietLogger())

	page, err := svc.CreatePayment(context.Background(), momoSession())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page.RedirectURL, cfg.RedirectURL))
	assert.Contains(t, page.RedirectURL, "placeholder=1")

	cfg.Environment = "production"
	_, err = svc.CreatePayment(context.Background(), momoSession())
	assert.Error(t, err)
}

func TestMoMoService_VerifyCallback(t *testing.T) {
	svc := NewMoMoService(momoConfig(""), quietLogger())

	signed := func(mutate func(p *MoMoIPNPayload)) []byte {
		p := &MoMoIPNPayload{
			PartnerCode:  "MOMOBKUN20180529",
			OrderID:      "TRV1",
			RequestID:    "req-1",
			Amount:       2000000,
			OrderInfo:    "Travyy: Sa Pa Trekking",
			OrderType:    "momo_wallet",
			TransID:      4088878653,
			ResultCode:   0,
			Message:      "Successful.",
			PayType:      "qr",
			ResponseTime: 1760700000000,
		}
		svc.SignIPN(p)
		if mutate != nil {
			mutate(p)
		}
		body, _ := json.Marshal(p)
		return body
	}

	t.Run("valid", func(t *testing.T) {
		result, err := svc.VerifyCallback(signed(nil))
		require.NoError(t, err)
		assert.Equal(t, "TRV1", result.OrderID)
		assert.Equal(t, "4088878653", result.TransID)
		assert.Equal(t, int64(2000000), result.Amount)
		assert.True(t, result.Success())
	})

	t.Run("tampered result code", func(t *testing.T) {
		_, err := svc.VerifyCallback(signed(func(p *MoMoIPNPayload) { p.ResultCode = 1006 }))
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("tampered amount", func(t *testing.T) {
		_, err := svc.VerifyCallback(signed(func(p *MoMoIPNPayload) { p.Amount = 1 }))
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("foreign partner", func(t *testing.T) {
		_, err := svc.VerifyCallback(signed(func(p *MoMoIPNPayload) { p.PartnerCode = "OTHER" }))
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.VerifyCallback([]byte("{not json"))
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := svc.VerifyCallback(signed(func(p *MoMoIPNPayload) { p.Signature = "" }))
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})
}
