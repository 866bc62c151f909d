package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/travyy/tour-booking-backend/internal/config"
	"github.com/travyy/tour-booking-backend/internal/memstore"
	"github.com/travyy/tour-booking-backend/internal/models"
)

const testSecret = "test-secret-key"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type recordingNotifier struct {
	mu      sync.Mutex
	expired []string
}

func (n *recordingNotifier) NotifySessionExpired(_ context.Context, s *models.PaymentSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, s.OrderID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.expired)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) forOrder(orderID string) []*SessionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*SessionEvent
	for _, e := range p.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// flakyBookingStore fails the next n inserts before delegating
type flakyBookingStore struct {
	BookingStore
	mu       sync.Mutex
	failures int
}

func (f *flakyBookingStore) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *flakyBookingStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.BookingStore.InsertBooking(ctx, b)
}

// stubProvider signs like MoMo but lets tests force create failures
type stubProvider struct {
	*MoMoService
	createErr error
}

func (p *stubProvider) CreatePayment(ctx context.Context, s *models.PaymentSession) (*PaymentPage, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.MoMoService.CreatePayment(ctx, s)
}

type testEnv struct {
	store     *memstore.MemoryStore
	bookingDB *flakyBookingStore
	hold      *HoldManager
	bookings  *BookingFactory
	carts     *CartSynchronizer
	resolver  *SessionResolver
	scheduler *ExpiryScheduler
	provider  *stubProvider
	service   *PaymentSessionService
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := quietLogger()
	store := memstore.NewMemoryStore()

	env := &testEnv{
		store:     store,
		bookingDB: &flakyBookingStore{BookingStore: store},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	env.hold = NewHoldManager(store, store, store, logger)
	env.bookings = NewBookingFactory(env.bookingDB, store, logger)
	env.carts = NewCartSynchronizer(store, store, logger)
	env.resolver = NewSessionResolver(store, env.hold, env.bookings, env.carts, env.notifier, env.publisher, store, logger)
	env.scheduler = NewExpiryScheduler(env.resolver, store, 50, logger)
	t.Cleanup(env.scheduler.Stop)

	env.provider = &stubProvider{MoMoService: NewMoMoService(&config.PaymentConfig{
		Environment: "sandbox",
		SecretKey:   testSecret,
		AccessKey:   "access",
		RedirectURL: "http://localhost:3000/payment/result",
	}, logger)}

	env.service = NewPaymentSessionService(store, store, env.hold, env.carts, env.resolver, env.scheduler,
		env.provider, &config.ReservationConfig{SessionTTL: 15 * time.Minute, Currency: "VND"}, store, logger)
	return env
}

func (e *testEnv) seedDeparture(seatsTotal, seatsLeft int) (uuid.UUID, string) {
	tourID := uuid.New()
	date := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
	e.store.AddDeparture(models.Departure{
		TourID:     tourID,
		TourName:   "Sa Pa Trekking",
		TourImage:  "https://cdn.travyy.vn/sapa.jpg",
		Date:       date,
		PriceAdult: 2000000,
		PriceChild: 1200000,
		SeatsTotal: seatsTotal,
		SeatsLeft:  seatsLeft,
	})
	return tourID, date.Format(models.DateLayout)
}

// newSession stores a pending session without holding seats
func (e *testEnv) newSession(t *testing.T, userID uuid.UUID, expiresAt time.Time, items ...models.SessionItem) *models.PaymentSession {
	t.Helper()
	session := &models.PaymentSession{
		ID:          uuid.New(),
		OrderID:     newOrderID(time.Now()),
		RequestID:   uuid.NewString(),
		Provider:    "momo",
		UserID:      userID,
		Items:       items,
		TotalAmount: models.SessionItems(items).Total(),
		Currency:    "VND",
		Status:      models.SessionStatusPending,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	require.NoError(t, e.store.CreateSession(context.Background(), session))
	return session
}

// heldSession stores a pending session and holds its seats
func (e *testEnv) heldSession(t *testing.T, userID uuid.UUID, expiresAt time.Time, items ...models.SessionItem) *models.PaymentSession {
	t.Helper()
	session := e.newSession(t, userID, expiresAt, items...)
	require.NoError(t, e.hold.Hold(context.Background(), session))
	return session
}

func (e *testEnv) ipn(t *testing.T, orderID string, amount int64, resultCode int, transID int64) []byte {
	t.Helper()
	payload := &MoMoIPNPayload{
		OrderID:      orderID,
		RequestID:    uuid.NewString(),
		Amount:       amount,
		OrderInfo:    "Travyy",
		OrderType:    "momo_wallet",
		TransID:      transID,
		ResultCode:   resultCode,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: time.Now().UnixMilli(),
	}
	e.provider.SignIPN(payload)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func item(tourID uuid.UUID, date string, adults, children int) models.SessionItem {
	return models.SessionItem{
		TourID:     tourID,
		Date:       date,
		Adults:     adults,
		Children:   children,
		TourName:   "Sa Pa Trekking",
		PriceAdult: 2000000,
		PriceChild: 1200000,
		Subtotal:   int64(adults)*2000000 + int64(children)*1200000,
	}
}
