// Package memstore keeps every storage port in process memory. Each method
// runs under one mutex, which gives it the same single-statement atomicity the
// Postgres guards provide. Values are copied in and out.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/travyy/tour-booking-backend/internal/models"
)

type departureKey struct {
	tourID uuid.UUID
	date   string
}

type bookingKey struct {
	provider string
	orderID  string
}

// MemoryStore implements SeatLedger, SessionStore, BookingStore, CartStore and AuditLogger
type MemoryStore struct {
	mu         sync.Mutex
	departures map[departureKey]*models.Departure
	sessions   map[string]*models.PaymentSession
	bookings   map[bookingKey]*models.Booking
	carts      map[string]*models.Cart
	audits     []*models.PaymentAudit
	now        func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		departures: make(map[departureKey]*models.Departure),
		sessions:   make(map[string]*models.PaymentSession),
		bookings:   make(map[bookingKey]*models.Booking),
		carts:      make(map[string]*models.Cart),
		now:        time.Now,
	}
}

// ============================================================================
// SEAT LEDGER
// ============================================================================

// AddDeparture seeds a departure
func (s *MemoryStore) AddDeparture(d models.Departure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = models.DepartureStatusOpen
	}
	s.departures[departureKey{d.TourID, d.DateKey()}] = &d
}

func (s *MemoryStore) GetDeparture(_ context.Context, tourID uuid.UUID, date string) (*models.Departure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departures[departureKey{tourID, date}]
	if !ok {
		return nil, models.ErrDepartureNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) AdjustSeats(_ context.Context, tourID uuid.UUID, date string, delta int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departures[departureKey{tourID, date}]
	if !ok {
		return 0, false, models.ErrDepartureNotFound
	}
	next := d.SeatsLeft + delta
	if next < 0 || next > d.SeatsTotal {
		return d.SeatsLeft, false, nil
	}
	d.SeatsLeft = next
	d.UpdatedAt = s.now()
	return next, true, nil
}

// SeatsLeft is a test helper returning the current counter
func (s *MemoryStore) SeatsLeft(tourID uuid.UUID, date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.departures[departureKey{tourID, date}]; ok {
		return d.SeatsLeft
	}
	return -1
}

// ============================================================================
// SESSIONS
// ============================================================================

func cloneSession(in *models.PaymentSession) *models.PaymentSession {
	cp := *in
	cp.Items = make(models.SessionItems, len(in.Items))
	copy(cp.Items, in.Items)
	return &cp
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.OrderID]; exists {
		return models.ErrDuplicateSession
	}
	s.sessions[session.OrderID] = cloneSession(session)
	return nil
}

func (s *MemoryStore) GetSessionByOrderID(_ context.Context, orderID string) (*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) MarkHeld(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return false, models.ErrSessionNotFound
	}
	if session.Status != models.SessionStatusPending || session.HeldAt != nil {
		return false, nil
	}
	now := s.now()
	session.HeldAt = &now
	return true, nil
}

func (s *MemoryStore) SetRedirectURL(_ context.Context, orderID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if session.Status == models.SessionStatusPending {
		session.RedirectURL = &url
	}
	return nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, orderID string, tr models.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return false, models.ErrSessionNotFound
	}
	if !session.Status.CanTransitionTo(tr.To) {
		return false, nil
	}
	now := s.now()
	session.Status = tr.To
	session.ResolvedAt = &now
	if tr.Reason != "" {
		reason := tr.Reason
		session.FailReason = &reason
	}
	if tr.TransID != "" {
		transID := tr.TransID
		session.TransID = &transID
	}
	return true, nil
}

func (s *MemoryStore) MarkReleased(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return false, models.ErrSessionNotFound
	}
	if session.ReleasedAt != nil || session.HeldAt == nil || session.Status == models.SessionStatusPaid {
		return false, nil
	}
	now := s.now()
	session.ReleasedAt = &now
	return true, nil
}

func (s *MemoryStore) listWhere(limit int, match func(*models.PaymentSession) bool) []*models.PaymentSession {
	var out []*models.PaymentSession
	for _, session := range s.sessions {
		if match(session) {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(limit, func(p *models.PaymentSession) bool {
		return p.Status == models.SessionStatusPending && p.ExpiresAt.Before(now)
	}), nil
}

func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(limit, func(p *models.PaymentSession) bool {
		return p.Status == models.SessionStatusPending
	}), nil
}

func (s *MemoryStore) ListUnreleased(_ context.Context, limit int) ([]*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(limit, func(p *models.PaymentSession) bool {
		return p.NeedsRelease()
	}), nil
}

func (s *MemoryStore) ListUnbooked(_ context.Context, limit int) ([]*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(limit, func(p *models.PaymentSession) bool {
		_, booked := s.bookings[bookingKey{p.Provider, p.OrderID}]
		return p.NeedsBooking() && !booked
	}), nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

func (s *MemoryStore) GetBookingByPayment(_ context.Context, provider, orderID string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingKey{provider, orderID}]
	if !ok {
		return nil, models.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) InsertBooking(_ context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bookingKey{booking.Provider, booking.OrderID}
	if _, exists := s.bookings[key]; exists {
		return models.ErrDuplicateBooking
	}
	cp := *booking
	s.bookings[key] = &cp
	return nil
}

// Bookings returns every booking for an order, across providers
func (s *MemoryStore) Bookings(orderID string) []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for key, b := range s.bookings {
		if key.orderID == orderID {
			out = append(out, *b)
		}
	}
	return out
}

// ============================================================================
// CARTS
// ============================================================================

func (s *MemoryStore) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil, models.ErrCartNotFound
	}
	cp := *cart
	cp.Items = append([]models.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (s *MemoryStore) AddItemIfAbsent(_ context.Context, userID string, item models.CartItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cart, ok := s.carts[userID]
	if !ok {
		cart = &models.Cart{UserID: userID, CreatedAt: now}
		s.carts[userID] = cart
	}
	for _, existing := range cart.Items {
		if existing.TourID == item.TourID && existing.Date == item.Date &&
			existing.Adults == item.Adults && existing.Children == item.Children {
			return false, nil
		}
	}
	cart.Items = append(cart.Items, item)
	cart.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) RemoveItems(_ context.Context, userID string, items []models.SessionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil
	}
	kept := cart.Items[:0]
	for _, ci := range cart.Items {
		folded := false
		for _, item := range items {
			if ci.Matches(item) {
				folded = true
				break
			}
		}
		if !folded {
			kept = append(kept, ci)
		}
	}
	cart.Items = kept
	cart.UpdatedAt = s.now()
	return nil
}

// ============================================================================
// AUDIT
// ============================================================================

func (s *MemoryStore) Log(_ context.Context, audit *models.PaymentAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *audit
	s.audits = append(s.audits, &cp)
	return nil
}

// AuditEvents returns the audit event types recorded for an order, in order
func (s *MemoryStore) AuditEvents(orderID string) []models.PaymentEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentEventType
	for _, a := range s.audits {
		if a.OrderID != nil && *a.OrderID == orderID {
			out = append(out, a.EventType)
		}
	}
	return out
}

// Audits returns copies of the audit entries recorded for an order
func (s *MemoryStore) Audits(orderID string) []models.PaymentAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentAudit
	for _, a := range s.audits {
		if a.OrderID != nil && *a.OrderID == orderID {
			out = append(out, *a)
		}
	}
	return out
}

// Ping satisfies the health check
func (s *MemoryStore) Ping() error {
	return nil
}
