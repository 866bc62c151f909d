package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travyy/tour-booking-backend/internal/models"
)

func seedDeparture(s *MemoryStore, seatsTotal, seatsLeft int) (uuid.UUID, string) {
	tourID := uuid.New()
	date := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
	s.AddDeparture(models.Departure{
		TourID:     tourID,
		TourName:   "Ha Long Bay Cruise",
		Date:       date,
		PriceAdult: 1500000,
		PriceChild: 900000,
		SeatsTotal: seatsTotal,
		SeatsLeft:  seatsLeft,
	})
	return tourID, date.Format(models.DateLayout)
}

func TestAdjustSeats_Guards(t *testing.T) {
	s := NewMemoryStore()
	tourID, date := seedDeparture(s, 5, 5)
	ctx := context.Background()

	left, applied, err := s.AdjustSeats(ctx, tourID, date, -3)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, left)

	left, applied, err = s.AdjustSeats(ctx, tourID, date, -3)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, left)

	_, applied, err = s.AdjustSeats(ctx, tourID, date, 4)
	require.NoError(t, err)
	assert.False(t, applied, "must not exceed seats total")

	_, _, err = s.AdjustSeats(ctx, uuid.New(), date, -1)
	assert.ErrorIs(t, err, models.ErrDepartureNotFound)
}

func TestAdjustSeats_ConcurrentNeverNegative(t *testing.T) {
	s := NewMemoryStore()
	tourID, date := seedDeparture(s, 10, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied, err := s.AdjustSeats(ctx, tourID, date, -1)
			if err == nil && applied {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), wins)
	assert.Equal(t, 0, s.SeatsLeft(tourID, date))
}

func TestSessionTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := &models.PaymentSession{
		OrderID:   "TV-1",
		Status:    models.SessionStatusPending,
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, s.CreateSession(ctx, session))
	assert.ErrorIs(t, s.CreateSession(ctx, session), models.ErrDuplicateSession)

	released, err := s.MarkReleased(ctx, "TV-1")
	require.NoError(t, err)
	assert.False(t, released, "never held")

	held, err := s.MarkHeld(ctx, "TV-1")
	require.NoError(t, err)
	assert.True(t, held)

	won, err := s.TransitionStatus(ctx, "TV-1", models.Transition{To: models.SessionStatusExpired, Reason: models.FailReasonTimeout})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.TransitionStatus(ctx, "TV-1", models.Transition{To: models.SessionStatusPaid})
	require.NoError(t, err)
	assert.False(t, won, "terminal states are immutable")

	released, err = s.MarkReleased(ctx, "TV-1")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = s.MarkReleased(ctx, "TV-1")
	require.NoError(t, err)
	assert.False(t, released)

	got, err := s.GetSessionByOrderID(ctx, "TV-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Equal(t, models.FailReasonTimeout, *got.FailReason)
}

func TestListUnbooked(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"TV-held", "TV-unheld", "TV-pending"} {
		require.NoError(t, s.CreateSession(ctx, &models.PaymentSession{
			OrderID:   id,
			Provider:  "momo",
			Status:    models.SessionStatusPending,
			ExpiresAt: time.Now().Add(time.Minute),
		}))
	}
	for _, id := range []string{"TV-held", "TV-pending"} {
		_, err := s.MarkHeld(ctx, id)
		require.NoError(t, err)
	}
	for _, id := range []string{"TV-held", "TV-unheld"} {
		_, err := s.TransitionStatus(ctx, id, models.Transition{To: models.SessionStatusPaid})
		require.NoError(t, err)
	}

	unbooked, err := s.ListUnbooked(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unbooked, 1)
	assert.Equal(t, "TV-held", unbooked[0].OrderID)

	require.NoError(t, s.InsertBooking(ctx, &models.Booking{
		BookingPayment: models.BookingPayment{Provider: "momo", OrderID: "TV-held"},
	}))
	unbooked, err = s.ListUnbooked(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unbooked)
}

func TestCart_AddItemIfAbsentAndRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New().String()
	item := models.CartItem{TourID: uuid.New(), Date: "2026-12-20", Adults: 2, Selected: true}

	added, err := s.AddItemIfAbsent(ctx, userID, item)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddItemIfAbsent(ctx, userID, item)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, s.RemoveItems(ctx, userID, []models.SessionItem{{TourID: item.TourID, Date: item.Date, Adults: 2}}))
	cart, err := s.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
