package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travyy/tour-booking-backend/internal/models"
)

func TestExpire_ReleasesRestoresAndBooksCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(5, 5)
	userID := uuid.New()

	session := env.heldSession(t, userID, time.Now().Add(time.Minute), item(tourID, date, 3, 0))
	assert.Equal(t, 2, env.store.SeatsLeft(tourID, date))

	won, err := env.resolver.Expire(ctx, session.OrderID)
	require.NoError(t, err)
	assert.True(t, won)

	assert.Equal(t, 5, env.store.SeatsLeft(tourID, date))

	cart, err := env.store.GetCart(ctx, userID.String())
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].Selected)
	assert.Equal(t, 3, cart.Items[0].Adults)

	bookings := env.store.Bookings(session.OrderID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingStatusCancelled, bookings[0].Status)
	require.NotNil(t, bookings[0].FailReason)
	assert.Equal(t, models.FailReasonTimeout, *bookings[0].FailReason)

	assert.Equal(t, 1, env.notifier.count())
	events := env.publisher.forOrder(session.OrderID)
	require.Len(t, events, 1)
	assert.Equal(t, models.OutcomeTimeout, events[0].Outcome)
	assert.Contains(t, env.store.AuditEvents(session.OrderID), models.PaymentEventSessionExpired)
}

func TestResolve_PaidIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)

	session := env.heldSession(t, uuid.New(), time.Now().Add(time.Minute), item(tourID, date, 2, 0))

	won, err := env.resolver.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusPaid,
		Outcome: models.OutcomePaid,
		TransID: "4088878653",
	})
	require.NoError(t, err)
	require.True(t, won)
	assert.Equal(t, 8, env.store.SeatsLeft(tourID, date))

	// the timer fires strictly after the paid transition
	won, err = env.resolver.Expire(ctx, session.OrderID)
	require.NoError(t, err)
	assert.False(t, won)

	won, err = env.resolver.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusFailed,
		Outcome: models.OutcomeFailed,
		Reason:  models.FailReasonUserCancelled,
	})
	require.NoError(t, err)
	assert.False(t, won)

	assert.Equal(t, 8, env.store.SeatsLeft(tourID, date))
	stored, err := env.store.GetSessionByOrderID(ctx, session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaid, stored.Status)
	assert.Nil(t, stored.ReleasedAt)

	bookings := env.store.Bookings(session.OrderID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingStatusPaid, bookings[0].Status)
	require.NotNil(t, bookings[0].TransID)
	assert.Equal(t, "4088878653", *bookings[0].TransID)
	assert.Zero(t, env.notifier.count())
}

func TestResolve_RejectsNonTerminalTarget(t *testing.T) {
	env := newTestEnv(t)
	session := env.newSession(t, uuid.New(), time.Now().Add(time.Minute))

	_, err := env.resolver.Resolve(context.Background(), session, models.Transition{To: models.SessionStatusPending})
	assert.Error(t, err)
}

func TestResolve_ConcurrentActorsYieldOneOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(20, 20)

	for round := 0; round < 10; round++ {
		session := env.heldSession(t, uuid.New(), time.Now().Add(time.Minute), item(tourID, date, 2, 0))

		transitions := []models.Transition{
			{To: models.SessionStatusPaid, Outcome: models.OutcomePaid, TransID: "1"},
			{To: models.SessionStatusPaid, Outcome: models.OutcomePaid, TransID: "1"},
			{To: models.SessionStatusExpired, Outcome: models.OutcomeTimeout, Reason: models.FailReasonTimeout},
			{To: models.SessionStatusFailed, Outcome: models.OutcomeFailed, Reason: models.FailReasonUserCancelled},
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 5; i++ {
			for _, tr := range transitions {
				wg.Add(1)
				go func(tr models.Transition) {
					defer wg.Done()
					snapshot, err := env.store.GetSessionByOrderID(ctx, session.OrderID)
					if !assert.NoError(t, err) {
						return
					}
					won, err := env.resolver.Resolve(ctx, snapshot, tr)
					assert.NoError(t, err)
					if won {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(tr)
			}
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		require.Len(t, env.store.Bookings(session.OrderID), 1)

		stored, err := env.store.GetSessionByOrderID(ctx, session.OrderID)
		require.NoError(t, err)
		if stored.Status == models.SessionStatusPaid {
			assert.Nil(t, stored.ReleasedAt)
		} else {
			assert.NotNil(t, stored.ReleasedAt)
		}
	}

	// every round either kept its 2 seats (paid) or returned them
	left := env.store.SeatsLeft(tourID, date)
	assert.GreaterOrEqual(t, left, 0)
	assert.LessOrEqual(t, left, 20)
	assert.Equal(t, 0, left%2)
}

func TestRepair_FinishesUnreleasedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)
	userID := uuid.New()

	session := env.heldSession(t, userID, time.Now().Add(time.Minute), item(tourID, date, 4, 0))

	// crash after the transition, before any side effect
	_, err := env.store.TransitionStatus(ctx, session.OrderID, models.Transition{
		To:     models.SessionStatusExpired,
		Reason: models.FailReasonTimeout,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, env.store.SeatsLeft(tourID, date))

	stored, err := env.store.GetSessionByOrderID(ctx, session.OrderID)
	require.NoError(t, err)
	require.True(t, stored.NeedsRelease())

	require.NoError(t, env.resolver.Repair(ctx, stored))
	assert.Equal(t, 10, env.store.SeatsLeft(tourID, date))

	bookings := env.store.Bookings(session.OrderID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingStatusCancelled, bookings[0].Status)
	assert.Contains(t, env.store.AuditEvents(session.OrderID), models.PaymentEventRepairedRelease)

	// second repair is a no-op
	require.NoError(t, env.resolver.Repair(ctx, stored))
	assert.Equal(t, 10, env.store.SeatsLeft(tourID, date))
	assert.Len(t, env.store.Bookings(session.OrderID), 1)
}

func TestRepair_WritesBookingAfterReleaseAlreadyDone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)

	session := env.heldSession(t, uuid.New(), time.Now().Add(time.Minute), item(tourID, date, 3, 0))

	// crash after the release marker, before the booking insert
	_, err := env.store.TransitionStatus(ctx, session.OrderID, models.Transition{
		To:     models.SessionStatusFailed,
		Reason: models.FailReasonUserCancelled,
	})
	require.NoError(t, err)
	released, err := env.store.MarkReleased(ctx, session.OrderID)
	require.NoError(t, err)
	require.True(t, released)

	stored, err := env.store.GetSessionByOrderID(ctx, session.OrderID)
	require.NoError(t, err)
	require.False(t, stored.NeedsRelease())
	require.True(t, stored.NeedsBooking())

	require.NoError(t, env.resolver.Repair(ctx, stored))
	assert.Equal(t, 7, env.store.SeatsLeft(tourID, date), "seats must not be returned twice")

	bookings := env.store.Bookings(session.OrderID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingStatusCancelled, bookings[0].Status)
	assert.Contains(t, env.store.AuditEvents(session.OrderID), models.PaymentEventRepairedBooking)
}

func TestResolve_PaidBookingFailureRecoveredBySweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)

	session := env.heldSession(t, uuid.New(), time.Now().Add(time.Hour), item(tourID, date, 2, 1))

	env.bookingDB.failNext(1)
	won, err := env.resolver.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusPaid,
		Outcome: models.OutcomePaid,
		TransID: "4088878653",
	})
	assert.True(t, won)
	require.Error(t, err)
	assert.Empty(t, env.store.Bookings(session.OrderID))

	result, err := env.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Repaired)
	assert.Zero(t, result.Errors)

	bookings := env.store.Bookings(session.OrderID)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.BookingStatusPaid, bookings[0].Status)
	assert.Equal(t, 7, env.store.SeatsLeft(tourID, date))

	again, err := env.scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, again)
}

// stalledPublisher blocks like an unreachable broker
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ *SessionEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestResolve_StalledBrokerDoesNotBlockResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)

	resolver := NewSessionResolver(env.store, env.hold, env.bookings, env.carts, nil, stalledPublisher{}, env.store, quietLogger())
	resolver.publishTimeout = 50 * time.Millisecond

	session := env.heldSession(t, uuid.New(), time.Now().Add(time.Minute), item(tourID, date, 2, 0))

	start := time.Now()
	won, err := resolver.Resolve(ctx, session, models.Transition{
		To:      models.SessionStatusPaid,
		Outcome: models.OutcomePaid,
	})
	require.NoError(t, err)
	assert.True(t, won)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, env.store.Bookings(session.OrderID), 1)
}
