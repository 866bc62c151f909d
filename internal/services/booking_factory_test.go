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

func TestBookingFactory_ConcurrentCreateYieldsOneBooking(t *testing.T) {
	env := newTestEnv(t)
	tourID, date := env.seedDeparture(10, 10)
	session := env.newSession(t, uuid.New(), time.Now().Add(time.Minute), item(tourID, date, 2, 0))

	const workers = 16
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, workers)
	created := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, c, err := env.bookings.Create(context.Background(), session, models.OutcomePaid, "")
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = b.ID
			created[i] = c
		}(i)
	}
	wg.Wait()

	require.Len(t, env.store.Bookings(session.OrderID), 1)
	winners := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i], "every caller sees the same booking")
		if created[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestBookingFactory_OutcomeMapping(t *testing.T) {
	env := newTestEnv(t)
	tourID, date := env.seedDeparture(10, 10)

	tests := []struct {
		name       string
		outcome    models.Outcome
		reason     string
		wantStatus models.BookingStatus
		wantReason string
	}{
		{"paid", models.OutcomePaid, "", models.BookingStatusPaid, ""},
		{"timeout", models.OutcomeTimeout, "", models.BookingStatusCancelled, models.FailReasonTimeout},
		{"declined", models.OutcomeFailed, models.DeclineReason(1006), models.BookingStatusCancelled, "provider_declined:1006"},
		{"cancelled", models.OutcomeFailed, models.FailReasonUserCancelled, models.BookingStatusCancelled, models.FailReasonUserCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := env.newSession(t, uuid.New(), time.Now().Add(time.Minute), item(tourID, date, 1, 1))
			b, created, err := env.bookings.Create(context.Background(), session, tt.outcome, tt.reason)
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, tt.wantStatus, b.Status)
			assert.Equal(t, session.TotalAmount, b.TotalAmount)
			assert.Equal(t, session.Items, b.Items)
			if tt.wantReason == "" {
				assert.Nil(t, b.FailReason)
			} else {
				require.NotNil(t, b.FailReason)
				assert.Equal(t, tt.wantReason, *b.FailReason)
			}

			again, created, err := env.bookings.Create(context.Background(), session, models.OutcomePaid, "")
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, b.ID, again.ID)
			assert.Equal(t, tt.wantStatus, again.Status)
		})
	}
}
