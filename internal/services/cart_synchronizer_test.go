package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travyy/tour-booking-backend/internal/models"
)

func TestCartSynchronizer_RestoreIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)
	userID := uuid.New()

	session := env.newSession(t, userID, time.Now().Add(time.Minute),
		item(tourID, date, 2, 0),
		item(tourID, date, 1, 1),
	)

	// one of the two lines is already back in the cart
	_, err := env.store.AddItemIfAbsent(ctx, userID.String(), models.CartItem{TourID: tourID, Date: date, Adults: 2, Selected: true})
	require.NoError(t, err)

	restored, err := env.carts.Restore(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	restored, err = env.carts.Restore(ctx, session)
	require.NoError(t, err)
	assert.Zero(t, restored)

	cart, err := env.store.GetCart(ctx, userID.String())
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	for _, ci := range cart.Items {
		assert.True(t, ci.Selected)
	}
}

func TestCartSynchronizer_ConsumeAndSelectedItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tourID, date := env.seedDeparture(10, 10)
	userID := uuid.New()

	items, err := env.carts.SelectedItems(ctx, userID.String())
	require.NoError(t, err)
	assert.Empty(t, items, "missing cart reads as empty")

	_, err = env.store.AddItemIfAbsent(ctx, userID.String(), models.CartItem{TourID: tourID, Date: date, Adults: 2, Selected: true})
	require.NoError(t, err)
	_, err = env.store.AddItemIfAbsent(ctx, userID.String(), models.CartItem{TourID: tourID, Date: date, Adults: 4, Selected: false})
	require.NoError(t, err)

	items, err = env.carts.SelectedItems(ctx, userID.String())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Adults)

	session := env.newSession(t, userID, time.Now().Add(time.Minute), item(tourID, date, 2, 0))
	require.NoError(t, env.carts.Consume(ctx, session))

	cart, err := env.store.GetCart(ctx, userID.String())
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.Items[0].Adults)
}
