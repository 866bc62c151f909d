package cache

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// CartStore is the persistent cart store being cached
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	AddItemIfAbsent(ctx context.Context, userID string, item models.CartItem) (bool, error)
	RemoveItems(ctx context.Context, userID string, items []models.SessionItem) error
}

// CachedCartStore reads through the cache and invalidates it on every write.
// Cache failures are logged and never fail the call.
type CachedCartStore struct {
	store  CartStore
	cache  *CartCache
	logger *logrus.Logger
}

// NewCachedCartStore wraps store with cache
func NewCachedCartStore(store CartStore, cache *CartCache, logger *logrus.Logger) *CachedCartStore {
	return &CachedCartStore{store: store, cache: cache, logger: logger}
}

func (s *CachedCartStore) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Cart cache read failed")
	}

	cart, err = s.store.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Cart cache write failed")
	}
	return cart, nil
}

func (s *CachedCartStore) AddItemIfAbsent(ctx context.Context, userID string, item models.CartItem) (bool, error) {
	added, err := s.store.AddItemIfAbsent(ctx, userID, item)
	if err != nil {
		return false, err
	}
	if added {
		s.invalidate(ctx, userID)
	}
	return added, nil
}

func (s *CachedCartStore) RemoveItems(ctx context.Context, userID string, items []models.SessionItem) error {
	if err := s.store.RemoveItems(ctx, userID, items); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CachedCartStore) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Cart cache invalidation failed")
	}
}
