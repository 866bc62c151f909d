package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/models"
)

// SweepResult summarizes one reconciliation pass
type SweepResult struct {
	Expired  int `json:"expired"`
	Repaired int `json:"repaired"`
	Errors   int `json:"errors"`
}

// ExpiryScheduler bounds how long a session can stay pending. Each held
// session gets a single-shot timer at its deadline; Sweep covers whatever
// the timers missed (restarts, crashes between transition and release).
type ExpiryScheduler struct {
	resolver  *SessionResolver
	sessions  SessionStore
	batchSize int
	logger    *logrus.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	now     func() time.Time
}

// NewExpiryScheduler creates a new expiry scheduler
func NewExpiryScheduler(resolver *SessionResolver, sessions SessionStore, batchSize int, logger *logrus.Logger) *ExpiryScheduler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpiryScheduler{
		resolver:  resolver,
		sessions:  sessions,
		batchSize: batchSize,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		now:       time.Now,
	}
}

// Schedule arms the expiry timer for a session, replacing any existing one
func (s *ExpiryScheduler) Schedule(orderID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[orderID]; ok {
		t.Stop()
	}

	delay := expiresAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[orderID] = time.AfterFunc(delay, func() { s.fire(orderID) })
}

// Cancel drops the timer of a session resolved by another path. Firing a
// timer for a resolved session is harmless; this only saves the work.
func (s *ExpiryScheduler) Cancel(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[orderID]; ok {
		t.Stop()
		delete(s.timers, orderID)
	}
}

// Pending returns the number of armed timers
func (s *ExpiryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer. Sessions left pending are picked up by the
// startup sweep of the next process.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *ExpiryScheduler) fire(orderID string) {
	s.mu.Lock()
	delete(s.timers, orderID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	won, err := s.resolver.Expire(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Expiry timer failed, sweep will retry")
		return
	}
	if won {
		s.logger.WithField("order_id", orderID).Info("Session expired by timer")
	}
}

// Sweep expires overdue pending sessions and repairs terminal sessions
// whose seats were never returned or whose booking was never written
func (s *ExpiryScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	overdue, err := s.sessions.ListOverdue(ctx, s.now(), s.batchSize)
	if err != nil {
		return result, err
	}
	for _, session := range overdue {
		won, err := s.resolver.Resolve(ctx, session, models.Transition{
			To:      models.SessionStatusExpired,
			Outcome: models.OutcomeTimeout,
			Reason:  models.FailReasonTimeout,
		})
		if err != nil {
			result.Errors++
			s.logger.WithError(err).WithField("order_id", session.OrderID).Error("Sweep failed to expire session")
			continue
		}
		if won {
			result.Expired++
		}
		s.Cancel(session.OrderID)
	}

	unreleased, err := s.sessions.ListUnreleased(ctx, s.batchSize)
	if err != nil {
		return result, err
	}
	unbooked, err := s.sessions.ListUnbooked(ctx, s.batchSize)
	if err != nil {
		return result, err
	}

	seen := make(map[string]bool, len(unreleased)+len(unbooked))
	for _, session := range append(unreleased, unbooked...) {
		if seen[session.OrderID] {
			continue
		}
		seen[session.OrderID] = true
		if err := s.resolver.Repair(ctx, session); err != nil {
			result.Errors++
			s.logger.WithError(err).WithField("order_id", session.OrderID).Error("Sweep failed to repair session")
			continue
		}
		result.Repaired++
	}

	if result.Expired > 0 || result.Repaired > 0 || result.Errors > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  result.Expired,
			"repaired": result.Repaired,
			"errors":   result.Errors,
		}).Info("Reservation sweep finished")
	}
	return result, nil
}

// Rearm restores timers for pending sessions after a restart
func (s *ExpiryScheduler) Rearm(ctx context.Context) (int, error) {
	pending, err := s.sessions.ListPending(ctx, s.batchSize*10)
	if err != nil {
		return 0, err
	}
	now := s.now()
	armed := 0
	for _, session := range pending {
		if !session.ExpiresAt.After(now) {
			continue
		}
		s.Schedule(session.OrderID, session.ExpiresAt)
		armed++
	}
	s.logger.WithField("armed", armed).Info("Expiry timers re-armed")
	return armed, nil
}
