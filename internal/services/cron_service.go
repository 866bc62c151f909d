package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService runs the periodic reservation sweep
type CronService struct {
	cron      *cron.Cron
	scheduler *ExpiryScheduler
	schedule  string
	logger    *logrus.Logger
}

// NewCronService creates a new CronService. schedule accepts standard cron
// specs and descriptors such as "@every 1m".
func NewCronService(scheduler *ExpiryScheduler, schedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		scheduler: scheduler,
		schedule:  schedule,
		logger:    logger,
	}
}

// Start runs one sweep immediately, then schedules the periodic job
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	s.sweepJob()

	if _, err := s.cron.AddFunc(s.schedule, s.sweepJob); err != nil {
		return fmt.Errorf("failed to schedule reservation sweep: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: reservation sweep")

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) sweepJob() {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := s.scheduler.Sweep(ctx)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Reservation sweep failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"expired":  result.Expired,
		"repaired": result.Repaired,
		"errors":   result.Errors,
		"duration": time.Since(startTime).String(),
	}).Debug("[CRON] Reservation sweep done")
}

// RunSweepNow runs the sweep synchronously (maintenance CLI)
func (s *CronService) RunSweepNow(ctx context.Context) (SweepResult, error) {
	s.logger.Info("[MANUAL] Running reservation sweep now...")
	return s.scheduler.Sweep(ctx)
}
