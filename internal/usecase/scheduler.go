package usecase

import (
	"context"
	"log/slog"
	"time"

	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/ports"
)

// Scheduler wires the periodic driver with the run coordinator.
type Scheduler struct {
	driver      ports.Scheduler
	coordinator *Coordinator
	logger      *slog.Logger
	onReport    func(domain.RunReport)
}

// NewScheduler returns a helper to start/stop recurring cycles. onReport, if
// set, receives every finalized report.
func NewScheduler(driver ports.Scheduler, coordinator *Coordinator, logger *slog.Logger, onReport func(domain.RunReport)) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, coordinator: coordinator, logger: logger, onReport: onReport}
}

// Start registers the cycle with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.coordinator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report := s.coordinator.RunCycle(ctx, trigger)
		if report.Error != "" {
			s.logger.Error("cycle failed", "cycle_id", report.CycleID, "error", report.Error)
		}
		if s.onReport != nil {
			s.onReport(report)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
