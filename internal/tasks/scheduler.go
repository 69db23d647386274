package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/shared"
)

// ScheduledScanner is the part of the [Orchestrator] the scheduler drives.
type ScheduledScanner interface {
	RunScheduledScan(ctx context.Context) (*ScanResult, error)
}

// Scheduler runs a scan every interval. A tick that finds the coordinator busy is skipped.
type Scheduler struct {
	scanner     ScheduledScanner
	interval    time.Duration
	scanOnStart bool
	logger      *log.Logger
	running     atomic.Bool
	ticks       atomic.Int64
}

// NewScheduler creates a Scheduler. A non-positive interval defaults to one hour.
func NewScheduler(scanner ScheduledScanner, interval time.Duration, scanOnStart bool, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Scheduler{scanner: scanner, interval: interval, scanOnStart: scanOnStart, logger: logger}
}

// Running reports whether Run is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Interval returns the time between scans.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Ticks returns the number of scan attempts made so far, skipped ones included.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	s.logger.Info("scheduler started", "interval", s.interval)

	if s.scanOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.ticks.Add(1)

	_, err := s.scanner.RunScheduledScan(ctx)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrAlreadyRunning):
		s.logger.Debug("skipping scheduled scan", "reason", err)
	case ctx.Err() != nil:
	default:
		s.logger.Warn("scheduled scan failed", "error", err)
	}
}
