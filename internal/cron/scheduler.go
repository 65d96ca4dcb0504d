// Package cron runs the router's background jobs on standard cron
// schedules.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
)

// Scheduler wraps a cron runner with the router's jobs.
type Scheduler struct {
	c      *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates an idle Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{c: cron.New(), logger: logger}
}

// AddBudgetFlush schedules persisting the ledger's spend counters so they
// survive restarts. The flush is best effort; failures are logged.
func (s *Scheduler) AddBudgetFlush(spec string, ledger *budget.Ledger, store memory.SpendStore) error {
	_, err := s.c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snapshot := ledger.Snapshot()
		if err := store.Save(ctx, snapshot); err != nil {
			s.logger.Warn("budget flush failed", "error", err)
			return
		}
		s.logger.Debug("budget flushed", "providers", len(snapshot))
	})
	return err
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}
