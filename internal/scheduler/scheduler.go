// Package scheduler runs incremental syncs on a cron schedule for
// daemon mode.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"MacroTracker/internal/orchestrator"
)

// Scheduler manages the periodic sync task.
type Scheduler struct {
	Cron   *cron.Cron
	Runner *orchestrator.Orchestrator
	Ctx    context.Context
	Log    zerolog.Logger

	running atomic.Bool
}

// New creates a Scheduler around the given orchestrator.
func New(ctx context.Context, runner *orchestrator.Orchestrator, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		Runner: runner,
		Ctx:    ctx,
		Log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds the sync task under the given cron spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.syncTask); err != nil {
		return fmt.Errorf("register sync task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	s.Log.Info().Msg("scheduler stopped")
}

// RunNow executes the sync task immediately (manual trigger, run-on-start).
func (s *Scheduler) RunNow() {
	s.syncTask()
}

func (s *Scheduler) syncTask() {
	// A slow run must not stack onto the next cron tick.
	if !s.running.CompareAndSwap(false, true) {
		s.Log.Warn().Msg("previous sync still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	s.Log.Info().Msg("running scheduled sync")
	res, err := s.Runner.Run(s.Ctx, nil)
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduled sync failed")
		return
	}
	s.Log.Info().Str("run_id", res.RunID).Int("daily_rows", res.DailyRows).
		Msg("scheduled sync complete")
}
