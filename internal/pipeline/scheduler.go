package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs batches on a cron schedule. A tick that arrives while the
// previous batch is still running is skipped.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
	ctx  context.Context
	log  *zap.Logger
}

// NewScheduler registers svc.RunBatch under spec ("@every 1h", "0 18 * * 1-5").
// Batches inherit ctx.
func NewScheduler(ctx context.Context, svc *Service, spec string) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:  svc,
		ctx:  ctx,
		log:  zap.L().Named("scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register batch %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Time("next", s.Next()))
}

// Stop stops the scheduler and waits for a running batch to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow executes a batch immediately (RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.tick()
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	_, err := s.svc.RunBatch(s.ctx)
	switch {
	case errors.Is(err, ErrBatchRunning):
		s.log.Info("batch still running, tick skipped")
	case err != nil && !errors.Is(err, context.Canceled):
		s.log.Error("batch", zap.Error(err))
	}
}
