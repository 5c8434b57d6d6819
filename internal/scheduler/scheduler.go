// Package scheduler drives the periodic background sweeps. It is a thin
// ticker loop; the work itself lives in the submitter.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context)

// Scheduler runs named tasks on fixed intervals until its context is
// cancelled.
type Scheduler struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New constructs a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Every runs task once per interval in its own goroutine. The first run
// happens after one full interval, matching cron-style scheduling. A
// panicking task is logged and does not kill the loop.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("periodic task armed",
			zap.String("task", name),
			zap.Duration("interval", interval))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("periodic task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				s.runOne(ctx, name, task)
			}
		}
	}()
}

func (s *Scheduler) runOne(ctx context.Context, name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic task panicked",
				zap.String("task", name),
				zap.Any("panic", r))
		}
	}()
	task(ctx)
}

// Wait blocks until every loop has observed cancellation and returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
