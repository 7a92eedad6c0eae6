// Package worker runs each ingestion stream on its own ticker. Streams are
// isolated from each other: a failed or panicking cycle is logged and the
// stream simply runs again on its next tick.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polyflow/logger"
)

// Runner is one stream's unit of work. A cycle either completes the stream's
// current window or returns an error; the scheduler never retries within a
// tick.
type Runner interface {
	RunCycle(ctx context.Context) error
}

type stream struct {
	name     string
	interval time.Duration
	runner   Runner
}

// Scheduler drives a set of stream runners, each on its own goroutine and
// ticker. Streams start with an immediate cycle so a restart does not wait a
// full interval before catching up.
type Scheduler struct {
	log     *logger.Log
	streams []stream
	wg      sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{log: logger.GetLogger()}
}

// Add registers a stream. Call before Start; the scheduler is not safe for
// concurrent registration.
func (s *Scheduler) Add(name string, interval time.Duration, runner Runner) {
	s.streams = append(s.streams, stream{name: name, interval: interval, runner: runner})
}

// Start launches every registered stream. It returns immediately; use Wait to
// block until all streams have observed context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	for _, st := range s.streams {
		s.wg.Add(1)
		go s.loop(ctx, st)
	}
}

// Wait blocks until every stream goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, st stream) {
	defer s.wg.Done()

	log := s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"stream":   st.name,
		"interval": st.interval.String(),
	})
	log.Info("stream started")

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	s.runOne(ctx, st)

	for {
		select {
		case <-ctx.Done():
			log.Info("stream stopped")
			return
		case <-ticker.C:
			s.runOne(ctx, st)
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, st stream) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithComponent("scheduler").WithFields(logger.Fields{
				"stream": st.name,
				"panic":  fmt.Sprintf("%v", r),
			}).Error("stream cycle panicked")
		}
	}()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := st.runner.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.WithComponent("scheduler").WithFields(logger.Fields{
			"stream": st.name,
		}).WithError(err).Error("stream cycle failed")
		return
	}

	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"stream":      st.name,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("stream cycle completed")
}
