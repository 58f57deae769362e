package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/repowatch/pkg/logger"
)

// Scheduler triggers engine cycles on a cron schedule.
type Scheduler struct {
	engine     *Engine
	cron       *cron.Cron
	schedule   string
	runOnStart bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	last    *CycleReport
	lastErr error
}

// NewScheduler creates a scheduler for the given cron expression or
// @every descriptor. With runOnStart a first cycle runs as soon as Start is
// called instead of waiting for the first tick.
func NewScheduler(engine *Engine, schedule string, runOnStart bool) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{})),
	)

	s := &Scheduler{
		engine:     engine,
		cron:       c,
		schedule:   schedule,
		runOnStart: runOnStart,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := c.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling cycles.
func (s *Scheduler) Start() {
	s.cron.Start()
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	logger.Info().Str("schedule", s.schedule).Msg("Scheduler started")
}

// Stop cancels the running cycle, if any, and waits for it to finish.
func (s *Scheduler) Stop() {
	logger.Info().Msg("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// RunNow runs a cycle immediately and records its outcome.
// It returns ErrCycleInProgress if a cycle is already running.
func (s *Scheduler) RunNow(ctx context.Context) (*CycleReport, error) {
	report, err := s.engine.RunCycle(ctx, time.Now())
	if errors.Is(err, ErrCycleInProgress) {
		return nil, err
	}

	s.mu.Lock()
	s.last, s.lastErr = report, err
	s.mu.Unlock()

	return report, err
}

// LastReport returns the most recent completed cycle and its error.
// The report is nil before the first cycle.
func (s *Scheduler) LastReport() (*CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}

// Next returns the time of the next scheduled cycle, zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.RunNow(s.ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		logger.Error().Err(err).Msg("Poll cycle failed")
	}
}

// cronLogger routes cron's own logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
