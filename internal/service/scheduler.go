package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"commerce-sync/internal/model"
)

// SchedulerConfig holds configuration for the pass scheduler.
type SchedulerConfig struct {
	// Interval is how often a pass over every store runs.
	Interval time.Duration

	// InitialDelay is the wait before the first pass after Start.
	// Default: no delay
	InitialDelay time.Duration
}

// Scheduler runs periodic passes over every configured store.
type Scheduler struct {
	orch      *Orchestrator
	config    SchedulerConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler. A non-positive interval is replaced by one hour.
func NewScheduler(orch *Orchestrator, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		orch:   orch,
		config: config,
		stopCh: make(chan struct{}),
		logger: logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.config.Interval, "initial_delay", s.config.InitialDelay)

	s.wg.Add(1)
	go s.run()
}

// run is the main loop. Passes never overlap, and the next pass starts one
// interval after the previous one finished.
func (s *Scheduler) run() {
	defer s.wg.Done()
	defer s.ticker.Stop()

	if s.config.InitialDelay > 0 {
		select {
		case <-time.After(s.config.InitialDelay):
		case <-s.stopCh:
			s.logger.Info("scheduler stopped")
			return
		}
	}
	s.runPass()
	s.resetTicker()

	for {
		select {
		case <-s.ticker.C:
			s.runPass()
			s.resetTicker()
		case <-s.stopCh:
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// resetTicker restarts the interval and discards a tick that fired during the pass.
func (s *Scheduler) resetTicker() {
	s.ticker.Reset(s.config.Interval)
	select {
	case <-s.ticker.C:
	default:
	}
}

// runPass performs one pass and logs its outcome.
func (s *Scheduler) runPass() {
	results, err := s.RunNow(context.Background())
	if err != nil {
		s.logger.Error("scheduled pass failed", "error", err)
		return
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.logger.Info("scheduled pass finished", "stores", len(results), "failed", failed)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// RunNow triggers an immediate pass over every store.
func (s *Scheduler) RunNow(ctx context.Context) (map[string]model.SyncResult, error) {
	return s.orch.Ingest(ctx)
}
