// Package schedule runs reconciliation cycles on a fixed cadence.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
)

const DefaultInterval = 10 * time.Second

// Cycler runs one reconciliation cycle.
type Cycler interface {
	Run(ctx context.Context) *reconcile.Report
}

// Scheduler fires cycles at a fixed interval and never runs two at once.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	logger   *log.Logger

	// OnReport, if set, is called after every completed cycle.
	OnReport func(*reconcile.Report)

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.Mutex

	mu        sync.RWMutex
	last      *reconcile.Report
	cycles    int
	skipped   int
	lastError time.Time
}

// New creates a scheduler. Cycles started through RunCycle use a context derived from ctx,
// which Run also cancels when it returns.
func New(ctx context.Context, cycler Cycler, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cycler:   cycler,
		interval: interval,
		logger:   logger,
		ctx:      cycleCtx,
		cancel:   cancel,
	}
}

// RunCycle runs one cycle unless another is still in flight, in which case the call is
// dropped. Outcomes are reported through the log and Last.
func (s *Scheduler) RunCycle() {
	if !s.running.TryLock() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	report := s.cycler.Run(s.ctx)

	s.mu.Lock()
	s.last = report
	s.cycles++
	if report.Aborted != nil || report.Failed() > 0 {
		s.lastError = report.Finished
	}
	s.mu.Unlock()

	if s.OnReport != nil {
		s.OnReport(report)
	}
}

// Run runs a cycle immediately and then every interval until ctx is cancelled. A cycle still
// in flight at that point is cancelled and waited for.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting sync loop", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	go s.RunCycle()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown requested, stopping sync loop")
			s.cancel()
			// Wait for an in-flight cycle to wind down.
			s.running.Lock()
			s.running.Unlock()
			return nil
		case <-ticker.C:
			go s.RunCycle()
		}
	}
}

// Last returns the report of the most recent cycle, or nil.
func (s *Scheduler) Last() *reconcile.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Cycles    int       `json:"cycles"`
	Skipped   int       `json:"skipped_ticks"`
	LastError time.Time `json:"last_error,omitempty"`
	Interval  string    `json:"interval"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Cycles:    s.cycles,
		Skipped:   s.skipped,
		LastError: s.lastError,
		Interval:  s.interval.String(),
	}
}
