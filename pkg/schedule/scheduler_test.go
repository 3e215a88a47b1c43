package schedule

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harrisonrobin/tasknotion/pkg/reconcile"
)

type blockingCycler struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func (b *blockingCycler) Run(ctx context.Context) *reconcile.Report {
	b.runs.Add(1)
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	return &reconcile.Report{CycleID: "test", Started: time.Now(), Finished: time.Now()}
}

func TestRunCycleSkipsOverlappingTicks(t *testing.T) {
	cycler := &blockingCycler{started: make(chan struct{}), release: make(chan struct{})}
	s := New(context.Background(), cycler, time.Hour, log.New(io.Discard))

	done := make(chan struct{})
	go func() {
		s.RunCycle()
		close(done)
	}()
	<-cycler.started

	// The first cycle is still in flight, so this returns without running.
	s.RunCycle()
	if got := cycler.runs.Load(); got != 1 {
		t.Errorf("Expected 1 run, got %d", got)
	}

	close(cycler.release)
	<-done

	stats := s.Stats()
	if stats.Cycles != 1 || stats.Skipped != 1 {
		t.Errorf("Expected 1 cycle and 1 skipped tick, got %+v", stats)
	}
	if s.Last() == nil {
		t.Errorf("Expected last report to be set")
	}
}

func TestRunCycleCallsOnReport(t *testing.T) {
	s := New(context.Background(), &blockingCycler{}, time.Hour, log.New(io.Discard))
	var got *reconcile.Report
	s.OnReport = func(r *reconcile.Report) { got = r }

	s.RunCycle()

	if got == nil || got != s.Last() {
		t.Errorf("Expected OnReport to receive the last report, got %v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycler := &blockingCycler{}
	s := New(ctx, cycler, 10*time.Millisecond, log.New(io.Discard))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for cycler.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 cycles, got %d", cycler.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type ctxCycler struct {
	started chan struct{}
}

func (c *ctxCycler) Run(ctx context.Context) *reconcile.Report {
	c.started <- struct{}{}
	<-ctx.Done()
	return &reconcile.Report{CycleID: "cancelled", Aborted: ctx.Err()}
}

func TestRunCancelsInFlightCycle(t *testing.T) {
	// Cycles are created on a context that is never cancelled; only Run's context ends.
	cycler := &ctxCycler{started: make(chan struct{}, 1)}
	s := New(context.Background(), cycler, time.Hour, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-cycler.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the first cycle to start")
	}
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not cancel the in-flight cycle")
	}
	if last := s.Last(); last == nil || last.CycleID != "cancelled" {
		t.Errorf("Expected the cancelled cycle to be reported, got %+v", last)
	}

	// Later triggers are no-ops once Run has stopped.
	s.RunCycle()
	if last := s.Last(); last.CycleID != "cancelled" {
		t.Errorf("Expected no cycle after stop, got %+v", last)
	}
}
