package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"intake/internal/config"
	"intake/internal/events"
	"intake/internal/logging"
	"intake/internal/pipeline"
	"intake/internal/testsupport"
	"intake/internal/workflow"
)

type stubSubmitter struct {
	mu     sync.Mutex
	counts map[events.Kind]int
	errs   map[events.Kind]error
	result map[events.Kind]events.Result
}

func newStubSubmitter() *stubSubmitter {
	return &stubSubmitter{
		counts: make(map[events.Kind]int),
		errs:   make(map[events.Kind]error),
		result: make(map[events.Kind]events.Result),
	}
}

func (s *stubSubmitter) Submit(_ context.Context, ev events.Event) (events.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[ev.Kind]++
	result := s.result[ev.Kind]
	result.Kind = ev.Kind
	return result, s.errs[ev.Kind]
}

func (s *stubSubmitter) count(kind events.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestManagerRunsLanes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Reminders.Enabled = true
	}))
	sub := newStubSubmitter()
	mgr := workflow.NewManager(cfg, sub, logging.NewNop(),
		workflow.WithLaneInterval("poll", 10*time.Millisecond),
		workflow.WithLaneInterval("sweep", 10*time.Millisecond),
	)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	waitFor(t, func() bool { return sub.count(events.KindPoll) >= 3 && sub.count(events.KindSweep) >= 3 })

	status := mgr.Status()
	if !status.Running || len(status.Lanes) != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
	mgr.Stop()
	if mgr.Status().Running {
		t.Fatal("manager still running after Stop")
	}
	stopped := sub.count(events.KindPoll)
	time.Sleep(30 * time.Millisecond)
	if sub.count(events.KindPoll) != stopped {
		t.Fatal("lane kept running after Stop")
	}
}

func TestManagerSkipsSweepWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Reminders.Enabled = false
		cfg.Digest.Enabled = false
	}))
	mgr := workflow.NewManager(cfg, newStubSubmitter(), logging.NewNop())
	status := mgr.Status()
	if len(status.Lanes) != 1 || status.Lanes[0].Name != "poll" {
		t.Fatalf("expected only the poll lane, got %+v", status.Lanes)
	}
}

func TestManagerRecordsLaneFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Reminders.Enabled = false
	}))
	sub := newStubSubmitter()
	sub.errs[events.KindPoll] = errors.New("sheet unreachable")
	mgr := workflow.NewManager(cfg, sub, logging.NewNop(),
		workflow.WithLaneInterval("poll", time.Hour),
		workflow.WithErrorRetryDelay(5*time.Millisecond),
	)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	waitFor(t, func() bool { return sub.count(events.KindPoll) >= 2 })
	status := mgr.Status()
	if status.LastError != "sheet unreachable" {
		t.Fatalf("expected last error recorded, got %q", status.LastError)
	}
	if status.Lanes[0].Failures < 1 || status.Lanes[0].LastRunAt == nil {
		t.Fatalf("lane failure not recorded: %+v", status.Lanes[0])
	}
}

func TestManagerTreatsBlockedQueueAsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Reminders.Enabled = false
	}))
	sub := newStubSubmitter()
	sub.result[events.KindPoll] = events.Result{Poll: &pipeline.PollResult{Drain: pipeline.DrainResult{FailedJobID: "job-000001", FailedError: "no destination"}}}
	mgr := workflow.NewManager(cfg, sub, logging.NewNop(),
		workflow.WithLaneInterval("poll", time.Hour),
		workflow.WithErrorRetryDelay(time.Hour),
	)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	waitFor(t, func() bool { return mgr.Status().Lanes[0].Runs >= 1 })
	if got := mgr.Status().Lanes[0].LastError; got != "queue blocked at job-000001: no destination" {
		t.Fatalf("unexpected lane error %q", got)
	}
}

func TestManagerStopsWhenDispatcherStops(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Reminders.Enabled = false
	}))
	sub := newStubSubmitter()
	sub.errs[events.KindPoll] = events.ErrStopped
	mgr := workflow.NewManager(cfg, sub, logging.NewNop(), workflow.WithLaneInterval("poll", time.Millisecond))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return sub.count(events.KindPoll) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := sub.count(events.KindPoll); got != 1 {
		t.Fatalf("lane kept submitting to a stopped dispatcher: %d", got)
	}
	mgr.Stop()
}
