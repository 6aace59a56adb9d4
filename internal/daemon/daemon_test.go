package daemon

import (
	"context"
	"testing"
	"time"

	"intake/internal/api"
	"intake/internal/config"
	"intake/internal/decision"
	"intake/internal/events"
	"intake/internal/logging"
	"intake/internal/metrics"
	"intake/internal/pipeline"
	"intake/internal/reminders"
	"intake/internal/retry"
	"intake/internal/state"
	"intake/internal/testsupport"
	"intake/internal/workflow"
)

var testHeaders = []string{"Timestamp", "Name", "Applying For"}

type harness struct {
	cfg        *config.Config
	store      *state.Store
	chat       *testsupport.FakeChat
	sheet      *testsupport.StaticSheet
	pipeline   *pipeline.Pipeline
	dispatcher *events.Dispatcher
	daemon     *Daemon
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithTrack("tester", "Tester", "tester-channel")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	h := &harness{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
		chat:  testsupport.NewFakeChat(),
		sheet: testsupport.NewStaticSheet(testHeaders),
	}
	logger := logging.NewNop()
	policy := retry.New(retry.WithSleeper(func(time.Duration) {}))
	clock := func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) }
	m := metrics.New()

	h.pipeline = pipeline.New(cfg, h.store, h.chat, h.sheet, logger,
		pipeline.WithRetryPolicy(policy), pipeline.WithMetrics(m), pipeline.WithClock(clock))
	machine := decision.New(cfg, h.store, h.chat, logger,
		decision.WithRetryPolicy(policy), decision.WithMetrics(m), decision.WithClock(clock))
	sweeper := reminders.New(cfg, h.store, h.chat, logger,
		reminders.WithRetryPolicy(policy), reminders.WithMetrics(m), reminders.WithClock(clock))
	h.dispatcher = events.New(h.pipeline, machine, sweeper, logger,
		events.WithVoteEmoji(cfg.Chat.AcceptEmoji, cfg.Chat.DenyEmoji))
	wf := workflow.NewManager(cfg, h.dispatcher, logger,
		workflow.WithLaneInterval("poll", time.Hour),
		workflow.WithLaneInterval("sweep", time.Hour),
	)

	d, err := New(cfg, h.store, h.dispatcher, wf, logger,
		WithMetrics(m),
		WithHistory(logging.NewHistory(16)),
		WithBusy(h.pipeline.Busy),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	h.daemon = d
	t.Cleanup(func() { d.Stop() })
	return h
}

func (h *harness) seedPending(t *testing.T, id string) {
	t.Helper()
	testsupport.MustUpdate(t, h.store, func(doc *state.Document) error {
		doc.Applications[id] = &state.Application{
			ID:              id,
			ChannelID:       "tester-channel",
			ThreadID:        id,
			Status:          state.StatusPending,
			TrackKey:        "tester",
			JobID:           "job-000001",
			RowIndex:        2,
			ApplicantName:   "Alice",
			ApplicantUserID: "user-alice",
			CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		return nil
	})
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !h.daemon.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	client, err := api.NewClient(h.daemon.APIAddr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LockPath == "" {
		t.Fatalf("unexpected status %+v", status)
	}

	h.daemon.Stop()
	if h.daemon.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := h.daemon.Submit(ctx, events.Event{Kind: events.KindReplay}); err == nil {
		t.Fatal("expected submit after stop to fail")
	}
}

func TestDaemonRestartAfterStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.daemon.Stop()
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !h.daemon.Status().Running {
		t.Fatal("expected running after restart")
	}
}

func TestStatusReportsBlockedHead(t *testing.T) {
	h := newHarness(t)
	testsupport.MustUpdate(t, h.store, func(doc *state.Document) error {
		job, err := doc.Enqueue(2, []string{"tester"}, "k1", testHeaders, []string{"t1", "Alice", "Tester"}, time.Now())
		if err != nil {
			return err
		}
		stored := doc.Job(job.ID)
		stored.RecordFailure(context.DeadlineExceeded, time.Now())
		return nil
	})

	status := h.daemon.Status()
	if status.QueueDepth != 1 || status.Blocked == nil || status.Blocked.ID != "job-000001" {
		t.Fatalf("expected blocked head job-000001, got %+v", status)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected local preflight checks in status")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without store and dispatcher")
	}
}
