package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"intake/internal/decision"
	"intake/internal/logging"
	"intake/internal/pipeline"
	"intake/internal/reminders"
	"intake/internal/services"
	"intake/internal/state"
)

type recorder struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	overlap  bool
	block    chan struct{}
}

func (r *recorder) enter(name string) func() {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.inFlight++
	if r.inFlight > 1 {
		r.overlap = true
	}
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	return func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) PollOnce(context.Context) (pipeline.PollResult, error) {
	defer r.enter("poll")()
	return pipeline.PollResult{CorrelationID: "poll-1"}, nil
}

func (r *recorder) ProcessQueuedPostJobs(context.Context) pipeline.DrainResult {
	defer r.enter("replay")()
	return pipeline.DrainResult{Posted: 2}
}

func (r *recorder) ClearJob(_ context.Context, jobID string) (state.PostJob, error) {
	defer r.enter("clear:" + jobID)()
	if jobID == "job-missing" {
		return state.PostJob{}, services.Wrap(services.ErrNotFound, "pipeline", "clear job", "not queued", nil)
	}
	return state.PostJob{ID: jobID}, nil
}

func (r *recorder) Finalize(_ context.Context, appID string, d state.Status, _ state.DecisionSource, _ string, _ decision.Options) (decision.Outcome, error) {
	defer r.enter("finalize:" + appID)()
	return decision.Outcome{ApplicationID: appID, Status: d}, nil
}

func (r *recorder) EvaluateVote(_ context.Context, appID string) (decision.VoteOutcome, error) {
	defer r.enter("evaluate:" + appID)()
	if appID == "untracked" {
		return decision.VoteOutcome{ApplicationID: appID, Failure: &decision.Failure{Code: decision.UnknownApplication}}, nil
	}
	return decision.VoteOutcome{ApplicationID: appID}, nil
}

func (r *recorder) Reopen(_ context.Context, appID, _, _ string) (decision.Outcome, error) {
	defer r.enter("reopen:" + appID)()
	return decision.Outcome{ApplicationID: appID, Status: state.StatusPending}, nil
}

func (r *recorder) Sweep(context.Context) (reminders.SweepResult, error) {
	defer r.enter("sweep")()
	return reminders.SweepResult{Reminded: []string{"app-1"}}, nil
}

func startDispatcher(t *testing.T, rec *recorder, opts ...Option) *Dispatcher {
	t.Helper()
	d := New(rec, rec, rec, logging.NewNop(), opts...)
	d.Start(context.Background())
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcherRoutesEvents(t *testing.T) {
	rec := &recorder{}
	d := startDispatcher(t, rec, WithVoteEmoji("✅", "❌"))
	ctx := context.Background()

	poll, err := d.Submit(ctx, Event{Kind: KindPoll})
	if err != nil || poll.Poll == nil || poll.Poll.CorrelationID != "poll-1" {
		t.Fatalf("poll: %+v, %v", poll, err)
	}
	replay, err := d.Submit(ctx, Event{Kind: KindReplay})
	if err != nil || replay.Drain == nil || replay.Drain.Posted != 2 {
		t.Fatalf("replay: %+v, %v", replay, err)
	}
	cleared, err := d.Submit(ctx, ClearJob("job-000001"))
	if err != nil || cleared.Cleared == nil || cleared.Cleared.ID != "job-000001" {
		t.Fatalf("clear: %+v, %v", cleared, err)
	}
	if _, err := d.Submit(ctx, ClearJob("job-missing")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	final, err := d.Submit(ctx, Finalize("app-1", state.StatusAccepted, state.SourceForceCommand, "mod", ""))
	if err != nil || final.Decision == nil || final.Decision.Status != state.StatusAccepted {
		t.Fatalf("finalize: %+v, %v", final, err)
	}
	reopened, err := d.Submit(ctx, Reopen("app-1", "mod", "again"))
	if err != nil || reopened.Decision == nil || reopened.Decision.Status != state.StatusPending {
		t.Fatalf("reopen: %+v, %v", reopened, err)
	}
	sweep, err := d.Submit(ctx, Event{Kind: KindSweep})
	if err != nil || sweep.Sweep == nil || len(sweep.Sweep.Reminded) != 1 {
		t.Fatalf("sweep: %+v, %v", sweep, err)
	}

	want := []string{"poll", "replay", "clear:job-000001", "clear:job-missing", "finalize:app-1", "reopen:app-1", "sweep"}
	got := rec.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestDispatcherFiltersReactions(t *testing.T) {
	rec := &recorder{}
	d := startDispatcher(t, rec, WithVoteEmoji("✅", "❌"))
	ctx := context.Background()

	other, err := d.Submit(ctx, Reaction("app-1", "🎉", "user-1"))
	if err != nil || !other.Ignored {
		t.Fatalf("expected non-vote emoji to be ignored, got %+v, %v", other, err)
	}
	untracked, err := d.Submit(ctx, Reaction("untracked", "✅", "user-1"))
	if err != nil || !untracked.Ignored {
		t.Fatalf("expected untracked message to be ignored, got %+v, %v", untracked, err)
	}
	vote, err := d.Submit(ctx, Reaction("app-1", "✅", "user-1"))
	if err != nil || vote.Vote == nil || vote.Vote.ApplicationID != "app-1" {
		t.Fatalf("expected evaluation, got %+v, %v", vote, err)
	}
	got := rec.Calls()
	if len(got) != 2 || got[0] != "evaluate:untracked" || got[1] != "evaluate:app-1" {
		t.Fatalf("unexpected calls %v", got)
	}
}

func TestDispatcherSerializesConcurrentSubmits(t *testing.T) {
	rec := &recorder{}
	d := startDispatcher(t, rec)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Submit(context.Background(), Event{Kind: KindEvaluate, ApplicationID: "app-1"}); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()
	if rec.overlap {
		t.Fatal("handlers ran concurrently")
	}
	if got := len(rec.Calls()); got != 20 {
		t.Fatalf("expected 20 evaluations, got %d", got)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	rec := &recorder{}
	d := New(rec, rec, rec, logging.NewNop())
	if _, err := d.Submit(context.Background(), Event{Kind: KindPoll}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped before start, got %v", err)
	}
	d.Start(context.Background())
	d.Stop()
	if _, err := d.Submit(context.Background(), Event{Kind: KindPoll}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after stop, got %v", err)
	}
}

func TestSubmitHonoursCallerContext(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := startDispatcher(t, rec)
	defer close(rec.block)

	go func() { _, _ = d.Submit(context.Background(), Event{Kind: KindPoll}) }()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Submit(ctx, Event{Kind: KindReplay}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestUnknownEventKind(t *testing.T) {
	d := startDispatcher(t, &recorder{})
	if _, err := d.Submit(context.Background(), Event{Kind: "bogus"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
