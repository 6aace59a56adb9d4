package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"intake/internal/decision"
	"intake/internal/logging"
	"intake/internal/pipeline"
	"intake/internal/reminders"
	"intake/internal/services"
	"intake/internal/state"
)

// ErrStopped is returned by Submit once the dispatcher has stopped.
var ErrStopped = errors.New("event dispatcher stopped")

const defaultQueueSize = 64

// Poller is the pipeline surface the dispatcher drives.
type Poller interface {
	PollOnce(ctx context.Context) (pipeline.PollResult, error)
	ProcessQueuedPostJobs(ctx context.Context) pipeline.DrainResult
	ClearJob(ctx context.Context, jobID string) (state.PostJob, error)
}

// Decider is the decision surface the dispatcher drives.
type Decider interface {
	Finalize(ctx context.Context, appID string, decision state.Status, source state.DecisionSource, actorID string, opts decision.Options) (decision.Outcome, error)
	EvaluateVote(ctx context.Context, appID string) (decision.VoteOutcome, error)
	Reopen(ctx context.Context, appID, actorID, reason string) (decision.Outcome, error)
}

// Sweeper runs the reminder and digest sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (reminders.SweepResult, error)
}

type request struct {
	ctx   context.Context
	event Event
	reply chan response
}

type response struct {
	result Result
	err    error
}

// Dispatcher runs events one at a time on its own goroutine.
type Dispatcher struct {
	poller  Poller
	decider Decider
	sweeper Sweeper
	logger  *slog.Logger

	voteEmoji map[string]struct{}
	queue     chan request

	mu      sync.Mutex
	running bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithVoteEmoji restricts reaction events to the given emoji. Without it
// every reaction triggers an evaluation.
func WithVoteEmoji(emoji ...string) Option {
	return func(d *Dispatcher) {
		for _, e := range emoji {
			if e != "" {
				d.voteEmoji[e] = struct{}{}
			}
		}
	}
}

// WithQueueSize sets the pending event buffer.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan request, n)
		}
	}
}

// New builds a dispatcher. Call Start before submitting events.
func New(poller Poller, decider Decider, sweeper Sweeper, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		poller:    poller,
		decider:   decider,
		sweeper:   sweeper,
		logger:    logging.NewComponentLogger(logger, "events"),
		voteEmoji: make(map[string]struct{}),
		queue:     make(chan request, defaultQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true
	go d.loop(loopCtx, d.done)
}

// Stop ends the loop after the event in flight finishes. Queued events are
// answered with ErrStopped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	cancel()
	<-done
}

// Submit queues ev and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) (Result, error) {
	d.mu.Lock()
	running := d.running
	done := d.done
	d.mu.Unlock()
	if !running {
		return Result{Kind: ev.Kind}, ErrStopped
	}

	req := request{ctx: ctx, event: ev, reply: make(chan response, 1)}
	select {
	case d.queue <- req:
	case <-ctx.Done():
		return Result{Kind: ev.Kind}, ctx.Err()
	case <-done:
		return Result{Kind: ev.Kind}, ErrStopped
	}
	select {
	case resp := <-req.reply:
		return resp.result, resp.err
	case <-ctx.Done():
		return Result{Kind: ev.Kind}, ctx.Err()
	case <-done:
		return Result{Kind: ev.Kind}, ErrStopped
	}
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer d.drainStopped()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			if req.ctx.Err() != nil {
				req.reply <- response{result: Result{Kind: req.event.Kind}, err: req.ctx.Err()}
				continue
			}
			result, err := d.handle(req.ctx, req.event)
			req.reply <- response{result: result, err: err}
		}
	}
}

func (d *Dispatcher) drainStopped() {
	for {
		select {
		case req := <-d.queue:
			req.reply <- response{result: Result{Kind: req.event.Kind}, err: ErrStopped}
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) (result Result, err error) {
	result.Kind = ev.Kind
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, d.logger)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event %s panicked: %v", ev.Kind, r)
			logging.ErrorWithContext(logger, "event handler panicked", "event_panic",
				logging.String("event", string(ev.Kind)),
				logging.Any("panic", r),
				logging.String(logging.FieldImpact, "the event was dropped; the dispatcher keeps running"),
			)
		}
	}()

	switch ev.Kind {
	case KindPoll:
		poll, err := d.poller.PollOnce(ctx)
		result.Poll = &poll
		return result, err
	case KindReplay:
		drain := d.poller.ProcessQueuedPostJobs(ctx)
		result.Drain = &drain
		return result, nil
	case KindClearJob:
		job, err := d.poller.ClearJob(ctx, ev.JobID)
		if err != nil {
			return result, err
		}
		result.Cleared = &job
		return result, nil
	case KindReaction:
		if len(d.voteEmoji) > 0 {
			if _, ok := d.voteEmoji[ev.Emoji]; !ok {
				result.Ignored = true
				return result, nil
			}
		}
		fallthrough
	case KindEvaluate:
		vote, err := d.decider.EvaluateVote(ctx, ev.ApplicationID)
		if vote.Failure != nil && vote.Failure.Code == decision.UnknownApplication && ev.Kind == KindReaction {
			// Reactions on untracked messages are ordinary chat traffic.
			result.Ignored = true
			return result, nil
		}
		result.Vote = &vote
		return result, err
	case KindFinalize:
		outcome, err := d.decider.Finalize(ctx, ev.ApplicationID, ev.Decision, ev.Source, ev.ActorID, decision.Options{Reason: ev.Reason})
		result.Decision = &outcome
		return result, err
	case KindReopen:
		outcome, err := d.decider.Reopen(ctx, ev.ApplicationID, ev.ActorID, ev.Reason)
		result.Decision = &outcome
		return result, err
	case KindSweep:
		if d.sweeper == nil {
			result.Ignored = true
			return result, nil
		}
		sweep, err := d.sweeper.Sweep(ctx)
		result.Sweep = &sweep
		return result, err
	default:
		return result, services.Wrap(services.ErrValidation, "events", "dispatch", fmt.Sprintf("unknown event kind %q", ev.Kind), nil)
	}
}
