package decision

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"intake/internal/chat"
	"intake/internal/config"
	"intake/internal/logging"
	"intake/internal/notifications"
	"intake/internal/retry"
	"intake/internal/state"
	"intake/internal/testsupport"
)

const appID = "msg-app"

type harness struct {
	cfg     *config.Config
	store   *state.Store
	chat    *testsupport.FakeChat
	machine *Machine
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{
		testsupport.WithTrack("tester", "Tester", "tester-channel"),
		testsupport.WithConfig(func(cfg *config.Config) {
			cfg.Tracks[0].ApprovedRoleIDs = []string{"role-tester"}
		}),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
		chat:  testsupport.NewFakeChat(),
	}
	h.machine = New(cfg, h.store, h.chat, logging.NewNop(),
		WithRetryPolicy(retry.New(retry.WithSleeper(func(time.Duration) {}))),
		WithClock(func() time.Time { return time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC) }),
	)
	testsupport.MustUpdate(t, h.store, func(doc *state.Document) error {
		doc.Applications[appID] = &state.Application{
			ID:              appID,
			ChannelID:       "tester-channel",
			ThreadID:        appID,
			Status:          state.StatusPending,
			TrackKey:        "tester",
			JobID:           "job-000001",
			RowIndex:        2,
			ApplicantName:   "Alice",
			ApplicantUserID: "user-alice",
			CreatedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ReminderCount:   2,
		}
		return nil
	})
	return h
}

func TestFinalizeTwiceRunsSideEffectsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.machine.Finalize(ctx, appID, state.StatusAccepted, state.SourceForceCommand, "mod-1", Options{Reason: "great fit"})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !first.OK() || first.Status != state.StatusAccepted {
		t.Fatalf("unexpected outcome %+v", first)
	}
	sends := h.chat.Calls(testsupport.OpSendMessage)

	second, err := h.machine.Finalize(ctx, appID, state.StatusDenied, state.SourceForceCommand, "mod-2", Options{})
	if err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if second.OK() || second.Failure.Code != AlreadyDecided {
		t.Fatalf("expected already_decided, got %+v", second)
	}
	if second.Failure.Status != state.StatusAccepted {
		t.Fatalf("expected failure to report accepted, got %s", second.Failure.Status)
	}
	if got := h.chat.Calls(testsupport.OpSendMessage); got != sends {
		t.Fatalf("second finalize sent %d extra messages", got-sends)
	}
	if grants := h.chat.RoleGrants(); len(grants) != 1 || grants[0] != (testsupport.RoleGrant{UserID: "user-alice", RoleID: "role-tester"}) {
		t.Fatalf("unexpected role grants %+v", grants)
	}
	if len(h.chat.DirectMessages()) != 0 {
		t.Fatal("accept must not send a direct message")
	}

	app := h.store.Snapshot().Application(appID)
	if app.Status != state.StatusAccepted || app.DecidedBy != "mod-1" || app.DecisionReason != "great fit" {
		t.Fatalf("unexpected application %+v", app)
	}
	for _, kind := range []string{state.EffectRoleGrant, state.EffectAnnouncement, state.EffectDecisionSummary, state.EffectClosureLog} {
		effect, ok := app.Effect(kind)
		if !ok || !effect.OK {
			t.Fatalf("expected %s to succeed, got %+v", kind, effect)
		}
	}
	if got := h.store.Snapshot().Counters.DecisionsAccepted; got != 1 {
		t.Fatalf("expected one accepted decision counted, got %d", got)
	}
	announcements := h.chat.Messages("announce-channel")
	if len(announcements) != 1 || !strings.Contains(announcements[0].Content, "<@user-alice>") {
		t.Fatalf("unexpected announcements %+v", announcements)
	}
}

func TestFinalizeDenyRecordsClosedDirectMessages(t *testing.T) {
	h := newHarness(t)
	h.chat.FailNext(testsupport.OpDirectMessage, &chat.APIError{Method: "POST", Path: "/channels/dm/messages", Status: http.StatusForbidden, Code: 50007, Message: "Cannot send messages to this user"})

	outcome, err := h.machine.Finalize(context.Background(), appID, state.StatusDenied, state.SourceForceCommand, "mod-1", Options{Reason: "incomplete"})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !outcome.OK() || outcome.Status != state.StatusDenied {
		t.Fatalf("side effect failure must not block decision: %+v", outcome)
	}
	app := h.store.Snapshot().Application(appID)
	effect, ok := app.Effect(state.EffectDirectMessage)
	if !ok || effect.OK || effect.ErrorKind != "dm_closed" {
		t.Fatalf("expected dm_closed failure, got %+v", effect)
	}
	if _, ok := app.Effect(state.EffectRoleGrant); ok {
		t.Fatal("deny must not grant roles")
	}
	if got := h.store.Snapshot().Counters.DecisionsDenied; got != 1 {
		t.Fatalf("expected one denied decision counted, got %d", got)
	}
}

func TestFinalizeDenyDirectMessageUsesTemplate(t *testing.T) {
	h := newHarness(t)
	if _, err := h.machine.Finalize(context.Background(), appID, state.StatusDenied, state.SourceForceCommand, "mod-1", Options{Reason: "incomplete"}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	dms := h.chat.DirectMessages()
	if len(dms) != 1 || dms[0].UserID != "user-alice" {
		t.Fatalf("unexpected direct messages %+v", dms)
	}
	if !strings.Contains(dms[0].Content, "Tester") || !strings.Contains(dms[0].Content, "Reason: incomplete") {
		t.Fatalf("template not rendered: %q", dms[0].Content)
	}
}

func TestFinalizeRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tests := []struct {
		name     string
		appID    string
		decision state.Status
		source   state.DecisionSource
		want     FailureCode
	}{
		{name: "unknown application", appID: "missing", decision: state.StatusAccepted, source: state.SourceVote, want: UnknownApplication},
		{name: "pending is not a decision", appID: appID, decision: state.StatusPending, source: state.SourceVote, want: InvalidDecision},
		{name: "unknown source", appID: appID, decision: state.StatusDenied, source: "panel", want: InvalidDecision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.machine.Finalize(ctx, tt.appID, tt.decision, tt.source, "mod-1", Options{})
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if outcome.Failure == nil || outcome.Failure.Code != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, outcome.Failure)
			}
			if outcome.Failure.Message() == "" {
				t.Fatal("failure message is empty")
			}
		})
	}
	if app := h.store.Snapshot().Application(appID); app.Status != state.StatusPending {
		t.Fatalf("refused finalize changed status to %s", app.Status)
	}
}

func TestEvaluateVote(t *testing.T) {
	voters := []string{"v1", "v2", "v3", "v4", "v5"}
	tests := []struct {
		name      string
		accept    []string
		deny      []string
		want      state.Status
		threshold int
		cancelled int
	}{
		{name: "three of four needed", accept: []string{"v1", "v2", "v3"}, deny: []string{"v4"}, threshold: 4},
		{name: "four accepts decide", accept: []string{"v1", "v2", "v3", "v4"}, deny: []string{"v5"}, want: state.StatusAccepted, threshold: 4},
		{name: "double voter cancels", accept: []string{"v1", "v2", "v3", "v4"}, deny: []string{"v4"}, threshold: 4, cancelled: 1},
		{name: "ineligible voters ignored", accept: []string{"v1", "x1", "x2", "x3"}, threshold: 4},
		{name: "four denies decide", accept: []string{"v5"}, deny: []string{"v1", "v2", "v3", "v4"}, want: state.StatusDenied, threshold: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.chat.SetViewers("tester-channel", voters...)
			h.chat.SetReactions(appID, h.cfg.Chat.AcceptEmoji, append([]string{testsupport.BotUserID}, tt.accept...)...)
			h.chat.SetReactions(appID, h.cfg.Chat.DenyEmoji, append([]string{testsupport.BotUserID}, tt.deny...)...)

			outcome, err := h.machine.EvaluateVote(context.Background(), appID)
			if err != nil {
				t.Fatalf("EvaluateVote: %v", err)
			}
			if outcome.Tally.Eligible != 5 || outcome.Tally.Threshold != tt.threshold || outcome.Tally.Cancelled != tt.cancelled {
				t.Fatalf("unexpected tally %+v", outcome.Tally)
			}
			if outcome.Decision != tt.want {
				t.Fatalf("expected decision %q, got %q", tt.want, outcome.Decision)
			}
			app := h.store.Snapshot().Application(appID)
			wantStatus := tt.want
			if wantStatus == "" {
				wantStatus = state.StatusPending
			}
			if app.Status != wantStatus {
				t.Fatalf("expected status %s, got %s", wantStatus, app.Status)
			}
			if tt.want != "" {
				if app.DecisionSource != state.SourceVote || app.VoteContext == nil || app.VoteContext.Threshold != tt.threshold {
					t.Fatalf("vote decision not recorded: %+v", app)
				}
			}
		})
	}
}

func TestEvaluateVoteBothSidesIsAmbiguous(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(cfg *config.Config) {
		cfg.Tracks[0].VoteNumerator = 1
		cfg.Tracks[0].VoteDenominator = 3
	}))
	h.chat.SetViewers("tester-channel", "v1", "v2", "v3", "v4", "v5")
	h.chat.SetReactions(appID, h.cfg.Chat.AcceptEmoji, "v1", "v2")
	h.chat.SetReactions(appID, h.cfg.Chat.DenyEmoji, "v3", "v4")

	outcome, err := h.machine.EvaluateVote(context.Background(), appID)
	if err != nil {
		t.Fatalf("EvaluateVote: %v", err)
	}
	if !outcome.Ambiguous || outcome.Decision != "" || outcome.Tally.Threshold != 2 {
		t.Fatalf("expected ambiguous outcome, got %+v", outcome)
	}
	if status := h.store.Snapshot().Application(appID).Status; status != state.StatusPending {
		t.Fatalf("ambiguous vote changed status to %s", status)
	}
}

func TestEvaluateVoteSkipsDecidedApplication(t *testing.T) {
	h := newHarness(t)
	if _, err := h.machine.Finalize(context.Background(), appID, state.StatusAccepted, state.SourceForceCommand, "mod-1", Options{}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	outcome, err := h.machine.EvaluateVote(context.Background(), appID)
	if err != nil {
		t.Fatalf("EvaluateVote: %v", err)
	}
	if outcome.Failure == nil || outcome.Failure.Code != AlreadyDecided {
		t.Fatalf("expected already_decided, got %+v", outcome)
	}
	if calls := h.chat.Calls(testsupport.OpChannelViewers); calls != 0 {
		t.Fatalf("decided application must not be tallied, got %d viewer calls", calls)
	}
}

func TestReopenPendingIsRefused(t *testing.T) {
	h := newHarness(t)
	before := h.store.Snapshot().Revision

	outcome, err := h.machine.Reopen(context.Background(), appID, "mod-1", "second look")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if outcome.Failure == nil || outcome.Failure.Code != AlreadyPending {
		t.Fatalf("expected already_pending, got %+v", outcome)
	}
	if after := h.store.Snapshot().Revision; after != before {
		t.Fatalf("refused reopen saved the store (revision %d -> %d)", before, after)
	}
	if calls := h.chat.Calls(testsupport.OpSendMessage); calls != 0 {
		t.Fatalf("refused reopen sent %d messages", calls)
	}
}

func TestReopenPreservesLastDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.machine.Finalize(ctx, appID, state.StatusDenied, state.SourceForceCommand, "mod-1", Options{Reason: "incomplete"}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	outcome, err := h.machine.Reopen(ctx, appID, "mod-2", "new info")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if !outcome.OK() || outcome.Status != state.StatusPending {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	doc := h.store.Snapshot()
	app := doc.Application(appID)
	if app.Status != state.StatusPending || app.DecidedAt != nil || app.DecidedBy != "" || app.ReminderCount != 0 {
		t.Fatalf("decision fields not cleared: %+v", app)
	}
	last := app.LastDecision
	if last == nil || last.Status != state.StatusDenied || last.DecidedBy != "mod-1" || last.DecisionReason != "incomplete" {
		t.Fatalf("unexpected last decision %+v", last)
	}
	if last.ReopenedBy != "mod-2" || last.ReopenReason != "new info" {
		t.Fatalf("reopen metadata missing: %+v", last)
	}
	if doc.Counters.Reopens != 1 {
		t.Fatalf("expected one reopen counted, got %d", doc.Counters.Reopens)
	}
	if effect, ok := app.Effect(state.EffectReopenNotice); !ok || !effect.OK {
		t.Fatalf("expected reopen notice, got %+v", effect)
	}
	if effect, ok := app.Effect(state.EffectDirectMessage); !ok {
		t.Fatalf("prior side effect results must be kept, got %+v", effect)
	}

	again, err := h.machine.Finalize(ctx, appID, state.StatusAccepted, state.SourceForceCommand, "mod-2", Options{})
	if err != nil || !again.OK() {
		t.Fatalf("expected reopened application to accept a new decision: %+v, %v", again, err)
	}
}

type failingNotifier struct{}

func (failingNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return errors.New("ntfy unreachable")
}

func TestFinalizeLogsNotificationFailure(t *testing.T) {
	h := newHarness(t)
	history := logging.NewHistory(64)
	logger := logging.TeeLogger(logging.NewNop(), history.Handler(slog.LevelDebug))
	h.machine = New(h.cfg, h.store, h.chat, logger,
		WithNotifier(failingNotifier{}),
		WithRetryPolicy(retry.New(retry.WithSleeper(func(time.Duration) {}))),
	)

	outcome, err := h.machine.Finalize(context.Background(), appID, state.StatusAccepted, state.SourceForceCommand, "mod-1", Options{})
	if err != nil || !outcome.OK() {
		t.Fatalf("Finalize: %+v %v", outcome, err)
	}
	for _, evt := range history.Since(0, 0) {
		if evt.Fields[logging.FieldEventType] == "notification_failed" && evt.Level == slog.LevelWarn.String() {
			return
		}
	}
	t.Fatal("expected a notification_failed warning")
}
