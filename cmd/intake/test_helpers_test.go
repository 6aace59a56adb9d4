package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"intake/internal/config"
	"intake/internal/daemon"
	"intake/internal/decision"
	"intake/internal/events"
	"intake/internal/logging"
	"intake/internal/pipeline"
	"intake/internal/reminders"
	"intake/internal/retry"
	"intake/internal/state"
	"intake/internal/testsupport"
	"intake/internal/workflow"
)

var testHeaders = []string{"Timestamp", "Name", "Applying For"}

type cliTestEnv struct {
	cfg        *config.Config
	store      *state.Store
	chat       *testsupport.FakeChat
	sheet      *testsupport.StaticSheet
	daemon     *daemon.Daemon
	configPath string
	apiAddr    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithTrack("tester", "Tester", "tester-channel"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		chat:       testsupport.NewFakeChat(),
		sheet:      testsupport.NewStaticSheet(testHeaders),
		configPath: configPath,
	}

	logger := logging.NewNop()
	policy := retry.New(retry.WithSleeper(func(time.Duration) {}))
	posting := pipeline.New(cfg, env.store, env.chat, env.sheet, logger, pipeline.WithRetryPolicy(policy))
	machine := decision.New(cfg, env.store, env.chat, logger, decision.WithRetryPolicy(policy))
	sweeper := reminders.New(cfg, env.store, env.chat, logger, reminders.WithRetryPolicy(policy))
	dispatcher := events.New(posting, machine, sweeper, logger,
		events.WithVoteEmoji(cfg.Chat.AcceptEmoji, cfg.Chat.DenyEmoji))
	wf := workflow.NewManager(cfg, dispatcher, logger,
		workflow.WithLaneInterval("poll", time.Hour),
		workflow.WithLaneInterval("sweep", time.Hour),
	)

	d, err := daemon.New(cfg, env.store, dispatcher, wf, logger,
		daemon.WithHistory(logging.NewHistory(64)),
		daemon.WithBusy(posting.Busy),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})
	env.daemon = d
	env.apiAddr = d.APIAddr()
	return env
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLI(t, args, e.apiAddr, e.configPath)
	return out, err
}

func (e *cliTestEnv) enqueue(t *testing.T, name string) {
	t.Helper()
	testsupport.MustUpdate(t, e.store, func(doc *state.Document) error {
		row := doc.Counters.NextJobSequence + 2
		_, err := doc.Enqueue(row, []string{"tester"}, "key-"+name, testHeaders, []string{"t", name, "Tester"}, time.Now())
		return err
	})
}

func (e *cliTestEnv) seedPending(t *testing.T, id string) {
	t.Helper()
	testsupport.MustUpdate(t, e.store, func(doc *state.Document) error {
		doc.Applications[id] = &state.Application{
			ID:            id,
			ChannelID:     "tester-channel",
			ThreadID:      id,
			Status:        state.StatusPending,
			TrackKey:      "tester",
			JobID:         "job-000001",
			RowIndex:      2,
			ApplicantName: "Alice",
			CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		return nil
	})
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiAddr != "" {
		flags = append(flags, "--api", apiAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\n\n", cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.APIBind)
	fmt.Fprintf(&b, "[sheet]\nsource = %q\n\n", cfg.Sheet.Source)
	fmt.Fprintf(&b, "[chat]\ntoken = %q\nguild_id = %q\n\n", cfg.Chat.Token, cfg.Chat.GuildID)
	fmt.Fprintf(&b, "[retry]\nminimum_wait_ms = 0\njitter_ms = 0\n\n")
	for _, track := range cfg.Tracks {
		fmt.Fprintf(&b, "[[tracks]]\nkey = %q\nlabel = %q\nchannel_id = %q\nvote_numerator = %d\nvote_denominator = %d\nvote_minimum = %d\n\n",
			track.Key, track.Label, track.ChannelID, track.VoteNumerator, track.VoteDenominator, track.VoteMinimum)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
