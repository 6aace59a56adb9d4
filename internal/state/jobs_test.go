package state_test

import (
	"errors"
	"testing"
	"time"

	"intake/internal/services"
	"intake/internal/state"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewPostJobValidatesAndSnapshots(t *testing.T) {
	headers := []string{"Timestamp", "Name", "Applying For"}
	row := []string{"2024-01-01T00:00:00Z", "Alice"}

	job, err := state.NewPostJob(1, 2, []string{"tester", "tester", " "}, "key", headers, row, baseTime)
	if err != nil {
		t.Fatalf("NewPostJob failed: %v", err)
	}
	if job.ID != "job-000001" {
		t.Fatalf("unexpected id %q", job.ID)
	}
	if len(job.TrackKeys) != 1 || job.TrackKeys[0] != "tester" {
		t.Fatalf("expected deduplicated tracks, got %v", job.TrackKeys)
	}
	if len(job.Row) != len(headers) || job.Row[2] != "" {
		t.Fatalf("expected row padded to headers, got %v", job.Row)
	}
	headers[1] = "Changed"
	if job.Headers[1] != "Name" {
		t.Fatal("expected headers to be copied")
	}

	for name, call := range map[string]func() error{
		"sequence": func() error { _, err := state.NewPostJob(0, 2, []string{"a"}, "", headers, row, baseTime); return err },
		"row":      func() error { _, err := state.NewPostJob(1, 0, []string{"a"}, "", headers, row, baseTime); return err },
		"tracks":   func() error { _, err := state.NewPostJob(1, 2, nil, "", headers, row, baseTime); return err },
		"headers":  func() error { _, err := state.NewPostJob(1, 2, []string{"a"}, "", nil, row, baseTime); return err },
	} {
		if err := call(); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestJobSequenceParsing(t *testing.T) {
	if seq, ok := state.ParseJobSequence("job-000042"); !ok || seq != 42 {
		t.Fatalf("unexpected parse %d %v", seq, ok)
	}
	for _, bad := range []string{"", "job-", "job-abc", "task-000001", "job-000000"} {
		if _, ok := state.ParseJobSequence(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestSortJobsDrainOrder(t *testing.T) {
	jobs := []state.PostJob{
		{ID: "job-000003", RowIndex: 4, CreatedAt: baseTime},
		{ID: "job-000010", RowIndex: 2, CreatedAt: baseTime},
		{ID: "job-000002", RowIndex: 2, CreatedAt: baseTime.Add(time.Hour)},
		{ID: "legacy", RowIndex: 2, CreatedAt: baseTime},
		{ID: "job-000001", RowIndex: 3, CreatedAt: baseTime},
	}
	state.SortJobs(jobs)
	want := []string{"job-000002", "job-000010", "legacy", "job-000001", "job-000003"}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Fatalf("position %d: got %s want %s (all: %v)", i, jobs[i].ID, id, jobs)
		}
	}
}

func TestPostJobProgress(t *testing.T) {
	job, err := state.NewPostJob(5, 3, []string{"tester", "builder"}, "", []string{"Name"}, []string{"Bob"}, baseTime)
	if err != nil {
		t.Fatalf("NewPostJob failed: %v", err)
	}
	if pending := job.PendingTracks(); len(pending) != 2 {
		t.Fatalf("expected two pending tracks, got %v", pending)
	}

	job.RecordFailure(services.Wrap(services.ErrConfiguration, "pipeline", "resolve", "no channel", nil), baseTime)
	if !job.Blocked() || job.Attempts != 1 || job.LastErrorKind != "configuration" {
		t.Fatalf("unexpected failure bookkeeping: %+v", job)
	}

	job.MarkPosted("tester", "m1")
	job.MarkPosted("tester", "m1")
	job.RecordAttempt(baseTime.Add(time.Minute))
	if job.Blocked() || job.Attempts != 2 {
		t.Fatalf("expected cleared error after progress: %+v", job)
	}
	if len(job.PostedTrackKeys) != 1 || job.Done() {
		t.Fatalf("expected one posted track, got %v", job.PostedTrackKeys)
	}
	job.MarkPosted("builder", "m2")
	if !job.Done() {
		t.Fatal("expected job done after all tracks posted")
	}
	if job.PostedMessages["builder"] != "m2" {
		t.Fatalf("expected message id recorded, got %v", job.PostedMessages)
	}
}
