package dedup_test

import (
	"strings"
	"testing"
	"time"

	"intake/internal/dedup"
	"intake/internal/state"
)

var aliceHeaders = []string{"Timestamp", "Name", "ApplyingFor", "Why do you want to join?"}

func TestParsePicksIdentifyingColumns(t *testing.T) {
	headers := []string{"Timestamp", "Discord Username", "Discord ID", "In-game name", "Which role are you applying for?", "Age"}
	row := []string{"2024-01-01T00:00:00Z", "alice#1", "1234", "AliceMC", "Tester", "20"}
	sub := dedup.Parse(headers, row)
	if sub.Timestamp != row[0] || sub.IdentityName != "alice#1" || sub.IdentityID != "1234" || sub.InGameName != "AliceMC" || sub.TrackSelection != "Tester" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if !sub.HasTimestamp() {
		t.Fatal("expected timestamp column to be detected")
	}
	answered := sub.AnsweredFields()
	for _, field := range answered {
		if field.Key == "Timestamp" || strings.HasPrefix(field.Key, "Which role") {
			t.Fatalf("answered fields should skip %q", field.Key)
		}
	}
	if len(answered) != 4 {
		t.Fatalf("expected 4 answered fields, got %d", len(answered))
	}
}

func TestResponseKeyWithTimestamp(t *testing.T) {
	row := []string{"2024-01-01T00:00:00Z", "Alice", "Tester", "I like testing"}
	key := dedup.ResponseKey(aliceHeaders, row)
	if key != "2024-01-01t00:00:00z||alice||tester" {
		t.Fatalf("unexpected key %q", key)
	}
	edited := []string{"2024-01-01T00:00:00Z", "  ALICE ", "Tester", "Changed my answer"}
	if got := dedup.ResponseKey(aliceHeaders, edited); got != key {
		t.Fatalf("expected identifying fields to drive the key, got %q", got)
	}
}

func TestResponseKeyWithoutTimestamp(t *testing.T) {
	headers := []string{"Name", "Track", "Notes"}
	key := dedup.ResponseKey(headers, []string{"Bob", "", "Hello  World"})
	if key != "bob|hello world" {
		t.Fatalf("unexpected key %q", key)
	}
	if dedup.HasTimestampColumn(headers) {
		t.Fatal("did not expect a timestamp column")
	}
	if !dedup.HasTimestampColumn(aliceHeaders) {
		t.Fatal("expected a timestamp column")
	}
}

func TestFingerprintNormalizes(t *testing.T) {
	a := dedup.SubmittedFieldsFingerprint([]dedup.Field{{Key: "Name", Value: "Alice"}, {Key: "Why", Value: "Because  I can"}})
	b := dedup.SubmittedFieldsFingerprint([]dedup.Field{{Key: "name", Value: " ALICE"}, {Key: "Why", Value: "because i can"}, {Key: "Extra", Value: ""}})
	if a == "" || a != b {
		t.Fatalf("expected equal fingerprints, got %q and %q", a, b)
	}
	c := dedup.SubmittedFieldsFingerprint([]dedup.Field{{Key: "Why", Value: "Because I can"}, {Key: "Name", Value: "Alice"}})
	if c == a {
		t.Fatal("expected field order to matter")
	}
	if dedup.SubmittedFieldsFingerprint(nil) != "" {
		t.Fatal("expected empty fingerprint for no fields")
	}
}

func TestPostMarker(t *testing.T) {
	keyed := dedup.PostMarker("k", "fp", 2, "tester")
	if !strings.HasPrefix(keyed, "intake:") || len(keyed) != len("intake:")+16 {
		t.Fatalf("unexpected marker %q", keyed)
	}
	if keyed == dedup.PostMarker("k", "fp", 2, "builder") {
		t.Fatal("expected marker to differ per track")
	}
	if keyed != dedup.PostMarker("k", "other", 9, "tester") {
		t.Fatal("expected keyed marker to ignore row and fingerprint")
	}
	if dedup.PostMarker("", "fp", 2, "tester") == dedup.PostMarker("", "fp", 3, "tester") {
		t.Fatal("expected unkeyed marker to depend on row index")
	}
}

func TestSeen(t *testing.T) {
	doc := state.NewDocument()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if _, err := doc.Enqueue(2, []string{"tester"}, "key-a", []string{"A"}, []string{"x"}, now); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := doc.Enqueue(5, []string{"tester"}, "", []string{"A"}, []string{"y"}, now); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	doc.Applications["m1"] = &state.Application{ID: "m1", RowIndex: 7, ResponseKey: "key-b"}

	seen := dedup.NewSeen(doc)
	tests := []struct {
		row  int
		key  string
		want bool
	}{
		{2, "key-a", true},
		{9, "key-a", true},
		{2, "key-new", false},
		{5, "", true},
		{7, "", false},
		{3, "", false},
		{3, "key-b", true},
	}
	for _, tt := range tests {
		if got := seen.Contains(tt.row, tt.key); got != tt.want {
			t.Errorf("Contains(%d, %q) = %v, want %v", tt.row, tt.key, got, tt.want)
		}
	}
	seen.Add(3, "")
	if !seen.Contains(3, "") {
		t.Fatal("expected added row to be seen")
	}
}

func TestFindDuplicateApplications(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	apps := []*state.Application{
		{ID: "old", ApplicantUserID: "u1", CreatedAt: now.Add(-40 * day)},
		{ID: "user", ApplicantUserID: "u1", TrackKey: "tester", CreatedAt: now.Add(-3 * day), Status: state.StatusDenied},
		{ID: "name", ApplicantName: "Alice!", CreatedAt: now.Add(-2 * day)},
		{ID: "answers", SubmittedFieldsFingerprint: "fp", CreatedAt: now.Add(-1 * day)},
		{ID: "response", ResponseKey: "rk", SubmittedFieldsFingerprint: "fp", CreatedAt: now.Add(-4 * day)},
		{ID: "sibling", JobID: "job-000009", ApplicantUserID: "u1", CreatedAt: now},
		{ID: "other", ApplicantUserID: "u2", ApplicantName: "alice", CreatedAt: now.Add(-1 * day)},
	}
	candidate := dedup.Candidate{
		ApplicationID: "new",
		JobID:         "job-000009",
		UserID:        "u1",
		Name:          "alice",
		ResponseKey:   "rk",
		Fingerprint:   "fp",
	}
	got := dedup.FindDuplicateApplications(apps, candidate, dedup.Window{LookbackDays: 30, Now: now})
	ids := make([]string, 0, len(got))
	for _, signal := range got {
		ids = append(ids, signal.ApplicationID)
	}
	want := []string{"answers", "name", "user", "response"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected duplicates %v, want %v", ids, want)
	}
	if reasons := strings.Join(got[3].Reasons, ","); reasons != dedup.ReasonSameResponse+","+dedup.ReasonSameAnswers {
		t.Fatalf("unexpected reasons %q", reasons)
	}
	if got[2].Status != state.StatusDenied || got[2].TrackKey != "tester" {
		t.Fatalf("expected signal to carry status and track, got %+v", got[2])
	}

	capped := dedup.FindDuplicateApplications(apps, candidate, dedup.Window{Now: now, Limit: 2})
	if len(capped) != 2 {
		t.Fatalf("expected limit to cap results, got %d", len(capped))
	}
}

func TestFindDuplicateApplicationsCapsAtFive(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var apps []*state.Application
	for i := range 8 {
		apps = append(apps, &state.Application{
			ID:              string(rune('a' + i)),
			ApplicantUserID: "u1",
			CreatedAt:       now.Add(-time.Duration(i) * time.Hour),
		})
	}
	got := dedup.FindDuplicateApplications(apps, dedup.Candidate{UserID: "u1"}, dedup.Window{LookbackDays: 30, Now: now})
	if len(got) != dedup.DefaultDuplicateLimit {
		t.Fatalf("expected %d results, got %d", dedup.DefaultDuplicateLimit, len(got))
	}
	if got[0].ApplicationID != "a" || got[4].ApplicationID != "e" {
		t.Fatalf("expected most recent first, got %+v", got)
	}
}
