package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"intake/internal/chat"
	"intake/internal/config"
	"intake/internal/testsupport"
)

type identityFunc func(context.Context) (chat.User, error)

func (f identityFunc) CurrentUser(ctx context.Context) (chat.User, error) { return f(ctx) }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckChat(t *testing.T) {
	ok := CheckChat(context.Background(), identityFunc(func(context.Context) (chat.User, error) {
		return chat.User{ID: "1", Username: "intake-bot"}, nil
	}))
	if !ok.Passed || !strings.Contains(ok.Detail, "intake-bot") {
		t.Fatalf("expected pass naming the bot, got %+v", ok)
	}

	denied := CheckChat(context.Background(), identityFunc(func(context.Context) (chat.User, error) {
		return chat.User{}, &chat.APIError{Status: 401, Message: "401: Unauthorized"}
	}))
	if denied.Passed || !strings.Contains(denied.Detail, "invalid bot token") {
		t.Fatalf("expected auth failure, got %+v", denied)
	}

	timeout := CheckChat(context.Background(), identityFunc(func(context.Context) (chat.User, error) {
		return chat.User{}, context.DeadlineExceeded
	}))
	if timeout.Passed || timeout.Detail != "check timed out" {
		t.Fatalf("expected timeout detail, got %+v", timeout)
	}
}

func TestCheckSheet(t *testing.T) {
	sheet := testsupport.NewStaticSheet([]string{"Timestamp", "Name"}, []string{"t1", "Alice"})
	result := CheckSheet(context.Background(), sheet)
	if !result.Passed || result.Detail != "2 columns, 1 responses" {
		t.Fatalf("unexpected result %+v", result)
	}

	sheet.Fail(errors.New("403 forbidden"))
	result = CheckSheet(context.Background(), sheet)
	if result.Passed || result.Detail != "403 forbidden" {
		t.Fatalf("expected read failure, got %+v", result)
	}
}

func TestCheckTrackDestinations(t *testing.T) {
	result := CheckTrackDestinations([]config.Track{{Key: "tester", ChannelID: "c1"}, {Key: "builder"}})
	if result.Passed || !strings.Contains(result.Detail, "builder") {
		t.Fatalf("expected missing builder channel, got %+v", result)
	}
	if result := CheckTrackDestinations(nil); result.Passed {
		t.Fatal("expected failure with no tracks")
	}
}

func TestLocalChecks_MissingDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTrack("tester", "Tester", "c1"))
	results := LocalChecks(cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected state and log dir to fail before creation, got %+v", failed)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if failed := Failed(LocalChecks(cfg)); len(failed) != 0 {
		t.Fatalf("expected all local checks to pass, got %+v", failed)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil, nil); results != nil {
		t.Fatalf("expected nil results, got %+v", results)
	}
}

func TestRunAll_SkipsNilProbes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTrack("tester", "Tester", "c1"))
	results := RunAll(context.Background(), cfg, nil, nil)
	for _, result := range results {
		if result.Name == "Response sheet" || result.Name == "Chat API" {
			t.Fatalf("unexpected probe %q", result.Name)
		}
	}
}
