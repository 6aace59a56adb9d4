package testsupport

import (
	"context"
	"testing"

	"intake/internal/config"
	"intake/internal/state"
)

// MustOpenStore opens the state store for tests, syncs the configured tracks,
// and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if len(cfg.Tracks) > 0 {
		err := store.Update(context.Background(), func(doc *state.Document) error {
			doc.SyncTracks(cfg.Tracks)
			return nil
		})
		if err != nil {
			t.Fatalf("sync tracks: %v", err)
		}
	}
	return store
}

// MustUpdate applies fn to the store and fails the test on error.
func MustUpdate(t testing.TB, store *state.Store, fn func(doc *state.Document) error) {
	t.Helper()
	if err := store.Update(context.Background(), fn); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
}
