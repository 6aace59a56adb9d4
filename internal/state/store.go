package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"intake/internal/config"
)

var (
	// ErrLocked indicates another process holds the state lock.
	ErrLocked = errors.New("state store is locked by another process")
	// ErrNoChange may be returned from an Update function to skip the save.
	ErrNoChange = errors.New("state unchanged")
)

// Backend persists the encoded document. Load returns nil data when nothing
// has been saved yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Path() string
	Close() error
}

// Store is the single writer for the state document.
type Store struct {
	mu      sync.Mutex
	backend Backend
	lock    *flock.Flock
	doc     *Document
	now     func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the timestamp source for UpdatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open acquires the single-writer lock, opens the configured backend, and
// loads the document.
func Open(ctx context.Context, cfg *config.Config, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, cfg.LockPath())
	}

	var backend Backend
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		backend, err = OpenSQLiteBackend(ctx, cfg.StatePath())
	default:
		backend = NewFileBackend(cfg.StatePath())
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	store, err := OpenWithBackend(ctx, backend, opts...)
	if err != nil {
		_ = backend.Close()
		_ = lock.Unlock()
		return nil, err
	}
	store.lock = lock
	return store, nil
}

// OpenWithBackend loads the document from backend without taking the
// process lock.
func OpenWithBackend(ctx context.Context, backend Backend, opts ...StoreOption) (*Store, error) {
	s := &Store{backend: backend, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	data, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state from %s: %w", backend.Path(), err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load state from %s: %w", backend.Path(), err)
	}
	s.doc = doc
	return s, nil
}

// Path reports where the document is persisted.
func (s *Store) Path() string {
	return s.backend.Path()
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// View runs fn against the cached document under the store lock. fn must not
// retain or mutate the document.
func (s *Store) View(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Update applies fn to a working copy, persists the whole document, and only
// then replaces the cached copy. If fn or the save fails, nothing changes.
// fn returning ErrNoChange discards the working copy and Update returns nil.
func (s *Store) Update(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.doc.Clone()
	if err := fn(working); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	working.Revision = s.doc.Revision + 1
	working.UpdatedAt = s.now().UTC()

	data, err := working.Encode()
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("persist state to %s: %w", s.backend.Path(), err)
	}
	s.doc = working
	return nil
}

// Close releases the backend and the process lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.backend != nil {
		errs = append(errs, s.backend.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
		s.lock = nil
	}
	return errors.Join(errs...)
}

// FileBackend stores the document as JSON, replacing the file atomically.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

// Save writes to a temp file in the same directory, syncs it, and renames it
// over the document.
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
