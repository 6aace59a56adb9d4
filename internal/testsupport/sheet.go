package testsupport

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

// StaticSheet serves rows from memory.
type StaticSheet struct {
	mu    sync.Mutex
	rows  [][]string
	err   error
	reads int
}

// NewStaticSheet returns a sheet holding a header row followed by data rows.
func NewStaticSheet(headers []string, rows ...[]string) *StaticSheet {
	s := &StaticSheet{}
	s.Set(headers, rows...)
	return s
}

// Set replaces the sheet contents.
func (s *StaticSheet) Set(headers []string, rows ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([][]string{slices.Clone(headers)}, cloneRows(rows)...)
}

// Append adds data rows.
func (s *StaticSheet) Append(rows ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, cloneRows(rows)...)
}

// Fail makes subsequent reads return err. Pass nil to clear.
func (s *StaticSheet) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Reads reports how many times ReadAll was called.
func (s *StaticSheet) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ReadAll implements sheet.Reader.
func (s *StaticSheet) ReadAll(context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	return cloneRows(s.rows), nil
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = slices.Clone(row)
	}
	return out
}

// WriteCSV writes rows to path as CSV, creating parent directories.
func WriteCSV(t testing.TB, path string, rows [][]string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		t.Fatalf("write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}
