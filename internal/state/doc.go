// Package state owns the persisted intake document: applications keyed by
// posted message id, the post job queue, per-track settings, audit counters,
// and digest bookkeeping.
//
// The document is always read and written whole. Store keeps an in-memory
// copy, hands out deep-copied snapshots, and applies mutations through
// Update, which persists the full document before the cached copy changes.
// Two backends exist: a JSON file written via temp-file-then-rename and a
// single-row SQLite table. A lock file enforces one writer process.
//
// JSON field names are shared with the admin panel; treat them as a wire
// format.
package state
