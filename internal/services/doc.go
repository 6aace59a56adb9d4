// Package services defines shared helpers consumed by the pipeline, decision,
// and reminder components and by their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, application IDs, track keys, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     configuration problems (operator action), transient backend errors, or
//     unexpected faults.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the daemon.
package services
