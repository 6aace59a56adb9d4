// Package daemon coordinates the long-running intake process.
//
// It wires the state store, the event dispatcher, the scheduler, and the
// control API into a single lifecycle with flock-based locking to prevent
// multiple instances. Reads served by the API come from store snapshots;
// every mutation is submitted to the dispatcher so it runs serialized with
// the scheduled poll and sweep.
//
// Keep orchestration logic here: posting, decisions, and reminders live in
// their own packages while the daemon focuses on startup, shutdown, and the
// HTTP surface.
package daemon
