// Package api defines the wire-format types, converters, and HTTP client for
// the daemon control API. It translates internal state models into
// transport-friendly DTOs so the CLI can render them without holding the
// state lock.
//
// # Key Types
//
// JobItem: transport representation of a queued post job, including which
// tracks are still pending and the last recorded failure.
//
// ApplicationItem: a posted application with its decision, reminder, and
// side-effect history.
//
// StatusResponse: daemon running state, queue depth, audit counters, and
// scheduler lane health.
//
// # Converters
//
// FromJob, FromApplication, FromStatusSummary, and FromLogEvents map the
// internal models onto their DTOs. Results of dispatcher operations
// (poll, finalize, vote) are passed through as-is since they already carry
// camelCase JSON tags.
//
// # Client
//
// Client wraps the daemon's HTTP endpoints with bearer token auth.
// IsUnavailable distinguishes "daemon not running" from request failures.
package api
