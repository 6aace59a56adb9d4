// Package logging assembles structured slog loggers and formatting helpers used
// across intake components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with job IDs, application IDs, track keys, and correlation IDs. A
// bounded History buffer keeps recent events for the control API, and a no-op
// logger serves tests and wiring code that cannot fail.
package logging
