// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Callers publish
// enumerated events with a loose payload; the service decides whether the
// event is enabled and how it is worded.
//
// Repeated queue_blocked alerts for the same job and error are suppressed
// inside the configured dedup window so a stuck head job does not page the
// operator on every poll.
package notifications
