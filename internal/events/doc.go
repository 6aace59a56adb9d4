// Package events serializes every state-changing trigger through one
// goroutine. Reaction changes, operator commands, scheduled polls and sweeps
// are submitted as events; the dispatcher runs them one at a time against
// the pipeline, decision machine and reminder sweeper.
package events
