// Package decision implements the application state machine: finalizing a
// decision, evaluating reaction votes against a track's quorum rule, and
// reopening a decided application.
//
// Entry points re-check the application's status before acting, so a
// duplicate trigger becomes a typed Failure instead of a second round of side
// effects. Side effects run after the decision is committed and are recorded
// on the application whether or not they succeed.
package decision
