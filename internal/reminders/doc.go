// Package reminders nudges reviewers about applications left pending and
// posts the once-daily digest.
//
// The sweep never changes an application's status. It only advances reminder
// bookkeeping, the per-track reviewer rotation, and the digest date.
package reminders
