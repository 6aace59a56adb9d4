// Package workflow schedules the daemon's recurring work.
//
// The Manager runs one lane per recurring job: the poll lane ingests the sheet
// and drains the post queue every poll interval, and the sweep lane sends
// reminders and the daily digest every sweep interval. Lanes never touch the
// store themselves; each tick is submitted to the event dispatcher so it is
// serialized with reaction events and operator commands.
//
// A lane that fails waits the error retry interval before its next tick and
// records the failure for Status.
package workflow
