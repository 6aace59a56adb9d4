// Package pipeline turns form rows into application posts.
//
// Ingest snapshots unseen rows into post jobs. ProcessQueuedPostJobs drains
// the queue in (row index, job sequence, created at) order and posts one
// message per pending track. A job that fails stays at the head of the queue
// with its error recorded and blocks every job behind it until the cause is
// fixed or an operator clears it. Before posting, recent channel history is
// searched for the job's marker so a restart after a partial post reuses the
// earlier message instead of posting twice.
//
// Only one drain pass runs at a time; a concurrent call reports busy.
package pipeline
