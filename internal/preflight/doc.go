// Package preflight provides readiness checks for the filesystem paths and
// external services intake depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at startup and logs every failing check
//     with a hint, then serves LocalChecks through /api/status.
//   - The CLI "intake config validate --online" runs RunAll to confirm the
//     sheet and chat token work before the daemon is started.
//
// Local checks never touch the network. Online checks use short timeouts and
// a single attempt.
package preflight
