package preflight

import (
	"context"

	"intake/internal/config"
	"intake/internal/sheet"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// LocalChecks runs the checks that need no network access.
func LocalChecks(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckChatCredentials(cfg.Chat),
		CheckTrackDestinations(cfg.Tracks),
	}
}

// RunAll executes the local checks plus the sheet and chat probes. A nil
// reader or identity skips that probe.
func RunAll(ctx context.Context, cfg *config.Config, reader sheet.Reader, identity Identity) []Result {
	if cfg == nil {
		return nil
	}
	results := LocalChecks(cfg)
	if reader != nil {
		results = append(results, CheckSheet(ctx, reader))
	}
	if identity != nil {
		results = append(results, CheckChat(ctx, identity))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
