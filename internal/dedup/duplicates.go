package dedup

import (
	"slices"
	"strings"
	"time"

	"intake/internal/state"
	"intake/internal/textutil"
)

// Duplicate match reasons.
const (
	ReasonSameIdentity    = "same identity"
	ReasonSameResponse    = "same response fingerprint"
	ReasonSameAnswers     = "same answered fields"
	DefaultDuplicateLimit = 5
)

// Candidate describes a new submission being checked against history.
type Candidate struct {
	ApplicationID string
	JobID         string
	UserID        string
	Name          string
	ResponseKey   string
	Fingerprint   string
}

// Window bounds a duplicate search.
type Window struct {
	LookbackDays int // <= 0 searches all history
	Now          time.Time
	Limit        int // <= 0 uses DefaultDuplicateLimit
}

// FindDuplicateApplications returns earlier applications that look like the
// candidate, most recent first. Applications from the candidate's own job are
// ignored so one row posted to several tracks does not flag itself.
func FindDuplicateApplications(apps []*state.Application, candidate Candidate, window Window) []state.DuplicateSignal {
	limit := window.Limit
	if limit <= 0 {
		limit = DefaultDuplicateLimit
	}
	var cutoff time.Time
	if window.LookbackDays > 0 {
		cutoff = window.Now.Add(-time.Duration(window.LookbackDays) * 24 * time.Hour)
	}
	name := textutil.Key(candidate.Name)

	var signals []state.DuplicateSignal
	for _, app := range apps {
		if app == nil || app.ID == candidate.ApplicationID {
			continue
		}
		if candidate.JobID != "" && app.JobID == candidate.JobID {
			continue
		}
		if !cutoff.IsZero() && app.CreatedAt.Before(cutoff) {
			continue
		}
		var reasons []string
		switch {
		case candidate.UserID != "" && app.ApplicantUserID != "" && strings.EqualFold(candidate.UserID, app.ApplicantUserID):
			reasons = append(reasons, ReasonSameIdentity)
		case candidate.UserID == "" || app.ApplicantUserID == "":
			if name != "" && name == textutil.Key(app.ApplicantName) {
				reasons = append(reasons, ReasonSameIdentity)
			}
		}
		if candidate.ResponseKey != "" && candidate.ResponseKey == app.ResponseKey {
			reasons = append(reasons, ReasonSameResponse)
		}
		if candidate.Fingerprint != "" && candidate.Fingerprint == app.SubmittedFieldsFingerprint {
			reasons = append(reasons, ReasonSameAnswers)
		}
		if len(reasons) == 0 {
			continue
		}
		signals = append(signals, state.DuplicateSignal{
			ApplicationID: app.ID,
			TrackKey:      app.TrackKey,
			Status:        app.Status,
			Reasons:       reasons,
			CreatedAt:     app.CreatedAt,
		})
	}
	slices.SortStableFunc(signals, func(a, b state.DuplicateSignal) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ApplicationID, b.ApplicationID)
	})
	if len(signals) > limit {
		signals = signals[:limit]
	}
	return signals
}
