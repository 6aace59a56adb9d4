package state

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"intake/internal/services"
)

const jobIDPrefix = "job-"

// PostJob is one queued spreadsheet row awaiting posts to its tracks.
type PostJob struct {
	ID              string            `json:"jobId"`
	RowIndex        int               `json:"rowIndex"`
	TrackKeys       []string          `json:"trackKeys"`
	PostedTrackKeys []string          `json:"postedTrackKeys"`
	PostedMessages  map[string]string `json:"postedMessageIds,omitempty"`
	ResponseKey     string            `json:"responseKey,omitempty"`
	Headers         []string          `json:"headers"`
	Row             []string          `json:"row"`
	CreatedAt       time.Time         `json:"createdAt"`
	Attempts        int               `json:"attempts"`
	LastAttemptAt   *time.Time        `json:"lastAttemptAt,omitempty"`
	LastError       string            `json:"lastError,omitempty"`
	LastErrorKind   string            `json:"lastErrorKind,omitempty"`
}

// NewPostJob validates inputs and builds a queued job. The headers and row
// are copied so later sheet edits cannot reach the snapshot.
func NewPostJob(sequence, rowIndex int, trackKeys []string, responseKey string, headers, row []string, now time.Time) (PostJob, error) {
	if sequence < 1 {
		return PostJob{}, services.Wrap(services.ErrValidation, "state", "new job", fmt.Sprintf("sequence %d must be positive", sequence), nil)
	}
	if rowIndex < 1 {
		return PostJob{}, services.Wrap(services.ErrValidation, "state", "new job", fmt.Sprintf("row index %d must be 1-based", rowIndex), nil)
	}
	tracks := uniqueOrdered(trackKeys)
	if len(tracks) == 0 {
		return PostJob{}, services.Wrap(services.ErrValidation, "state", "new job", "at least one track is required", nil)
	}
	if len(headers) == 0 {
		return PostJob{}, services.Wrap(services.ErrValidation, "state", "new job", "headers are required", nil)
	}
	cells := make([]string, len(headers))
	copy(cells, row)
	return PostJob{
		ID:              FormatJobID(sequence),
		RowIndex:        rowIndex,
		TrackKeys:       tracks,
		PostedTrackKeys: []string{},
		ResponseKey:     strings.TrimSpace(responseKey),
		Headers:         slices.Clone(headers),
		Row:             cells,
		CreatedAt:       now.UTC(),
	}, nil
}

// FormatJobID renders a sequence as "job-000042".
func FormatJobID(sequence int) string {
	return fmt.Sprintf("%s%06d", jobIDPrefix, sequence)
}

// ParseJobSequence extracts the numeric sequence from a job id. Unparseable
// ids sort after every valid one.
func ParseJobSequence(id string) (int, bool) {
	digits, ok := strings.CutPrefix(id, jobIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// PendingTracks returns the job's tracks not yet posted, in order.
func (j *PostJob) PendingTracks() []string {
	pending := make([]string, 0, len(j.TrackKeys))
	for _, key := range j.TrackKeys {
		if !slices.Contains(j.PostedTrackKeys, key) {
			pending = append(pending, key)
		}
	}
	return pending
}

// MarkPosted records a posted track and its message id. Posted tracks only grow.
func (j *PostJob) MarkPosted(trackKey, messageID string) {
	if !slices.Contains(j.PostedTrackKeys, trackKey) {
		j.PostedTrackKeys = append(j.PostedTrackKeys, trackKey)
	}
	if messageID != "" {
		if j.PostedMessages == nil {
			j.PostedMessages = make(map[string]string)
		}
		j.PostedMessages[trackKey] = messageID
	}
}

// Done reports whether every track has been posted.
func (j *PostJob) Done() bool {
	return len(j.PendingTracks()) == 0
}

// RecordFailure stores retry bookkeeping after a failed attempt.
func (j *PostJob) RecordFailure(err error, at time.Time) {
	at = at.UTC()
	j.Attempts++
	j.LastAttemptAt = &at
	if err != nil {
		j.LastError = err.Error()
		j.LastErrorKind = string(services.Classify(err))
	}
}

// RecordAttempt stores bookkeeping for an attempt that made progress.
func (j *PostJob) RecordAttempt(at time.Time) {
	at = at.UTC()
	j.Attempts++
	j.LastAttemptAt = &at
	j.LastError = ""
	j.LastErrorKind = ""
}

// Blocked reports whether the last attempt failed.
func (j *PostJob) Blocked() bool {
	return j.LastError != ""
}

// Value returns the cell under the header at position i, or "".
func (j *PostJob) Value(i int) string {
	if i < 0 || i >= len(j.Row) {
		return ""
	}
	return j.Row[i]
}

// SortJobs orders jobs by row index, then job sequence, then creation time.
// This order is the drain order.
func SortJobs(jobs []PostJob) {
	sort.SliceStable(jobs, func(a, b int) bool {
		left, right := jobs[a], jobs[b]
		if left.RowIndex != right.RowIndex {
			return left.RowIndex < right.RowIndex
		}
		ls, lok := ParseJobSequence(left.ID)
		rs, rok := ParseJobSequence(right.ID)
		if lok != rok {
			return lok
		}
		if ls != rs {
			return ls < rs
		}
		return left.CreatedAt.Before(right.CreatedAt)
	})
}

func uniqueOrdered(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
