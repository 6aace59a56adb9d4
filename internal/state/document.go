package state

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// SchemaVersion is written into every document.
const SchemaVersion = 1

// Counters are the audit totals kept alongside the document.
type Counters struct {
	NextJobSequence   int `json:"nextJobSequence"`
	JobsEnqueued      int `json:"jobsEnqueued"`
	PostsCreated      int `json:"postsCreated"`
	PostsReused       int `json:"postsReused"`
	JobsCleared       int `json:"jobsCleared"`
	DecisionsAccepted int `json:"decisionsAccepted"`
	DecisionsDenied   int `json:"decisionsDenied"`
	Reopens           int `json:"reopens"`
	RemindersSent     int `json:"remindersSent"`
	DigestsSent       int `json:"digestsSent"`
}

// DigestState gates the once-per-day digest.
type DigestState struct {
	LastDigestDate string `json:"lastDigestDate,omitempty"` // YYYY-MM-DD, UTC
}

// ClearedRow remembers a job removed by an operator so the row is not queued
// again on the next poll.
type ClearedRow struct {
	JobID       string    `json:"jobId"`
	RowIndex    int       `json:"rowIndex"`
	ResponseKey string    `json:"responseKey,omitempty"`
	ClearedAt   time.Time `json:"clearedAt"`
}

// Document is the whole persisted state.
type Document struct {
	Version      int                     `json:"version"`
	Revision     int64                   `json:"revision"`
	UpdatedAt    time.Time               `json:"updatedAt"`
	Applications map[string]*Application `json:"applications"`
	PostJobs     []PostJob               `json:"postJobs"`
	Tracks       []TrackSettings         `json:"tracks"`
	ClearedRows  []ClearedRow            `json:"clearedRows,omitempty"`
	Counters     Counters                `json:"counters"`
	Digest       DigestState             `json:"digest"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Version:      SchemaVersion,
		Applications: make(map[string]*Application),
		PostJobs:     []PostJob{},
		Tracks:       []TrackSettings{},
	}
}

// Decode parses a persisted document, filling nil collections.
func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse state document: %w", err)
	}
	if doc.Version > SchemaVersion {
		return nil, fmt.Errorf("state document version %d is newer than supported version %d", doc.Version, SchemaVersion)
	}
	doc.Version = SchemaVersion
	if doc.Applications == nil {
		doc.Applications = make(map[string]*Application)
	}
	if doc.PostJobs == nil {
		doc.PostJobs = []PostJob{}
	}
	if doc.Tracks == nil {
		doc.Tracks = []TrackSettings{}
	}
	for id, app := range doc.Applications {
		if app == nil {
			delete(doc.Applications, id)
			continue
		}
		if app.ID == "" {
			app.ID = id
		}
	}
	return doc, nil
}

// Encode renders the document as indented JSON.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state document: %w", err)
	}
	return data, nil
}

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	data, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("state: clone document: %v", err))
	}
	clone, err := Decode(data)
	if err != nil {
		panic(fmt.Sprintf("state: clone document: %v", err))
	}
	return clone
}

// Track returns the settings for key, or nil.
func (d *Document) Track(key string) *TrackSettings {
	for i := range d.Tracks {
		if d.Tracks[i].Key == key {
			return &d.Tracks[i]
		}
	}
	return nil
}

// Application returns the application with id, or nil.
func (d *Document) Application(id string) *Application {
	return d.Applications[id]
}

// Job returns the queued job with id, or nil.
func (d *Document) Job(id string) *PostJob {
	for i := range d.PostJobs {
		if d.PostJobs[i].ID == id {
			return &d.PostJobs[i]
		}
	}
	return nil
}

// SortedJobs returns a copy of the queue in drain order.
func (d *Document) SortedJobs() []PostJob {
	jobs := slices.Clone(d.PostJobs)
	SortJobs(jobs)
	return jobs
}

// Enqueue appends a job, assigning the next sequence.
func (d *Document) Enqueue(rowIndex int, trackKeys []string, responseKey string, headers, row []string, now time.Time) (PostJob, error) {
	job, err := NewPostJob(d.Counters.NextJobSequence+1, rowIndex, trackKeys, responseKey, headers, row, now)
	if err != nil {
		return PostJob{}, err
	}
	d.Counters.NextJobSequence++
	d.Counters.JobsEnqueued++
	d.PostJobs = append(d.PostJobs, job)
	return job, nil
}

// RemoveJob drops a job from the queue and reports whether it was present.
func (d *Document) RemoveJob(id string) bool {
	for i := range d.PostJobs {
		if d.PostJobs[i].ID == id {
			d.PostJobs = slices.Delete(d.PostJobs, i, i+1)
			return true
		}
	}
	return false
}

// ApplicationsByStatus returns applications with the given status, oldest
// first. An empty status returns every application.
func (d *Document) ApplicationsByStatus(status Status) []*Application {
	out := make([]*Application, 0, len(d.Applications))
	for _, app := range d.Applications {
		if status == "" || app.Status == status {
			out = append(out, app)
		}
	}
	slices.SortFunc(out, func(a, b *Application) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}
