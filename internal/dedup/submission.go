package dedup

import (
	"strings"

	"intake/internal/textutil"
)

// Field is one answered question.
type Field struct {
	Key   string
	Value string
}

// Submission is a form row with its identifying columns picked out.
type Submission struct {
	Timestamp      string
	IdentityID     string
	IdentityName   string
	InGameName     string
	TrackSelection string
	Fields         []Field

	timestampColumn int
	trackColumn     int
}

type column int

const (
	columnOther column = iota
	columnTimestamp
	columnIdentityID
	columnInGameName
	columnTrack
	columnIdentityName
)

// classifyHeader maps a header to the identifying column it most likely holds.
// Headers are compared with spacing and punctuation removed so "Applying For:"
// and "ApplyingFor" are the same.
func classifyHeader(header string) column {
	compact := strings.ReplaceAll(textutil.Key(header), " ", "")
	switch {
	case compact == "":
		return columnOther
	case strings.Contains(compact, "timestamp"), compact == "submittedat", compact == "datesubmitted":
		return columnTimestamp
	case strings.HasSuffix(compact, "userid"), strings.Contains(compact, "discordid"), compact == "id", compact == "snowflake":
		return columnIdentityID
	case strings.Contains(compact, "ingame"), compact == "ign", strings.Contains(compact, "minecraft"), strings.Contains(compact, "gamertag"):
		return columnInGameName
	case strings.Contains(compact, "applyingfor"), strings.Contains(compact, "track"), compact == "position", compact == "role", strings.Contains(compact, "whichteam"):
		return columnTrack
	case strings.Contains(compact, "discord"), strings.Contains(compact, "username"), compact == "name", strings.HasSuffix(compact, "name"):
		return columnIdentityName
	default:
		return columnOther
	}
}

// Parse picks identifying columns out of a row. The first matching header
// for each column wins. Rows shorter than the headers read as blank cells.
func Parse(headers, row []string) Submission {
	sub := Submission{timestampColumn: -1, trackColumn: -1}
	for i, header := range headers {
		value := ""
		if i < len(row) {
			value = strings.TrimSpace(row[i])
		}
		kind := classifyHeader(header)
		switch kind {
		case columnTimestamp:
			if sub.timestampColumn < 0 {
				sub.timestampColumn = i
				sub.Timestamp = value
			}
		case columnIdentityID:
			if sub.IdentityID == "" {
				sub.IdentityID = value
			}
		case columnInGameName:
			if sub.InGameName == "" {
				sub.InGameName = value
			}
		case columnTrack:
			if sub.trackColumn < 0 {
				sub.trackColumn = i
				sub.TrackSelection = value
			}
		case columnIdentityName:
			if sub.IdentityName == "" {
				sub.IdentityName = value
			}
		}
		if value == "" {
			continue
		}
		sub.Fields = append(sub.Fields, Field{Key: strings.TrimSpace(header), Value: value})
	}
	return sub
}

// HasTimestamp reports whether the row came from a sheet with a timestamp column.
func (s Submission) HasTimestamp() bool {
	return s.timestampColumn >= 0
}

// AnsweredFields returns the answers without the timestamp and track
// selection, so resubmissions of the same answers compare equal.
func (s Submission) AnsweredFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, field := range s.Fields {
		switch classifyHeader(field.Key) {
		case columnTimestamp, columnTrack:
			continue
		}
		out = append(out, field)
	}
	return out
}

// DisplayName returns the best human name for the applicant.
func (s Submission) DisplayName() string {
	switch {
	case s.IdentityName != "":
		return s.IdentityName
	case s.InGameName != "":
		return s.InGameName
	case s.IdentityID != "":
		return s.IdentityID
	default:
		return "Unknown applicant"
	}
}

// HasTimestampColumn reports whether any header looks like a timestamp.
func HasTimestampColumn(headers []string) bool {
	for _, header := range headers {
		if classifyHeader(header) == columnTimestamp {
			return true
		}
	}
	return false
}
