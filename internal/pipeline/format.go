package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"intake/internal/chat"
	"intake/internal/dedup"
	"intake/internal/state"
	"intake/internal/textutil"
)

const (
	messageLimit     = 2000
	answerLimit      = 300
	headerFieldLimit = 150
	threadNameLimit  = 100
	placeholderAppID = "pending"

	elidedLine = "…\n"
)

type postContent struct {
	trackLabel  string
	submission  dedup.Submission
	applicantID string
	jobID       string
	rowIndex    int
	marker      string
	acceptEmoji string
	denyEmoji   string
}

// render builds the post body for an application id. The footer carrying the
// application id and marker is never truncated, and the result never exceeds
// messageLimit runes.
func (c postContent) render(applicationID string) string {
	var header strings.Builder
	fmt.Fprintf(&header, "**%s application: %s**\n",
		textutil.Truncate(c.trackLabel, headerFieldLimit),
		textutil.Truncate(c.submission.DisplayName(), headerFieldLimit))
	if c.applicantID != "" {
		fmt.Fprintf(&header, "Applicant: %s\n", chat.Mention(c.applicantID))
	}
	fmt.Fprintf(&header, "Row %d | %s\n\n", c.rowIndex, c.jobID)

	footer := fmt.Sprintf("\nVote with %s to accept or %s to deny.\n-# Application %s | %s", c.acceptEmoji, c.denyEmoji, applicationID, c.marker)

	budget := messageLimit - runeLen(header.String()) - runeLen(footer)
	ellipsis := runeLen(elidedLine)
	var body strings.Builder
	used := 0
	for i, field := range c.submission.Fields {
		line := fmt.Sprintf("**%s**\n%s\n", textutil.Truncate(field.Key, answerLimit/2), textutil.Truncate(field.Value, answerLimit))
		n := runeLen(line)
		last := i == len(c.submission.Fields)-1
		if used+n > budget || (!last && used+n+ellipsis > budget) {
			if used+ellipsis <= budget {
				body.WriteString(elidedLine)
			}
			break
		}
		body.WriteString(line)
		used += n
	}
	lead := clampRunes(header.String()+body.String(), messageLimit-runeLen(footer))
	return lead + footer
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// clampRunes cuts s to at most limit runes.
func clampRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func threadName(label string, sub dedup.Submission) string {
	return textutil.Truncate(fmt.Sprintf("%s: %s", label, sub.DisplayName()), threadNameLimit)
}

func reviewerMessage(reviewers []string) string {
	mentions := make([]string, 0, len(reviewers))
	for _, id := range reviewers {
		mentions = append(mentions, chat.Mention(id))
	}
	return "Assigned reviewers: " + strings.Join(mentions, " ")
}

func duplicateMessage(signals []state.DuplicateSignal, label func(string) string) string {
	var b strings.Builder
	b.WriteString("⚠️ Possible duplicate of earlier applications:\n")
	for _, signal := range signals {
		fmt.Fprintf(&b, "- %s (%s, %s, %s): %s\n",
			signal.ApplicationID,
			label(signal.TrackKey),
			signal.Status,
			signal.CreatedAt.UTC().Format("2006-01-02"),
			strings.Join(signal.Reasons, ", "))
	}
	b.WriteString("This is advisory only.")
	return b.String()
}
