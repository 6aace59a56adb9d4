package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"intake/internal/chat"
	"intake/internal/logging"
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/state"
)

const dateLayout = "2006-01-02"

// Digest is the summary of one UTC day.
type Digest struct {
	Date         string `json:"date"`
	Created      int    `json:"created"`
	Accepted     int    `json:"accepted"`
	Denied       int    `json:"denied"`
	StalePending int    `json:"stalePending"`
}

// Summarize counts the applications created and decided on day (UTC) plus
// the pending applications older than staleAfter at now.
func Summarize(doc *state.Document, day, now time.Time, staleAfter time.Duration) Digest {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	within := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }

	digest := Digest{Date: start.Format(dateLayout)}
	for _, app := range doc.Applications {
		if within(app.CreatedAt) {
			digest.Created++
		}
		if app.DecidedAt != nil && within(*app.DecidedAt) {
			switch app.Status {
			case state.StatusAccepted:
				digest.Accepted++
			case state.StatusDenied:
				digest.Denied++
			}
		}
		if app.Status == state.StatusPending && now.Sub(app.CreatedAt) >= staleAfter {
			digest.StalePending++
		}
	}
	return digest
}

// DigestDue reports whether the digest for now's UTC day should be sent.
func DigestDue(doc *state.Document, now time.Time, hourUTC int) bool {
	now = now.UTC()
	if now.Hour() < hourUTC {
		return false
	}
	return doc.Digest.LastDigestDate != now.Format(dateLayout)
}

// SendDigest posts the previous day's digest at most once per UTC day. It
// returns nil when the digest is disabled or not yet due.
func (s *Sweeper) SendDigest(ctx context.Context) (*Digest, error) {
	if !s.cfg.Digest.Enabled {
		return nil, nil
	}
	channelID := s.cfg.Digest.ChannelID
	if channelID == "" {
		channelID = s.cfg.Chat.LogChannelID
	}
	if channelID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "reminders", "digest", "no digest or log channel configured", nil)
	}
	now := s.now().UTC()
	doc := s.store.Snapshot()
	if !DigestDue(doc, now, s.cfg.Digest.HourUTC) {
		return nil, nil
	}
	today := now.Format(dateLayout)
	digest := Summarize(doc, now.Add(-24*time.Hour), now, time.Duration(s.cfg.Reminders.ThresholdHours)*time.Hour)

	_, err := retry.Do(ctx, s.policy, "digest", func(ctx context.Context) (chat.Message, error) {
		return s.chat.SendMessage(ctx, channelID, digestMessage(digest))
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "reminders", "digest", "failed to post daily digest", err)
	}
	err = s.store.Update(ctx, func(doc *state.Document) error {
		doc.Digest.LastDigestDate = today
		doc.Counters.DigestsSent++
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("digest sent",
		logging.String(logging.FieldEventType, "digest_sent"),
		logging.String("date", digest.Date),
		logging.Int("created", digest.Created),
		logging.Int("accepted", digest.Accepted),
		logging.Int("denied", digest.Denied),
		logging.Int("stale_pending", digest.StalePending),
	)
	return &digest, nil
}

func digestMessage(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Application digest for %s**\n", d.Date)
	fmt.Fprintf(&b, "New: %d\nAccepted: %d\nDenied: %d\n", d.Created, d.Accepted, d.Denied)
	fmt.Fprintf(&b, "Pending past the reminder threshold: %d", d.StalePending)
	return b.String()
}
