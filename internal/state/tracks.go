package state

import (
	"slices"

	"intake/internal/config"
)

// TrackSettings is the persisted per-track configuration plus the reviewer
// rotation cursor.
type TrackSettings struct {
	Key                   string   `json:"key"`
	Label                 string   `json:"label"`
	Aliases               []string `json:"aliases,omitempty"`
	ChannelID             string   `json:"channelId,omitempty"`
	ApprovedRoleIDs       []string `json:"approvedRoleIds,omitempty"`
	ReviewerIDs           []string `json:"reviewerIds,omitempty"`
	VoteRule              VoteRule `json:"voteRule"`
	ReviewerRotationIndex int      `json:"reviewerRotationIndex"`
}

// NextReviewers returns up to n reviewers starting at the rotation cursor and
// advances the cursor past them.
func (t *TrackSettings) NextReviewers(n int) []string {
	total := len(t.ReviewerIDs)
	if total == 0 || n <= 0 {
		return nil
	}
	if n > total {
		n = total
	}
	start := t.ReviewerRotationIndex % total
	if start < 0 {
		start += total
	}
	picked := make([]string, 0, n)
	for i := range n {
		picked = append(picked, t.ReviewerIDs[(start+i)%total])
	}
	t.ReviewerRotationIndex = (start + n) % total
	return picked
}

// SyncTracks merges configured tracks into the document. Configured values
// win where set; the rotation cursor and tracks known only to the document
// (created from the admin panel) are preserved.
func (d *Document) SyncTracks(tracks []config.Track) {
	for _, cfg := range tracks {
		existing := d.Track(cfg.Key)
		if existing == nil {
			d.Tracks = append(d.Tracks, TrackSettings{Key: cfg.Key})
			existing = &d.Tracks[len(d.Tracks)-1]
		}
		existing.Label = cfg.Label
		if len(cfg.Aliases) > 0 {
			existing.Aliases = slices.Clone(cfg.Aliases)
		}
		if cfg.ChannelID != "" {
			existing.ChannelID = cfg.ChannelID
		}
		if len(cfg.ApprovedRoleIDs) > 0 {
			existing.ApprovedRoleIDs = slices.Clone(cfg.ApprovedRoleIDs)
		}
		if len(cfg.ReviewerIDs) > 0 {
			existing.ReviewerIDs = slices.Clone(cfg.ReviewerIDs)
		}
		existing.VoteRule = VoteRule{
			Numerator:    cfg.VoteNumerator,
			Denominator:  cfg.VoteDenominator,
			MinimumVotes: cfg.VoteMinimum,
		}.Normalized()
		if total := len(existing.ReviewerIDs); total > 0 {
			existing.ReviewerRotationIndex %= total
		} else {
			existing.ReviewerRotationIndex = 0
		}
	}
}
