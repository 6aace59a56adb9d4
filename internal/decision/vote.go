package decision

import (
	"context"

	"intake/internal/chat"
	"intake/internal/logging"
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/state"
	"intake/internal/tracks"
)

// VoteOutcome reports one vote evaluation. Decision is empty when neither
// side reached the threshold or both did (Ambiguous).
type VoteOutcome struct {
	ApplicationID string            `json:"applicationId"`
	Tally         state.VoteContext `json:"tally"`
	Decision      state.Status      `json:"decision,omitempty"`
	Ambiguous     bool              `json:"ambiguous,omitempty"`
	Finalized     *Outcome          `json:"finalized,omitempty"`
	Failure       *Failure          `json:"failure,omitempty"`
}

// EvaluateVote tallies the accept and deny reactions of members who can see
// the post and finalizes the application when exactly one side reaches the
// track threshold. A member reacting on both sides has their votes cancelled.
func (m *Machine) EvaluateVote(ctx context.Context, appID string) (VoteOutcome, error) {
	ctx = services.WithApplicationID(ctx, appID)
	logger := logging.WithContext(ctx, m.logger)
	outcome := VoteOutcome{ApplicationID: appID}

	doc := m.store.Snapshot()
	app := doc.Application(appID)
	if app == nil {
		outcome.Failure = &Failure{Code: UnknownApplication, ApplicationID: appID}
		return outcome, nil
	}
	if app.Status != state.StatusPending {
		outcome.Failure = &Failure{Code: AlreadyDecided, ApplicationID: appID, Status: app.Status}
		return outcome, nil
	}
	rule := state.DefaultVoteRule
	if settings, ok := tracks.FromDocument(doc).Get(app.TrackKey); ok {
		rule = settings.VoteRule.Normalized()
	}

	viewers, err := retry.Do(ctx, m.policy, "channel_viewers", func(ctx context.Context) ([]string, error) {
		return m.chat.ChannelViewers(ctx, app.ChannelID)
	})
	if err != nil {
		return outcome, services.Wrap(services.ErrExternal, "decision", "eligible voters", "failed to list channel members", err)
	}
	eligible := make(map[string]struct{}, len(viewers))
	for _, id := range viewers {
		eligible[id] = struct{}{}
	}

	accept, err := m.voters(ctx, app, m.cfg.Chat.AcceptEmoji, eligible)
	if err != nil {
		return outcome, err
	}
	deny, err := m.voters(ctx, app, m.cfg.Chat.DenyEmoji, eligible)
	if err != nil {
		return outcome, err
	}
	cancelled := 0
	for id := range accept {
		if _, both := deny[id]; both {
			delete(accept, id)
			delete(deny, id)
			cancelled++
		}
	}

	tally := state.VoteContext{
		Rule:      rule,
		Eligible:  len(eligible),
		Threshold: rule.Threshold(len(eligible)),
		Accept:    len(accept),
		Deny:      len(deny),
		Cancelled: cancelled,
	}
	outcome.Tally = tally
	acceptMet := tally.Accept >= tally.Threshold
	denyMet := tally.Deny >= tally.Threshold

	switch {
	case acceptMet && denyMet:
		outcome.Ambiguous = true
		logging.WarnWithContext(logger, "both vote sides reached the threshold; leaving pending", "vote_ambiguous",
			logging.Int("accept", tally.Accept),
			logging.Int("deny", tally.Deny),
			logging.Int("threshold", tally.Threshold),
			logging.String(logging.FieldErrorHint, "finalize the application by command"),
			logging.String(logging.FieldImpact, "no decision is taken automatically"),
		)
		return outcome, nil
	case acceptMet:
		outcome.Decision = state.StatusAccepted
	case denyMet:
		outcome.Decision = state.StatusDenied
	default:
		logger.Debug("vote below threshold",
			logging.Int("accept", tally.Accept),
			logging.Int("deny", tally.Deny),
			logging.Int("threshold", tally.Threshold),
		)
		return outcome, nil
	}

	finalized, err := m.Finalize(ctx, appID, outcome.Decision, state.SourceVote, "", Options{VoteContext: &tally})
	if err != nil {
		return outcome, err
	}
	outcome.Finalized = &finalized
	outcome.Failure = finalized.Failure
	return outcome, nil
}

func (m *Machine) voters(ctx context.Context, app *state.Application, emoji string, eligible map[string]struct{}) (map[string]struct{}, error) {
	users, err := retry.Do(ctx, m.policy, "reaction_users", func(ctx context.Context) ([]chat.User, error) {
		return m.chat.ReactionUsers(ctx, app.ChannelID, app.ID, emoji)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternal, "decision", "reaction users", "failed to read "+emoji+" reactions", err)
	}
	out := make(map[string]struct{}, len(users))
	for _, user := range users {
		if user.Bot {
			continue
		}
		if _, ok := eligible[user.ID]; ok {
			out[user.ID] = struct{}{}
		}
	}
	return out, nil
}
