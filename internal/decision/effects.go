package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"intake/internal/chat"
	"intake/internal/logging"
	"intake/internal/retry"
	"intake/internal/services"
	"intake/internal/state"
)

func (m *Machine) grantRoles(ctx context.Context, app state.Application, track state.TrackSettings) state.SideEffectResult {
	kind := state.EffectRoleGrant
	if len(track.ApprovedRoleIDs) == 0 {
		return state.Skipped(kind, "no approved roles configured", m.now())
	}
	if app.ApplicantUserID == "" {
		return state.Skipped(kind, "applicant identity unknown", m.now())
	}
	for _, roleID := range track.ApprovedRoleIDs {
		err := retry.Run(ctx, m.policy, kind, func(ctx context.Context) error {
			return m.chat.AddRole(ctx, app.ApplicantUserID, roleID)
		})
		if err != nil {
			return m.effectFailed(ctx, kind, fmt.Errorf("grant role %s: %w", roleID, err))
		}
	}
	return state.Succeeded(kind, strings.Join(track.ApprovedRoleIDs, ","), m.now())
}

func (m *Machine) announce(ctx context.Context, data templateData) state.SideEffectResult {
	channelID := m.cfg.Chat.AnnounceChannelID
	if channelID == "" {
		return state.Skipped(state.EffectAnnouncement, "no announcement channel configured", m.now())
	}
	return m.send(ctx, state.EffectAnnouncement, channelID, renderTemplate(m.cfg.Templates.AcceptAnnouncement, data))
}

func (m *Machine) directMessage(ctx context.Context, app state.Application, data templateData) state.SideEffectResult {
	kind := state.EffectDirectMessage
	if app.ApplicantUserID == "" {
		return state.Skipped(kind, "applicant identity unknown", m.now())
	}
	content := renderTemplate(m.cfg.Templates.DenyDM, data)
	msg, err := retry.Do(ctx, m.policy, kind, func(ctx context.Context) (chat.Message, error) {
		return m.chat.SendDirectMessage(ctx, app.ApplicantUserID, content)
	})
	if err != nil {
		var apiErr *chat.APIError
		if errors.As(err, &apiErr) && apiErr.DirectMessagesClosed() {
			result := state.Failed(kind, "dm_closed", err, m.now())
			m.metrics.SideEffectFailed(kind)
			return result
		}
		return m.effectFailed(ctx, kind, err)
	}
	return state.Succeeded(kind, msg.ID, m.now())
}

func (m *Machine) decisionSummary(ctx context.Context, app state.Application, data templateData) state.SideEffectResult {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** by %s", titleStatus(app.Status), data.actor)
	if app.DecisionSource != "" && app.DecisionSource != state.SourceVote {
		fmt.Fprintf(&b, " (%s)", app.DecisionSource)
	}
	if vc := app.VoteContext; vc != nil {
		fmt.Fprintf(&b, "\nVotes: %d accept, %d deny, threshold %d of %d eligible (%s)",
			vc.Accept, vc.Deny, vc.Threshold, vc.Eligible, vc.Rule)
		if vc.Cancelled > 0 {
			fmt.Fprintf(&b, ", %d cancelled", vc.Cancelled)
		}
	}
	if app.DecisionReason != "" {
		fmt.Fprintf(&b, "\nReason: %s", app.DecisionReason)
	}
	return m.send(ctx, state.EffectDecisionSummary, discussion(app), b.String())
}

func (m *Machine) closureLog(ctx context.Context, app state.Application, data templateData) state.SideEffectResult {
	channelID := m.cfg.Chat.LogChannelID
	if channelID == "" {
		return state.Skipped(state.EffectClosureLog, "no log channel configured", m.now())
	}
	line := fmt.Sprintf("[%s] %s application from %s %s by %s", app.ID, data.track, data.applicant, app.Status, data.actor)
	if data.link != "" {
		line += " " + data.link
	}
	return m.send(ctx, state.EffectClosureLog, channelID, line)
}

func (m *Machine) send(ctx context.Context, kind, channelID, content string) state.SideEffectResult {
	msg, err := retry.Do(ctx, m.policy, kind, func(ctx context.Context) (chat.Message, error) {
		return m.chat.SendMessage(ctx, channelID, content)
	})
	if err != nil {
		return m.effectFailed(ctx, kind, err)
	}
	return state.Succeeded(kind, msg.ID, m.now())
}

func (m *Machine) effectFailed(ctx context.Context, kind string, err error) state.SideEffectResult {
	category := services.Classify(err)
	m.metrics.SideEffectFailed(kind)
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "decision side effect failed", "side_effect_failed",
		logging.Error(err),
		logging.String("side_effect", kind),
		logging.String(logging.FieldErrorHint, category.Hint()),
		logging.String(logging.FieldImpact, "the decision is committed; this step must be done by hand"),
	)
	return state.Failed(kind, string(category), err, m.now())
}

func titleStatus(status state.Status) string {
	switch status {
	case state.StatusAccepted:
		return "Accepted"
	case state.StatusDenied:
		return "Denied"
	default:
		return "Pending"
	}
}
