package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"intake/internal/api"
	"intake/internal/state"
)

func newAppsCommand(ctx *commandContext) *cobra.Command {
	appsCmd := &cobra.Command{
		Use:     "apps",
		Aliases: []string{"applications"},
		Short:   "Inspect and decide applications",
	}
	appsCmd.AddCommand(newAppsListCommand(ctx))
	appsCmd.AddCommand(newAppsShowCommand(ctx))
	appsCmd.AddCommand(newAppsFinalizeCommand(ctx))
	appsCmd.AddCommand(newAppsReopenCommand(ctx))
	appsCmd.AddCommand(newAppsEvaluateCommand(ctx))
	return appsCmd
}

func newAppsListCommand(ctx *commandContext) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Applications(cmd.Context(), status)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderApplications(cmd.OutOrStdout(), resp.Items, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, accepted, denied)")
	return cmd
}

func newAppsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <application-id>",
		Short: "Show one application with its vote tally and side effects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Application(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderApplication(cmd.OutOrStdout(), resp.Item, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
}

func newAppsFinalizeCommand(ctx *commandContext) *cobra.Command {
	var reason string
	var actor string
	cmd := &cobra.Command{
		Use:   "finalize <application-id> <accepted|denied>",
		Short: "Force a decision on a pending application",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decided, ok := state.ParseStatus(strings.ToLower(strings.TrimSpace(args[1])))
			if !ok || !decided.Decided() {
				return fmt.Errorf("%w, got %q", errInvalidDecision, args[1])
			}
			req := api.FinalizeRequest{
				Decision: string(decided),
				Source:   string(state.SourceForceCommand),
				ActorID:  strings.TrimSpace(actor),
				Reason:   strings.TrimSpace(reason),
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Finalize(cmd.Context(), strings.TrimSpace(args[0]), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderOutcome(cmd.OutOrStdout(), "Finalized", resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the decision and sent to the applicant")
	cmd.Flags().StringVar(&actor, "actor", "", "Moderator id recorded as the decider")
	return cmd
}

func newAppsReopenCommand(ctx *commandContext) *cobra.Command {
	var reason string
	var actor string
	cmd := &cobra.Command{
		Use:   "reopen <application-id>",
		Short: "Return a decided application to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ReopenRequest{ActorID: strings.TrimSpace(actor), Reason: strings.TrimSpace(reason)}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Reopen(cmd.Context(), strings.TrimSpace(args[0]), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderOutcome(cmd.OutOrStdout(), "Reopened", resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason posted in the application thread")
	cmd.Flags().StringVar(&actor, "actor", "", "Moderator id recorded on the reopen")
	return cmd
}

func newAppsEvaluateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <application-id>",
		Short: "Re-tally the vote reactions on an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Evaluate(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderVote(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
}

var errInvalidDecision = errors.New("decision must be accepted or denied")

func renderApplications(out io.Writer, items []api.ApplicationItem, colorize bool) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No applications")
		return
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.TrackKey,
			fallbackDash(item.ApplicantName),
			paint(decisionColor(item.Status), item.Status, colorize),
			strconv.Itoa(item.RowIndex),
			fallbackDash(item.CreatedAt),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Application", "Track", "Applicant", "Status", "Row", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func renderApplication(out io.Writer, item api.ApplicationItem, colorize bool) {
	for _, line := range renderSectionHeader("Application "+item.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Applicant: %s\n", fallbackDash(item.ApplicantName))
	fmt.Fprintf(out, "Track:     %s\n", item.TrackKey)
	fmt.Fprintf(out, "Status:    %s\n", paint(decisionColor(item.Status), item.Status, colorize))
	fmt.Fprintf(out, "Job:       %s (row %d)\n", item.JobID, item.RowIndex)
	if item.DecidedAt != "" {
		fmt.Fprintf(out, "Decided:   %s by %s via %s\n", item.DecidedAt, fallbackDash(item.DecidedBy), item.DecisionSource)
	}
	if item.DecisionReason != "" {
		fmt.Fprintf(out, "Reason:    %s\n", item.DecisionReason)
	}
	if item.Vote != nil {
		v := item.Vote
		fmt.Fprintf(out, "Vote:      %d accept, %d deny, %d cancelled (need %d of %d eligible)\n",
			v.Accept, v.Deny, v.Cancelled, v.Threshold, v.Eligible)
	}
	if item.ReminderCount > 0 {
		fmt.Fprintf(out, "Reminders: %d (last %s)\n", item.ReminderCount, item.LastReminderAt)
	}
	if len(item.Duplicates) > 0 {
		fmt.Fprintf(out, "Possible duplicates: %s\n", strings.Join(item.Duplicates, ", "))
	}
	if prior := item.LastDecision; prior != nil {
		fmt.Fprintf(out, "Previously %s by %s, reopened by %s: %s\n",
			prior.Status, fallbackDash(prior.DecidedBy), fallbackDash(prior.ReopenedBy), fallbackDash(prior.ReopenReason))
	}
	if len(item.SideEffects) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(item.SideEffects))
	for _, effect := range item.SideEffects {
		result := paint(statusKindColor(effectKind(effect)), effectLabel(effect), colorize)
		detail := effect.Detail
		if effect.Error != "" {
			detail = effect.ErrorKind + ": " + effect.Error
		}
		rows = append(rows, []string{effect.Kind, result, fallbackDash(detail)})
	}
	fmt.Fprint(out, renderTable([]string{"Side Effect", "Result", "Detail"}, rows, nil))
}

func effectLabel(effect api.SideEffect) string {
	switch {
	case effect.Skipped:
		return "skipped"
	case effect.OK:
		return "ok"
	default:
		return "failed"
	}
}

func effectKind(effect api.SideEffect) statusKind {
	switch {
	case effect.Skipped:
		return statusInfo
	case effect.OK:
		return statusOK
	default:
		return statusError
	}
}

func renderOutcome(out io.Writer, verb string, resp api.DecisionResponse) {
	fmt.Fprintf(out, "%s %s: %s\n", verb, resp.Outcome.ApplicationID, resp.Outcome.Status)
	for _, effect := range resp.Outcome.SideEffects {
		switch {
		case effect.Skipped:
			fmt.Fprintf(out, "  %s skipped: %s\n", effect.Kind, effect.Detail)
		case effect.OK:
			fmt.Fprintf(out, "  %s ok\n", effect.Kind)
		default:
			fmt.Fprintf(out, "  %s failed (%s): %s\n", effect.Kind, effect.ErrorKind, effect.Error)
		}
	}
}

func renderVote(out io.Writer, resp api.VoteResponse) {
	if resp.Ignored || resp.Outcome == nil {
		fmt.Fprintln(out, "Nothing to evaluate")
		return
	}
	o := resp.Outcome
	t := o.Tally
	fmt.Fprintf(out, "Tally for %s: %d accept, %d deny (threshold %d of %d eligible)\n",
		o.ApplicationID, t.Accept, t.Deny, t.Threshold, t.Eligible)
	switch {
	case o.Finalized != nil:
		fmt.Fprintf(out, "Decided: %s\n", o.Finalized.Status)
	case o.Ambiguous:
		fmt.Fprintln(out, "Both sides reached the threshold; left pending")
	default:
		fmt.Fprintln(out, "Threshold not reached; still pending")
	}
}
