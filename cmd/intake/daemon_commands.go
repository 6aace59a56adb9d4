package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"intake/internal/api"
	"intake/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the intake daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Human-friendly development logging")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				renderStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
}

func renderStatus(out io.Writer, status api.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	daemonKind := statusOK
	daemonDetail := fmt.Sprintf("pid %d", status.PID)
	if !status.Running {
		daemonKind = statusError
		daemonDetail = "not running"
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonDetail, colorize))
	fmt.Fprintln(out, renderStatusLine("State", statusInfo, fmt.Sprintf("%s (revision %d)", status.StatePath, status.Revision), colorize))
	if status.UpdatedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Last saved", statusInfo, status.UpdatedAt, colorize))
	}
	for _, check := range status.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(out, line)
	}
	queueKind := statusOK
	queueDetail := fmt.Sprintf("%d queued, draining: %s", status.QueueDepth, yesNo(status.Busy))
	if status.Blocked != nil {
		queueKind = statusWarn
		queueDetail = fmt.Sprintf("blocked on %s (row %d): %s", status.Blocked.ID, status.Blocked.RowIndex, status.Blocked.LastError)
	}
	fmt.Fprintln(out, renderStatusLine("Post jobs", queueKind, queueDetail, colorize))
	fmt.Fprintln(out, renderStatusLine("Pending decisions", statusInfo, strconv.Itoa(status.Pending), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Scheduler", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Workflow.Lanes) > 0 {
		rows := make([][]string, 0, len(status.Workflow.Lanes))
		for _, lane := range status.Workflow.Lanes {
			rows = append(rows, []string{
				lane.Name,
				strconv.Itoa(lane.IntervalSeconds) + "s",
				strconv.Itoa(lane.Runs),
				strconv.Itoa(lane.Failures),
				fallbackDash(lane.LastRunAt),
				fallbackDash(lane.LastError),
			})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Lane", "Interval", "Runs", "Failures", "Last Run", "Last Error"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
		))
	} else {
		fmt.Fprintln(out, "Scheduler idle")
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Counters", colorize) {
		fmt.Fprintln(out, line)
	}
	c := status.Counters
	fmt.Fprint(out, renderTable(
		[]string{"Counter", "Value"},
		[][]string{
			{"Jobs enqueued", strconv.Itoa(c.JobsEnqueued)},
			{"Posts created", strconv.Itoa(c.PostsCreated)},
			{"Posts reused", strconv.Itoa(c.PostsReused)},
			{"Jobs cleared", strconv.Itoa(c.JobsCleared)},
			{"Accepted", strconv.Itoa(c.DecisionsAccepted)},
			{"Denied", strconv.Itoa(c.DecisionsDenied)},
			{"Reopened", strconv.Itoa(c.Reopens)},
			{"Reminders sent", strconv.Itoa(c.RemindersSent)},
			{"Digests sent", strconv.Itoa(c.DigestsSent)},
		},
		[]columnAlignment{alignLeft, alignRight},
	))
}

func fallbackDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
