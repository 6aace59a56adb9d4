package main

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"intake/internal/api"
	"intake/internal/state"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the post job queue",
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued post jobs in FIFO order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Queue(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				renderQueue(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "replay",
		Short: "Drain the queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Replay(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				result := resp.Result
				if result.Busy {
					fmt.Fprintf(out, "A drain is already running (%d queued)\n", result.Remaining)
					return nil
				}
				fmt.Fprintf(out, "Posted %d of %d jobs, %d remaining\n", result.Posted, result.QueuedBefore, result.Remaining)
				if result.FailedJobID != "" {
					fmt.Fprintf(out, "Blocked on %s: %s\n", result.FailedJobID, result.FailedError)
				}
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "clear <job-id>",
		Short: "Remove one job from the queue without posting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := normalizeJobID(args[0])
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.ClearJob(cmd.Context(), jobID)
				if api.IsStatus(err, http.StatusNotFound) {
					return fmt.Errorf("job %s is not queued", jobID)
				}
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s (row %d)\n", resp.Item.ID, resp.Item.RowIndex)
				return nil
			})
		},
	})

	return queueCmd
}

// normalizeJobID accepts either "job-000007" or the bare sequence "7".
func normalizeJobID(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return state.FormatJobID(n)
	}
	return raw
}

func renderQueue(out io.Writer, resp api.QueueResponse) {
	if len(resp.Items) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	rows := make([][]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		rows = append(rows, []string{
			item.ID,
			strconv.Itoa(item.RowIndex),
			fallbackDash(item.Applicant),
			strings.Join(item.PendingTracks, ", "),
			strconv.Itoa(item.Attempts),
			fallbackDash(item.LastError),
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Job", "Row", "Applicant", "Pending", "Attempts", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	if resp.Busy {
		fmt.Fprintln(out, "A drain is in progress")
	}
}
