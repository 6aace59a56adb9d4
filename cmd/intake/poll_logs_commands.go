package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"intake/internal/api"
)

func newPollCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Read the sheet and drain the queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Poll(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				ingest := resp.Result.Ingest
				drain := resp.Result.Drain
				if resp.Error != "" {
					fmt.Fprintf(out, "Sheet read failed: %s\n", resp.Error)
				} else {
					fmt.Fprintf(out, "Read %d rows: %d queued, %d already tracked\n", ingest.Rows, len(ingest.Enqueued), ingest.Skipped)
				}
				fmt.Fprintf(out, "Posted %d, %d remaining\n", drain.Posted, drain.Remaining)
				if drain.FailedJobID != "" {
					fmt.Fprintf(out, "Blocked on %s: %s\n", drain.FailedJobID, drain.FailedError)
				}
				fmt.Fprintf(out, "Correlation id: %s\n", resp.Result.CorrelationID)
				return nil
			})
		},
	}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				var cursor uint64
				for {
					resp, err := client.Logs(cmd.Context(), cursor, limit)
					if err != nil {
						return err
					}
					for _, event := range resp.Events {
						if ctx.jsonOutput() {
							if err := writeJSON(cmd, event); err != nil {
								return err
							}
							continue
						}
						fmt.Fprintln(cmd.OutOrStdout(), formatLogEvent(event))
					}
					cursor = resp.Next
					if !follow {
						return nil
					}
					select {
					case <-cmd.Context().Done():
						return nil
					case <-time.After(interval):
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	cmd.Flags().IntVarP(&limit, "lines", "n", 200, "Maximum events per fetch")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --follow")
	return cmd
}

func formatLogEvent(event api.LogEvent) string {
	var b strings.Builder
	ts := event.Timestamp
	if parsed, err := time.Parse(time.RFC3339Nano, event.Timestamp); err == nil {
		ts = parsed.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(&b, "%s %-5s", ts, strings.ToUpper(event.Level))
	if event.Component != "" {
		fmt.Fprintf(&b, " [%s]", event.Component)
	}
	b.WriteString(" ")
	b.WriteString(event.Message)
	writeField(&b, "job", event.JobID)
	writeField(&b, "app", event.ApplicationID)
	writeField(&b, "track", event.Track)
	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for key := range event.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			writeField(&b, key, event.Fields[key])
		}
	}
	return b.String()
}

func writeField(w io.StringWriter, key, value string) {
	if value == "" {
		return
	}
	_, _ = w.WriteString(" " + key + "=" + value)
}
