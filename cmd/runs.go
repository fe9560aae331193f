package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/portal-etl/internal/config"
	"github.com/sells-group/portal-etl/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing the stages recorded in the run ledger and when each last succeeded.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded stage runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stage, _ := cmd.Flags().GetString("stage")
		status, _ := cmd.Flags().GetString("status")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		entries, err := st.List(ctx, runlog.Filter{
			RunID:  runID,
			Stage:  stage,
			Status: status,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatEntries(os.Stdout, entries)
		return nil
	},
}

// -- runs status --

var runsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when each configured stage last completed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := lastSuccesses(ctx, st, cfg)
		if err != nil {
			return eris.Wrap(err, "runs status")
		}
		formatLastSuccess(os.Stdout, rows)
		return nil
	},
}

type lastSuccessRow struct {
	Stage   string
	Subject string
	At      *time.Time
}

// lastSuccesses looks up every subject the pipeline records for c: the
// listing page for fetch, each category filter for aggregate and each
// window prefix for window.
func lastSuccesses(ctx context.Context, st *runlog.Store, c *config.Config) ([]lastSuccessRow, error) {
	rows := []lastSuccessRow{{Stage: runlog.StageFetch, Subject: c.Portal.ListingURL}}
	for _, cc := range c.Categories {
		rows = append(rows, lastSuccessRow{Stage: runlog.StageAggregate, Subject: cc.Filter})
	}
	for _, cc := range c.Categories {
		rows = append(rows, lastSuccessRow{Stage: runlog.StageWindow, Subject: cc.WindowPrefix})
	}

	for i := range rows {
		at, err := st.LastSuccess(ctx, rows[i].Stage, rows[i].Subject)
		if err != nil {
			return nil, err
		}
		rows[i].At = at
	}
	return rows, nil
}

// formatLastSuccess writes one line per stage subject to out.
func formatLastSuccess(out io.Writer, rows []lastSuccessRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSUBJECT\tLAST SUCCESS")
	_, _ = fmt.Fprintln(w, "-----\t-------\t------------")
	for _, r := range rows {
		at := "never"
		if r.At != nil {
			at = r.At.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Stage, truncate(r.Subject, 40), at)
	}
	_ = w.Flush()
}

func init() {
	runsListCmd.Flags().String("stage", "", "filter by stage (fetch, aggregate, window)")
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed)")
	runsListCmd.Flags().String("run", "", "filter by run ID")
	runsListCmd.Flags().Int("limit", 50, "max number of entries to display")
	runsListCmd.Flags().Bool("json", false, "print entries as JSON")

	runsCmd.AddCommand(runsListCmd, runsStatusCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatEntries writes ledger entries as a table to out.
func formatEntries(out io.Writer, entries []runlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTAGE\tSUBJECT\tSTATUS\tFILES\tROWS\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---\t-----\t-------\t------\t-----\t----\t-------\t--------\t-----")

	for _, e := range entries {
		dur := ""
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}
		subject := truncate(e.Subject, 40)
		errMsg := truncate(e.Error, 50)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			truncateID(e.RunID),
			e.Stage,
			subject,
			e.Status,
			e.Files,
			e.Rows,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncate shortens s to at most n characters, ending in "..." when cut.
// Cuts fall on rune boundaries.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// truncateID shortens a UUID to its first 8 characters.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
