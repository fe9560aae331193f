package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/pipeline"
	"github.com/sells-group/portal-etl/internal/runlog"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new files, aggregate every category and cut the trailing windows",
	Long: `Runs the whole pipeline: crawl the listing page and download missing files,
stack each category's files into <prefix>.csv/.parquet, then write the
trailing-window extracts <window_prefix>_últimos_<N>_meses.csv/.parquet.

A failing stage is logged and recorded in the run ledger; the remaining stages
still run. Use --skip-fetch to work on local files only.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		skip, _ := cmd.Flags().GetBool("skip-fetch")
		return runStages(cmd, skip)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download files from the listing page that are not present locally",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, false, runlog.StageFetch)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Stack local files of each category into one CSV and Parquet output",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, true, runlog.StageAggregate)
	},
}

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Write the trailing-window extract of each category's aggregate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, true, runlog.StageWindow)
	},
}

func init() {
	syncCmd.Flags().Bool("skip-fetch", false, "do not crawl the portal, use local files only")
	for _, c := range []*cobra.Command{syncCmd, aggregateCmd, windowCmd} {
		c.Flags().String("category", "", "comma-separated categories (filter or prefix, e.g. horarios,linhas_secoes)")
		c.Flags().String("as-of", "", "run date YYYY-MM-DD used for data_download and the window (default today)")
	}
	rootCmd.AddCommand(syncCmd, fetchCmd, aggregateCmd, windowCmd)
}

// parseRunOpts extracts pipeline.RunOpts from the command flags.
func parseRunOpts(cmd *cobra.Command, skipFetch bool, stages ...string) (pipeline.RunOpts, error) {
	opts := pipeline.RunOpts{SkipFetch: skipFetch, Stages: stages}

	if f := cmd.Flags().Lookup("as-of"); f != nil && f.Value.String() != "" {
		t, err := time.ParseInLocation("2006-01-02", f.Value.String(), time.Local)
		if err != nil {
			return pipeline.RunOpts{}, eris.Wrapf(err, "invalid --as-of %q", f.Value.String())
		}
		opts.Now = t
	}

	if f := cmd.Flags().Lookup("category"); f != nil && f.Value.String() != "" {
		for _, name := range strings.Split(f.Value.String(), ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Categories = append(opts.Categories, name)
			}
		}
	}
	return opts, nil
}

func runStages(cmd *cobra.Command, skipFetch bool, stages ...string) error {
	ctx := cmd.Context()
	log := zap.L().With(zap.String("command", cmd.Name()))

	opts, err := parseRunOpts(cmd, skipFetch, stages...)
	if err != nil {
		return err
	}

	ledger, err := initLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer ledger.Close() //nolint:errcheck

	engine, err := buildEngine(cfg, ledger)
	if err != nil {
		return err
	}

	log.Info("starting",
		zap.String("listing", cfg.Portal.ListingURL),
		zap.String("dir", cfg.Portal.TargetDir),
		zap.Strings("categories", opts.Categories),
		zap.Bool("skip_fetch", opts.SkipFetch),
	)

	sum, err := engine.Run(ctx, opts)
	if sum != nil {
		formatSummary(os.Stdout, sum)
	}
	if err != nil {
		return eris.Wrap(err, cmd.Name())
	}
	return nil
}

// formatSummary writes one line per stage to out.
func formatSummary(out io.Writer, sum *pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSUBJECT\tSTATUS\tFILES\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t-------\t------\t-----\t----\t-----")
	for _, s := range sum.Stages {
		status := runlog.StatusComplete
		errMsg := ""
		switch {
		case s.Err != nil:
			status = runlog.StatusFailed
			errMsg = truncate(s.Err.Error(), 60)
		case s.Empty:
			status = "empty"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", s.Stage, s.Subject, status, s.Files, s.Rows, errMsg)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "run %s: %d succeeded, %d failed\n", sum.RunID, sum.Succeeded, sum.Failed)
}
