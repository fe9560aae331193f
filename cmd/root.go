package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "portal-etl",
	Short: "Download and consolidate periodic CSV datasets from a public data portal",
	Long: "Crawls a portal listing page for schedule and line-section CSV files, downloads the ones " +
		"missing locally, stacks each category chronologically and writes full and trailing-window " +
		"extracts as CSV and Parquet.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
