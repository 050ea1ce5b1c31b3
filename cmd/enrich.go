package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/enrich"
	"github.com/sells-group/parcel-cli/internal/scoring"
	"github.com/sells-group/parcel-cli/internal/source"
)

var (
	enrichBatchSize     int
	enrichStalenessDays int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run one batch enrichment pass over eligible buildings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		policy, err := loadScoringPolicy()
		if err != nil {
			return err
		}

		enrichCfg := cfg.Enrich
		if enrichBatchSize > 0 {
			enrichCfg.BatchSize = enrichBatchSize
		}
		if enrichStalenessDays > 0 {
			enrichCfg.StalenessDays = enrichStalenessDays
		}

		o := enrich.New(st, source.NewDefaultRegistry(cfg.Sources), scoring.New(policy), enrichCfg)
		run, err := o.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"run %s: %d enriched, %d partial, %d skipped, %d failed\n",
			run.ID, run.Summary.Enriched, run.Summary.Partial,
			run.Summary.Skipped, run.Summary.Failed)
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichBatchSize, "batch-size", 0, "max buildings per run (default from config)")
	enrichCmd.Flags().IntVar(&enrichStalenessDays, "staleness-days", 0, "re-enrich buildings older than this (default from config)")
	rootCmd.AddCommand(enrichCmd)
}
