package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/ingest"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a permit CSV backlog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		policy, err := loadScoringPolicy()
		if err != nil {
			return err
		}

		sum, err := ingest.New(st, policy).ImportFile(ctx, importCSVPath)
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		zap.L().Info("import complete",
			zap.Int("imported", sum.Imported),
			zap.Int("linked", sum.Linked),
			zap.Int("unlinked", sum.Unlinked),
			zap.Int("buildings_created", sum.Buildings),
			zap.Int("skipped", sum.Skipped),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to permit CSV (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
