package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/bbl"
)

var resolveBorough string

var resolveCmd = &cobra.Command{
	Use:   "resolve <block> <lot> <permit-number>",
	Short: "Resolve a permit's block/lot to its canonical BBL",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, warning, err := bbl.ResolveWithBorough(args[0], args[1], args[2], resolveBorough)
		if err != nil {
			return err
		}
		if warning != "" {
			zap.L().Warn("borough mismatch", zap.String("detail", warning))
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveBorough, "borough", "", "reported borough name to cross-check")
	rootCmd.AddCommand(resolveCmd)
}
