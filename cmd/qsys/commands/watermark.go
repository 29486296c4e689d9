package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetWatermarkCmd = &cobra.Command{
	Use:   "reset-watermark CODE...",
	Short: "Clear watermarks to force a full refetch",
	Long: `Clears the watermark for the given instruments. Stored bars stay
on disk; the next update refetches the full lookback window and
merges it idempotently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResetWatermark,
}

func init() {
	rootCmd.AddCommand(resetWatermarkCmd)
}

func runResetWatermark(cmd *cobra.Command, args []string) error {
	typ, err := seriesType()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, code := range args {
		if err := a.store.ResetWatermark(cmd.Context(), typ, code); err != nil {
			return err
		}
		fmt.Printf("reset %s/%s\n", typ, code)
	}
	return nil
}
