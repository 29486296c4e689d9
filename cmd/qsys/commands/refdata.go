package commands

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Refresh classifications and fundamentals",
	Long: `Fetches the full industry classification mapping and the reported
fundamentals history for every mapped instrument, and merges them
into the store. Idempotent; safe to re-run.`,
	RunE: runRefdata,
}

func init() {
	rootCmd.AddCommand(refdataCmd)
}

func runRefdata(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	gw := a.gateway()

	cls, err := gw.FetchClassifications(ctx)
	if err != nil {
		return err
	}
	clsAdded, err := a.store.SaveClassifications(ctx, cls)
	if err != nil {
		return err
	}
	fmt.Printf("Classifications: %d rows, %d new\n", len(cls), clsAdded)

	seen := make(map[string]bool, len(cls))
	var codes []string
	for _, c := range cls {
		if !seen[c.Code] {
			seen[c.Code] = true
			codes = append(codes, c.Code)
		}
	}

	bar := progressbar.NewOptions(len(codes),
		progressbar.OptionSetDescription("fundamentals"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	fundAdded := 0
	failed := 0
	for _, code := range codes {
		recs, err := gw.FetchFundamentals(ctx, code)
		if err != nil {
			failed++
			a.log.WithError(err).WithField("code", code).Warn("fundamentals fetch failed")
			_ = bar.Add(1)
			continue
		}
		added, err := a.store.SaveFundamentals(ctx, recs)
		if err != nil {
			failed++
			a.log.WithError(err).WithField("code", code).Warn("fundamentals save failed")
			_ = bar.Add(1)
			continue
		}
		fundAdded += added
		_ = bar.Add(1)
	}

	fmt.Printf("\nFundamentals: %d new rows across %d instruments\n", fundAdded, len(codes))
	if failed > 0 {
		return fmt.Errorf("%d instrument(s) failed", failed)
	}
	return nil
}
