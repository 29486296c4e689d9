package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/store"
)

var (
	updateAll      bool
	updateWorkers  int
	updateLookback int
)

var updateCmd = &cobra.Command{
	Use:   "update [codes...]",
	Short: "Run the incremental watermark-driven update",
	Long: `Fetches bars newer than each instrument's watermark from the
vendor API and merges them into the local store. Instruments fail
independently; the batch always runs to completion.

Examples:
  qsys update 005930 000660
  qsys update --all
  qsys update --all --type tick --workers 8`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().BoolVar(&updateAll, "all", false, "update every instrument in the classification mapping")
	updateCmd.Flags().IntVar(&updateWorkers, "workers", 0, "concurrent instruments (default from STORE_WORKERS)")
	updateCmd.Flags().IntVar(&updateLookback, "lookback", 0, "first-fetch window in days (default from STORE_LOOKBACK_DAYS)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	typ, err := seriesType()
	if err != nil {
		return err
	}
	if len(args) == 0 && !updateAll {
		return fmt.Errorf("specify instrument codes or --all")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	codes := args
	if updateAll {
		codes, err = universeCodes(ctx, a)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			return fmt.Errorf("classification mapping is empty; run 'qsys refdata' first")
		}
	}

	workers := updateWorkers
	if workers == 0 {
		workers = a.cfg.Store.Workers
	}
	lookbackDays := updateLookback
	if lookbackDays == 0 {
		lookbackDays = a.cfg.Store.LookbackDays
	}

	bar := progressbar.NewOptions(len(codes),
		progressbar.OptionSetDescription(fmt.Sprintf("updating %s", typ)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	summary, err := a.store.UpdateAll(ctx, a.gateway(), typ, codes, store.UpdateOptions{
		Workers:  workers,
		Lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		Progress: func(done, total int, code string) {
			_ = bar.Add(1)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nUpdated %d/%d instruments, %d new rows\n",
		summary.Succeeded, summary.Total, summary.RowsAdded)

	for _, f := range summary.Failures() {
		fmt.Printf("  FAILED %s: %v\n", f.Code, f.Err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d instrument(s) failed", summary.Failed)
	}
	return nil
}

// universeCodes lists distinct instrument codes from the
// classification mapping.
func universeCodes(ctx context.Context, a *app) ([]string, error) {
	cls, err := a.store.LoadClassifications(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(cls))
	var codes []string
	for _, c := range cls {
		if !seen[c.Code] {
			seen[c.Code] = true
			codes = append(codes, c.Code)
		}
	}
	return codes, nil
}
