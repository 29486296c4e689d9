package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/align"
)

var pitAsOf string

var pitCmd = &cobra.Command{
	Use:   "pit CODE...",
	Short: "Show point-in-time reference data",
	Long: `Resolves the fundamentals and industry classification that were
knowable at a given date. Fundamentals are gated by disclosure date,
classifications by effective date.

Examples:
  qsys pit 005930 --as-of 2024-03-01
  qsys pit 005930 000660 --as-of 2023-06-30`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPIT,
}

func init() {
	rootCmd.AddCommand(pitCmd)
	pitCmd.Flags().StringVar(&pitAsOf, "as-of", "", "query date (YYYY-MM-DD, required)")
	_ = pitCmd.MarkFlagRequired("as-of")
}

func runPIT(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag(pitAsOf)
	if err != nil {
		return fmt.Errorf("--as-of: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	aligner := align.New(a.store, a.store, a.log)

	aligned, err := aligner.Snapshot(ctx, args, asOf)
	if err != nil {
		return err
	}

	for _, code := range args {
		fmt.Printf("%s as of %s:\n", code, asOf.Format("2006-01-02"))

		if rec, ok := aligned[code]; ok {
			fmt.Printf("  fundamentals: period %s, disclosed %s, EPS %.4f, BVPS %.4f\n",
				rec.ReportPeriod.Format("2006-01-02"),
				rec.DiscloseDate.Format("2006-01-02"),
				rec.EPS, rec.BVPS)
		} else {
			fmt.Println("  fundamentals: none knowable")
		}

		cls, ok, err := aligner.ClassificationAt(ctx, code, asOf)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("  classification: %s / %s (since %s)\n",
				cls.Sector, cls.Industry, cls.EffectiveDate.Format("2006-01-02"))
		} else {
			fmt.Println("  classification: none")
		}
	}
	return nil
}
