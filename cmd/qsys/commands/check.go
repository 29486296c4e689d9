package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/quality"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check CODE",
	Short: "Run the quality validator over stored bars",
	Long: `Validates one instrument's stored series: structural errors,
IQR outliers, zero volume and gaps. Prints a report with a 0-100
quality score.

Examples:
  qsys check 005930
  qsys check 005930 --type tick --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "emit the full report as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	code := args[0]

	typ, err := seriesType()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	series, err := a.store.Load(cmd.Context(), code, typ, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	if series.Len() == 0 {
		return fmt.Errorf("no stored %s bars for %s", typ, code)
	}

	v := quality.NewValidator(quality.FromConfig(a.cfg.Quality))
	report, err := v.Validate(series)
	if err != nil {
		return err
	}

	if checkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("%s (%s): score %d/100, %d rows %s .. %s\n",
		report.Code, report.SeriesType, report.Score(), report.Stats.Rows,
		report.Stats.Start.Format("2006-01-02"), report.Stats.End.Format("2006-01-02"))

	if report.Valid {
		fmt.Println("valid: yes")
	} else {
		fmt.Println("valid: NO")
		for _, e := range report.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, g := range report.Gaps {
		if g.MissingDays > 0 {
			fmt.Printf("  gap: %s .. %s (%d trading days missing)\n",
				g.Start.Format("2006-01-02"), g.End.Format("2006-01-02"), g.MissingDays)
		} else {
			fmt.Printf("  gap: %s .. %s (%s)\n",
				g.Start.Format("15:04:05"), g.End.Format("15:04:05"), g.Span)
		}
	}
	for _, an := range report.Anomalies {
		fmt.Printf("  anomaly: %s %s=%.4f (%s)\n",
			an.Timestamp.Format("2006-01-02"), an.Column, an.Value, an.Reason)
	}

	if !report.Valid {
		return fmt.Errorf("series failed validation")
	}
	return nil
}
