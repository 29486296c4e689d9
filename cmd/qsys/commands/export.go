package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/adjust"
	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/internal/store"
)

var (
	exportOut    string
	exportFrom   string
	exportTo     string
	exportAdjust string
)

var exportCmd = &cobra.Command{
	Use:   "export CODE",
	Short: "Export stored bars as CSV",
	Long: `Exports one instrument's stored bars as CSV, optionally
price-adjusted for corporate actions. Adjustment factors are fetched
from the vendor API at export time; stored bars stay unadjusted.

Examples:
  qsys export 005930
  qsys export 005930 --from 2023-01-01 --to 2023-12-31 -o out.csv
  qsys export 005930 --adjust forward`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "range start (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "range end (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportAdjust, "adjust", "none", "price adjustment (none|forward|backward)")
}

func runExport(cmd *cobra.Command, args []string) error {
	code := args[0]

	typ, err := seriesType()
	if err != nil {
		return err
	}
	from, err := parseDateFlag(exportFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDateFlag(exportTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if exportAdjust == "none" {
		return a.store.ExportCSV(ctx, w, code, typ, from, to)
	}

	var dir adjust.Direction
	switch exportAdjust {
	case "forward":
		dir = adjust.Forward
	case "backward":
		dir = adjust.Backward
	default:
		return fmt.Errorf("unknown adjustment %q (valid: none, forward, backward)", exportAdjust)
	}

	series, err := a.store.Load(ctx, code, typ, from, to)
	if err != nil {
		return err
	}
	factors, err := a.gateway().FetchAdjustmentFactors(ctx, code)
	if err != nil {
		return err
	}

	adjusted, notes, err := adjust.Adjust(series, factors, dir)
	if err != nil {
		return err
	}
	for _, n := range notes {
		a.log.WithField("code", n.Code).Warn(n.Message)
	}

	return store.WriteCSV(w, adjusted)
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return marketdata.Day(t), nil
}
