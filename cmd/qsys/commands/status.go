package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/marketdata"
)

var statusCmd = &cobra.Command{
	Use:   "status [codes...]",
	Short: "Show store contents and watermarks",
	Long: `Prints partition counts, reference-data sizes and the most
recent update. With instrument codes, also prints their watermarks.

Examples:
  qsys status
  qsys status 005930 000660`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	typ, err := seriesType()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	info, err := a.store.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Data directory:   %s\n", info.DataDir)
	fmt.Printf("Daily series:     %d\n", info.DailySeries)
	fmt.Printf("Tick series:      %d\n", info.TickSeries)
	fmt.Printf("Fundamentals:     %d instruments\n", info.Fundamentals)
	fmt.Printf("Classifications:  %d rows\n", info.Classifications)
	fmt.Printf("Watermarks:       %d\n", info.Watermarks)
	if !info.LastUpdate.IsZero() {
		fmt.Printf("Last update:      %s (%s)\n",
			info.LastUpdate.Format(time.RFC3339), info.LastOperation)
	}

	for _, code := range args {
		wm, ok, err := a.store.Watermark(ctx, typ, code)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s: no watermark\n", code)
			continue
		}
		if typ == marketdata.SeriesDaily {
			fmt.Printf("%s: watermark %s\n", code, wm.Format("2006-01-02"))
		} else {
			fmt.Printf("%s: watermark %s\n", code, wm.Format(time.RFC3339))
		}
	}
	return nil
}
