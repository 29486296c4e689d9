// Package commands wires the qsys CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukefun/Q-System/internal/gateway/httpgw"
	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/internal/quality"
	"github.com/lukefun/Q-System/internal/store"
	"github.com/lukefun/Q-System/pkg/config"
	"github.com/lukefun/Q-System/pkg/logger"
)

var (
	// Global flags
	dataDir  string
	verbose  bool
	seriesTy string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "qsys",
	Short: "Historical market-data engine",
	Long: `qsys maintains a local time-series store of historical market
data: incremental watermark-driven updates, quality validation,
corporate-action adjustment and point-in-time reference data.

Examples:
  qsys update --all
  qsys update 005930 000660
  qsys check 005930
  qsys export 005930 --adjust forward -o out.csv
  qsys status
  qsys schedule`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default from DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&seriesTy, "type", "daily", "series type (daily|tick)")
}

// app bundles the shared runtime for every subcommand.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *store.Store
}

// newApp loads config, opens the store and builds the logger.
// Callers must Close.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	validator := quality.NewValidator(quality.FromConfig(cfg.Quality))
	st, err := store.Open(cfg.DataDir, validator, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{cfg: cfg, log: log, store: st}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

func (a *app) gateway() *httpgw.Client {
	return httpgw.New(a.cfg.Gateway, a.log)
}

func seriesType() (marketdata.SeriesType, error) {
	typ := marketdata.SeriesType(seriesTy)
	if !typ.Valid() {
		return "", fmt.Errorf("unknown series type %q (valid: daily, tick)", seriesTy)
	}
	return typ, nil
}
