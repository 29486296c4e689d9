// Package jobs holds the scheduled job implementations.
package jobs

import (
	"context"
	"fmt"

	"github.com/lukefun/Q-System/internal/gateway"
	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/internal/store"
	"github.com/lukefun/Q-System/pkg/config"
	"github.com/lukefun/Q-System/pkg/logger"
)

// DailyUpdateJob runs the incremental bar update for every instrument
// in the classification mapping after the market close.
type DailyUpdateJob struct {
	store  *store.Store
	gw     gateway.Gateway
	config *config.Config
	logger *logger.Logger
}

// NewDailyUpdateJob creates the daily update job.
func NewDailyUpdateJob(st *store.Store, gw gateway.Gateway, cfg *config.Config, log *logger.Logger) *DailyUpdateJob {
	return &DailyUpdateJob{store: st, gw: gw, config: cfg, logger: log}
}

func (j *DailyUpdateJob) Name() string {
	return "daily_update"
}

// Schedule runs every day at 6 PM.
func (j *DailyUpdateJob) Schedule() string {
	return "0 0 18 * * *"
}

func (j *DailyUpdateJob) Run(ctx context.Context) error {
	codes, err := j.universe(ctx)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		j.logger.Warn("no instruments in classification mapping, nothing to update")
		return nil
	}

	summary, err := j.store.UpdateAll(ctx, j.gw, marketdata.SeriesDaily, codes, store.UpdateOptions{
		Workers:  j.config.Store.Workers,
		Lookback: lookback(j.config),
	})
	if err != nil {
		return fmt.Errorf("daily update: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("daily update: %d of %d instruments failed", summary.Failed, summary.Total)
	}
	return nil
}

// universe lists the distinct instrument codes known to the
// classification mapping.
func (j *DailyUpdateJob) universe(ctx context.Context) ([]string, error) {
	cls, err := j.store.LoadClassifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
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
