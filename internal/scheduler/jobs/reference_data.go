package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/lukefun/Q-System/internal/align"
	"github.com/lukefun/Q-System/internal/gateway"
	"github.com/lukefun/Q-System/internal/store"
	"github.com/lukefun/Q-System/pkg/config"
	"github.com/lukefun/Q-System/pkg/logger"
)

func lookback(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Store.LookbackDays) * 24 * time.Hour
}

// ReferenceDataJob refreshes the classification mapping and reported
// fundamentals. It runs weekly; reference data moves slowly.
type ReferenceDataJob struct {
	store   *store.Store
	gw      gateway.Gateway
	aligner *align.Aligner
	logger  *logger.Logger
}

// NewReferenceDataJob creates the reference-data refresh job.
func NewReferenceDataJob(st *store.Store, gw gateway.Gateway, al *align.Aligner, log *logger.Logger) *ReferenceDataJob {
	return &ReferenceDataJob{store: st, gw: gw, aligner: al, logger: log}
}

func (j *ReferenceDataJob) Name() string {
	return "reference_data"
}

// Schedule runs Saturdays at 6 AM.
func (j *ReferenceDataJob) Schedule() string {
	return "0 0 6 * * 6"
}

func (j *ReferenceDataJob) Run(ctx context.Context) error {
	cls, err := j.gw.FetchClassifications(ctx)
	if err != nil {
		return fmt.Errorf("refresh classifications: %w", err)
	}

	added, err := j.store.SaveClassifications(ctx, cls)
	if err != nil {
		return fmt.Errorf("save classifications: %w", err)
	}
	if added > 0 && j.aligner != nil {
		j.aligner.InvalidateCache()
	}
	j.logger.WithField("rows_added", added).Info("classification mapping refreshed")

	codes := make(map[string]bool, len(cls))
	failures := 0
	for _, c := range cls {
		if codes[c.Code] {
			continue
		}
		codes[c.Code] = true

		recs, err := j.gw.FetchFundamentals(ctx, c.Code)
		if err != nil {
			failures++
			j.logger.WithError(err).WithField("code", c.Code).Warn("fundamentals fetch failed")
			continue
		}
		if _, err := j.store.SaveFundamentals(ctx, recs); err != nil {
			failures++
			j.logger.WithError(err).WithField("code", c.Code).Warn("fundamentals save failed")
		}
	}

	if failures > 0 {
		return fmt.Errorf("reference data: %d instrument(s) failed", failures)
	}
	return nil
}
