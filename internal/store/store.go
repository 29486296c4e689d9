// Package store is the local time-series store: per-instrument
// parquet partitions for bars, fundamentals and classifications, plus
// a sqlite metadata database for watermarks and the update log.
//
// All writes are idempotent merges. Persisting the same slice twice
// leaves the partition byte-for-byte unchanged, and partition rewrites
// are atomic, so a crash mid-write never corrupts existing data.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/internal/quality"
	"github.com/lukefun/Q-System/pkg/logger"
)

// Store is the on-disk time-series store rooted at one data
// directory. Methods are safe for concurrent use across distinct
// instruments; concurrent writes to the same instrument are
// serialized by the caller (UpdateAll dispatches one worker per
// instrument).
type Store struct {
	dir       string
	meta      *metaDB
	validator *quality.Validator
	log       *logger.Logger
}

// Info summarizes the store's on-disk state.
type Info struct {
	DataDir         string
	DailySeries     int
	TickSeries      int
	Fundamentals    int
	Classifications int
	Watermarks      int
	LastUpdate      time.Time
	LastOperation   string
}

// Open creates the data-directory layout if needed and opens the
// metadata database. The validator gates every bar write; a nil
// validator falls back to default thresholds.
func Open(dataDir string, validator *quality.Validator, log *logger.Logger) (*Store, error) {
	for _, sub := range []string{"daily", "tick", "fundamental", "classification", "metadata"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, &marketdata.StorageError{Op: "mkdir", Path: filepath.Join(dataDir, sub), Err: err}
		}
	}

	meta, err := openMeta(filepath.Join(dataDir, "metadata", "meta.db"))
	if err != nil {
		return nil, &marketdata.StorageError{Op: "open", Path: filepath.Join(dataDir, "metadata", "meta.db"), Err: err}
	}

	if validator == nil {
		validator = quality.NewValidator(quality.DefaultThresholds())
	}
	return &Store{dir: dataDir, meta: meta, validator: validator, log: log}, nil
}

// Close releases the metadata database.
func (s *Store) Close() error {
	return s.meta.close()
}

func (s *Store) barPath(typ marketdata.SeriesType, code string) string {
	return filepath.Join(s.dir, string(typ), code+".parquet")
}

// Persist validates the series, merges it into its partition and
// advances the watermark. Structural violations (negative prices,
// broken OHLC ordering) reject the whole slice; warnings and flagged
// anomalies never block the write but are logged and noted in the
// update log. Returns the number of timestamps that did not exist
// before the call; rewriting known bars (corrections) counts as zero
// added rows but still lands on disk.
func (s *Store) Persist(ctx context.Context, series *marketdata.Series) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if series == nil || series.Len() == 0 {
		return 0, nil
	}

	report, err := s.validator.Validate(series)
	if err != nil {
		return 0, err
	}
	if len(report.Errors) > 0 {
		return 0, &marketdata.ValidationError{
			Code:       series.Code,
			SeriesType: series.Type,
			Reasons:    report.Errors,
		}
	}
	note := ""
	if len(report.Warnings) > 0 || len(report.Anomalies) > 0 {
		note = fmt.Sprintf("warnings=%d anomalies=%d gaps=%d score=%d",
			len(report.Warnings), len(report.Anomalies), len(report.Gaps), report.Score())
		s.log.WithFields(map[string]interface{}{
			"code":      series.Code,
			"type":      series.Type,
			"warnings":  report.Warnings,
			"anomalies": len(report.Anomalies),
			"gaps":      len(report.Gaps),
			"score":     report.Score(),
		}).Warn("series accepted with quality findings")
	}

	path := s.barPath(series.Type, series.Code)
	existing, err := readPartition[barRow](path)
	if err != nil {
		return 0, err
	}

	merged := make(map[int64]barRow, len(existing)+series.Len())
	for _, r := range existing {
		merged[r.Timestamp] = r
	}
	added := 0
	for _, b := range series.Bars {
		r := toBarRow(b)
		if _, ok := merged[r.Timestamp]; !ok {
			added++
		}
		merged[r.Timestamp] = r
	}

	rows := make([]barRow, 0, len(merged))
	for _, r := range merged {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })

	if err := writePartition(path, rows); err != nil {
		return 0, err
	}

	last := time.UnixMilli(rows[len(rows)-1].Timestamp).UTC()
	if err := s.meta.setWatermark(string(series.Type), series.Code, last); err != nil {
		return added, &marketdata.StorageError{Op: "watermark", Path: path, Err: err}
	}
	if err := s.meta.logUpdate(string(series.Type), series.Code, added, "persist", note); err != nil {
		return added, &marketdata.StorageError{Op: "log", Path: path, Err: err}
	}

	s.log.WithFields(map[string]interface{}{
		"code":       series.Code,
		"type":       series.Type,
		"rows_added": added,
		"rows_total": len(rows),
	}).Debug("partition persisted")

	return added, nil
}

// Load reads one instrument's bars within [from, to]. Zero bounds are
// open-ended. Unknown instruments load as an empty series, not an
// error.
func (s *Store) Load(ctx context.Context, code string, typ marketdata.SeriesType, from, to time.Time) (*marketdata.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("load %s: unknown series type %q", code, typ)
	}

	rows, err := readPartition[barRow](s.barPath(typ, code))
	if err != nil {
		return nil, err
	}

	bars := make([]marketdata.Bar, 0, len(rows))
	for _, r := range rows {
		b := r.toBar()
		if !from.IsZero() && b.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && b.Timestamp.After(to) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return &marketdata.Series{Code: code, Type: typ}, nil
	}
	return marketdata.NewSeries(code, typ, bars)
}

// MergeIncremental builds a series from raw bars and persists it.
// This is the write entry point for fetched vendor data.
func (s *Store) MergeIncremental(ctx context.Context, typ marketdata.SeriesType, code string, bars []marketdata.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	series, err := marketdata.NewSeries(code, typ, bars)
	if err != nil {
		return 0, &marketdata.ValidationError{
			Code:       code,
			SeriesType: typ,
			Reasons:    []string{err.Error()},
		}
	}
	return s.Persist(ctx, series)
}

// Watermark returns the latest persisted timestamp for an instrument,
// or false when the instrument has never been written.
func (s *Store) Watermark(ctx context.Context, typ marketdata.SeriesType, code string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	return s.meta.watermark(string(typ), code)
}

// ResetWatermark clears the watermark so the next update refetches
// the full lookback window. Partition data stays in place; refetched
// bars merge idempotently.
func (s *Store) ResetWatermark(ctx context.Context, typ marketdata.SeriesType, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.meta.resetWatermark(string(typ), code); err != nil {
		return err
	}
	return s.meta.logUpdate(string(typ), code, 0, "reset_watermark", "")
}

// Info reports partition counts and the most recent update activity.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := &Info{
		DataDir:     s.dir,
		DailySeries: countPartitions(filepath.Join(s.dir, "daily")),
		TickSeries:  countPartitions(filepath.Join(s.dir, "tick")),
	}

	fundamentals := countPartitions(filepath.Join(s.dir, "fundamental"))
	info.Fundamentals = fundamentals

	classifications, err := readPartition[classificationRow](s.classificationPath())
	if err != nil {
		return nil, err
	}
	info.Classifications = len(classifications)

	n, err := s.meta.countWatermarks()
	if err != nil {
		return nil, err
	}
	info.Watermarks = int(n)

	logs, err := s.meta.recentLogs(1)
	if err != nil {
		return nil, err
	}
	if len(logs) > 0 {
		info.LastUpdate = logs[0].CreatedAt
		info.LastOperation = fmt.Sprintf("%s %s/%s", logs[0].Operation, logs[0].SeriesType, logs[0].Code)
	}

	return info, nil
}
