package store

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lukefun/Q-System/internal/gateway"
	"github.com/lukefun/Q-System/internal/marketdata"
)

// UpdateOptions tunes one UpdateAll batch.
type UpdateOptions struct {
	// Workers bounds concurrent instruments. Zero means 4.
	Workers int

	// Lookback is the fetch window for instruments with no watermark.
	// Zero means 365 days.
	Lookback time.Duration

	// Progress, when set, is called once per finished instrument. It
	// may be called from multiple goroutines.
	Progress func(done, total int, code string)

	// Now overrides the batch reference time. Zero means time.Now.
	Now time.Time
}

// InstrumentResult is the outcome for one instrument in a batch.
type InstrumentResult struct {
	Code      string
	RowsAdded int
	Err       error
}

// BatchSummary aggregates one UpdateAll run. A failed instrument
// never aborts the batch; its error is recorded here.
type BatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	RowsAdded int
	Results   []InstrumentResult
}

// Failures returns only the failed results.
func (b *BatchSummary) Failures() []InstrumentResult {
	var out []InstrumentResult
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// UpdateAll runs the watermark-driven incremental update over a batch
// of instruments. Each instrument fetches only bars strictly after
// its watermark (or a lookback window on first sight), merges them
// idempotently, and advances the watermark. Instruments fail
// independently; the batch always runs to completion unless the
// context is canceled.
func (s *Store) UpdateAll(ctx context.Context, gw gateway.Gateway, typ marketdata.SeriesType, codes []string, opts UpdateOptions) (*BatchSummary, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 365 * 24 * time.Hour
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.log.WithFields(map[string]interface{}{
		"type":        typ,
		"instruments": len(codes),
		"workers":     workers,
	}).Info("incremental update started")

	results := make([]InstrumentResult, len(codes))
	var done atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			results[i] = s.updateOne(ctx, gw, typ, code, now, lookback)
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(codes), code)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &BatchSummary{Total: len(codes), Results: results}
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
			s.log.WithError(r.Err).WithField("code", r.Code).Warn("instrument update failed")
			continue
		}
		summary.Succeeded++
		summary.RowsAdded += r.RowsAdded
	}

	s.log.WithFields(map[string]interface{}{
		"succeeded":  summary.Succeeded,
		"failed":     summary.Failed,
		"rows_added": summary.RowsAdded,
	}).Info("incremental update finished")

	return summary, ctx.Err()
}

// updateOne fetches and merges one instrument.
func (s *Store) updateOne(ctx context.Context, gw gateway.Gateway, typ marketdata.SeriesType, code string, now time.Time, lookback time.Duration) InstrumentResult {
	res := InstrumentResult{Code: code}

	wm, haveWM, err := s.meta.watermark(string(typ), code)
	if err != nil {
		res.Err = err
		return res
	}

	var from time.Time
	if haveWM {
		if typ == marketdata.SeriesDaily {
			from = wm.AddDate(0, 0, 1)
		} else {
			from = wm.Add(time.Millisecond)
		}
	} else {
		from = now.Add(-lookback)
	}
	if from.After(now) {
		// Already current.
		return res
	}

	bars, err := gw.FetchBars(ctx, code, typ, from, now)
	if err != nil {
		res.Err = err
		return res
	}

	// Vendors that treat the window as inclusive can echo the
	// watermark bar back; drop anything not strictly newer.
	if haveWM {
		fresh := bars[:0]
		for _, b := range bars {
			if b.Timestamp.After(wm) {
				fresh = append(fresh, b)
			}
		}
		bars = fresh
	}
	if len(bars) == 0 {
		return res
	}

	res.RowsAdded, res.Err = s.MergeIncremental(ctx, typ, code, bars)
	return res
}
