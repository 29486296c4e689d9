// Package align provides point-in-time alignment of reference data.
// Everything here answers one question: what was knowable at a given
// date? Fundamentals become knowable at their disclosure date, never
// at the reporting period they describe; classifications become
// effective at their effective date. Selecting by the wrong date is
// lookahead bias and silently inflates backtests.
package align

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/pkg/logger"
)

// FundamentalSource loads the reported fundamentals history for one
// instrument.
type FundamentalSource interface {
	LoadFundamentals(ctx context.Context, code string) ([]marketdata.FundamentalRecord, error)
}

// ClassificationSource loads the full industry mapping history.
type ClassificationSource interface {
	LoadClassifications(ctx context.Context) ([]marketdata.Classification, error)
}

// AlignedRow is one trading date with the reference data that was
// knowable on it. Fundamental and Classification are nil when nothing
// was knowable yet.
type AlignedRow struct {
	Bar            marketdata.Bar
	Fundamental    *marketdata.FundamentalRecord
	Classification *marketdata.Classification
}

// AlignedSeries is a price series joined per trading date with
// point-in-time fundamentals and classifications.
type AlignedSeries struct {
	Code string
	Type marketdata.SeriesType
	Rows []AlignedRow
}

// AlignOptions tunes one Align call.
type AlignOptions struct {
	// AsOf, when set, is the knowledge cut-off: trading dates after
	// it are dropped and reference data disclosed or effective after
	// it is invisible even to later surviving rows. Zero means no
	// cut-off beyond each row's own trading date.
	AsOf time.Time
}

// Aligner performs point-in-time selection against stored reference
// data. The classification history is cached after the first lookup;
// call InvalidateCache after writing new mappings.
type Aligner struct {
	funds FundamentalSource
	cls   ClassificationSource
	log   *logger.Logger

	mu       sync.RWMutex
	clsCache map[string][]marketdata.Classification
}

// New creates an aligner over the given sources.
func New(funds FundamentalSource, cls ClassificationSource, log *logger.Logger) *Aligner {
	return &Aligner{funds: funds, cls: cls, log: log}
}

// PointInTime selects the fundamental record knowable at asOf: among
// records with DiscloseDate <= asOf, the one with the latest
// ReportPeriod. When a period was disclosed more than once within the
// window, the earlier disclosure wins; the value actually available
// first is the conservative choice. Returns false when nothing was
// knowable yet.
func PointInTime(recs []marketdata.FundamentalRecord, asOf time.Time) (marketdata.FundamentalRecord, bool) {
	asOf = marketdata.Day(asOf)

	var best marketdata.FundamentalRecord
	found := false
	for _, rec := range recs {
		if rec.DiscloseDate.After(asOf) {
			continue
		}
		switch {
		case !found:
			best, found = rec, true
		case rec.ReportPeriod.After(best.ReportPeriod):
			best = rec
		case rec.ReportPeriod.Equal(best.ReportPeriod) && rec.DiscloseDate.Before(best.DiscloseDate):
			best = rec
		}
	}
	return best, found
}

// Align joins a price series with its reference data per trading
// date: each row carries the fundamental with the greatest disclosure
// date at or before that trading date and the classification
// effective on it. The join never reaches past a row's own trading
// date, so every row is safe to hand to a backtest running on that
// date.
func (a *Aligner) Align(ctx context.Context, price *marketdata.Series, opts AlignOptions) (*AlignedSeries, error) {
	if price == nil {
		return nil, fmt.Errorf("align: nil price series")
	}

	recs, err := a.funds.LoadFundamentals(ctx, price.Code)
	if err != nil {
		return nil, err
	}

	cutoff := time.Time{}
	if !opts.AsOf.IsZero() {
		cutoff = marketdata.Day(opts.AsOf)
	}

	out := &AlignedSeries{Code: price.Code, Type: price.Type}
	for _, b := range price.Bars {
		gate := marketdata.Day(b.Timestamp)
		if !cutoff.IsZero() && gate.After(cutoff) {
			continue
		}

		row := AlignedRow{Bar: b}
		if rec, ok := PointInTime(recs, gate); ok {
			row.Fundamental = &rec
		}

		cls, ok, err := a.ClassificationAt(ctx, price.Code, gate)
		if err != nil {
			return nil, err
		}
		if ok {
			row.Classification = &cls
		}

		out.Rows = append(out.Rows, row)
	}

	a.log.WithFields(map[string]interface{}{
		"code":  price.Code,
		"bars":  price.Len(),
		"rows":  len(out.Rows),
		"as_of": opts.AsOf,
	}).Debug("series aligned")

	return out, nil
}

// Snapshot resolves the knowable fundamental record per instrument at
// one date. Instruments with no knowable record are absent from the
// result, not an error.
func (a *Aligner) Snapshot(ctx context.Context, codes []string, asOf time.Time) (map[string]marketdata.FundamentalRecord, error) {
	out := make(map[string]marketdata.FundamentalRecord, len(codes))
	for _, code := range codes {
		recs, err := a.funds.LoadFundamentals(ctx, code)
		if err != nil {
			return nil, err
		}
		if rec, ok := PointInTime(recs, asOf); ok {
			out[code] = rec
		}
	}
	return out, nil
}

// Violation is one aligned row that used reference data before it was
// public.
type Violation struct {
	Code          string
	TradeDate     time.Time
	Field         string
	ReferenceDate time.Time
}

// DetectLookahead audits an aligned series row by row: a row violates
// when its attached fundamental was disclosed, or its classification
// became effective, after the row's own trading date. An empty result
// means the series is safe to replay.
func DetectLookahead(aligned *AlignedSeries) []Violation {
	if aligned == nil {
		return nil
	}

	var out []Violation
	for _, row := range aligned.Rows {
		tradeDate := marketdata.Day(row.Bar.Timestamp)

		if f := row.Fundamental; f != nil && f.DiscloseDate.After(tradeDate) {
			out = append(out, Violation{
				Code:          aligned.Code,
				TradeDate:     tradeDate,
				Field:         "disclose_date",
				ReferenceDate: f.DiscloseDate,
			})
		}
		if c := row.Classification; c != nil && c.EffectiveDate.After(tradeDate) {
			out = append(out, Violation{
				Code:          aligned.Code,
				TradeDate:     tradeDate,
				Field:         "effective_date",
				ReferenceDate: c.EffectiveDate,
			})
		}
	}
	return out
}

// ClassificationAt returns the industry membership effective at the
// given date: the mapping with the greatest EffectiveDate <= date.
// Returns false when the instrument had no classification yet.
func (a *Aligner) ClassificationAt(ctx context.Context, code string, date time.Time) (marketdata.Classification, bool, error) {
	history, err := a.classificationHistory(ctx, code)
	if err != nil {
		return marketdata.Classification{}, false, err
	}

	date = marketdata.Day(date)
	// History is sorted ascending by effective date; find the last
	// entry at or before the query date.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].EffectiveDate.After(date)
	})
	if idx == 0 {
		return marketdata.Classification{}, false, nil
	}
	return history[idx-1], true, nil
}

// InvalidateCache drops the cached classification history. The next
// lookup reloads from the source.
func (a *Aligner) InvalidateCache() {
	a.mu.Lock()
	a.clsCache = nil
	a.mu.Unlock()
}

func (a *Aligner) classificationHistory(ctx context.Context, code string) ([]marketdata.Classification, error) {
	a.mu.RLock()
	cache := a.clsCache
	a.mu.RUnlock()

	if cache == nil {
		all, err := a.cls.LoadClassifications(ctx)
		if err != nil {
			return nil, err
		}
		cache = make(map[string][]marketdata.Classification)
		for _, c := range all {
			c.EffectiveDate = marketdata.Day(c.EffectiveDate)
			cache[c.Code] = append(cache[c.Code], c)
		}
		for _, history := range cache {
			sort.Slice(history, func(i, j int) bool {
				return history[i].EffectiveDate.Before(history[j].EffectiveDate)
			})
		}

		a.mu.Lock()
		a.clsCache = cache
		a.mu.Unlock()
	}

	return cache[code], nil
}
