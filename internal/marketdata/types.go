package marketdata

import (
	"fmt"
	"math"
	"time"
)

// SeriesType identifies the cadence of a bar series.
type SeriesType string

const (
	SeriesDaily SeriesType = "daily"
	SeriesTick  SeriesType = "tick"
)

// Valid reports whether t is a known series type.
func (t SeriesType) Valid() bool {
	return t == SeriesDaily || t == SeriesTick
}

// Bar is one OHLCV record for one instrument at one timestamp.
// Bars are value types; nothing mutates a bar after construction —
// a corrected bar replaces the old one on merge.
type Bar struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Turnover  float64   `json:"turnover"`
}

// CheckShape rejects malformed bars at the boundary: missing code,
// zero timestamp, or non-finite numeric fields. Value-level problems
// (negative prices, broken OHLC ordering) are the quality validator's
// job and produce a report, not a construction error.
func (b Bar) CheckShape() error {
	if b.Code == "" {
		return fmt.Errorf("bar has empty instrument code")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar %s has zero timestamp", b.Code)
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Turnover} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s@%s has non-finite price field",
				b.Code, b.Timestamp.Format("2006-01-02"))
		}
	}
	return nil
}

// OHLCOrdered reports whether high >= max(open, close) and
// low <= min(open, close).
func (b Bar) OHLCOrdered() bool {
	return b.High >= math.Max(b.Open, b.Close) &&
		b.Low <= math.Min(b.Open, b.Close)
}

// AdjustmentFactor is one step of the cumulative corporate-action
// multiplier for an instrument. The factor in effect at date d is the
// one with the greatest EffectiveDate <= d; before the first step the
// multiplier is 1.0.
type AdjustmentFactor struct {
	Code          string    `json:"code"`
	EffectiveDate time.Time `json:"effective_date"`
	Factor        float64   `json:"factor"`
}

// FundamentalRecord is one reported fundamentals row. ReportPeriod is
// the accounting period the figures describe; DiscloseDate is when
// they became public. The record is knowable only at or after
// DiscloseDate — the two must never be conflated.
type FundamentalRecord struct {
	Code         string    `json:"code"`
	ReportPeriod time.Time `json:"report_period"`
	DiscloseDate time.Time `json:"disclose_date"`
	EPS          float64   `json:"eps"`
	BVPS         float64   `json:"bvps"`
	Revenue      float64   `json:"revenue"`
	NetProfit    float64   `json:"net_profit"`
}

// Classification is one historical industry membership. The
// membership active at a query date is the one with the greatest
// EffectiveDate <= that date.
type Classification struct {
	Code          string    `json:"code"`
	EffectiveDate time.Time `json:"effective_date"`
	Sector        string    `json:"sector"`
	Industry      string    `json:"industry"`
	SubIndustry   string    `json:"sub_industry"`
}

// Day normalizes t to UTC midnight. Daily bars and all effective /
// disclosure dates are stored at day granularity.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
