// Package quality runs statistical and structural checks over bar
// series. Validation is a pure read -> report function: it never
// mutates its input and is safe to call repeatedly.
package quality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/pkg/config"
)

// Thresholds holds the validator's tunables. The zero value is not
// usable; start from DefaultThresholds or FromConfig.
type Thresholds struct {
	// DailyGapDays flags an inter-bar calendar gap in a daily series
	// when it exceeds this many days. The default of 3 tolerates
	// ordinary weekends.
	DailyGapDays int

	// IntradayGap flags an inter-bar gap within a single trading
	// session of a tick series.
	IntradayGap time.Duration

	// PriceIQRMultiplier is the fence width for price outliers.
	PriceIQRMultiplier float64

	// VolumeIQRMultiplier is the upper fence width for volume.
	VolumeIQRMultiplier float64

	// Holidays, when supplied, names non-trading weekdays so that a
	// span covered entirely by holidays is not reported as missing
	// data. Nil preserves the plain calendar-day heuristic.
	Holidays map[time.Time]bool
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DailyGapDays:        3,
		IntradayGap:         time.Hour,
		PriceIQRMultiplier:  1.5,
		VolumeIQRMultiplier: 3.0,
	}
}

// FromConfig builds thresholds from the application config.
func FromConfig(cfg config.QualityConfig) Thresholds {
	return Thresholds{
		DailyGapDays:        cfg.DailyGapDays,
		IntradayGap:         cfg.IntradayGap,
		PriceIQRMultiplier:  cfg.PriceIQRMultiplier,
		VolumeIQRMultiplier: cfg.VolumeIQRMultiplier,
	}
}

// Validator checks series quality against a set of thresholds.
type Validator struct {
	thresholds Thresholds
}

// NewValidator creates a validator.
func NewValidator(th Thresholds) *Validator {
	if th.DailyGapDays <= 0 {
		th.DailyGapDays = 3
	}
	if th.IntradayGap <= 0 {
		th.IntradayGap = time.Hour
	}
	if th.PriceIQRMultiplier <= 0 {
		th.PriceIQRMultiplier = 1.5
	}
	if th.VolumeIQRMultiplier <= 0 {
		th.VolumeIQRMultiplier = 3.0
	}
	return &Validator{thresholds: th}
}

// Validate produces a quality report for the series. It returns an
// error only for malformed structural input (nil series, unknown
// type); bad data values never raise — they land in the report as
// errors, warnings, anomalies or gaps.
func (v *Validator) Validate(s *marketdata.Series) (*marketdata.QualityReport, error) {
	if s == nil {
		return nil, fmt.Errorf("validate: nil series")
	}
	if !s.Type.Valid() {
		return nil, fmt.Errorf("validate: unknown series type %q", s.Type)
	}

	report := &marketdata.QualityReport{
		Code:       s.Code,
		SeriesType: s.Type,
		Valid:      true,
	}

	v.checkStructure(s, report)
	v.detectAnomalies(s, report)
	v.detectGaps(s, report)
	report.Stats = computeStats(s)

	if len(report.Errors) > 0 {
		report.Valid = false
	}
	if n := len(report.Anomalies); n > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d anomalous value(s) flagged", n))
	}

	return report, nil
}

// checkStructure records hard violations: negative prices or volume
// and broken OHLC ordering. These invalidate the series.
func (v *Validator) checkStructure(s *marketdata.Series, report *marketdata.QualityReport) {
	for _, b := range s.Bars {
		date := b.Timestamp.Format("2006-01-02")
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s %s: negative price", b.Code, date))
			continue
		}
		if b.Volume < 0 {
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s %s: negative volume %d", b.Code, date, b.Volume))
			continue
		}
		if !b.OHLCOrdered() {
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s %s: OHLC ordering violated (o=%.4f h=%.4f l=%.4f c=%.4f)",
					b.Code, date, b.Open, b.High, b.Low, b.Close))
		}
	}
}

// detectAnomalies applies the interquartile-range rule per column.
// Price columns use the symmetric fence; volume uses [0, Q3 + k*IQR]
// with zero volume flagged separately.
func (v *Validator) detectAnomalies(s *marketdata.Series, report *marketdata.QualityReport) {
	if s.Len() < 4 {
		// Quartiles over fewer points flag everything or nothing.
		return
	}

	columns := []struct {
		name  string
		value func(marketdata.Bar) float64
	}{
		{"open", func(b marketdata.Bar) float64 { return b.Open }},
		{"high", func(b marketdata.Bar) float64 { return b.High }},
		{"low", func(b marketdata.Bar) float64 { return b.Low }},
		{"close", func(b marketdata.Bar) float64 { return b.Close }},
	}

	for _, col := range columns {
		values := make([]float64, s.Len())
		for i, b := range s.Bars {
			values[i] = col.value(b)
		}
		q1, q3 := quartiles(values)
		iqr := q3 - q1
		lower := q1 - v.thresholds.PriceIQRMultiplier*iqr
		upper := q3 + v.thresholds.PriceIQRMultiplier*iqr

		for _, b := range s.Bars {
			val := col.value(b)
			if val < lower || val > upper {
				report.Anomalies = append(report.Anomalies, marketdata.Anomaly{
					Code:      b.Code,
					Timestamp: b.Timestamp,
					Column:    col.name,
					Value:     val,
					Reason:    fmt.Sprintf("outside [%.4f, %.4f]", lower, upper),
				})
			}
		}
	}

	volumes := make([]float64, s.Len())
	for i, b := range s.Bars {
		volumes[i] = float64(b.Volume)
	}
	q1, q3 := quartiles(volumes)
	upper := q3 + v.thresholds.VolumeIQRMultiplier*(q3-q1)

	for _, b := range s.Bars {
		switch {
		case b.Volume == 0:
			report.Anomalies = append(report.Anomalies, marketdata.Anomaly{
				Code:      b.Code,
				Timestamp: b.Timestamp,
				Column:    "volume",
				Value:     0,
				Reason:    "zero volume",
			})
		case float64(b.Volume) > upper:
			report.Anomalies = append(report.Anomalies, marketdata.Anomaly{
				Code:      b.Code,
				Timestamp: b.Timestamp,
				Column:    "volume",
				Value:     float64(b.Volume),
				Reason:    fmt.Sprintf("extreme volume (above %.0f)", upper),
			})
		}
	}
}

// detectGaps walks the series in timestamp order and reports holes.
func (v *Validator) detectGaps(s *marketdata.Series, report *marketdata.QualityReport) {
	if s.Len() < 2 {
		return
	}

	switch s.Type {
	case marketdata.SeriesDaily:
		v.detectDailyGaps(s, report)
	case marketdata.SeriesTick:
		v.detectIntradayGaps(s, report)
	}
}

func (v *Validator) detectDailyGaps(s *marketdata.Series, report *marketdata.QualityReport) {
	for i := 0; i < s.Len()-1; i++ {
		cur := s.Bars[i].Timestamp
		next := s.Bars[i+1].Timestamp
		gapDays := int(next.Sub(cur).Hours() / 24)
		if gapDays <= v.thresholds.DailyGapDays {
			continue
		}

		missing := v.missingTradingDays(cur, next)
		if v.thresholds.Holidays != nil && missing == 0 {
			// The whole span is weekends and known holidays.
			continue
		}

		report.Gaps = append(report.Gaps, marketdata.Gap{
			Start:       cur,
			End:         next,
			MissingDays: missing,
		})
	}
}

// missingTradingDays counts weekdays strictly between a and b that are
// not listed as holidays.
func (v *Validator) missingTradingDays(a, b time.Time) int {
	count := 0
	for d := a.AddDate(0, 0, 1); d.Before(b); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if v.thresholds.Holidays != nil && v.thresholds.Holidays[marketdata.Day(d)] {
			continue
		}
		count++
	}
	return count
}

func (v *Validator) detectIntradayGaps(s *marketdata.Series, report *marketdata.QualityReport) {
	for i := 0; i < s.Len()-1; i++ {
		cur := s.Bars[i].Timestamp
		next := s.Bars[i+1].Timestamp

		// Overnight and weekend breaks between sessions are expected.
		if !marketdata.Day(cur).Equal(marketdata.Day(next)) {
			continue
		}
		if span := next.Sub(cur); span > v.thresholds.IntradayGap {
			report.Gaps = append(report.Gaps, marketdata.Gap{
				Start: cur,
				End:   next,
				Span:  span,
			})
		}
	}
}

func computeStats(s *marketdata.Series) marketdata.SeriesStats {
	stats := marketdata.SeriesStats{Rows: s.Len()}
	if s.Len() == 0 {
		return stats
	}

	first, _ := s.First()
	last, _ := s.Last()
	stats.Start = first.Timestamp
	stats.End = last.Timestamp

	var sum, sumSq, volSum float64
	stats.CloseMin = math.Inf(1)
	stats.CloseMax = math.Inf(-1)
	for _, b := range s.Bars {
		sum += b.Close
		sumSq += b.Close * b.Close
		volSum += float64(b.Volume)
		if b.Close < stats.CloseMin {
			stats.CloseMin = b.Close
		}
		if b.Close > stats.CloseMax {
			stats.CloseMax = b.Close
		}
		if b.Volume > stats.VolumeMax {
			stats.VolumeMax = b.Volume
		}
	}

	n := float64(s.Len())
	stats.CloseMean = sum / n
	stats.VolumeMean = volSum / n
	variance := sumSq/n - stats.CloseMean*stats.CloseMean
	if variance > 0 {
		stats.CloseStd = math.Sqrt(variance)
	}
	return stats
}

// quartiles returns Q1 and Q3 using linear interpolation between
// order statistics.
func quartiles(values []float64) (q1, q3 float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantile(sorted, 0.25), quantile(sorted, 0.75)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
