package marketdata

import (
	"fmt"
	"sort"
	"time"
)

// Series is an ordered, deduplicated-by-timestamp collection of bars
// for one (instrument, series-type) pair. At most one bar exists per
// timestamp; later input wins on duplicate timestamps.
type Series struct {
	Code string
	Type SeriesType
	Bars []Bar
}

// NewSeries constructs a validated series. Bars are sorted by
// timestamp and deduplicated (last write wins). Construction rejects
// malformed shapes — unknown series type, empty code, bars whose code
// disagrees with the series code, zero timestamps, non-finite fields.
func NewSeries(code string, typ SeriesType, bars []Bar) (*Series, error) {
	if code == "" {
		return nil, fmt.Errorf("series code must not be empty")
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown series type: %q", typ)
	}

	out := make([]Bar, 0, len(bars))
	for i, b := range bars {
		if err := b.CheckShape(); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		if b.Code != code {
			return nil, fmt.Errorf("bar %d: code %q does not match series %q", i, b.Code, code)
		}
		if typ == SeriesDaily {
			b.Timestamp = Day(b.Timestamp)
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	// Dedup adjacent timestamps, keeping the later occurrence.
	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}

	return &Series{Code: code, Type: typ, Bars: deduped}, nil
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// First returns the earliest bar, or false when the series is empty.
func (s *Series) First() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[0], true
}

// Last returns the latest bar, or false when the series is empty.
func (s *Series) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Clone returns a deep copy. Transforms operate on clones so callers
// never observe mutated input.
func (s *Series) Clone() *Series {
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	return &Series{Code: s.Code, Type: s.Type, Bars: bars}
}

// Slice returns the sub-series within [from, to]. Zero bounds mean
// unbounded on that side.
func (s *Series) Slice(from, to time.Time) *Series {
	out := &Series{Code: s.Code, Type: s.Type}
	for _, b := range s.Bars {
		if !from.IsZero() && b.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && b.Timestamp.After(to) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// Timestamps returns the bar timestamps in order.
func (s *Series) Timestamps() []time.Time {
	ts := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		ts[i] = b.Timestamp
	}
	return ts
}
