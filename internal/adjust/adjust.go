// Package adjust applies split/dividend price adjustment to bar
// series. Both directions are pure transforms over a copy of the
// input; the store keeps raw bars and adjustment happens on read.
package adjust

import (
	"fmt"
	"sort"
	"time"

	"github.com/lukefun/Q-System/internal/marketdata"
)

// Direction selects the adjustment anchor.
type Direction int

const (
	// Forward holds the most recent price fixed and rescales history.
	// This is the bias-safe default for backtesting: every bar is
	// scaled using only factors dated on or before that bar plus the
	// terminal reference factor, never a factor from its own future
	// beyond the series end.
	Forward Direction = iota

	// Backward holds the earliest price fixed and rescales forward,
	// producing a display-continuous curve. Unsafe for backtesting —
	// it bakes future corporate actions into historical prices. Use
	// it for charts and analytics only, never for data handed to a
	// simulated strategy.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Note is a low-severity observation made during adjustment, e.g. a
// bar dated before the first known factor. Notes are informational;
// they never fail the transform.
type Note struct {
	Code      string
	Timestamp time.Time
	Message   string
}

// Adjust rescales the OHLC columns of s by the cumulative factor
// ratio between each bar's date and the anchor bar's date. Volume and
// turnover are never rescaled. The input series is not mutated.
//
// An instrument with no factors in range is returned unchanged — that
// is not an error. A bar dated before the earliest factor uses a
// multiplier of 1.0 and produces a Note.
func Adjust(s *marketdata.Series, factors []marketdata.AdjustmentFactor, dir Direction) (*marketdata.Series, []Note, error) {
	if dir != Forward && dir != Backward {
		return nil, nil, fmt.Errorf("adjust: unknown direction %d", int(dir))
	}
	if s == nil {
		return nil, nil, fmt.Errorf("adjust: nil series")
	}

	out := s.Clone()
	if out.Len() == 0 {
		return out, nil, nil
	}

	steps := factorsFor(s.Code, factors)
	if len(steps) == 0 {
		return out, nil, nil
	}
	for _, f := range steps {
		if f.Factor <= 0 {
			return nil, nil, fmt.Errorf("adjust: non-positive factor %.6f for %s at %s",
				f.Factor, f.Code, f.EffectiveDate.Format("2006-01-02"))
		}
	}

	var anchor time.Time
	switch dir {
	case Forward:
		anchor = out.Bars[len(out.Bars)-1].Timestamp
	case Backward:
		anchor = out.Bars[0].Timestamp
	}
	ref, ok := factorAt(steps, anchor)
	if !ok {
		ref = 1.0
	}

	var notes []Note
	uncovered := 0
	var firstUncovered time.Time
	for i := range out.Bars {
		b := &out.Bars[i]
		c, ok := factorAt(steps, b.Timestamp)
		if !ok {
			c = 1.0
			if uncovered == 0 {
				firstUncovered = b.Timestamp
			}
			uncovered++
		}
		ratio := c / ref
		b.Open *= ratio
		b.High *= ratio
		b.Low *= ratio
		b.Close *= ratio
	}

	if uncovered > 0 {
		notes = append(notes, Note{
			Code:      s.Code,
			Timestamp: firstUncovered,
			Message: fmt.Sprintf("%d bar(s) precede the earliest adjustment factor; multiplier 1.0 assumed",
				uncovered),
		})
	}

	return out, notes, nil
}

// factorsFor returns the factors for one instrument sorted by
// effective date.
func factorsFor(code string, factors []marketdata.AdjustmentFactor) []marketdata.AdjustmentFactor {
	out := make([]marketdata.AdjustmentFactor, 0, len(factors))
	for _, f := range factors {
		if f.Code == code {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})
	return out
}

// factorAt returns the cumulative factor in effect at date d: the
// factor with the greatest EffectiveDate <= d. The step function
// never looks forward.
func factorAt(sorted []marketdata.AdjustmentFactor, d time.Time) (float64, bool) {
	idx := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].EffectiveDate.After(d)
	})
	if idx == 0 {
		return 0, false
	}
	return sorted[idx-1].Factor, true
}
