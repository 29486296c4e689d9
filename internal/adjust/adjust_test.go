package adjust

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukefun/Q-System/internal/marketdata"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSeries(t *testing.T, closes map[time.Time]float64) *marketdata.Series {
	t.Helper()
	bars := make([]marketdata.Bar, 0, len(closes))
	for ts, c := range closes {
		bars = append(bars, marketdata.Bar{
			Code:      "AAA",
			Timestamp: ts,
			Open:      c * 0.99,
			High:      c * 1.02,
			Low:       c * 0.97,
			Close:     c,
			Volume:    1_000_000,
		})
	}
	s, err := marketdata.NewSeries("AAA", marketdata.SeriesDaily, bars)
	require.NoError(t, err)
	return s
}

// A 20% dividend factor effective 2024-01-03: forward adjustment
// divides the 01-01/01-02 closes by 1.20 and leaves 01-03..01-05
// untouched; backward adjustment multiplies 01-04/01-05 by 1.20 and
// leaves 01-01..01-03 untouched.
func TestAdjust_DividendScenario(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 10.0,
		day(2024, 1, 2): 10.5,
		day(2024, 1, 3): 10.2,
		day(2024, 1, 4): 10.4,
		day(2024, 1, 5): 10.6,
	})
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 3), Factor: 1.20},
	}

	fwd, notes, err := Adjust(s, factors, Forward)
	require.NoError(t, err)

	assert.InDelta(t, 10.0/1.20, fwd.Bars[0].Close, 1e-9)
	assert.InDelta(t, 10.5/1.20, fwd.Bars[1].Close, 1e-9)
	assert.InDelta(t, 10.2, fwd.Bars[2].Close, 1e-9)
	assert.InDelta(t, 10.4, fwd.Bars[3].Close, 1e-9)
	assert.InDelta(t, 10.6, fwd.Bars[4].Close, 1e-9)
	// The bars before the factor produce a low-severity note.
	require.Len(t, notes, 1)
	assert.Equal(t, day(2024, 1, 1), notes[0].Timestamp)

	bwd, _, err := Adjust(s, factors, Backward)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, bwd.Bars[0].Close, 1e-9)
	assert.InDelta(t, 10.5, bwd.Bars[1].Close, 1e-9)
	assert.InDelta(t, 10.2*1.20, bwd.Bars[2].Close, 1e-9)
	assert.InDelta(t, 10.4*1.20, bwd.Bars[3].Close, 1e-9)
	assert.InDelta(t, 10.6*1.20, bwd.Bars[4].Close, 1e-9)
}

func TestAdjust_FixedPoints(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 20.0,
		day(2024, 1, 8): 21.0,
		day(2024, 2, 1): 23.5,
	})
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2023, 12, 1), Factor: 1.0},
		{Code: "AAA", EffectiveDate: day(2024, 1, 5), Factor: 1.1},
		{Code: "AAA", EffectiveDate: day(2024, 1, 20), Factor: 1.32},
	}

	fwd, _, err := Adjust(s, factors, Forward)
	require.NoError(t, err)
	last, _ := fwd.Last()
	assert.InDelta(t, 23.5, last.Close, 1e-9, "forward adjustment must leave the latest close unchanged")

	bwd, _, err := Adjust(s, factors, Backward)
	require.NoError(t, err)
	first, _ := bwd.First()
	assert.InDelta(t, 20.0, first.Close, 1e-9, "backward adjustment must leave the earliest close unchanged")
}

func TestAdjust_PreservesOHLCOrdering(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 10.0,
		day(2024, 1, 2): 55.5,
		day(2024, 1, 3): 3.25,
		day(2024, 1, 4): 120.0,
	})
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 2), Factor: 0.8},
		{Code: "AAA", EffectiveDate: day(2024, 1, 4), Factor: 1.6},
	}

	for _, dir := range []Direction{Forward, Backward} {
		adjusted, _, err := Adjust(s, factors, dir)
		require.NoError(t, err)
		for _, b := range adjusted.Bars {
			assert.True(t, b.OHLCOrdered(),
				"%s adjustment broke OHLC ordering at %s", dir, b.Timestamp)
		}
	}
}

func TestAdjust_VolumeNeverRescaled(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 10.0,
		day(2024, 1, 2): 11.0,
	})
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 2), Factor: 2.0},
	}

	adjusted, _, err := Adjust(s, factors, Forward)
	require.NoError(t, err)
	for i, b := range adjusted.Bars {
		assert.Equal(t, s.Bars[i].Volume, b.Volume)
	}
}

func TestAdjust_NoFactorsReturnsInputUnchanged(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 10.0,
		day(2024, 1, 2): 11.0,
	})

	adjusted, notes, err := Adjust(s, nil, Forward)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, s.Bars, adjusted.Bars)

	// Factors for a different instrument do not apply either.
	other := []marketdata.AdjustmentFactor{
		{Code: "BBB", EffectiveDate: day(2024, 1, 1), Factor: 2.0},
	}
	adjusted, _, err = Adjust(s, other, Forward)
	require.NoError(t, err)
	assert.Equal(t, s.Bars, adjusted.Bars)
}

func TestAdjust_DoesNotMutateInput(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 10.0,
		day(2024, 1, 5): 12.0,
	})
	original := s.Clone()
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 3), Factor: 1.5},
	}

	_, _, err := Adjust(s, factors, Forward)
	require.NoError(t, err)
	assert.Equal(t, original.Bars, s.Bars)
}

func TestAdjust_RejectsNonPositiveFactor(t *testing.T) {
	s := testSeries(t, map[time.Time]float64{day(2024, 1, 1): 10.0})
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 1), Factor: 0},
	}

	_, _, err := Adjust(s, factors, Forward)
	require.Error(t, err)
}

func TestAdjust_EmptySeries(t *testing.T) {
	s, err := marketdata.NewSeries("AAA", marketdata.SeriesDaily, nil)
	require.NoError(t, err)

	adjusted, notes, err := Adjust(s, []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 1), Factor: 1.5},
	}, Backward)
	require.NoError(t, err)
	assert.Zero(t, adjusted.Len())
	assert.Empty(t, notes)
}

func TestAdjust_RoundTripIsIdentityScale(t *testing.T) {
	// Forward then "un-forward" by multiplying back the terminal ratio
	// recovers the raw closes; sanity check that ratios are pure scalers.
	s := testSeries(t, map[time.Time]float64{
		day(2024, 1, 1): 10.0,
		day(2024, 1, 3): 12.0,
	})
	factors := []marketdata.AdjustmentFactor{
		{Code: "AAA", EffectiveDate: day(2024, 1, 2), Factor: 1.25},
	}

	fwd, _, err := Adjust(s, factors, Forward)
	require.NoError(t, err)
	raw := fwd.Bars[0].Close * 1.25
	assert.False(t, math.IsNaN(raw))
	assert.InDelta(t, s.Bars[0].Close, raw, 1e-9)
}
