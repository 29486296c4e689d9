package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(code string, ts time.Time, close float64) marketdata.Bar {
	return marketdata.Bar{
		Code:      code,
		Timestamp: ts,
		Open:      close * 0.99,
		High:      close * 1.02,
		Low:       close * 0.97,
		Close:     close,
		Volume:    1000,
	}
}

func dailySeries(t *testing.T, code string, bars ...marketdata.Bar) *marketdata.Series {
	t.Helper()
	s, err := marketdata.NewSeries(code, marketdata.SeriesDaily, bars)
	require.NoError(t, err)
	return s
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := dailySeries(t, "005930",
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 3), 101),
		bar("005930", day(2024, 1, 4), 102),
	)

	added, err := s.Persist(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, in.Bars, out.Bars)
}

func TestPersistIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := dailySeries(t, "005930",
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 3), 101),
	)

	added, err := s.Persist(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.Persist(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestPersistOverlapAddsOnlyNewRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := dailySeries(t, "005930",
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 3), 101),
		bar("005930", day(2024, 1, 4), 102),
	)
	_, err := s.Persist(ctx, first)
	require.NoError(t, err)

	// Overlapping slice: two known timestamps, two new ones.
	second := dailySeries(t, "005930",
		bar("005930", day(2024, 1, 3), 101),
		bar("005930", day(2024, 1, 4), 102),
		bar("005930", day(2024, 1, 5), 103),
		bar("005930", day(2024, 1, 8), 104),
	)
	added, err := s.Persist(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Len())
}

func TestPersistAppliesCorrections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, dailySeries(t, "005930", bar("005930", day(2024, 1, 2), 100)))
	require.NoError(t, err)

	corrected := bar("005930", day(2024, 1, 2), 250)
	added, err := s.Persist(ctx, dailySeries(t, "005930", corrected))
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 250.0, out.Bars[0].Close)
}

func TestPersistRejectsBadValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := bar("005930", day(2024, 1, 2), 100)
	bad.Low = -5
	series := &marketdata.Series{
		Code: "005930",
		Type: marketdata.SeriesDaily,
		Bars: []marketdata.Bar{bad},
	}

	_, err := s.Persist(ctx, series)
	require.Error(t, err)

	var vErr *marketdata.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "005930", vErr.Code)

	// The rejected write must leave nothing behind.
	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestPersistAcceptsAnomalousSeriesWithNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A 5x price spike is an outlier, not a structural violation:
	// the write goes through and the finding lands in the update log.
	bars := []marketdata.Bar{
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 3), 101),
		bar("005930", day(2024, 1, 4), 102),
		bar("005930", day(2024, 1, 5), 103),
		bar("005930", day(2024, 1, 8), 101),
		bar("005930", day(2024, 1, 9), 102),
		bar("005930", day(2024, 1, 10), 500),
	}
	in := dailySeries(t, "005930", bars...)

	added, err := s.Persist(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, len(bars), added)

	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, len(bars), out.Len())

	logs, err := s.meta.recentLogs(1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "persist", logs[0].Operation)
	assert.Contains(t, logs[0].Note, "anomalies=")
	assert.NotContains(t, logs[0].Note, "anomalies=0")
}

func TestLoadUnknownInstrumentIsEmpty(t *testing.T) {
	s := newTestStore(t)

	out, err := s.Load(context.Background(), "999999", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, "999999", out.Code)
}

func TestLoadRangeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, dailySeries(t, "005930",
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 3), 101),
		bar("005930", day(2024, 1, 4), 102),
		bar("005930", day(2024, 1, 5), 103),
	))
	require.NoError(t, err)

	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, day(2024, 1, 3), day(2024, 1, 4))
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, day(2024, 1, 3), out.Bars[0].Timestamp)
	assert.Equal(t, day(2024, 1, 4), out.Bars[1].Timestamp)
}

func TestWatermarkLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Watermark(ctx, marketdata.SeriesDaily, "005930")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Persist(ctx, dailySeries(t, "005930",
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 5), 101),
	))
	require.NoError(t, err)

	wm, ok, err := s.Watermark(ctx, marketdata.SeriesDaily, "005930")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wm.Equal(day(2024, 1, 5)))

	// Backfilling older bars must not move the watermark backwards.
	_, err = s.Persist(ctx, dailySeries(t, "005930", bar("005930", day(2023, 12, 28), 99)))
	require.NoError(t, err)

	wm, ok, err = s.Watermark(ctx, marketdata.SeriesDaily, "005930")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, wm.Equal(day(2024, 1, 5)))

	require.NoError(t, s.ResetWatermark(ctx, marketdata.SeriesDaily, "005930"))
	_, ok, err = s.Watermark(ctx, marketdata.SeriesDaily, "005930")
	require.NoError(t, err)
	assert.False(t, ok)

	// Data stays on disk after a watermark reset.
	out, err := s.Load(ctx, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
}

func TestSaveFundamentalsRestatementWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := marketdata.FundamentalRecord{
		Code:         "005930",
		ReportPeriod: day(2023, 12, 31),
		DiscloseDate: day(2024, 2, 15),
		EPS:          5.0,
	}
	added, err := s.SaveFundamentals(ctx, []marketdata.FundamentalRecord{original})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	restated := original
	restated.DiscloseDate = day(2024, 4, 30)
	restated.EPS = 4.8
	added, err = s.SaveFundamentals(ctx, []marketdata.FundamentalRecord{restated})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	recs, err := s.LoadFundamentals(ctx, "005930")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 4.8, recs[0].EPS)
	assert.True(t, recs[0].DiscloseDate.Equal(day(2024, 4, 30)))
}

func TestSaveClassificationsHistoryKept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.SaveClassifications(ctx, []marketdata.Classification{
		{Code: "005930", EffectiveDate: day(2020, 1, 1), Sector: "IT", Industry: "Semiconductors"},
		{Code: "005930", EffectiveDate: day(2023, 6, 1), Sector: "IT", Industry: "Consumer Electronics"},
		{Code: "000660", EffectiveDate: day(2020, 1, 1), Sector: "IT", Industry: "Semiconductors"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	// Same keys again: idempotent.
	added, err = s.SaveClassifications(ctx, []marketdata.Classification{
		{Code: "005930", EffectiveDate: day(2020, 1, 1), Sector: "IT", Industry: "Semiconductors"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	cls, err := s.LoadClassifications(ctx)
	require.NoError(t, err)
	require.Len(t, cls, 3)
	// Ordered by code then effective date.
	assert.Equal(t, "000660", cls[0].Code)
	assert.Equal(t, "005930", cls[1].Code)
	assert.True(t, cls[1].EffectiveDate.Before(cls[2].EffectiveDate))
}

func TestExportCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, dailySeries(t, "005930",
		bar("005930", day(2024, 1, 2), 100),
		bar("005930", day(2024, 1, 3), 101),
	))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = s.ExportCSV(ctx, &buf, "005930", marketdata.SeriesDaily, time.Time{}, time.Time{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "code,timestamp,open,high,low,close,volume,turnover")
	assert.Contains(t, out, "005930,2024-01-02")
	assert.Contains(t, out, "005930,2024-01-03")
}

func TestInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, dailySeries(t, "005930", bar("005930", day(2024, 1, 2), 100)))
	require.NoError(t, err)
	_, err = s.Persist(ctx, dailySeries(t, "000660", bar("000660", day(2024, 1, 2), 50)))
	require.NoError(t, err)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.DailySeries)
	assert.Equal(t, 0, info.TickSeries)
	assert.Equal(t, 2, info.Watermarks)
	assert.False(t, info.LastUpdate.IsZero())
}
