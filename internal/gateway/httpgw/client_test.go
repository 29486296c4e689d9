package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/pkg/config"
	"github.com/lukefun/Q-System/pkg/logger"
)

func newTestClient(baseURL string) *Client {
	return New(config.GatewayConfig{
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		Burst:     100,
	}, logger.NewNop())
}

func TestFetchBars(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/bars", r.URL.Path)
		assert.Equal(t, "005930", r.URL.Query().Get("code"))
		assert.Equal(t, "daily", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]barDTO{{
			Code:      "005930",
			Timestamp: ts.UnixMilli(),
			Open:      99, High: 102, Low: 97, Close: 100,
			Volume: 1000, Turnover: 100000,
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	bars, err := c.FetchBars(context.Background(), "005930", marketdata.SeriesDaily,
		ts.AddDate(0, 0, -5), ts)
	require.NoError(t, err)

	require.Len(t, bars, 1)
	assert.Equal(t, "005930", bars[0].Code)
	assert.True(t, bars[0].Timestamp.Equal(ts))
	assert.Equal(t, 100.0, bars[0].Close)
	assert.Equal(t, int64(1000), bars[0].Volume)
}

func TestFetchAdjustmentFactors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/factors", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]factorDTO{{
			Code: "005930", EffectiveDate: "2024-01-03", Factor: 1.2,
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	factors, err := c.FetchAdjustmentFactors(context.Background(), "005930")
	require.NoError(t, err)

	require.Len(t, factors, 1)
	assert.Equal(t, 1.2, factors[0].Factor)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), factors[0].EffectiveDate)
}

func TestFetchFundamentals_ParsesDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]fundamentalDTO{{
			Code:         "005930",
			ReportPeriod: "2023-12-31",
			DiscloseDate: "2024-04-30",
			EPS:          5.1,
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	recs, err := c.FetchFundamentals(context.Background(), "005930")
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), recs[0].ReportPeriod)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), recs[0].DiscloseDate)
}

func TestErrorStatusWrapsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchBars(context.Background(), "XXXXXX", marketdata.SeriesDaily,
		time.Now().AddDate(0, 0, -1), time.Now())
	require.Error(t, err)

	var connErr *marketdata.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "fetch_bars", connErr.Op)
	assert.Equal(t, "XXXXXX", connErr.Code)
}

func TestRetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]barDTO{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	bars, err := c.FetchBars(context.Background(), "005930", marketdata.SeriesDaily,
		time.Now().AddDate(0, 0, -1), time.Now())
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, int32(3), calls.Load())
}
