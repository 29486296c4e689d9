// Package httpgw is the HTTP implementation of the gateway boundary.
// It speaks the vendor's JSON API with client-side rate limiting and
// bounded retries.
package httpgw

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/lukefun/Q-System/internal/marketdata"
	"github.com/lukefun/Q-System/pkg/config"
	"github.com/lukefun/Q-System/pkg/logger"
)

// Client is a rate-limited vendor API client.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// New creates a client from gateway configuration. Retries cover
// transient server errors and throttling responses only.
func New(cfg config.GatewayConfig, log *logger.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})

	if cfg.Token != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.Token)
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		log:     log,
	}
}

type barDTO struct {
	Code      string  `json:"code"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Turnover  float64 `json:"turnover"`
}

type factorDTO struct {
	Code          string  `json:"code"`
	EffectiveDate string  `json:"effective_date"` // 2006-01-02
	Factor        float64 `json:"factor"`
}

type fundamentalDTO struct {
	Code         string  `json:"code"`
	ReportPeriod string  `json:"report_period"`
	DiscloseDate string  `json:"disclose_date"`
	EPS          float64 `json:"eps"`
	BVPS         float64 `json:"bvps"`
	Revenue      float64 `json:"revenue"`
	NetProfit    float64 `json:"net_profit"`
}

type classificationDTO struct {
	Code          string `json:"code"`
	EffectiveDate string `json:"effective_date"`
	Sector        string `json:"sector"`
	Industry      string `json:"industry"`
	SubIndustry   string `json:"sub_industry"`
}

// FetchBars fetches OHLCV bars in [from, to].
func (c *Client) FetchBars(ctx context.Context, code string, typ marketdata.SeriesType, from, to time.Time) ([]marketdata.Bar, error) {
	var dtos []barDTO
	err := c.get(ctx, "fetch_bars", code, "/v1/bars", map[string]string{
		"code": code,
		"type": string(typ),
		"from": from.UTC().Format(time.RFC3339),
		"to":   to.UTC().Format(time.RFC3339),
	}, &dtos)
	if err != nil {
		return nil, err
	}

	bars := make([]marketdata.Bar, 0, len(dtos))
	for _, d := range dtos {
		bars = append(bars, marketdata.Bar{
			Code:      d.Code,
			Timestamp: time.UnixMilli(d.Timestamp).UTC(),
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    d.Volume,
			Turnover:  d.Turnover,
		})
	}
	return bars, nil
}

// FetchAdjustmentFactors fetches the full factor history for one
// instrument.
func (c *Client) FetchAdjustmentFactors(ctx context.Context, code string) ([]marketdata.AdjustmentFactor, error) {
	var dtos []factorDTO
	err := c.get(ctx, "fetch_factors", code, "/v1/factors", map[string]string{
		"code": code,
	}, &dtos)
	if err != nil {
		return nil, err
	}

	factors := make([]marketdata.AdjustmentFactor, 0, len(dtos))
	for _, d := range dtos {
		eff, err := parseDay(d.EffectiveDate)
		if err != nil {
			return nil, &marketdata.ConnectionError{
				Op: "fetch_factors", Code: code,
				Err: fmt.Errorf("bad effective_date %q: %w", d.EffectiveDate, err),
			}
		}
		factors = append(factors, marketdata.AdjustmentFactor{
			Code:          d.Code,
			EffectiveDate: eff,
			Factor:        d.Factor,
		})
	}
	return factors, nil
}

// FetchFundamentals fetches the reported fundamentals history for one
// instrument.
func (c *Client) FetchFundamentals(ctx context.Context, code string) ([]marketdata.FundamentalRecord, error) {
	var dtos []fundamentalDTO
	err := c.get(ctx, "fetch_fundamentals", code, "/v1/fundamentals", map[string]string{
		"code": code,
	}, &dtos)
	if err != nil {
		return nil, err
	}

	recs := make([]marketdata.FundamentalRecord, 0, len(dtos))
	for _, d := range dtos {
		period, err := parseDay(d.ReportPeriod)
		if err != nil {
			return nil, &marketdata.ConnectionError{
				Op: "fetch_fundamentals", Code: code,
				Err: fmt.Errorf("bad report_period %q: %w", d.ReportPeriod, err),
			}
		}
		disclose, err := parseDay(d.DiscloseDate)
		if err != nil {
			return nil, &marketdata.ConnectionError{
				Op: "fetch_fundamentals", Code: code,
				Err: fmt.Errorf("bad disclose_date %q: %w", d.DiscloseDate, err),
			}
		}
		recs = append(recs, marketdata.FundamentalRecord{
			Code:         d.Code,
			ReportPeriod: period,
			DiscloseDate: disclose,
			EPS:          d.EPS,
			BVPS:         d.BVPS,
			Revenue:      d.Revenue,
			NetProfit:    d.NetProfit,
		})
	}
	return recs, nil
}

// FetchClassifications fetches the full industry mapping history.
func (c *Client) FetchClassifications(ctx context.Context) ([]marketdata.Classification, error) {
	var dtos []classificationDTO
	err := c.get(ctx, "fetch_classifications", "", "/v1/classifications", nil, &dtos)
	if err != nil {
		return nil, err
	}

	out := make([]marketdata.Classification, 0, len(dtos))
	for _, d := range dtos {
		eff, err := parseDay(d.EffectiveDate)
		if err != nil {
			return nil, &marketdata.ConnectionError{
				Op: "fetch_classifications",
				Err: fmt.Errorf("bad effective_date %q: %w", d.EffectiveDate, err),
			}
		}
		out = append(out, marketdata.Classification{
			Code:          d.Code,
			EffectiveDate: eff,
			Sector:        d.Sector,
			Industry:      d.Industry,
			SubIndustry:   d.SubIndustry,
		})
	}
	return out, nil
}

// get performs one rate-limited GET and decodes the JSON body into
// out. All failures come back as *marketdata.ConnectionError.
func (c *Client) get(ctx context.Context, op, code, path string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &marketdata.ConnectionError{Op: op, Code: code, Err: err}
	}

	req := c.http.R().SetContext(ctx).SetResult(out)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return &marketdata.ConnectionError{Op: op, Code: code, Err: err}
	}
	if resp.IsError() {
		c.log.WithFields(map[string]interface{}{
			"op":     op,
			"code":   code,
			"status": resp.StatusCode(),
		}).Warn("vendor API returned error status")
		return &marketdata.ConnectionError{
			Op: op, Code: code,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()),
		}
	}
	return nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return marketdata.Day(t), nil
}
