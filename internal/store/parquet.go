package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lukefun/Q-System/internal/marketdata"
)

// Partition row schemas. Timestamps and dates are unix milliseconds
// UTC; parquet files carry no timezone of their own.

type barRow struct {
	Code      string  `parquet:"code,dict"`
	Timestamp int64   `parquet:"timestamp"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	Turnover  float64 `parquet:"turnover"`
}

func toBarRow(b marketdata.Bar) barRow {
	return barRow{
		Code:      b.Code,
		Timestamp: b.Timestamp.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Turnover:  b.Turnover,
	}
}

func (r barRow) toBar() marketdata.Bar {
	return marketdata.Bar{
		Code:      r.Code,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Turnover:  r.Turnover,
	}
}

type fundamentalRow struct {
	Code         string  `parquet:"code,dict"`
	ReportPeriod int64   `parquet:"report_period"`
	DiscloseDate int64   `parquet:"disclose_date"`
	EPS          float64 `parquet:"eps"`
	BVPS         float64 `parquet:"bvps"`
	Revenue      float64 `parquet:"revenue"`
	NetProfit    float64 `parquet:"net_profit"`
}

func toFundamentalRow(rec marketdata.FundamentalRecord) fundamentalRow {
	return fundamentalRow{
		Code:         rec.Code,
		ReportPeriod: rec.ReportPeriod.UnixMilli(),
		DiscloseDate: rec.DiscloseDate.UnixMilli(),
		EPS:          rec.EPS,
		BVPS:         rec.BVPS,
		Revenue:      rec.Revenue,
		NetProfit:    rec.NetProfit,
	}
}

func (r fundamentalRow) toRecord() marketdata.FundamentalRecord {
	return marketdata.FundamentalRecord{
		Code:         r.Code,
		ReportPeriod: time.UnixMilli(r.ReportPeriod).UTC(),
		DiscloseDate: time.UnixMilli(r.DiscloseDate).UTC(),
		EPS:          r.EPS,
		BVPS:         r.BVPS,
		Revenue:      r.Revenue,
		NetProfit:    r.NetProfit,
	}
}

type classificationRow struct {
	Code          string `parquet:"code,dict"`
	EffectiveDate int64  `parquet:"effective_date"`
	Sector        string `parquet:"sector,dict"`
	Industry      string `parquet:"industry,dict"`
	SubIndustry   string `parquet:"sub_industry,dict"`
}

func toClassificationRow(c marketdata.Classification) classificationRow {
	return classificationRow{
		Code:          c.Code,
		EffectiveDate: c.EffectiveDate.UnixMilli(),
		Sector:        c.Sector,
		Industry:      c.Industry,
		SubIndustry:   c.SubIndustry,
	}
}

func (r classificationRow) toClassification() marketdata.Classification {
	return marketdata.Classification{
		Code:          r.Code,
		EffectiveDate: time.UnixMilli(r.EffectiveDate).UTC(),
		Sector:        r.Sector,
		Industry:      r.Industry,
		SubIndustry:   r.SubIndustry,
	}
}

// readPartition loads all rows from one parquet partition. A missing
// file reads as an empty partition.
func readPartition[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, &marketdata.StorageError{Op: "read", Path: path, Err: err}
	}
	return rows, nil
}

// writePartition atomically replaces one parquet partition: the new
// content lands in a sibling temp file which is renamed over the old
// partition, so readers never observe a half-written file.
func writePartition[T any](path string, rows []T) error {
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return &marketdata.StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &marketdata.StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// countPartitions counts parquet files directly under dir.
func countPartitions(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return 0
	}
	return len(matches)
}
