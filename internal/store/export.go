package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lukefun/Q-System/internal/marketdata"
)

// WriteCSV writes a series as CSV. The header row is always written,
// even for an empty series. Daily timestamps render as dates, tick
// timestamps as RFC 3339.
func WriteCSV(w io.Writer, series *marketdata.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "timestamp", "open", "high", "low", "close", "volume", "turnover"}); err != nil {
		return fmt.Errorf("export %s: %w", series.Code, err)
	}

	tsFormat := time.RFC3339
	if series.Type == marketdata.SeriesDaily {
		tsFormat = "2006-01-02"
	}

	for _, b := range series.Bars {
		record := []string{
			b.Code,
			b.Timestamp.UTC().Format(tsFormat),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
			strconv.FormatFloat(b.Turnover, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export %s: %w", series.Code, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export %s: %w", series.Code, err)
	}
	return nil
}

// ExportCSV writes one instrument's stored bars within [from, to] as
// CSV.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, code string, typ marketdata.SeriesType, from, to time.Time) error {
	series, err := s.Load(ctx, code, typ, from, to)
	if err != nil {
		return err
	}
	return WriteCSV(w, series)
}
