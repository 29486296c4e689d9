package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/lukefun/Q-System/internal/marketdata"
)

func (s *Store) fundamentalPath(code string) string {
	return filepath.Join(s.dir, "fundamental", code+".parquet")
}

func (s *Store) classificationPath() string {
	return filepath.Join(s.dir, "classification", "mapping.parquet")
}

// SaveFundamentals merges reported fundamentals into their
// per-instrument partitions. Records are keyed by (code,
// report period); a restated record replaces the stored one. Returns
// the number of new (code, report period) keys.
func (s *Store) SaveFundamentals(ctx context.Context, recs []marketdata.FundamentalRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	byCode := make(map[string][]marketdata.FundamentalRecord)
	for i, rec := range recs {
		if rec.Code == "" || rec.ReportPeriod.IsZero() || rec.DiscloseDate.IsZero() {
			return 0, &marketdata.ValidationError{
				Code:       rec.Code,
				SeriesType: "fundamental",
				Reasons:    []string{fmt.Sprintf("record %d: missing code or dates", i)},
			}
		}
		rec.ReportPeriod = marketdata.Day(rec.ReportPeriod)
		rec.DiscloseDate = marketdata.Day(rec.DiscloseDate)
		byCode[rec.Code] = append(byCode[rec.Code], rec)
	}

	total := 0
	for code, incoming := range byCode {
		path := s.fundamentalPath(code)
		existing, err := readPartition[fundamentalRow](path)
		if err != nil {
			return total, err
		}

		merged := make(map[int64]fundamentalRow, len(existing)+len(incoming))
		for _, r := range existing {
			merged[r.ReportPeriod] = r
		}
		added := 0
		for _, rec := range incoming {
			r := toFundamentalRow(rec)
			if _, ok := merged[r.ReportPeriod]; !ok {
				added++
			}
			merged[r.ReportPeriod] = r
		}

		rows := make([]fundamentalRow, 0, len(merged))
		for _, r := range merged {
			rows = append(rows, r)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].ReportPeriod < rows[j].ReportPeriod })

		if err := writePartition(path, rows); err != nil {
			return total, err
		}
		if err := s.meta.logUpdate("fundamental", code, added, "persist", ""); err != nil {
			return total, &marketdata.StorageError{Op: "log", Path: path, Err: err}
		}
		total += added
	}

	return total, nil
}

// LoadFundamentals returns the full reported history for one
// instrument, ordered by report period. Unknown instruments load
// empty.
func (s *Store) LoadFundamentals(ctx context.Context, code string) ([]marketdata.FundamentalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := readPartition[fundamentalRow](s.fundamentalPath(code))
	if err != nil {
		return nil, err
	}
	recs := make([]marketdata.FundamentalRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.toRecord())
	}
	return recs, nil
}

// SaveClassifications merges industry memberships into the single
// mapping partition, keyed by (code, effective date). Returns the
// number of new keys.
func (s *Store) SaveClassifications(ctx context.Context, cls []marketdata.Classification) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	type key struct {
		code string
		eff  int64
	}

	path := s.classificationPath()
	existing, err := readPartition[classificationRow](path)
	if err != nil {
		return 0, err
	}

	merged := make(map[key]classificationRow, len(existing)+len(cls))
	for _, r := range existing {
		merged[key{r.Code, r.EffectiveDate}] = r
	}

	added := 0
	for i, c := range cls {
		if c.Code == "" || c.EffectiveDate.IsZero() {
			return 0, &marketdata.ValidationError{
				Code:       c.Code,
				SeriesType: "classification",
				Reasons:    []string{fmt.Sprintf("record %d: missing code or effective date", i)},
			}
		}
		c.EffectiveDate = marketdata.Day(c.EffectiveDate)
		r := toClassificationRow(c)
		k := key{r.Code, r.EffectiveDate}
		if _, ok := merged[k]; !ok {
			added++
		}
		merged[k] = r
	}

	rows := make([]classificationRow, 0, len(merged))
	for _, r := range merged {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Code != rows[j].Code {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].EffectiveDate < rows[j].EffectiveDate
	})

	if err := writePartition(path, rows); err != nil {
		return 0, err
	}
	if err := s.meta.logUpdate("classification", "*", added, "persist", ""); err != nil {
		return added, &marketdata.StorageError{Op: "log", Path: path, Err: err}
	}
	return added, nil
}

// LoadClassifications returns the full mapping history ordered by
// (code, effective date).
func (s *Store) LoadClassifications(ctx context.Context) ([]marketdata.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := readPartition[classificationRow](s.classificationPath())
	if err != nil {
		return nil, err
	}
	out := make([]marketdata.Classification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toClassification())
	}
	return out, nil
}
