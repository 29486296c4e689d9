package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// watermarkRow tracks the latest persisted bar timestamp per
// (series type, instrument). Timestamps are unix milliseconds UTC.
type watermarkRow struct {
	SeriesType string    `gorm:"column:series_type;primaryKey"`
	Code       string    `gorm:"column:code;primaryKey"`
	LastTS     int64     `gorm:"column:last_ts"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (watermarkRow) TableName() string { return "watermarks" }

// updateLogRow is one append-only audit entry per persisted write.
type updateLogRow struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	SeriesType string    `gorm:"column:series_type"`
	Code       string    `gorm:"column:code"`
	RowsAdded  int       `gorm:"column:rows_added"`
	Operation  string    `gorm:"column:operation"`
	Note       string    `gorm:"column:note"`
}

func (updateLogRow) TableName() string { return "update_log" }

// metaDB wraps the sqlite metadata database.
type metaDB struct {
	db *gorm.DB
}

func openMeta(path string) (*metaDB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	if err := db.AutoMigrate(&watermarkRow{}, &updateLogRow{}); err != nil {
		return nil, fmt.Errorf("migrate metadata db: %w", err)
	}
	return &metaDB{db: db}, nil
}

func (m *metaDB) close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// watermark returns the stored watermark, or false when none exists.
func (m *metaDB) watermark(seriesType, code string) (time.Time, bool, error) {
	var row watermarkRow
	err := m.db.Where("series_type = ? AND code = ?", seriesType, code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s/%s: %w", seriesType, code, err)
	}
	return time.UnixMilli(row.LastTS).UTC(), true, nil
}

// setWatermark upserts the watermark for one instrument. Watermarks
// only move forward; a stale write is ignored.
func (m *metaDB) setWatermark(seriesType, code string, ts time.Time) error {
	err := m.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "series_type"}, {Name: "code"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_ts":    ts.UnixMilli(),
			"updated_at": time.Now().UTC(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Name: "last_ts", Table: "watermarks"}, Value: ts.UnixMilli()},
		}},
	}).Create(&watermarkRow{
		SeriesType: seriesType,
		Code:       code,
		LastTS:     ts.UnixMilli(),
		UpdatedAt:  time.Now().UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("set watermark %s/%s: %w", seriesType, code, err)
	}
	return nil
}

// resetWatermark removes the watermark so the next incremental run
// refetches the full lookback window.
func (m *metaDB) resetWatermark(seriesType, code string) error {
	err := m.db.Where("series_type = ? AND code = ?", seriesType, code).
		Delete(&watermarkRow{}).Error
	if err != nil {
		return fmt.Errorf("reset watermark %s/%s: %w", seriesType, code, err)
	}
	return nil
}

func (m *metaDB) countWatermarks() (int64, error) {
	var n int64
	if err := m.db.Model(&watermarkRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count watermarks: %w", err)
	}
	return n, nil
}

func (m *metaDB) logUpdate(seriesType, code string, rowsAdded int, operation, note string) error {
	err := m.db.Create(&updateLogRow{
		CreatedAt:  time.Now().UTC(),
		SeriesType: seriesType,
		Code:       code,
		RowsAdded:  rowsAdded,
		Operation:  operation,
		Note:       note,
	}).Error
	if err != nil {
		return fmt.Errorf("append update log %s/%s: %w", seriesType, code, err)
	}
	return nil
}

func (m *metaDB) recentLogs(limit int) ([]updateLogRow, error) {
	var rows []updateLogRow
	err := m.db.Order("id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read update log: %w", err)
	}
	return rows, nil
}
