// Package db persists delay test history in a local sqlite database.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DelayRecord is one latency measurement for a profile, keyed by the
// profile's content fingerprint so renames do not split history.
type DelayRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Fingerprint string `gorm:"index"`
	Tag         string
	Server      string
	Country     string
	DelayMs     int
	TestedAt    time.Time
}

// Connect opens the sqlite database at path.
func Connect(path string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		// Error level hides gorm's slow-query warnings.
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// Close closes the underlying connection pool.
func Close(database *gorm.DB) {
	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
}

// Migrate creates or updates the schema.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(&DelayRecord{})
}

// RecordDelay appends one measurement.
func RecordDelay(database *gorm.DB, rec *DelayRecord) error {
	if rec.TestedAt.IsZero() {
		rec.TestedAt = time.Now()
	}
	return database.Create(rec).Error
}

// History returns the most recent measurements for one profile, newest
// first.
func History(database *gorm.DB, fingerprint string, limit int) ([]DelayRecord, error) {
	var records []DelayRecord
	err := database.
		Where("fingerprint = ?", fingerprint).
		Order("tested_at desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}
