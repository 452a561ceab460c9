// Package repo implements the persistence layer on GORM with the pure-Go
// SQLite driver. This file holds database bootstrapping and schema
// migration.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// Connection PRAGMAs: WAL for concurrent readers during turn processing,
// busy_timeout so dashboard reads queue behind writes instead of erroring.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

// OpenSQLite opens (or creates) the database file and configures the
// connection pool.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing parent directory surfaces as an opaque sqlite error code
	// later; check up front instead.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		db.Exec(pragma)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all domain models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Customer{},
		&domain.AIConfig{},
		&domain.Companion{},
		&domain.AnalysisConfig{},
		&domain.Action{},
		&domain.Session{},
		&domain.Message{},
		&domain.Notification{},
		&domain.Feedback{},
		&domain.Idempotency{},
	)
}
