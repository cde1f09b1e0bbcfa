// Package storage provides the SQLite-backed persistent store for queuectl.
//
// The store exclusively owns all durable state: jobs, dead-letter entries,
// the worker registry, and config overrides. Every mutation runs inside a
// transaction; the claim protocol uses a conditional update so that exactly
// one of any number of concurrent claimers wins a given job.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

// Store wraps the embedded database and exposes the transactional primitives
// the queue engine is built on.
type Store struct {
	db    *gorm.DB
	retry RetryConfig
}

// Open opens (creating if necessary) the database at path, configures the
// connection pool, and migrates the schema. The database runs in WAL mode so
// readers do not block writers.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?%s", path, dsnOptions)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := ConfigurePool(db, DefaultPoolConfig()); err != nil {
		return nil, err
	}

	s := &Store{db: db, retry: DefaultRetryConfig()}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// dsnOptions enables WAL journaling and a busy timeout so concurrent worker
// processes ride out short write contention instead of failing immediately.
const dsnOptions = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates the schema on first open. Migrations beyond that are out
// of scope.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.Job{},
		&core.DLQEntry{},
		&core.WorkerRecord{},
		&core.ConfigEntry{},
	)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
