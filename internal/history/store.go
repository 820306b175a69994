// Package history keeps an optional Postgres audit trail of catalogue builds
// and feedback submissions.
package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store writes and reads the audit tables.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn, creates the schema and migrates the tables.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lg := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: lg})
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	log.Info("history database connected")
	return s, nil
}

// NewFromDB wraps an open connection without migrating.
func NewFromDB(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) migrate() error {
	if err := s.db.Exec(`CREATE SCHEMA IF NOT EXISTS "` + Schema + `"`).Error; err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}
	if err := s.db.AutoMigrate(&Run{}, &File{}, &Feedback{}); err != nil {
		return fmt.Errorf("migrate history tables: %w", err)
	}
	return nil
}

// RecordRun stores a run together with its files.
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// RecordFeedback stores a feedback submission.
func (s *Store) RecordFeedback(ctx context.Context, fb *Feedback) error {
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first, with their files.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []Run
	err := s.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("basename ASC") }).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
