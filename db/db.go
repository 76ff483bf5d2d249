package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendshelf/models"
)

type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

func Connect(ctx context.Context, opts Options, log *slog.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if opts.Debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	conn, err := gorm.Open(postgres.Open(opts.DSN), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info("database connected")
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Credential{}, &models.Item{}, &models.BorrowRecord{}, &models.Notification{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// At most one active record per item. This index is the lending lock;
	// application code never checks it ahead of the insert.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s
	  ON %s (item_id)
	  WHERE status IN ('requested', 'approved', 'borrowed');
	`, models.IndexOneActivePerItem, models.BorrowRecordTable)).Error; err != nil {
		return fmt.Errorf("create active index: %w", err)
	}

	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s
	  ON %s (borrower_id, request_key)
	  WHERE request_key IS NOT NULL;
	`, models.IndexRequestKey, models.BorrowRecordTable)).Error; err != nil {
		return fmt.Errorf("create request key index: %w", err)
	}

	if err := db.Exec(fmt.Sprintf(`
	  DO $$ BEGIN
	    ALTER TABLE %s ADD CONSTRAINT borrow_records_no_self_loan CHECK (owner_id <> borrower_id);
	  EXCEPTION WHEN duplicate_object THEN NULL;
	  END $$;
	`, models.BorrowRecordTable)).Error; err != nil {
		return fmt.Errorf("create self loan check: %w", err)
	}
	return nil
}
