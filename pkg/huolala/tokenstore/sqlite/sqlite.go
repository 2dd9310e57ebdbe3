// Package sqlite implements a durable TokenStore on SQLite using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/huolala/pkg/huolala"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// TokenRow is the persisted form of a token record.
type TokenRow struct {
	AppKey       string `gorm:"primaryKey"`
	Sandbox      bool   `gorm:"primaryKey"`
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the GORM table name.
func (TokenRow) TableName() string {
	return "huolala_tokens"
}

// Store persists token records in a SQLite database.
// Refresh locking is per process: share one Store between providers
// rather than opening the same file twice.
type Store struct {
	db    *gorm.DB
	locks huolala.KeyedMutex
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db)
}

// New wraps an existing GORM handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TokenRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the record for key.
func (s *Store) Get(ctx context.Context, key huolala.TokenKey) (*huolala.TokenRecord, error) {
	var row TokenRow
	result := s.db.WithContext(ctx).First(&row, "app_key = ? AND sandbox = ?", key.AppKey, key.Sandbox)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, huolala.ErrTokenNotFound
		}
		return nil, result.Error
	}
	return &huolala.TokenRecord{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// Set upserts the record for key.
func (s *Store) Set(ctx context.Context, key huolala.TokenKey, record *huolala.TokenRecord) error {
	row := TokenRow{
		AppKey:       key.AppKey,
		Sandbox:      key.Sandbox,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresAt:    record.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_key"}, {Name: "sandbox"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

// Delete removes the record for key.
func (s *Store) Delete(ctx context.Context, key huolala.TokenKey) error {
	return s.db.WithContext(ctx).
		Delete(&TokenRow{}, "app_key = ? AND sandbox = ?", key.AppKey, key.Sandbox).
		Error
}

// Lock serializes refreshes of key among providers sharing this store.
func (s *Store) Lock(ctx context.Context, key huolala.TokenKey) (func(context.Context) error, error) {
	return s.locks.Lock(ctx, key)
}

var (
	_ huolala.TokenStore  = (*Store)(nil)
	_ huolala.TokenLocker = (*Store)(nil)
)
