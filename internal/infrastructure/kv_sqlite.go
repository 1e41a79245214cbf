package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/mo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// KVEntry is one row of the key-value table
type KVEntry struct {
	Namespace string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"primaryKey;size:512"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName overrides the gorm table name
func (KVEntry) TableName() string {
	return "kv_entries"
}

// OpenSQLite opens a SQLite database, creating its directory when needed
func OpenSQLite(dbPath string) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; serialize access instead of failing with SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// SQLiteKVStore implements KVStore on a namespaced SQLite table
type SQLiteKVStore struct {
	db        *gorm.DB
	namespace string
}

// NewSQLiteKVStore creates a key-value store for one namespace
func NewSQLiteKVStore(db *gorm.DB, namespace string) (*SQLiteKVStore, error) {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteKVStore{db: db, namespace: namespace}, nil
}

// Get returns the value stored under key
func (s *SQLiteKVStore) Get(ctx context.Context, key string) (mo.Option[[]byte], error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return mo.None[[]byte](), nil
		}
		return mo.None[[]byte](), fmt.Errorf("failed to get %s/%s: %w", s.namespace, key, err)
	}
	return mo.Some(entry.Value), nil
}

// Put stores value under key
func (s *SQLiteKVStore) Put(ctx context.Context, key string, value []byte) error {
	entry := KVEntry{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// Delete removes key
func (s *SQLiteKVStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		Delete(&KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", s.namespace, key, err)
	}
	return nil
}

// CloseSQLite closes the database connection
func CloseSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
