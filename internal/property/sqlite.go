package property

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const nameQueryPattern = "name = ?"

// Property is one stored document.
type Property struct {
	ID    uint64 `gorm:"primaryKey"`
	Name  string `gorm:"unique"`
	Value []byte `gorm:"type:blob"`
}

// SQLite is a Bag backed by a single sqlite table.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database file at path and migrates the
// properties table. Missing parent directories are created. Use ":memory:"
// for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	return NewSQLite(db)
}

// NewSQLite wraps an existing gorm handle.
func NewSQLite(db *gorm.DB) (*SQLite, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if err := db.AutoMigrate(&Property{}); err != nil {
		return nil, fmt.Errorf("migrate properties: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Get returns the stored value for key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrDBNil
	}
	if key == "" {
		return "", false, ErrKeyEmpty
	}
	var prop Property
	result := s.db.WithContext(ctx).Where(nameQueryPattern, key).First(&prop)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get property %q: %w", key, result.Error)
	}
	return string(prop.Value), true, nil
}

// Set creates or updates key.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return ErrDBNil
	}
	if key == "" {
		return ErrKeyEmpty
	}
	db := s.db.WithContext(ctx)
	var prop Property
	result := db.Where(nameQueryPattern, key).First(&prop)
	switch {
	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		prop = Property{Name: key, Value: []byte(value)}
		if err := db.Create(&prop).Error; err != nil {
			return fmt.Errorf("create property %q: %w", key, err)
		}
		return nil
	case result.Error != nil:
		return fmt.Errorf("get property %q: %w", key, result.Error)
	}
	prop.Value = []byte(value)
	if err := db.Save(&prop).Error; err != nil {
		return fmt.Errorf("update property %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	return sqlDB.Close()
}
