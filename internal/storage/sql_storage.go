package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("storage: database handle is required")

// Entry models one persisted key-value pair.
type Entry struct {
	Key              string `gorm:"column:entry_key;primaryKey;size:190;not null"`
	Value            string `gorm:"column:entry_value;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "storage_entries"
}

// SQLStorage keeps entries in a gorm-managed table.
type SQLStorage struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQLStorage wraps the database handle. The storage_entries table must be migrated.
func NewSQLStorage(db *gorm.DB, clock func() time.Time) (*SQLStorage, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLStorage{db: db, clock: clock}, nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) ([]byte, error) {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	var entry Entry
	err = s.db.WithContext(ctx).Where("entry_key = ?", normalized).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(entry.Value), nil
}

func (s *SQLStorage) Put(ctx context.Context, key string, value []byte) error {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	entry := Entry{
		Key:              normalized,
		Value:            string(value),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_s"}),
	}).Create(&entry).Error
}

func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("entry_key = ?", normalized).Delete(&Entry{}).Error
}
