package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/notes-platform/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNamespaceStorageKeys = "2024-02-01_namespace_storage_keys"

// Entry names of the browser client's local storage. Imported dumps carry them.
const (
	legacyNotesKey   = "notes"
	legacySessionKey = "user"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, keys storage.Keys, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNamespaceStorageKeys, apply: func(tx *gorm.DB) error {
			return namespaceStorageKeys(tx, keys)
		}},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// namespaceStorageKeys moves legacy entries to the configured keys. An entry
// already present under the configured key wins and the legacy one is dropped.
func namespaceStorageKeys(db *gorm.DB, keys storage.Keys) error {
	renames := map[string]string{
		legacyNotesKey:   keys.Notes,
		legacySessionKey: keys.Session,
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for legacy, target := range renames {
			if legacy == target {
				continue
			}
			var existing int64
			if err := tx.Model(&storage.Entry{}).Where("entry_key = ?", target).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				if err := tx.Where("entry_key = ?", legacy).Delete(&storage.Entry{}).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(&storage.Entry{}).
				Where("entry_key = ?", legacy).
				Update("entry_key", target).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
