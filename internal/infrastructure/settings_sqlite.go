package infrastructure

import (
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SettingRecord is one key of the settings document
type SettingRecord struct {
	Name      string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (SettingRecord) TableName() string {
	return "settings"
}

// SQLiteSettingsStore persists settings as key/value rows in SQLite
type SQLiteSettingsStore struct {
	db     *gorm.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteSettingsStore opens (and migrates) the database at dbPath
func NewSQLiteSettingsStore(dbPath string, log *zap.Logger) (*SQLiteSettingsStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&SettingRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteSettingsStore{db: db, logger: log}, nil
}

// Load reads every row; a failing query yields the defaults and a warning
func (s *SQLiteSettingsStore) Load() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []SettingRecord
	if err := s.db.Find(&records).Error; err != nil {
		s.logger.Warn("Settings table unreadable, using defaults", zap.Error(err))
		return domain.DefaultSettings()
	}

	values := make(map[string]string, len(records))
	for _, r := range records {
		values[r.Name] = r.Value
	}
	return domain.SettingsFromMap(values)
}

// Save replaces the whole document in one transaction
func (s *SQLiteSettingsStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := settings.ToMap()
	records := make([]SettingRecord, 0, len(doc))
	names := make([]string, 0, len(doc))
	for name, value := range doc {
		records = append(records, SettingRecord{Name: name, Value: value})
		names = append(names, name)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name NOT IN ?", names).Delete(&SettingRecord{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteSettingsStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ domain.SettingsStore = (*SQLiteSettingsStore)(nil)
