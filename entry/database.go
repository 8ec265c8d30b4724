package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Corn-mrb/project/bot"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// storeRecord is the table row for a Store. The time columns don't use
// gorm's CreatedAt/UpdatedAt names, so gorm leaves them alone and the
// registry's timestamps are stored as-is.
type storeRecord struct {
	Code          string         `gorm:"primaryKey;size:2"`
	Name          string         `gorm:"not null"`
	MinRoleID     Snowflake      `gorm:"type:varchar(32)"`
	GrantRoleID   Snowflake      `gorm:"type:varchar(32)"`
	Passphrase    NullableString `gorm:"type:text"`
	OwnerID       Snowflake      `gorm:"type:varchar(32);index;not null"`
	GuildID       Snowflake      `gorm:"type:varchar(32)"`
	CreatedTime   time.Time      `gorm:"column:created_at"`
	UpdatedTime   *time.Time     `gorm:"column:updated_at"`
	ApprovedUsers []Snowflake    `gorm:"serializer:json"`
}

func (storeRecord) TableName() string {
	return "stores"
}

func newStoreRecord(code string, s *Store) storeRecord {
	rec := storeRecord{
		Code:          code,
		Name:          s.Name,
		MinRoleID:     s.MinRoleID,
		GrantRoleID:   s.GrantRoleID,
		Passphrase:    s.Passphrase,
		OwnerID:       s.OwnerID,
		GuildID:       s.GuildID,
		CreatedTime:   s.CreatedAt.Time,
		ApprovedUsers: s.ApprovedUsers,
	}
	if s.UpdatedAt != nil {
		updated := s.UpdatedAt.Time
		rec.UpdatedTime = &updated
	}
	if rec.ApprovedUsers == nil {
		rec.ApprovedUsers = []Snowflake{}
	}
	return rec
}

func (r storeRecord) store() *Store {
	s := &Store{
		Name:          r.Name,
		MinRoleID:     r.MinRoleID,
		GrantRoleID:   r.GrantRoleID,
		Passphrase:    r.Passphrase,
		OwnerID:       r.OwnerID,
		GuildID:       r.GuildID,
		CreatedAt:     NewTimestamp(r.CreatedTime),
		ApprovedUsers: r.ApprovedUsers,
	}
	if r.UpdatedTime != nil {
		updated := NewTimestamp(*r.UpdatedTime)
		s.UpdatedAt = &updated
	}
	if s.ApprovedUsers == nil {
		s.ApprovedUsers = []Snowflake{}
	}
	return s
}

// DatabaseBackend keeps stores in a sqlite or postgres table via gorm.
type DatabaseBackend struct {
	db *gorm.DB
}

// NewDatabaseBackend opens the configured database and migrates the
// stores table.
func NewDatabaseBackend(
	ctx context.Context,
	cfg StorageConfig,
	logger *slog.Logger,
) (*DatabaseBackend, error) {
	var level slog.Leveler = DefaultStorageLogLevel
	if cfg.LogLevel != nil {
		level = cfg.LogLevel
	}
	gormLogger := bot.NewGormLogger(bot.NewLogHandler(level), cfg.SlowThreshold)

	if logger != nil {
		logger.InfoContext(ctx, "initializing database", "database_type", cfg.Type)
	}

	db, err := getDB(cfg.Type, cfg.Database, gormLogger)
	if err != nil {
		return nil, fmt.Errorf("error opening %s database: %w", cfg.Type, err)
	}

	if err = db.WithContext(ctx).AutoMigrate(&storeRecord{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return &DatabaseBackend{db: db}, nil
}

// getDB opens a gorm connection. databaseType must be 'sqlite' or
// 'postgres'; database is the sqlite file path or the postgres DSN.
func getDB(databaseType string, database string, gormLogger *bot.GormLogger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case StorageTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, err
			}
		}
		return gorm.Open(sqlite.Open(database), cfg)
	case StorageTypePostgres:
		return gorm.Open(postgres.Open(database), cfg)
	default:
		return nil, fmt.Errorf("invalid database type: %q", databaseType)
	}
}

func (d *DatabaseBackend) Load(ctx context.Context) (map[string]*Store, error) {
	var records []storeRecord
	if err := d.db.WithContext(ctx).Order("code").Find(&records).Error; err != nil {
		return nil, err
	}
	stores := make(map[string]*Store, len(records))
	for _, rec := range records {
		stores[rec.Code] = rec.store()
	}
	return stores, nil
}

// Save replaces the table contents with stores in one transaction.
func (d *DatabaseBackend) Save(ctx context.Context, stores map[string]*Store) error {
	records := make([]storeRecord, 0, len(stores))
	for code, s := range stores {
		records = append(records, newStoreRecord(code, s))
	}
	return d.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Delete(&storeRecord{}).Error; err != nil {
				return err
			}
			if len(records) == 0 {
				return nil
			}
			return tx.Create(&records).Error
		},
	)
}

func (d *DatabaseBackend) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
