package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite" // registers the cgo-free "sqlite" database/sql driver

	"github.com/superagent-run/superagent/config"
)

// sessionRecord and checkpointRecord are the GORM row shapes for the two
// tables SQLStore owns. They mirror SessionSnapshot/PersistedCheckpoint
// field-for-field; State/Messages are stored as serialized JSON columns
// since both are opaque blobs once captured.
type sessionRecord struct {
	SessionID string    `gorm:"primaryKey;column:session_id"`
	Timestamp time.Time `gorm:"column:timestamp"`
	Model     string    `gorm:"column:model"`
	Messages  []byte    `gorm:"column:messages"`
	Profile   string    `gorm:"column:profile"`
}

func (sessionRecord) TableName() string { return "sessions" }

type checkpointRecord struct {
	CheckpointID string    `gorm:"primaryKey;column:checkpoint_id"`
	SessionID    string    `gorm:"column:session_id;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	Description  string    `gorm:"column:description"`
	State        []byte    `gorm:"column:state"`
}

func (checkpointRecord) TableName() string { return "checkpoints" }

// SQLStore is a Store backed by a relational database through GORM, for
// deployments that already run Postgres/MySQL/SQLite for other state
// rather than standing up a separate file tree or document store.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// dialectorFor selects a GORM dialector from a config.DatabaseConfig,
// mirroring the driver names DatabaseConfig.DSN already switches on.
func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	case "sqlite", "":
		name := cfg.DSN()
		if name == "" {
			name = "file::memory:?cache=shared"
		}
		// DriverName swaps mattn/go-sqlite3's cgo driver for modernc.org/sqlite,
		// registered above under the same "sqlite" name, so this path never
		// requires a C compiler.
		return sqlite.Dialector{DriverName: "sqlite", DSN: name}, nil
	default:
		return nil, fmt.Errorf("persistence: unsupported database driver %q", cfg.Driver)
	}
}

// NewSQLStore opens a connection per cfg, configures the pool per
// cfg.MaxOpenConns/MaxIdleConns/ConnMaxLifetime, and migrates the two
// tables SQLStore owns.
func NewSQLStore(cfg config.DatabaseConfig, log *zap.Logger) (*SQLStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("persistence: open database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.AutoMigrate(&sessionRecord{}, &checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}

	log.Info("sql persistence store ready", zap.String("driver", cfg.Driver))
	return &SQLStore{db: db, logger: log.With(zap.String("component", "persistence_sql"))}, nil
}

func (s *SQLStore) SaveSession(ctx context.Context, snap SessionSnapshot) error {
	messages, err := json.Marshal(snap.Messages)
	if err != nil {
		return err
	}
	rec := sessionRecord{
		SessionID: snap.SessionID,
		Timestamp: snap.Timestamp,
		Model:     snap.Model,
		Messages:  messages,
		Profile:   snap.Profile,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *SQLStore) LoadSession(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).First(&rec, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionSnapshot{}, &ErrNotFound{Kind: "session", ID: sessionID}
	}
	if err != nil {
		return SessionSnapshot{}, err
	}
	snap := SessionSnapshot{SessionID: rec.SessionID, Timestamp: rec.Timestamp, Model: rec.Model, Profile: rec.Profile}
	if err := json.Unmarshal(rec.Messages, &snap.Messages); err != nil {
		return SessionSnapshot{}, err
	}
	return snap, nil
}

func (s *SQLStore) SaveCheckpoint(ctx context.Context, cp PersistedCheckpoint) error {
	rec := checkpointRecord{
		CheckpointID: cp.CheckpointID,
		SessionID:    cp.SessionID,
		CreatedAt:    cp.CreatedAt,
		Description:  cp.Description,
		State:        []byte(cp.State),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *SQLStore) LoadCheckpoint(ctx context.Context, checkpointID string) (PersistedCheckpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).First(&rec, "checkpoint_id = ?", checkpointID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PersistedCheckpoint{}, &ErrNotFound{Kind: "checkpoint", ID: checkpointID}
	}
	if err != nil {
		return PersistedCheckpoint{}, err
	}
	return PersistedCheckpoint{
		CheckpointID: rec.CheckpointID,
		SessionID:    rec.SessionID,
		CreatedAt:    rec.CreatedAt,
		Description:  rec.Description,
		State:        json.RawMessage(rec.State),
	}, nil
}

func (s *SQLStore) ListCheckpoints(ctx context.Context, sessionID string) ([]PersistedCheckpoint, error) {
	var recs []checkpointRecord
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]PersistedCheckpoint, len(recs))
	for i, rec := range recs {
		out[i] = PersistedCheckpoint{
			CheckpointID: rec.CheckpointID,
			SessionID:    rec.SessionID,
			CreatedAt:    rec.CreatedAt,
			Description:  rec.Description,
			State:        json.RawMessage(rec.State),
		}
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
