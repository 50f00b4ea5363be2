// Package db implements every persistence contract of the backend over gorm
// and Postgres: blueprints, content with versions and relations, users and
// API keys, webhooks with their append-only deliveries, plugin configs, and
// the migrations table the runner records into.
package db

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"strata.evalgo.org/common"
	"strata.evalgo.org/config"
)

// Store is the gorm-backed implementation of the domain store interfaces.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open connects to Postgres and configures the connection pool.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, common.WrapError(common.KindStorage, "connect to postgres", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, common.WrapError(common.KindStorage, "access connection pool", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Store{db: db, logger: common.Logger}, nil
}

// NewStore wraps an existing gorm handle. Tests use it with sqlite or a
// transaction-scoped handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, logger: common.Logger}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto the error taxonomy: unique violations
// become conflicts, missing rows become not-found, the rest is storage.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return common.WrapError(common.KindNotFound, msg, err)
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "duplicate key"),
		strings.Contains(err.Error(), "UNIQUE constraint"):
		return common.WrapError(common.KindConflict, msg, err)
	default:
		return common.WrapError(common.KindStorage, msg, err)
	}
}
