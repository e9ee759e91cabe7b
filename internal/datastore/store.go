// Package datastore persists projects, tasks and annotations of the
// reference annotation store on sqlite or mysql through gorm.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Store is the gorm backed annotation store. Safe for concurrent use.
type Store struct {
	DB     *gorm.DB
	dbType string
	log    logger.Logger
}

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// New opens the backend enabled in settings. MySQL wins when both are enabled.
func New(settings *conf.Settings) (*Store, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	switch {
	case settings.Output.MySQL.Enabled:
		return OpenMySQL(&settings.Output.MySQL)
	case settings.Output.SQLite.Enabled:
		return OpenSQLite(settings.Output.SQLite.Path)
	default:
		return nil, errors.Newf("no database backend is enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// OpenSQLite opens or creates the sqlite database at path
func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, validationError("sqlite path is empty", "output.sqlite.path", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}

	// Foreign keys are off by default in sqlite, cascades depend on them
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	return open(sqlite.Open(dsn), "sqlite", path)
}

// OpenMySQL connects to the configured mysql database
func OpenMySQL(s *conf.MySQLSettings) (*Store, error) {
	if s.Host == "" || s.Database == "" {
		return nil, validationError("mysql host and database are required", "output.mysql", s.Host)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		s.Username, s.Password, s.Host, s.Port, s.Database)
	return open(mysql.Open(dsn), "mysql", fmt.Sprintf("%s:%s/%s", s.Host, s.Port, s.Database))
}

func open(dialector gorm.Dialector, dbType, target string) (*Store, error) {
	log := GetLogger().With(logger.String("db_type", dbType))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		log.Error("failed to open database", logger.String("target", target), logger.Error(err))
		return nil, dbError(err, "open", "db_type", dbType)
	}

	store := &Store{DB: db, dbType: dbType, log: log}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("database ready", logger.String("target", target))
	return store, nil
}

func (s *Store) migrate() error {
	start := time.Now()
	if err := s.DB.AutoMigrate(allModels()...); err != nil {
		return dbError(err, "auto_migrate", "db_type", s.dbType)
	}
	s.log.Debug("schema migrated", logger.Duration("duration", time.Since(start)))
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}
