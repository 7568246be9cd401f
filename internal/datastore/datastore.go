// Package datastore opens the relational database used by the gorm history
// backend.
package datastore

import (
	"path/filepath"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tphakala/vigil/internal/datastore/entities"
	"github.com/tphakala/vigil/internal/errors"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// SQLiteFileName is the database file created under the storage path.
const SQLiteFileName = "vigil.db"

// Config selects and configures the database.
type Config struct {
	Driver string
	// DataDir holds the SQLite file. Ignored for MySQL.
	DataDir string
	// DSN is the MySQL data source name, or an explicit SQLite DSN.
	DSN   string
	Debug bool
}

// Open connects to the configured database and migrates the history tables.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logMode := gorm_logger.Silent
	if cfg.Debug {
		logMode = gorm_logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(logMode),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryStorage).
			Context("operation", "open").
			Context("driver", cfg.Driver).
			Build()
	}

	if cfg.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.New(err).Component("datastore").Category(errors.CategoryStorage).Build()
		}
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the history tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entities.AlertHistory{}, &entities.AlertStatistic{}); err != nil {
		return errors.Newf("failed to migrate alert tables: %w", err).
			Component("datastore").
			Category(errors.CategoryStorage).
			Context("operation", "migrate").
			Build()
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join(cfg.DataDir, SQLiteFileName) + "?_busy_timeout=5000&_journal_mode=WAL"
		}
		return sqlite.Open(dsn), nil
	case DriverMySQL:
		if cfg.DSN == "" {
			return nil, errors.Newf("mysql driver requires a dsn").
				Component("datastore").
				Category(errors.CategoryConfiguration).
				Build()
		}
		mcfg, err := mysqldriver.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, errors.Newf("invalid mysql dsn: %w", err).
				Component("datastore").
				Category(errors.CategoryConfiguration).
				Build()
		}
		// Timestamps are scanned into time.Time.
		mcfg.ParseTime = true
		if mcfg.Loc == nil {
			mcfg.Loc = time.UTC
		}
		return mysql.New(mysql.Config{DSN: mcfg.FormatDSN()}), nil
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("driver", cfg.Driver).
			Build()
	}
}
