package database

import (
	"strings"

	"salesquota-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Open opens a GORM DB from DSN. Postgres URLs go through the pgx driver with
// PreferSimpleProtocol so connection poolers (PgBouncer) do not trip over cached statements.
// A "sqlite://<path>" DSN opens a local SQLite file for development.
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return OpenSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// OpenSQLite opens a SQLite database (":memory:" for tests). SQLite allows one writer at a time,
// so the pool is pinned to a single connection; this also keeps an in-memory database alive.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return db, nil
}

// AutoMigrate creates or updates the quota and order tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.QuotaCap{},
		&domain.QuotaEntry{},
		&domain.Reservation{},
		&domain.Order{},
		&domain.OrderLine{},
		&domain.OrderEvent{},
	)
}
