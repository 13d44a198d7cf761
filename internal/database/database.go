package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverPgx    = "pgx"
)

// Supported reports whether driver is one Connect knows how to open.
func Supported(driver string) bool {
	switch driver {
	case DriverSQLite, DriverMySQL, DriverPgx:
		return true
	}
	return false
}

// UsesReturning reports whether inserts must read the new id through RETURNING.
func UsesReturning(driver string) bool {
	return driver == DriverPgx
}

// Connect opens and pings a database for the given driver.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if !Supported(driver) {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer; one connection also serializes sale transactions.
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// SQLiteDSN builds a file DSN with foreign keys enforced.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}
