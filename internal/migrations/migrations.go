package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	dbpkg "pharmatrack/m/internal/database"
)

//go:embed sql
var files embed.FS

// Run applies every pending up migration for the database's dialect.
func Run(db *sqlx.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down reverts every applied migration.
func Down(db *sqlx.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("revert migrations: %w", err)
	}
	return nil
}

// Version returns the current schema version. Closing the migrator would
// close db, so it is left to the garbage collector.
func Version(db *sqlx.DB) (uint, bool, error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func newMigrate(db *sqlx.DB) (*migrate.Migrate, error) {
	var (
		dir    string
		driver database.Driver
		err    error
	)
	switch db.DriverName() {
	case dbpkg.DriverSQLite:
		dir = "sql/sqlite"
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	case dbpkg.DriverMySQL:
		dir = "sql/mysql"
		driver, err = mysql.WithInstance(db.DB, &mysql.Config{})
	case dbpkg.DriverPgx:
		dir = "sql/postgres"
		driver, err = pgx.WithInstance(db.DB, &pgx.Config{})
	default:
		return nil, fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), driver)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}
