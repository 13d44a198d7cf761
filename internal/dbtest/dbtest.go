// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pharmatrack/m/internal/database"
	"pharmatrack/m/internal/migrations"
)

// EnvDSN names a MySQL or Postgres database that OpenServer may wipe. The
// driver comes from DB_DRIVER and defaults to pgx. MySQL DSNs need
// parseTime=true.
const EnvDSN = "PHARMATRACK_TEST_DSN"

// Open returns a migrated sqlite database in a temp dir, closed at test end.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "pos.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	return db
}

// OpenServer connects to the database named by PHARMATRACK_TEST_DSN, migrates
// it and empties every table before and after the test. Unlike sqlite, the
// pool runs transactions in parallel. The test is skipped when no server is
// configured or reachable.
func OpenServer(t testing.TB) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = database.DriverPgx
	}
	if driver == database.DriverSQLite {
		t.Skipf("DB_DRIVER=%s does not run transactions concurrently", driver)
	}

	db, err := database.Connect(driver, dsn)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	truncate(t, db)
	t.Cleanup(func() { truncate(t, db) })
	return db
}

func truncate(t testing.TB, db *sqlx.DB) {
	t.Helper()
	for _, table := range []string{"sale_items", "sales", "products", "suppliers", "users"} {
		_, err := db.Exec(`DELETE FROM ` + table)
		require.NoError(t, err)
	}
}

func insertID(t testing.TB, db *sqlx.DB, query string, args ...any) int64 {
	t.Helper()
	ctx := context.Background()
	if database.UsesReturning(db.DriverName()) {
		var id int64
		require.NoError(t, db.GetContext(ctx, &id, db.Rebind(query+" RETURNING id"), args...))
		return id
	}
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// InsertUser adds a user row and returns its id.
func InsertUser(t testing.TB, db *sqlx.DB, name, email, role string) int64 {
	t.Helper()
	return insertID(t, db, `INSERT INTO users (name, email, password_hash, role) VALUES (?, ?, 'x', ?)`, name, email, role)
}

// InsertProduct adds a product row and returns its id.
func InsertProduct(t testing.TB, db *sqlx.DB, name, price string, quantity int64) int64 {
	t.Helper()
	return insertID(t, db, `INSERT INTO products (name, description, price, quantity) VALUES (?, '', ?, ?)`, name, decimal.RequireFromString(price), quantity)
}

// Quantity reads a product's current stock.
func Quantity(t testing.TB, db *sqlx.DB, productID int64) int64 {
	t.Helper()
	var q int64
	require.NoError(t, db.Get(&q, db.Rebind(`SELECT quantity FROM products WHERE id = ?`), productID))
	return q
}

// Count returns the row count of table.
func Count(t testing.TB, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM `+table))
	return n
}
