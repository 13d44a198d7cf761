package migrations

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrack/m/internal/database"
)

func TestRunIsIdempotent(t *testing.T) {
	db, err := database.Connect(database.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "m.db")))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Run(db))
	require.NoError(t, Run(db))

	v, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	var tables []string
	require.NoError(t, db.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('users','suppliers','products','sales','sale_items') ORDER BY name`))
	assert.Equal(t, []string{"products", "sale_items", "sales", "suppliers", "users"}, tables)
}

func TestStockCannotGoNegative(t *testing.T) {
	db, err := database.Connect(database.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "m.db")))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Run(db))

	_, err = db.Exec(`INSERT INTO products (name, price, quantity) VALUES ('Gauze', 1.00, -1)`)
	assert.Error(t, err)
}

func TestDown(t *testing.T) {
	db, err := database.Connect(database.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "m.db")))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Run(db))
	require.NoError(t, Down(db))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sales'`))
	assert.Zero(t, n)
}
