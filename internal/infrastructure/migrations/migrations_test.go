package migrations

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// TestRunMigrations_FreshDB verifies all migrations apply to an empty :memory: database.
func TestRunMigrations_FreshDB(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err, "ncruces driver should open :memory: database")
	defer db.Close()

	err = RunMigrations(db)
	require.NoError(t, err, "RunMigrations should succeed on fresh database")

	var tableName string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='checkpoints'`).Scan(&tableName)
	require.NoError(t, err, "checkpoints table should exist")
	require.Equal(t, "checkpoints", tableName)
}

// TestRunMigrations_Idempotent verifies calling RunMigrations twice doesn't error.
func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	err = RunMigrations(db)
	require.NoError(t, err, "first migration run should succeed")

	// Second run should not error (ErrNoChange handled internally)
	err = RunMigrations(db)
	require.NoError(t, err, "second migration run should not error")

	var tableName string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='checkpoints'`).Scan(&tableName)
	require.NoError(t, err)
	require.Equal(t, "checkpoints", tableName)
}

// TestMigrations_Schema verifies the checkpoints table has the expected columns and indexes.
func TestMigrations_Schema(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	err = RunMigrations(db)
	require.NoError(t, err)

	rows, err := db.Query(`PRAGMA table_info(checkpoints)`)
	require.NoError(t, err)
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt interface{}
		err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk)
		require.NoError(t, err)
		columns[name] = true
	}
	require.NoError(t, rows.Err())

	expectedColumns := []string{"session_id", "seq", "status", "state", "goal", "errors", "created_at"}
	for _, col := range expectedColumns {
		require.True(t, columns[col], "column %s should exist", col)
	}

	indexRows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='index' AND tbl_name='checkpoints'`)
	require.NoError(t, err)
	defer indexRows.Close()

	indexes := make(map[string]bool)
	for indexRows.Next() {
		var name string
		require.NoError(t, indexRows.Scan(&name))
		indexes[name] = true
	}
	require.NoError(t, indexRows.Err())

	require.True(t, indexes["idx_checkpoints_session_seq"], "session/seq index should exist")
}

// TestMigrations_Down verifies down migration rolls back schema correctly.
func TestMigrations_Down(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	driver, err := WithInstance(db, &Config{})
	require.NoError(t, err)

	source, err := iofs.New(MigrationsFS(), ".")
	require.NoError(t, err)

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	require.NoError(t, err)

	err = m.Up()
	require.NoError(t, err, "migrations should apply")

	var tableExists bool
	err = db.QueryRow(`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='checkpoints'`).Scan(&tableExists)
	require.NoError(t, err)
	require.True(t, tableExists, "checkpoints table should exist before down migration")

	err = m.Down()
	require.NoError(t, err, "down migrations should succeed")

	err = db.QueryRow(`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='checkpoints'`).Scan(&tableExists)
	require.NoError(t, err)
	require.False(t, tableExists, "checkpoints table should be dropped after down migration")

	var indexCount int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='checkpoints'`).Scan(&indexCount)
	require.NoError(t, err)
	require.Equal(t, 0, indexCount, "all indexes should be dropped")
}

// TestMigrationsFS_Embedded verifies SQL files load from embedded FS at build time.
func TestMigrationsFS_Embedded(t *testing.T) {
	fs := MigrationsFS()
	require.NotNil(t, fs, "MigrationsFS should return non-nil filesystem")

	entries, err := embeddedMigrationsFS.ReadDir(".")
	require.NoError(t, err, "should read embedded directory")

	fileNames := make(map[string]bool)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
	}

	require.True(t, fileNames["000001_create_checkpoints.up.sql"], "up migration should be embedded")
	require.True(t, fileNames["000001_create_checkpoints.down.sql"], "down migration should be embedded")

	upContent, err := embeddedMigrationsFS.ReadFile("000001_create_checkpoints.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(upContent), "CREATE TABLE IF NOT EXISTS checkpoints")

	downContent, err := embeddedMigrationsFS.ReadFile("000001_create_checkpoints.down.sql")
	require.NoError(t, err)
	require.Contains(t, string(downContent), "DROP TABLE")
}

// TestNCrucesDriverWithGolangMigrate validates that our custom NCrucesSqlite driver
// works with golang-migrate's migration framework using ncruces/go-sqlite3.
func TestNCrucesDriverWithGolangMigrate(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err, "ncruces driver should open :memory: database")
	defer db.Close()

	err = db.Ping()
	require.NoError(t, err, "database should respond to ping")

	driver, err := WithInstance(db, &Config{})
	require.NoError(t, err, "WithInstance should accept ncruces *sql.DB")
	require.NotNil(t, driver, "driver should not be nil")
}

// TestMigrateIdempotent verifies that running migrations twice handles ErrNoChange.
func TestMigrateIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	driver1, err := WithInstance(db, &Config{})
	require.NoError(t, err)

	source1, err := iofs.New(MigrationsFS(), ".")
	require.NoError(t, err)

	m1, err := migrate.NewWithInstance("iofs", source1, "sqlite3", driver1)
	require.NoError(t, err)

	err = m1.Up()
	require.NoError(t, err, "first migration run should succeed")

	// Recreate migrator (simulates service restart)
	driver2, err := WithInstance(db, &Config{})
	require.NoError(t, err)

	source2, err := iofs.New(MigrationsFS(), ".")
	require.NoError(t, err)

	m2, err := migrate.NewWithInstance("iofs", source2, "sqlite3", driver2)
	require.NoError(t, err)

	err = m2.Up()
	if err != nil {
		require.True(t, errors.Is(err, migrate.ErrNoChange),
			"second migration run should return ErrNoChange, got: %v", err)
	}
}

// TestInsertAndQueryWithMigration verifies the migrated schema works for writes and reads.
func TestInsertAndQueryWithMigration(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	defer db.Close()

	err = RunMigrations(db)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO checkpoints (session_id, seq, status, state, goal, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, "sess-1", 1, "RUNNING", []byte(`{"step":1}`), "ship it", "[]", 1756000000)
	require.NoError(t, err, "insert should succeed")

	var status, goal string
	var seq, createdAt int64
	err = db.QueryRow(`
		SELECT seq, status, goal, created_at FROM checkpoints
		WHERE session_id = ? ORDER BY seq DESC LIMIT 1
	`, "sess-1").Scan(&seq, &status, &goal, &createdAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
	require.Equal(t, "RUNNING", status)
	require.Equal(t, "ship it", goal)

	// Duplicate (session_id, seq) must be rejected by the primary key.
	_, err = db.Exec(`
		INSERT INTO checkpoints (session_id, seq, status, goal, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, "sess-1", 1, "PAUSED", "ship it", "[]", 1756000001)
	require.Error(t, err, "primary key should reject duplicate sequence")
}
