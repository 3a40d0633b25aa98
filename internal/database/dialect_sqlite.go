package database

import (
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// sqlitePragmas apply to every connection the driver opens.
const sqlitePragmas = "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

// SQLiteDialect targets a local SQLite file through mattn/go-sqlite3.
type SQLiteDialect struct{}

func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

func (d *SQLiteDialect) DriverName() string { return "sqlite3" }

func (d *SQLiteDialect) DSN(config DialectConfig) string {
	if strings.Contains(config.Path, "?") {
		return config.Path + "&" + sqlitePragmas
	}
	return config.Path + "?" + sqlitePragmas
}

func (d *SQLiteDialect) RewriteQuery(query string) string { return query }

func (d *SQLiteDialect) SupportsLastInsertId() bool { return true }

// Pool keeps a single connection: SQLite has one writer, and transactions
// must not wait on a second connection.
func (d *SQLiteDialect) Pool() PoolSettings {
	return PoolSettings{MaxOpen: 1, MaxIdle: 1}
}

func (d *SQLiteDialect) MigrationsSubdir() string { return "sqlite" }

func (d *SQLiteDialect) MigrationsTable() string {
	return `CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT UNIQUE NOT NULL,
		executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
}

func (d *SQLiteDialect) OnConflictUpdate(columns ...string) string {
	return "ON CONFLICT (id) DO UPDATE SET " + assignments(columns, func(c string) string {
		return "excluded." + c
	})
}
