package database

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect hides the differences between the supported SQL engines. Queries
// are written with ? placeholders and rewritten per engine.
type Dialect interface {
	DriverName() string
	DSN(config DialectConfig) string
	RewriteQuery(query string) string

	// SupportsLastInsertId reports whether sql.Result carries insert ids.
	// Engines without it get a RETURNING id clause instead.
	SupportsLastInsertId() bool

	Pool() PoolSettings

	// MigrationsSubdir names the embedded migrations directory.
	MigrationsSubdir() string
	MigrationsTable() string

	// OnConflictUpdate returns the clause that turns an insert into an
	// upsert on the primary key, overwriting the given columns.
	OnConflictUpdate(columns ...string) string
}

// DialectConfig locates the database. SQLite uses Path, the servers URL.
type DialectConfig struct {
	Path string
	URL  string
}

// PoolSettings are the connection pool limits of an engine.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var serverPool = PoolSettings{
	MaxOpen:     25,
	MaxIdle:     5,
	MaxLifetime: 5 * time.Minute,
	MaxIdleTime: time.Minute,
}

func (p PoolSettings) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	if p.MaxLifetime > 0 {
		db.SetConnMaxLifetime(p.MaxLifetime)
	}
	if p.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.MaxIdleTime)
	}
}

// rewritePlaceholdersToNumbered numbers ? placeholders as $1, $2, ...
// Queries in this module never carry a literal question mark.
func rewritePlaceholdersToNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// assignments renders "col = value(col), ..." for an upsert clause.
func assignments(columns []string, value func(column string) string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " = " + value(c)
	}
	return strings.Join(parts, ", ")
}

// Placeholders returns n comma separated ? placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
