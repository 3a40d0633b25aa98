package database

import (
	"strings"
	"testing"
)

func TestDialects(t *testing.T) {
	tests := []struct {
		dialect      Dialect
		driver       string
		lastInsertID bool
		subdir       string
		maxOpen      int
		upsert       string
	}{
		{NewSQLiteDialect(), "sqlite3", true, "sqlite", 1, "ON CONFLICT (id) DO UPDATE SET name = excluded.name, score = excluded.score"},
		{NewPostgresDialect(), "postgres", false, "postgres", 25, "ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, score = EXCLUDED.score"},
		{NewMySQLDialect(), "mysql", true, "mysql", 25, "ON DUPLICATE KEY UPDATE name = VALUES(name), score = VALUES(score)"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d := tt.dialect
			if got := d.DriverName(); got != tt.driver {
				t.Errorf("DriverName() = %v, want %v", got, tt.driver)
			}
			if got := d.SupportsLastInsertId(); got != tt.lastInsertID {
				t.Errorf("SupportsLastInsertId() = %v, want %v", got, tt.lastInsertID)
			}
			if got := d.MigrationsSubdir(); got != tt.subdir {
				t.Errorf("MigrationsSubdir() = %v, want %v", got, tt.subdir)
			}
			if got := d.Pool().MaxOpen; got != tt.maxOpen {
				t.Errorf("Pool().MaxOpen = %v, want %v", got, tt.maxOpen)
			}
			if got := d.OnConflictUpdate("name", "score"); got != tt.upsert {
				t.Errorf("OnConflictUpdate() = %v, want %v", got, tt.upsert)
			}
			if !strings.Contains(d.MigrationsTable(), "CREATE TABLE IF NOT EXISTS migrations") {
				t.Errorf("MigrationsTable() = %v", d.MigrationsTable())
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	d := NewSQLiteDialect()
	got := d.DSN(DialectConfig{Path: "./readalong.db"})
	if !strings.HasPrefix(got, "./readalong.db?") || !strings.Contains(got, "_foreign_keys=on") {
		t.Errorf("DSN() = %v", got)
	}
	got = d.DSN(DialectConfig{Path: "file:test.db?cache=shared"})
	if !strings.HasPrefix(got, "file:test.db?cache=shared&_journal_mode=WAL") {
		t.Errorf("DSN() = %v", got)
	}
}

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"u:p@tcp(db:3306)/readalong", "u:p@tcp(db:3306)/readalong?parseTime=true"},
		{"u:p@tcp(db:3306)/readalong?tls=true", "u:p@tcp(db:3306)/readalong?tls=true&parseTime=true"},
		{"u:p@tcp(db:3306)/readalong?parseTime=false", "u:p@tcp(db:3306)/readalong?parseTime=false"},
	}
	for _, tt := range tests {
		if got := NewMySQLDialect().DSN(DialectConfig{URL: tt.url}); got != tt.want {
			t.Errorf("DSN(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := Placeholders(n); got != want {
			t.Errorf("Placeholders(%d) = %q, want %q", n, got, want)
		}
	}
	query := NewPostgresDialect().RewriteQuery("INSERT INTO t VALUES (" + Placeholders(3) + ")")
	if query != "INSERT INTO t VALUES ($1, $2, $3)" {
		t.Errorf("RewriteQuery() = %v", query)
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		dbType  string
		want    string
		wantErr bool
	}{
		{dbType: "", want: "sqlite3"},
		{dbType: "SQLite", want: "sqlite3"},
		{dbType: "postgresql", want: "postgres"},
		{dbType: "mysql", want: "mysql"},
		{dbType: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			dialect, err := DialectFor(tt.dbType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DialectFor(%q) error = %v, wantErr %v", tt.dbType, err, tt.wantErr)
			}
			if err == nil && dialect.DriverName() != tt.want {
				t.Errorf("DialectFor(%q) = %v, want %v", tt.dbType, dialect.DriverName(), tt.want)
			}
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "SQLite no change",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM users WHERE id = ?",
			expected: "SELECT * FROM users WHERE id = ?",
		},
		{
			name:     "PostgreSQL single placeholder",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM users WHERE id = ?",
			expected: "SELECT * FROM users WHERE id = $1",
		},
		{
			name:     "PostgreSQL multiple placeholders",
			dialect:  NewPostgresDialect(),
			query:    "INSERT INTO users (name, email) VALUES (?, ?)",
			expected: "INSERT INTO users (name, email) VALUES ($1, $2)",
		},
		{
			name:     "MySQL no change",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE users SET name = ?, email = ? WHERE id = ?",
			expected: "UPDATE users SET name = ?, email = ? WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.dialect.RewriteQuery(tt.query); result != tt.expected {
				t.Errorf("RewriteQuery() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	content := "-- comment; with semicolon\nCREATE TABLE a (id INT);\n\nCREATE INDEX i ON a(id);\n"
	got := splitStatements(content)
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %q, want 2 statements", got)
	}
	if got[0] != "CREATE TABLE a (id INT)" {
		t.Errorf("first statement = %q", got[0])
	}
}
