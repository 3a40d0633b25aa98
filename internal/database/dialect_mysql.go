package database

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLDialect targets MySQL and MariaDB through go-sql-driver/mysql.
type MySQLDialect struct{}

func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

func (d *MySQLDialect) DriverName() string { return "mysql" }

// DSN adds parseTime so DATETIME columns scan into time.Time.
func (d *MySQLDialect) DSN(config DialectConfig) string {
	switch {
	case strings.Contains(config.URL, "parseTime="):
		return config.URL
	case strings.Contains(config.URL, "?"):
		return config.URL + "&parseTime=true"
	default:
		return config.URL + "?parseTime=true"
	}
}

func (d *MySQLDialect) RewriteQuery(query string) string { return query }

func (d *MySQLDialect) SupportsLastInsertId() bool { return true }

func (d *MySQLDialect) Pool() PoolSettings { return serverPool }

func (d *MySQLDialect) MigrationsSubdir() string { return "mysql" }

func (d *MySQLDialect) MigrationsTable() string {
	return `CREATE TABLE IF NOT EXISTS migrations (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		filename VARCHAR(255) UNIQUE NOT NULL,
		executed_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
	)`
}

func (d *MySQLDialect) OnConflictUpdate(columns ...string) string {
	return "ON DUPLICATE KEY UPDATE " + assignments(columns, func(c string) string {
		return "VALUES(" + c + ")"
	})
}
