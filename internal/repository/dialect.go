package repository

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// Dialect is a supported warehouse SQL dialect.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// sqliteTimeLayout is fixed width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported warehouse driver %q", s)
}

// DriverName returns the database/sql driver name.
func (d Dialect) DriverName() string {
	return string(d)
}

// Placeholder returns the bind parameter for position n (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d Dialect) quoteAll(idents []string) string {
	parts := make([]string, len(idents))
	for i, ident := range idents {
		parts[i] = d.Quote(ident)
	}
	return strings.Join(parts, ", ")
}

// Qualify returns a schema-qualified, quoted table name. SQLite has no schemas.
func (d Dialect) Qualify(schema, table string) string {
	if schema == "" || d == SQLite {
		return d.Quote(table)
	}
	return d.Quote(schema) + "." + d.Quote(table)
}

// Value converts a canonical column value into what the driver binds.
func (d Dialect) Value(v any) any {
	switch val := v.(type) {
	case time.Time:
		if d == SQLite {
			return val.UTC().Format(sqliteTimeLayout)
		}
		return val.UTC()
	case bool:
		if d == SQLite {
			if val {
				return 1
			}
			return 0
		}
	}
	return v
}

// WithDatabase points dsn at database. An empty database leaves dsn unchanged.
func (d Dialect) WithDatabase(dsn, database string) (string, error) {
	if database == "" {
		return dsn, nil
	}

	switch d {
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		cfg.DBName = database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case Postgres:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return "", fmt.Errorf("failed to parse postgres dsn: %w", err)
			}
			u.Path = "/" + database
			return u.String(), nil
		}
		return strings.TrimSpace(dsn + " dbname=" + database), nil
	}
	return dsn, nil
}

// typeFor maps a column kind onto the dialect's DDL type.
func (d Dialect) typeFor(k columnKind) string {
	switch d {
	case Postgres:
		switch k {
		case kindKey, kindText:
			return "TEXT"
		case kindInt:
			return "BIGINT"
		case kindMoney:
			return "NUMERIC(18,2)"
		case kindTime:
			return "TIMESTAMPTZ"
		case kindBool:
			return "BOOLEAN"
		}
	case MySQL:
		switch k {
		case kindKey:
			return "VARCHAR(64)"
		case kindText:
			return "TEXT"
		case kindInt:
			return "BIGINT"
		case kindMoney:
			return "DECIMAL(18,2)"
		case kindTime:
			return "DATETIME(6)"
		case kindBool:
			return "TINYINT(1)"
		}
	default:
		switch k {
		case kindKey, kindText:
			return "TEXT"
		case kindInt:
			return "INTEGER"
		case kindMoney:
			return "REAL"
		case kindTime:
			return "TIMESTAMP"
		case kindBool:
			return "BOOLEAN"
		}
	}
	return "TEXT"
}

// parseTime reads a timestamp scanned as any. SQLite aggregates come back as text.
func parseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case []byte:
		return parseTime(string(val))
	case string:
		for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
