package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Dialect selects the SQL flavour the store speaks.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case Postgres, SQLite:
		return d, nil
	}

	return "", fmt.Errorf("unknown sql dialect %q", s)
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders into the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}

	return query
}

// lockClause is appended to the row read that opens a transition. SQLite
// transactions are begun IMMEDIATE, which already excludes other writers.
func (d Dialect) lockClause() string {
	if d == Postgres {
		return " FOR UPDATE"
	}

	return ""
}

func (d Dialect) schema() string {
	if d == SQLite {
		return sqliteSchema
	}

	return postgresSchema
}

// Migrate creates the invoice tables if they are missing. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for stmt := range strings.SplitSeq(d.schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	return nil
}
