package querysql

import (
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect supplies the vendor-specific parts of rendering.
type Dialect interface {
	// Name identifies the dialect ("sqlite", "postgres").
	Name() string
	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the n-th parameter (1-based).
	Placeholder(n int) string
}

// SQLite renders "ident" identifiers and ? placeholders.
type SQLite struct{}

// Name implements Dialect.
func (SQLite) Name() string { return "sqlite" }

// QuoteIdent implements Dialect.
func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Placeholder implements Dialect.
func (SQLite) Placeholder(int) string { return "?" }

// Postgres renders identifiers with pq quoting and $n placeholders.
type Postgres struct{}

// Name implements Dialect.
func (Postgres) Name() string { return "postgres" }

// QuoteIdent implements Dialect.
func (Postgres) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// Placeholder implements Dialect.
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// DialectFor maps a database/sql driver name to its dialect.
// Unknown drivers get SQLite rendering.
func DialectFor(driver string) Dialect {
	switch driver {
	case "postgres", "pgx":
		return Postgres{}
	default:
		return SQLite{}
	}
}
