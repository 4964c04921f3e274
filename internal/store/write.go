package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixture is a set of tables to create and fill.
type Fixture struct {
	Tables []TableFixture `yaml:"tables"`
}

// TableFixture describes one table and its rows. Row values are positional,
// in column order.
type TableFixture struct {
	Name    string          `yaml:"name"`
	Columns []ColumnFixture `yaml:"columns"`
	Rows    [][]any         `yaml:"rows"`
}

// ColumnFixture describes one column.
type ColumnFixture struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Primary bool   `yaml:"primary"`
}

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	slog.Debug("executing statement", "sql", query, "params", args)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// LoadFixtureFile reads a YAML fixture file and loads it.
func (s *Store) LoadFixtureFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", path, err)
	}
	return s.LoadFixtures(ctx, data)
}

// LoadFixtures parses a YAML fixture document, creates its tables and
// inserts its rows inside one transaction.
func (s *Store) LoadFixtures(ctx context.Context, data []byte) error {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	return s.Seed(ctx, f)
}

// Seed creates and fills the fixture's tables.
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, t := range f.Tables {
		if t.Name == "" || len(t.Columns) == 0 {
			return fmt.Errorf("fixture table %q: name and columns are required", t.Name)
		}
		if _, err := tx.ExecContext(ctx, s.createTableSQL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}

		insert := s.insertSQL(t)
		for i, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return fmt.Errorf("fixture table %s row %d: got %d values, want %d", t.Name, i, len(row), len(t.Columns))
			}
			if _, err := tx.ExecContext(ctx, insert, row...); err != nil {
				return fmt.Errorf("insert into %s row %d: %w", t.Name, i, err)
			}
		}
		slog.Debug("seeded table", "table", t.Name, "rows", len(t.Rows))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func (s *Store) createTableSQL(t TableFixture) string {
	d := s.Dialect()
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		typ := strings.ToUpper(c.Type)
		if typ == "" {
			typ = "TEXT"
		}
		cols[i] = d.QuoteIdent(c.Name) + " " + typ
		if c.Primary {
			cols[i] += " PRIMARY KEY"
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(t.Name), strings.Join(cols, ", "))
}

func (s *Store) insertSQL(t TableFixture) string {
	d := s.Dialect()
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = d.QuoteIdent(c.Name)
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.QuoteIdent(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}
