package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atk4/report/internal/queryir"
)

// Render compiles a statement with the store's dialect.
func (s *Store) Render(q queryir.Expr) (string, []any, error) {
	return s.compiler.Compile(q)
}

// Rows executes q and returns every row as column → driver value.
//
// Returns an empty slice (not nil) when the statement yields no rows.
func (s *Store) Rows(ctx context.Context, q *queryir.Query) ([]map[string]any, error) {
	query, params, err := s.Render(q)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	slog.Debug("executing statement", "sql", query, "params", params)

	rows, err := s.db.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// One executes q and returns the first column of the first row, or nil when
// there is no row. Used for count and aggregate statements.
func (s *Store) One(ctx context.Context, q *queryir.Query) (any, error) {
	query, params, err := s.Render(q)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	slog.Debug("executing statement", "sql", query, "params", params)

	values, err := s.db.QueryRowxContext(ctx, query, params...).SliceScan()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query value: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// Column executes q and returns its first column from every row.
func (s *Store) Column(ctx context.Context, q *queryir.Query) ([]any, error) {
	query, params, err := s.Render(q)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	slog.Debug("executing statement", "sql", query, "params", params)

	rows, err := s.db.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query column: %w", err)
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if len(values) > 0 {
			out = append(out, values[0])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
