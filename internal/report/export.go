package report

import (
	"context"
	"fmt"

	"github.com/atk4/report/internal/model"
	"github.com/atk4/report/internal/queryir"
)

// Executor runs a statement and returns every row as column → raw value.
type Executor interface {
	Rows(ctx context.Context, q *queryir.Query) ([]map[string]any, error)
}

// Selectable is anything Export can read: views and plain models.
type Selectable interface {
	model.Schema
	Select(fields []string, hooks ...queryir.Hook) (*queryir.Query, error)
}

// ExportOptions controls Export.
type ExportOptions struct {
	// Fields restricts the projection; nil selects the default fields.
	Fields []string

	// Raw skips typecasting and returns driver values.
	Raw bool
}

// Export runs the source's select statement and returns all rows, with
// values typecast by their field types. Executor errors are returned as is.
func Export(ctx context.Context, exec Executor, src Selectable, opts ExportOptions) ([]map[string]any, error) {
	q, err := src.Select(opts.Fields)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Rows(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if opts.Raw {
			out = append(out, row)
			continue
		}
		typed := make(map[string]any, len(row))
		for col, raw := range row {
			fd, ok := src.Field(col)
			if !ok {
				fd = model.NewField(col)
			}
			v, err := model.TypecastLoad(fd, raw)
			if err != nil {
				return nil, err
			}
			typed[col] = v
		}
		out = append(out, typed)
	}
	return out, nil
}

// ExportKeyed is Export with rows keyed by the string form of keyField.
// Later rows overwrite earlier rows with the same key.
func ExportKeyed(ctx context.Context, exec Executor, src Selectable, keyField string, opts ExportOptions) (map[string]map[string]any, error) {
	if opts.Fields != nil {
		opts.Fields = appendMissing(append([]string(nil), opts.Fields...), keyField)
	}
	rows, err := Export(ctx, exec, src, opts)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		key, ok := row[keyField]
		if !ok {
			return nil, &ActionError{
				Code:    ErrCodeInvalidArgument,
				View:    "export",
				Message: fmt.Sprintf("key field %q is not in the result", keyField),
			}
		}
		out[fmt.Sprint(key)] = row
	}
	return out, nil
}
