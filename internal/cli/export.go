package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atk4/report/internal/report"
	"github.com/atk4/report/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Driver   string
	Seed     string
	Fields   []string
	Where    []string
	Raw      bool
}

// ExportResult is the payload of a JSON export.
type ExportResult struct {
	Report string           `json:"report"`
	Count  int              `json:"count"`
	Rows   []map[string]any `json:"rows"`
}

var _ report.Executor = (*store.Store)(nil)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <definition> <report>",
		Short: "Run a report and print its rows",
		Long: `Run a report's select statement against a database and print the rows.

Values are typecast by field type: money is rounded to two decimals,
integers come back as integers. Without --db a private in-memory SQLite
database is used, which only makes sense together with --seed.

Examples:
  report export billing.cue client_totals --db ./billing.db
  report export billing.cue transactions --seed fixtures/billing.yaml
  report export billing.yaml client_balance --driver postgres --db "$PG_DSN" --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database path or DSN (default: in-memory SQLite)")
	cmd.Flags().StringVar(&opts.Driver, "driver", store.DriverSQLite, "database driver (sqlite3|postgres)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML fixture to load before running")
	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "fields to select")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "condition such as amount>10 (repeatable)")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print driver values without typecasting")

	return cmd
}

func runExport(opts *ExportOptions, path, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd)

	if opts.Database == "" && opts.Seed == "" {
		_ = formatter.Error(ErrCodeGeneric, "nothing to export: pass --db or --seed", nil)
		return NewExitError(ExitCommandError, "nothing to export: pass --db or --seed")
	}

	catalog, err := openCatalog(formatter, path)
	if err != nil {
		return err
	}
	view, err := buildReport(catalog, name, opts.Where)
	if err != nil {
		return outputReportError(formatter, err, ErrCodeGeneric)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openExportStore(opts, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.Seed != "" {
		logger.Debug("seeding database", "fixture", opts.Seed)
		if err := st.LoadFixtureFile(ctx, opts.Seed); err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load fixture", err)
		}
	}

	logger.Debug("exporting report", "report", name, "fields", opts.Fields)
	rows, err := report.Export(ctx, st, view, report.ExportOptions{Fields: opts.Fields, Raw: opts.Raw})
	if err != nil {
		return outputReportError(formatter, err, ErrCodeDatabase)
	}
	logger.Debug("export complete", "report", name, "rows", len(rows))

	if formatter.Format == "json" {
		return formatter.Success(ExportResult{Report: name, Count: len(rows), Rows: rows})
	}
	if err := formatter.Table(view, rows); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "(%d rows)\n", len(rows))
	return nil
}

func openExportStore(opts *ExportOptions, logger *slog.Logger) (*store.Store, error) {
	if opts.Database == "" {
		logger.Debug("opening in-memory database")
		return store.OpenMemory()
	}
	logger.Debug("opening database", "driver", opts.Driver, "db", opts.Database)
	return store.Open(opts.Driver, opts.Database)
}
