package ndjson

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"dbrestore/internal/executor"
	"dbrestore/internal/fs"
	"dbrestore/internal/literal"
	"dbrestore/internal/logger"
	"dbrestore/internal/repair"
	"dbrestore/internal/report"
	"dbrestore/internal/schema"
	"dbrestore/internal/sqlscan"
)

// DefaultBatchSize is the number of rows per multi-row INSERT
const DefaultBatchSize = 500

// TableResult is the restore outcome for one manifest table
type TableResult struct {
	Name         string        `json:"name"`
	Inserted     int64         `json:"inserted"`
	FailedRows   int64         `json:"failed_rows"`
	InvalidLines int           `json:"invalid_lines"`
	Status       report.Status `json:"status"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Result is what one NDJSON restore produced. Summary counts tables, Schema
// counts the statements of schema.clean.sql.
type Result struct {
	Summary *report.Summary `json:"summary"`
	Schema  *report.Summary `json:"schema,omitempty"`
	Tables  []TableResult   `json:"tables"`
}

// Options configures an Engine
type Options struct {
	Log       logger.Logger
	Repair    *repair.Pipeline
	BatchSize int
	MaxErrors int
}

// Engine drives schema creation and batched row insertion from a manifest
type Engine struct {
	exec      executor.StatementExecutor
	fs        afero.Fs
	log       logger.Logger
	repair    *repair.Pipeline
	batchSize int
	maxErrors int
}

// NewEngine creates an engine reading backups from fsys
func NewEngine(exec executor.StatementExecutor, fsys afero.Fs, opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = logger.NewNullLogger()
	}
	if opts.Repair == nil {
		opts.Repair = repair.New(opts.Log)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = report.DefaultMaxErrors
	}
	return &Engine{
		exec:      exec,
		fs:        fsys,
		log:       opts.Log,
		repair:    opts.Repair,
		batchSize: opts.BatchSize,
		maxErrors: opts.MaxErrors,
	}
}

// Restore runs the schema script, truncates manifest tables when overwrite
// is set, then restores every table in manifest order. Table failures are
// isolated and recorded; Restore itself never fails.
func (e *Engine) Restore(ctx context.Context, dir string, m *Manifest, overwrite bool) *Result {
	op := e.log.StartOperation("NDJSON restore")
	res := &Result{
		Summary: report.NewSummary(e.maxErrors),
		Tables:  make([]TableResult, 0, len(m.Tables)),
	}

	res.Schema = e.runSchema(ctx, dir)

	if overwrite && len(m.Tables) > 0 {
		if err := e.exec.BeginOverwrite(ctx, m.TableNames()); err != nil {
			e.log.Warn("Truncation failed, continuing with existing rows", "error", err)
			res.Summary.AddError(err.Error())
		}
	}

	for i, t := range m.Tables {
		tr := e.restoreTable(ctx, dir, t)
		res.Tables = append(res.Tables, tr)

		o := report.Outcome{Index: i, Status: tr.Status}
		if tr.Status == report.StatusFailed {
			o.Error = fmt.Sprintf("%s: %s", t.Name, tr.Error)
		}
		res.Summary.Record(o)
		if tr.Status == report.StatusSucceeded && tr.FailedRows > 0 {
			res.Summary.AddError(fmt.Sprintf("%s: %d rows failed: %s", t.Name, tr.FailedRows, tr.Error))
		}
	}

	op.Complete("NDJSON restore finished", "tables", len(m.Tables), "summary", res.Summary.String())
	return res
}

func (e *Engine) runSchema(ctx context.Context, dir string) *report.Summary {
	path := filepath.Join(dir, SchemaFile)
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		e.log.Warn("Schema script not readable, restoring into existing tables", "path", path, "error", err)
		return nil
	}

	statements := sqlscan.Split(e.repair.Repair(string(data)))
	summary := e.exec.ExecScript(ctx, statements)
	if summary.Failed > 0 {
		// objects may already exist; rows can still be restored
		e.log.Warn("Schema script finished with failures", "summary", summary.String())
	} else {
		e.log.Info("Schema script applied", "statements", summary.Total)
	}
	return summary
}

func (e *Engine) restoreTable(ctx context.Context, dir string, t TableDescriptor) (tr TableResult) {
	start := time.Now()
	log := e.log.WithField("table", t.Name)
	tr = TableResult{Name: t.Name}
	defer func() { tr.Duration = time.Since(start) }()

	path, err := fs.Resolve(dir, t.DataFile)
	if err != nil {
		tr.Status, tr.Error = report.StatusFailed, err.Error()
		return tr
	}

	cols, err := e.exec.Columns(ctx, t.Name)
	if err != nil {
		if !stderrors.Is(err, schema.ErrOracleUnavailable) {
			log.Warn("Column types unavailable, encoding from values", "error", err)
		}
		cols = nil
	}

	rows, err := OpenRows(e.fs, path)
	if err != nil {
		tr.Status, tr.Error = report.StatusFailed, err.Error()
		log.Error("Cannot open data file", "path", path, "error", err)
		return tr
	}
	defer rows.Close()
	rows.onInvalid = func(line int, err error) {
		log.Warn("Dropping unparsable line", "line", line, "error", err)
	}

	var valid int64
	var lastErr error
	batch := make([]map[string]any, 0, e.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		inserted, failed, err := e.insertBatch(ctx, t.Name, batch, cols)
		tr.Inserted += inserted
		tr.FailedRows += failed
		if err != nil {
			lastErr = err
		}
		batch = batch[:0]
	}

	for rows.Next() {
		valid++
		batch = append(batch, rows.Row())
		if len(batch) >= e.batchSize {
			flush()
		}
	}
	flush()
	tr.InvalidLines = rows.Invalid()

	switch {
	case rows.Err() != nil:
		tr.Status, tr.Error = report.StatusFailed, rows.Err().Error()
	case valid == 0:
		tr.Status = report.StatusSkipped
	case tr.Inserted == 0:
		tr.Status = report.StatusFailed
	default:
		tr.Status = report.StatusSucceeded
	}
	if tr.Error == "" && lastErr != nil {
		tr.Error = lastErr.Error()
	}

	if t.Rows > 0 && tr.Inserted != t.Rows {
		log.Warn("Row count differs from manifest", "expected", t.Rows, "inserted", tr.Inserted)
	}
	log.Info("Table restored", "status", tr.Status, "inserted", tr.Inserted,
		"failed_rows", tr.FailedRows, "invalid_lines", tr.InvalidLines)
	return tr
}

// insertBatch inserts rows with one statement. When that fails the batch is
// retried row by row so one bad row does not sink the others.
func (e *Engine) insertBatch(ctx context.Context, table string, rows []map[string]any, cols schema.Columns) (inserted, failed int64, lastErr error) {
	// DEFAULT VALUES inserts exactly one row, so keyless batches go row by row
	if len(rows) > 1 && len(insertKeys(rows)) == 0 {
		return e.insertRows(ctx, table, rows, cols)
	}

	err := e.exec.Exec(ctx, BuildInsert(table, rows, cols))
	if err == nil {
		return int64(len(rows)), 0, nil
	}
	if len(rows) == 1 {
		return 0, 1, err
	}

	e.log.Warn("Batch insert failed, retrying row by row", "table", table, "rows", len(rows), "error", err)
	return e.insertRows(ctx, table, rows, cols)
}

func (e *Engine) insertRows(ctx context.Context, table string, rows []map[string]any, cols schema.Columns) (inserted, failed int64, lastErr error) {
	for _, row := range rows {
		if err := e.exec.Exec(ctx, BuildInsert(table, []map[string]any{row}, cols)); err != nil {
			failed++
			lastErr = err
			e.log.Debug("Row insert failed", "table", table, "error", err)
			continue
		}
		inserted++
	}
	return inserted, failed, lastErr
}

// insertKeys returns the sorted key set of the first row, or the union of
// all keys when the first row is empty
func insertKeys(rows []map[string]any) []string {
	set := make(map[string]struct{}, len(rows[0]))
	for k := range rows[0] {
		set[k] = struct{}{}
	}
	if len(set) == 0 {
		for _, row := range rows[1:] {
			for k := range row {
				set[k] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildInsert renders a multi-row INSERT. The column list is the sorted key
// set of the first row (the union of keys when that row is empty); keys
// missing from a row become NULL. A keyless single row renders DEFAULT
// VALUES.
func BuildInsert(table string, rows []map[string]any, cols schema.Columns) string {
	keys := insertKeys(rows)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(schema.QuoteQualified(table))
	if len(keys) == 0 {
		b.WriteString(" DEFAULT VALUES")
		return b.String()
	}

	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(schema.QuoteIdent(k))
	}
	b.WriteString(") VALUES ")

	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(literal.Encode(row[k], cols.Lookup(k)))
		}
		b.WriteByte(')')
	}
	return b.String()
}
