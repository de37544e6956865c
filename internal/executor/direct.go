package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"dbrestore/internal/errors"
	"dbrestore/internal/logger"
	"dbrestore/internal/report"
	"dbrestore/internal/repair"
	"dbrestore/internal/schema"
	"dbrestore/internal/sqlscan"
)

const listTablesQuery = `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`

const savepoint = "dbrestore_stmt"

// Direct executes statements over a direct PostgreSQL connection
type Direct struct {
	db     *sql.DB
	oracle *schema.Oracle
	opts   Options
	log    logger.Logger
}

// OpenDirect connects with the pgx driver and verifies the connection
func OpenDirect(ctx context.Context, dsn string, opts Options) (*Direct, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.DatabaseUnavailable("direct", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.DatabaseUnavailable("direct", err)
	}
	return NewDirect(db, opts), nil
}

// NewDirect wraps an open database handle
func NewDirect(db *sql.DB, opts Options) *Direct {
	opts = opts.withDefaults()
	return &Direct{
		db:     db,
		oracle: schema.NewOracle(db, opts.Cache),
		opts:   opts,
		log:    opts.Log.WithField("backend", KindDirect),
	}
}

// Kind returns KindDirect
func (d *Direct) Kind() string { return KindDirect }

// Close closes the connection pool
func (d *Direct) Close() error { return d.db.Close() }

// Columns queries information_schema through the oracle
func (d *Direct) Columns(ctx context.Context, table string) (schema.Columns, error) {
	return d.oracle.Columns(ctx, table)
}

// Exec runs one statement in autocommit mode
func (d *Direct) Exec(ctx context.Context, statement string) error {
	_, err := d.db.ExecContext(ctx, statement)
	return err
}

// BeginOverwrite truncates tables in their own transaction
func (d *Direct) BeginOverwrite(ctx context.Context, tables []string) error {
	if tables == nil {
		listed, err := d.listTables(ctx)
		if err != nil {
			d.log.Warn("Failed to list tables for truncation", "error", err)
			return errors.Truncation(err)
		}
		tables = listed
	}
	if len(tables) == 0 {
		return nil
	}

	stmt := truncateStatement(tables)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.log.Warn("Failed to begin truncation transaction", "error", err)
		return errors.Truncation(err)
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()
		d.log.Warn("Truncation failed, restore continues on existing data", "error", err)
		return errors.Truncation(err)
	}
	if err := tx.Commit(); err != nil {
		d.log.Warn("Truncation commit failed", "error", err)
		return errors.Truncation(err)
	}

	d.log.Info("Truncated tables", "tables", len(tables))
	return nil
}

func (d *Direct) listTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ExecScript runs the statements in one transaction. Every statement runs
// under a savepoint, so a failed statement does not abort the ones after it.
func (d *Direct) ExecScript(ctx context.Context, statements []string) *report.Summary {
	summary := report.NewSummary(d.opts.MaxErrors)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.log.Error("Failed to begin restore transaction", "error", err)
		for i := range statements {
			summary.Record(outcome(i, report.StatusFailed, err))
		}
		return summary
	}

	d.relaxSession(ctx, tx)

	for i, stmt := range statements {
		o := d.execStatement(ctx, tx, i, stmt)
		summary.Record(o)
		if o.Status == report.StatusFailed {
			d.log.Debug("Statement failed", "index", i, "statement", preview(stmt), "error", o.Error)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		d.log.Error("Failed to commit restore transaction", "error", err)
		summary.AddError(fmt.Sprintf("commit: %v", err))
	}
	return summary
}

// relaxSession applies best-effort session settings; failures are ignored
func (d *Direct) relaxSession(ctx context.Context, tx *sql.Tx) {
	settings := []string{
		"SET LOCAL row_security = off",
		"SET CONSTRAINTS ALL DEFERRED",
		"SET LOCAL search_path = public",
	}
	if d.opts.StatementTimeout > 0 {
		settings = append(settings, fmt.Sprintf("SET LOCAL statement_timeout = %d", d.opts.StatementTimeout.Milliseconds()))
	}
	for _, s := range settings {
		if err := d.execGuarded(ctx, tx, s); err != nil {
			d.log.Debug("Session setting not applied", "setting", s, "error", err)
		}
	}
}

// execStatement runs one statement through the classification ladder
func (d *Direct) execStatement(ctx context.Context, tx *sql.Tx, i int, stmt string) report.Outcome {
	if sqlscan.IsEmptyStatement(stmt) {
		return outcome(i, report.StatusSkipped, nil)
	}
	if isTransactionControl(stmt) {
		d.log.Warn("Transaction control statement skipped, the script runs in one transaction", "index", i, "statement", preview(stmt))
		return outcome(i, report.StatusSkipped, nil)
	}

	err := d.execGuarded(ctx, tx, stmt)
	if err == nil {
		return outcome(i, report.StatusSucceeded, nil)
	}

	switch errors.ClassifySQL(err) {
	case errors.ClassRecoverable:
		return outcome(i, report.StatusSkipped, nil)

	case errors.ClassInvalidJSON:
		if fixed, changed := repair.ObjectsToJSONB(stmt); changed {
			if err = d.execGuarded(ctx, tx, fixed); err == nil {
				d.log.Debug("Statement succeeded after jsonb conversion", "index", i)
				return outcome(i, report.StatusSucceeded, nil)
			}
		}

	case errors.ClassSyntax:
		current := stmt
		if fixed, changed := d.opts.Repair.RepairStatement(stmt); changed {
			current = fixed
			if err = d.execGuarded(ctx, tx, fixed); err == nil {
				d.log.Debug("Statement succeeded after repair", "index", i)
				return outcome(i, report.StatusSucceeded, nil)
			}
		}
		if class := errors.ClassifySQL(err); class == errors.ClassSyntax || class == errors.ClassInvalidJSON {
			if coerced, changed := repair.CoerceArraysAggressive(current); changed {
				if err = d.execGuarded(ctx, tx, coerced); err == nil {
					d.log.Warn("Statement succeeded only after aggressive array coercion", "index", i, "statement", preview(stmt))
					o := outcome(i, report.StatusSucceeded, nil)
					o.Aggressive = true
					return o
				}
			}
		}
	}

	if errors.ClassifySQL(err) == errors.ClassRecoverable {
		return outcome(i, report.StatusSkipped, nil)
	}
	return outcome(i, report.StatusFailed, err)
}

// execGuarded runs one statement under a savepoint and rolls back to it on failure
func (d *Direct) execGuarded(ctx context.Context, tx *sql.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint)
	return err
}

// isTransactionControl reports whether stmt would begin or end the
// enclosing transaction. Savepoint commands are not transaction control.
func isTransactionControl(stmt string) bool {
	words := sqlscan.LeadingWords(stmt, 3)
	if len(words) == 0 {
		return false
	}
	switch words[0] {
	case "BEGIN", "COMMIT", "END", "ABORT":
		return true
	case "START":
		return len(words) > 1 && words[1] == "TRANSACTION"
	case "ROLLBACK":
		rest := words[1:]
		if len(rest) > 0 && (rest[0] == "WORK" || rest[0] == "TRANSACTION") {
			rest = rest[1:]
		}
		return len(rest) == 0 || rest[0] != "TO"
	}
	return false
}

// truncateStatement truncates all tables at once so truncation is never partial
func truncateStatement(tables []string) string {
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = schema.QuoteQualified(t)
	}
	return "TRUNCATE TABLE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE"
}
