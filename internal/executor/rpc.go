package executor

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"dbrestore/internal/errors"
	"dbrestore/internal/logger"
	"dbrestore/internal/report"
	"dbrestore/internal/rpc"
	"dbrestore/internal/schema"
	"dbrestore/internal/sqlscan"
)

// SQLClient runs one statement per call; *rpc.Client implements it
type SQLClient interface {
	ExecuteSQL(ctx context.Context, query string) (json.RawMessage, error)
}

// RPC executes statements through the managed service. There is no shared
// session: each statement commits on its own.
type RPC struct {
	client SQLClient
	opts   Options
	log    logger.Logger
}

// NewRPC creates an RPC executor
func NewRPC(client SQLClient, opts Options) *RPC {
	opts = opts.withDefaults()
	return &RPC{
		client: client,
		opts:   opts,
		log:    opts.Log.WithField("backend", KindRPC),
	}
}

// Kind returns KindRPC
func (r *RPC) Kind() string { return KindRPC }

// Close is a no-op
func (r *RPC) Close() error { return nil }

// Columns is not supported on the RPC backend
func (r *RPC) Columns(ctx context.Context, table string) (schema.Columns, error) {
	return nil, schema.ErrOracleUnavailable
}

// Exec runs one statement
func (r *RPC) Exec(ctx context.Context, statement string) error {
	_, err := r.client.ExecuteSQL(ctx, statement)
	return err
}

// BeginOverwrite lists the tables when none are given, then truncates them
// with one statement
func (r *RPC) BeginOverwrite(ctx context.Context, tables []string) error {
	if tables == nil {
		listed, err := r.listTables(ctx)
		if err != nil {
			r.log.Warn("Failed to list tables for truncation", "error", err)
			return errors.Truncation(err)
		}
		tables = listed
	}
	if len(tables) == 0 {
		return nil
	}

	if _, err := r.client.ExecuteSQL(ctx, truncateStatement(tables)); err != nil {
		r.log.Warn("Truncation failed, restore continues on existing data", "error", err)
		return errors.Truncation(err)
	}
	r.log.Info("Truncated tables", "tables", len(tables))
	return nil
}

func (r *RPC) listTables(ctx context.Context) ([]string, error) {
	raw, err := r.client.ExecuteSQL(ctx, listTablesQuery)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		TableName string `json:"table_name"`
	}
	if err := rpc.DecodeRows(raw, &rows); err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, row.TableName)
	}
	return tables, nil
}

// ExecScript dispatches statements in order, in chunks of RPCConcurrency.
// Statements within a chunk run concurrently; a chunk finishes before the
// next one starts.
func (r *RPC) ExecScript(ctx context.Context, statements []string) *report.Summary {
	summary := report.NewSummary(r.opts.MaxErrors)
	outcomes := make([]report.Outcome, len(statements))
	size := r.opts.RPCConcurrency

	for start := 0; start < len(statements); start += size {
		end := start + size
		if end > len(statements) {
			end = len(statements)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outcomes[i] = r.execStatement(ctx, i, statements[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, o := range outcomes {
		summary.Record(o)
		if o.Status == report.StatusFailed {
			r.log.Debug("Statement failed", "index", o.Index, "error", o.Error)
		}
	}
	return summary
}

func (r *RPC) execStatement(ctx context.Context, i int, stmt string) report.Outcome {
	if sqlscan.IsEmptyStatement(stmt) {
		return outcome(i, report.StatusSkipped, nil)
	}
	_, err := r.client.ExecuteSQL(ctx, stmt)
	switch {
	case err == nil:
		return outcome(i, report.StatusSucceeded, nil)
	case errors.ClassifySQL(err) == errors.ClassRecoverable:
		return outcome(i, report.StatusSkipped, nil)
	}
	return outcome(i, report.StatusFailed, err)
}
