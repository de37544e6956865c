// Package executor runs restore statements against one of two database
// backends: a direct PostgreSQL connection that keeps one transaction for the
// whole script, or the managed service RPC that runs one statement per call.
package executor

import (
	"context"
	"fmt"
	"time"

	"dbrestore/internal/config"
	"dbrestore/internal/errors"
	"dbrestore/internal/logger"
	"dbrestore/internal/report"
	"dbrestore/internal/repair"
	"dbrestore/internal/rpc"
	"dbrestore/internal/schema"
)

// Backend kinds
const (
	KindDirect = "direct"
	KindRPC    = "rpc"
)

// StatementExecutor is the capability shared by both backends
type StatementExecutor interface {
	// Kind returns KindDirect or KindRPC
	Kind() string

	// BeginOverwrite truncates the given tables (every base table in the
	// public schema when tables is nil) in a single statement. A failure is
	// logged and returned as a truncation error; callers continue.
	BeginOverwrite(ctx context.Context, tables []string) error

	// ExecScript runs statements in order and classifies each outcome
	ExecScript(ctx context.Context, statements []string) *report.Summary

	// Exec runs one statement as an atomic unit
	Exec(ctx context.Context, statement string) error

	// Columns returns live column types, or schema.ErrOracleUnavailable
	Columns(ctx context.Context, table string) (schema.Columns, error)

	Close() error
}

// Options configures an executor
type Options struct {
	Log              logger.Logger
	Cache            *schema.Cache
	Repair           *repair.Pipeline
	MaxErrors        int
	StatementTimeout time.Duration
	RPCConcurrency   int
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = logger.NewNullLogger()
	}
	if o.Repair == nil {
		o.Repair = repair.New(o.Log)
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = report.DefaultMaxErrors
	}
	if o.RPCConcurrency <= 0 {
		o.RPCConcurrency = 10
	}
	return o
}

// Open connects to the backend serving a database target. local and prod use
// a direct connection; managed, and prod without a direct URL, use the RPC.
func Open(ctx context.Context, cfg *config.Config, target string, opts Options) (StatementExecutor, error) {
	opts.MaxErrors = cfg.MaxFirstErrors
	opts.StatementTimeout = cfg.StatementTimeout
	opts.RPCConcurrency = cfg.RPCConcurrency

	switch target {
	case "local", "prod":
		if url := cfg.DatabaseURL(target); url != "" {
			return OpenDirect(ctx, url, opts)
		}
		if target == "local" {
			return nil, errors.DatabaseUnavailable(target, fmt.Errorf("DATABASE_URL_LOCAL is not set"))
		}
		fallthrough
	case "managed":
		if !cfg.HasManagedService() {
			return nil, errors.DatabaseUnavailable(target, fmt.Errorf("MANAGED_URL and MANAGED_SERVICE_KEY are required"))
		}
		client := rpc.NewClient(cfg.ManagedURL, cfg.ManagedServiceKey, cfg.StatementTimeout, opts.Log)
		return NewRPC(client, opts), nil
	}
	return nil, errors.NewConfigError(errors.ErrCodeInvalidRequest,
		fmt.Sprintf("unknown database target %q", target),
		"Use one of: local, managed, prod")
}

func outcome(index int, status report.Status, err error) report.Outcome {
	o := report.Outcome{Index: index, Status: status}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// preview shortens a statement for log output
func preview(stmt string) string {
	const limit = 120
	if len(stmt) <= limit {
		return stmt
	}
	return stmt[:limit] + "..."
}
