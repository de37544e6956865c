// Package restore sequences one restore run: stage the backup, detect its
// format, restore the database through the matching engine, mirror the
// storage/ tree, and report what happened.
package restore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"dbrestore/internal/compression"
	"dbrestore/internal/config"
	"dbrestore/internal/executor"
	"dbrestore/internal/logger"
	"dbrestore/internal/ndjson"
	"dbrestore/internal/repair"
	"dbrestore/internal/report"
	"dbrestore/internal/schema"
	"dbrestore/internal/sqlscan"
	"dbrestore/internal/staging"
	"dbrestore/internal/storage"
)

// StorageDir is the backup subdirectory holding one directory per bucket
const StorageDir = "storage"

// Result is returned for every run that got past staging
type Result struct {
	DatabaseRestore *report.Summary      `json:"database_restore"`
	Schema          *report.Summary      `json:"schema,omitempty"`
	Tables          []ndjson.TableResult `json:"tables,omitempty"`
	Storage         *storage.SyncResult  `json:"storage,omitempty"`
	StorageRestored bool                 `json:"storage_restored"`
	Mode            Mode                 `json:"mode"`
	Format          Format               `json:"format"`
	SQLFile         string               `json:"sql_file,omitempty"`
	Duration        time.Duration        `json:"duration"`
}

// ExecutorFactory opens the statement executor for a database target. cache
// belongs to one run and must back the executor's type oracle.
type ExecutorFactory func(ctx context.Context, target DatabaseTarget, cache *schema.Cache) (executor.StatementExecutor, error)

// StoreFactory opens the object store storage/ is mirrored into
type StoreFactory func(ctx context.Context) (storage.ObjectStore, error)

// Engine runs restores. It is safe for concurrent use; each run owns its
// workspace.
type Engine struct {
	cfg    *config.Config
	fs     afero.Fs
	log    logger.Logger
	stager *staging.Stager
	repair *repair.Pipeline

	openExecutor ExecutorFactory
	openStore    StoreFactory
}

// Option customizes an Engine
type Option func(*Engine)

// WithExecutorFactory replaces how executors are opened
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(e *Engine) { e.openExecutor = f }
}

// WithStoreFactory replaces how the object store is opened
func WithStoreFactory(f StoreFactory) Option {
	return func(e *Engine) { e.openStore = f }
}

// WithStager replaces the workspace stager
func WithStager(s *staging.Stager) Option {
	return func(e *Engine) { e.stager = s }
}

// NewEngine creates an engine over fsys using cfg for connections and limits
func NewEngine(cfg *config.Config, fsys afero.Fs, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	e := &Engine{
		cfg:    cfg,
		fs:     fsys,
		log:    log,
		repair: repair.New(log),
	}
	e.stager = staging.New(fsys, cfg.WorkDir, cfg.BackupDir, log)
	e.openExecutor = func(ctx context.Context, target DatabaseTarget, cache *schema.Cache) (executor.StatementExecutor, error) {
		return executor.Open(ctx, cfg, string(target), executor.Options{Log: log, Cache: cache, Repair: e.repair})
	}
	e.openStore = func(ctx context.Context) (storage.ObjectStore, error) {
		return storage.NewStore(ctx, cfg, fsys)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one restore. Only invalid requests and staging failures are
// returned as errors; database and storage failures are reported in the
// Result.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := e.log.WithFields(map[string]interface{}{
		"source": req.Source, "target": req.Target, "mode": req.effectiveMode(),
	})

	ws, err := e.stager.Stage(ctx, req.Source, req.Path)
	if err != nil {
		log.Error("Staging failed", "path", req.Path, "error", err)
		return nil, err
	}
	defer func() {
		if err := e.stager.Remove(context.Background(), ws); err != nil {
			log.Warn("Workspace cleanup failed", "error", err)
		}
	}()
	if err := e.stager.Validate(ws.Dir); err != nil {
		return nil, err
	}

	result := &Result{Mode: req.effectiveMode(), Format: FormatNone}
	e.restoreDatabase(ctx, log, req, ws.Dir, result)
	e.restoreStorage(ctx, log, req, ws.Dir, result)

	result.Duration = time.Since(start)
	if result.DatabaseRestore != nil {
		log.Info("Restore finished", "format", result.Format,
			"database", result.DatabaseRestore.String(),
			"storage_restored", result.StorageRestored, "duration", result.Duration)
	} else {
		log.Info("Restore finished without database dump",
			"storage_restored", result.StorageRestored, "duration", result.Duration)
	}
	return result, nil
}

func (e *Engine) restoreDatabase(ctx context.Context, log logger.Logger, req Request, dir string, result *Result) {
	detection, err := DetectFormat(e.fs, dir)
	if err != nil {
		log.Error("Cannot read database dump", "error", err)
		result.DatabaseRestore = e.failedSummary(err)
		return
	}
	result.Format = detection.Format
	if detection.Format == FormatNone {
		log.Info("No database dump found")
		return
	}

	// column types are cached per run, never across targets or jobs
	exec, err := e.openExecutor(ctx, req.Target, schema.NewCache())
	if err != nil {
		log.Error("Database unavailable", "error", err)
		result.DatabaseRestore = e.failedSummary(err)
		return
	}
	defer func() {
		if err := exec.Close(); err != nil {
			log.Warn("Closing database connection failed", "error", err)
		}
	}()

	overwrite := req.effectiveMode() == ModeOverwrite

	switch detection.Format {
	case FormatNDJSON:
		engine := ndjson.NewEngine(exec, e.fs, ndjson.Options{
			Log:       log,
			Repair:    e.repair,
			BatchSize: e.cfg.BatchSize,
			MaxErrors: e.cfg.MaxFirstErrors,
		})
		res := engine.Restore(ctx, dir, detection.Manifest, overwrite)
		result.DatabaseRestore = res.Summary
		result.Schema = res.Schema
		result.Tables = res.Tables
	case FormatSQL:
		result.SQLFile = detection.SQLFile
		result.DatabaseRestore = e.restoreScript(ctx, log, exec, detection.SQLFile, overwrite)
	}
}

// restoreScript runs the legacy path: repair, split, execute
func (e *Engine) restoreScript(ctx context.Context, log logger.Logger, exec executor.StatementExecutor, path string, overwrite bool) *report.Summary {
	script, err := e.readScript(path)
	if err != nil {
		log.Error("Cannot read SQL script", "path", path, "error", err)
		return e.failedSummary(err)
	}

	statements := sqlscan.Split(e.repair.Repair(script))
	log.Info("Restoring SQL script", "file", filepath.Base(path), "statements", len(statements), "backend", exec.Kind())

	var truncateErr error
	if overwrite {
		truncateErr = exec.BeginOverwrite(ctx, nil)
		if truncateErr != nil {
			log.Warn("Truncation failed, continuing", "error", truncateErr)
		}
	}

	summary := exec.ExecScript(ctx, statements)
	if truncateErr != nil {
		summary.AddError(truncateErr.Error())
	}
	return summary
}

func (e *Engine) readScript(path string) (string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dec, err := compression.NewDecompressor(f, path)
	if err != nil {
		return "", err
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *Engine) restoreStorage(ctx context.Context, log logger.Logger, req Request, dir string, result *Result) {
	storageDir := filepath.Join(dir, StorageDir)
	if ok, _ := afero.DirExists(e.fs, storageDir); !ok {
		return
	}

	store, err := e.openStore(ctx)
	if err != nil {
		log.Error("Object storage unavailable", "error", err)
		result.Storage = &storage.SyncResult{Buckets: []storage.BucketResult{{
			Bucket: StorageDir, Err: err, Error: err.Error(),
		}}}
		return
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	// incremental restores upload only what is missing
	overwrite := req.Mode == ModeOverwrite && req.Source != staging.SourceIncremental
	syncer := storage.NewSynchronizer(store, e.fs, storage.SyncOptions{
		Log:         log,
		Concurrency: e.cfg.UploadConcurrency,
		Retries:     e.cfg.UploadRetries,
	})
	result.Storage = syncer.Sync(ctx, storageDir, overwrite)
	result.StorageRestored = true
}

func (e *Engine) failedSummary(err error) *report.Summary {
	s := report.NewSummary(e.cfg.MaxFirstErrors)
	s.Record(report.Outcome{Index: 0, Status: report.StatusFailed, Error: fmt.Sprint(err)})
	return s
}
