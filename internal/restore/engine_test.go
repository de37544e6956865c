package restore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbrestore/internal/config"
	"dbrestore/internal/errors"
	"dbrestore/internal/executor"
	"dbrestore/internal/fs"
	"dbrestore/internal/report"
	"dbrestore/internal/schema"
	"dbrestore/internal/staging"
	"dbrestore/internal/storage"
)

// recordingExecutor accepts everything and records what it was asked to do
type recordingExecutor struct {
	mu         sync.Mutex
	truncated  [][]string
	scripts    [][]string
	inserts    []string
	overwrites int
	closed     bool
}

var _ executor.StatementExecutor = (*recordingExecutor)(nil)

func (r *recordingExecutor) Kind() string { return executor.KindDirect }

func (r *recordingExecutor) BeginOverwrite(ctx context.Context, tables []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overwrites++
	r.truncated = append(r.truncated, tables)
	return nil
}

func (r *recordingExecutor) ExecScript(ctx context.Context, statements []string) *report.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, statements)
	s := report.NewSummary(0)
	for i := range statements {
		s.Record(report.Outcome{Index: i, Status: report.StatusSucceeded})
	}
	return s
}

func (r *recordingExecutor) Exec(ctx context.Context, statement string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts = append(r.inserts, statement)
	return nil
}

func (r *recordingExecutor) Columns(ctx context.Context, table string) (schema.Columns, error) {
	return nil, schema.ErrOracleUnavailable
}

func (r *recordingExecutor) Close() error {
	r.closed = true
	return nil
}

type harness struct {
	fs      afero.Fs
	exec    *recordingExecutor
	objects afero.Fs
	engine  *Engine
	targets []DatabaseTarget
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	h := &harness{
		fs:      fs.SetupTestDir(files),
		exec:    &recordingExecutor{},
		objects: afero.NewMemMapFs(),
	}
	cfg := &config.Config{
		WorkDir:           "/work",
		BackupDir:         "/backups",
		BatchSize:         500,
		UploadConcurrency: 4,
		UploadRetries:     0,
		MaxFirstErrors:    10,
	}
	stager := staging.New(h.fs, cfg.WorkDir, cfg.BackupDir, nil)
	stager.FreeSpace = func(string) (uint64, error) { return 1 << 30, nil }

	h.engine = NewEngine(cfg, h.fs, nil,
		WithStager(stager),
		WithExecutorFactory(func(ctx context.Context, target DatabaseTarget, cache *schema.Cache) (executor.StatementExecutor, error) {
			h.targets = append(h.targets, target)
			return h.exec, nil
		}),
		WithStoreFactory(func(ctx context.Context) (storage.ObjectStore, error) {
			return storage.NewLocalStore(h.objects, "/objects"), nil
		}),
	)
	return h
}

var ndjsonBackup = map[string]string{
	"/uploads/u1/manifest.json":          `{"format":"ndjson","version":"1","tables":[{"name":"users","data_file":"users.ndjson","rows":3,"columns":1}]}`,
	"/uploads/u1/schema.clean.sql":       "CREATE TABLE IF NOT EXISTS users (id integer PRIMARY KEY);",
	"/uploads/u1/users.ndjson":           "{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n",
	"/uploads/u1/storage/avatars/a.png":  "png",
	"/uploads/u1/storage/avatars/b.webp": "webp",
}

func TestRunNDJSONOverwrite(t *testing.T) {
	h := newHarness(t, ndjsonBackup)

	res, err := h.engine.Run(context.Background(), Request{
		Source: staging.SourceUpload, Target: TargetLocal, Mode: ModeOverwrite, Path: "/uploads/u1",
	})
	require.NoError(t, err)

	assert.Equal(t, FormatNDJSON, res.Format)
	assert.Equal(t, ModeOverwrite, res.Mode)
	require.NotNil(t, res.DatabaseRestore)
	assert.Equal(t, 1, res.DatabaseRestore.Total)
	assert.Equal(t, 1, res.DatabaseRestore.Succeeded)
	assert.Equal(t, 0, res.DatabaseRestore.Skipped)
	assert.Equal(t, 0, res.DatabaseRestore.Failed)

	assert.Equal(t, [][]string{{"users"}}, h.exec.truncated)
	require.Len(t, h.exec.inserts, 1)
	assert.Equal(t, `INSERT INTO "users" ("id") VALUES (1), (2), (3)`, h.exec.inserts[0])
	require.Len(t, res.Tables, 1)
	assert.Equal(t, int64(3), res.Tables[0].Inserted)
	assert.True(t, h.exec.closed)
	assert.Equal(t, []DatabaseTarget{TargetLocal}, h.targets)

	assert.True(t, res.StorageRestored)
	require.NotNil(t, res.Storage)
	assert.Equal(t, 2, res.Storage.Uploaded)
	exists, _ := afero.Exists(h.objects, "/objects/avatars/b.webp")
	assert.True(t, exists)
}

func TestRunLegacySQL(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/uploads/u2/z/late.sql":    "SELECT 'late';",
		"/uploads/u2/a/dump.sql":    "CREATE TABLE t (tags text[]);\nINSERT INTO t VALUES (ARRAY['a','b,c']);\n-- done; really\n",
		"/uploads/u2/notes/info.md": "not sql",
	})

	res, err := h.engine.Run(context.Background(), Request{
		Source: staging.SourceUpload, Target: TargetManaged, Mode: ModeOverwrite, Path: "/uploads/u2",
	})
	require.NoError(t, err)

	assert.Equal(t, FormatSQL, res.Format)
	assert.Equal(t, "/uploads/u2/a/dump.sql", res.SQLFile)
	assert.False(t, res.StorageRestored)
	assert.Nil(t, res.Storage)

	require.Len(t, h.exec.truncated, 1)
	assert.Nil(t, h.exec.truncated[0], "legacy overwrite truncates every public table")

	require.Len(t, h.exec.scripts, 1)
	stmts := h.exec.scripts[0]
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE t (tags text[])", stmts[0])
	assert.Contains(t, stmts[1], `'{"a","b,c"}'::text[]`)
	assert.Equal(t, "-- done; really", stmts[2])
	assert.Equal(t, 3, res.DatabaseRestore.Total)
}

func TestRunIncrementalNeverTruncatesOrOverwrites(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/backups/nightly/manifest.json":          `{"format":"ndjson","tables":[{"name":"posts","data_file":"posts.ndjson"}]}`,
		"/backups/nightly/posts.ndjson":           `{"id":7,"title":"t"}`,
		"/backups/nightly/storage/media/keep.txt": "new",
		"/backups/nightly/storage/media/add.txt":  "added",
	})
	require.NoError(t, h.objects.MkdirAll("/objects/media", 0755))
	require.NoError(t, afero.WriteFile(h.objects, "/objects/media/keep.txt", []byte("old"), 0644))

	res, err := h.engine.Run(context.Background(), Request{
		Source: staging.SourceIncremental, Target: TargetProd, Mode: ModeOverwrite, Path: "nightly",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeAppend, res.Mode)
	assert.Empty(t, h.exec.truncated)
	assert.Equal(t, 1, res.Storage.Uploaded)
	assert.Equal(t, 1, res.Storage.Skipped)
	kept, _ := afero.ReadFile(h.objects, "/objects/media/keep.txt")
	assert.Equal(t, "old", string(kept))

	entries, _ := afero.ReadDir(h.fs, "/work")
	assert.Empty(t, entries, "workspace is removed after the run")
}

func TestRunDatabaseUnavailableStillSyncsStorage(t *testing.T) {
	h := newHarness(t, ndjsonBackup)
	h.engine.openExecutor = func(ctx context.Context, target DatabaseTarget, cache *schema.Cache) (executor.StatementExecutor, error) {
		return nil, errors.DatabaseUnavailable(string(target), fmt.Errorf("connection refused"))
	}

	res, err := h.engine.Run(context.Background(), Request{
		Source: staging.SourceUpload, Target: TargetLocal, Path: "/uploads/u1",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeAppend, res.Mode)
	require.NotNil(t, res.DatabaseRestore)
	assert.Equal(t, 1, res.DatabaseRestore.Failed)
	assert.True(t, res.DatabaseRestore.Valid())
	require.NotEmpty(t, res.DatabaseRestore.FirstErrors)
	assert.Contains(t, res.DatabaseRestore.FirstErrors[0], "connection refused")
	assert.True(t, res.StorageRestored)
}

func TestRunUsesFreshSchemaCachePerRun(t *testing.T) {
	h := newHarness(t, ndjsonBackup)
	var caches []*schema.Cache
	h.engine.openExecutor = func(ctx context.Context, target DatabaseTarget, cache *schema.Cache) (executor.StatementExecutor, error) {
		require.NotNil(t, cache)
		assert.Zero(t, cache.Len(), "cache starts empty")
		cache.Put("users", schema.Columns{"id": {Name: "id", BaseType: "integer"}})
		caches = append(caches, cache)
		return h.exec, nil
	}

	for _, target := range []DatabaseTarget{TargetLocal, TargetManaged} {
		_, err := h.engine.Run(context.Background(), Request{
			Source: staging.SourceUpload, Target: target, Path: "/uploads/u1",
		})
		require.NoError(t, err)
	}

	require.Len(t, caches, 2)
	assert.NotSame(t, caches[0], caches[1])
}

func TestRunStorageOnlyBackup(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/uploads/s/storage/media/a.txt": "a",
	})

	res, err := h.engine.Run(context.Background(), Request{
		Source: staging.SourceUpload, Target: TargetLocal, Path: "/uploads/s",
	})
	require.NoError(t, err)
	assert.Equal(t, FormatNone, res.Format)
	assert.Nil(t, res.DatabaseRestore)
	assert.True(t, res.StorageRestored)
	assert.Empty(t, h.targets, "no database connection without a dump")
}

func TestRunStagingFailures(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/uploads/empty/readme.txt": "x",
	})
	ctx := context.Background()

	_, err := h.engine.Run(ctx, Request{Source: staging.SourceHistory, Target: TargetLocal, Path: "missing"})
	assert.Equal(t, errors.ErrCodeFatalIO, errors.GetCode(err))

	_, err = h.engine.Run(ctx, Request{Source: staging.SourceUpload, Target: TargetLocal, Path: "/uploads/empty"})
	assert.Equal(t, errors.ErrCodeInvalidBackup, errors.GetCode(err))

	_, err = h.engine.Run(ctx, Request{Source: staging.SourceUpload, Target: "staging", Path: "/uploads/empty"})
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.GetCode(err))
}

func TestDetectFormat(t *testing.T) {
	memFs := fs.SetupTestDir(map[string]string{
		"/a/manifest.json":    `{"format":"ndjson","tables":[]}`,
		"/a/dump.sql":         "SELECT 1;",
		"/b/manifest.json":    `{"format":"csv"}`,
		"/b/x/dump.sql":       "SELECT 1;",
		"/c/storage/m/a.txt":  "a",
		"/d/manifest.json":    `{"format":"ndjson","tables":[{"name":"t","data_file":"../../etc/passwd"}]}`,
	})

	d, err := DetectFormat(memFs, "/a")
	require.NoError(t, err)
	assert.Equal(t, FormatNDJSON, d.Format)
	assert.NotNil(t, d.Manifest)

	d, err = DetectFormat(memFs, "/b")
	require.NoError(t, err)
	assert.Equal(t, FormatSQL, d.Format)
	assert.Equal(t, "/b/x/dump.sql", d.SQLFile)

	d, err = DetectFormat(memFs, "/c")
	require.NoError(t, err)
	assert.Equal(t, FormatNone, d.Format)

	_, err = DetectFormat(memFs, "/d")
	assert.Error(t, err)
}

func TestRequestValidate(t *testing.T) {
	r := Request{Source: staging.SourceHistory, Target: TargetProd, Path: "nightly"}
	require.NoError(t, r.Validate())
	assert.Equal(t, ModeAppend, r.Mode)

	r.Mode = "replace"
	assert.Error(t, r.Validate())

	r = Request{Source: staging.SourceUpload, Target: TargetLocal}
	assert.True(t, strings.Contains(r.Validate().Error(), "path"))
}
