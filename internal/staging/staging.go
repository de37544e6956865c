// Package staging prepares the working directory a restore runs from and
// removes it afterwards. Historical backups are copied into a timestamped
// workspace owned by one run.
package staging

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"

	"dbrestore/internal/errors"
	"dbrestore/internal/fs"
	"dbrestore/internal/logger"
	"dbrestore/internal/retry"
)

// SourceKind says where a backup comes from
type SourceKind string

const (
	SourceUpload      SourceKind = "upload"
	SourceHistory     SourceKind = "history"
	SourceIncremental SourceKind = "incremental"
)

// ParseSourceKind validates a source name
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(s); k {
	case SourceUpload, SourceHistory, SourceIncremental:
		return k, nil
	}
	return "", errors.NewConfigError(errors.ErrCodeInvalidRequest,
		fmt.Sprintf("unknown source %q", s), "Use one of: upload, history, incremental")
}

// Workspace is a staged backup directory
type Workspace struct {
	Dir    string
	Source SourceKind

	// owned workspaces were created by Stage and are removed by Remove
	owned bool
}

// Stager creates and removes workspaces
type Stager struct {
	fs        afero.Fs
	workDir   string
	backupDir string
	log       logger.Logger

	// FreeSpace reports free bytes at a path; defaults to gopsutil
	FreeSpace func(path string) (uint64, error)
	now       func() time.Time
	cleanup   *retry.Config
}

// New creates a Stager. Historical backups are looked up under backupDir
// and copied into workspaces under workDir.
func New(fsys afero.Fs, workDir, backupDir string, log logger.Logger) *Stager {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Stager{
		fs:        fsys,
		workDir:   workDir,
		backupDir: backupDir,
		log:       log,
		FreeSpace: diskFree,
		now:       time.Now,
		cleanup:   retry.CleanupConfig(),
	}
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Stage prepares the backup at path. An upload is an already extracted
// directory and is used in place. history and incremental name a backup
// under the backup directory, which is copied into a new workspace.
func (s *Stager) Stage(ctx context.Context, source SourceKind, path string) (*Workspace, error) {
	switch source {
	case SourceUpload:
		ok, err := afero.DirExists(s.fs, path)
		if err != nil || !ok {
			return nil, errors.FatalIO(path, fmt.Errorf("upload directory not found"))
		}
		return &Workspace{Dir: path, Source: source}, nil
	case SourceHistory, SourceIncremental:
		return s.stageHistory(source, path)
	}
	return nil, errors.InvalidState(fmt.Sprintf("unknown source kind %q", source))
}

func (s *Stager) stageHistory(source SourceKind, name string) (*Workspace, error) {
	src, err := fs.Resolve(s.backupDir, name)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidRequest, err.Error(),
			"Pass the backup's directory name relative to BACKUP_DIR")
	}
	if ok, err := afero.DirExists(s.fs, src); err != nil || !ok {
		return nil, errors.FatalIO(src, fmt.Errorf("backup not found"))
	}

	if err := s.fs.MkdirAll(s.workDir, 0755); err != nil {
		return nil, errors.FatalIO(s.workDir, err)
	}
	if err := fs.CheckWriteAccess(s.fs, s.workDir); err != nil {
		return nil, errors.FatalIO(s.workDir, err)
	}

	size, err := fs.TreeSize(s.fs, src)
	if err != nil {
		return nil, errors.FatalIO(src, err)
	}
	if err := s.checkDiskSpace(size); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.workDir, "restore_"+s.now().Format("20060102_150405.000000000"))
	if err := s.fs.MkdirAll(dir, 0700); err != nil {
		return nil, errors.FatalIO(dir, err)
	}
	ws := &Workspace{Dir: dir, Source: source, owned: true}

	s.log.Info("Copying backup into workspace", "backup", name, "workspace", dir, "size", humanize.Bytes(uint64(size)))
	if err := fs.CopyTree(s.fs, src, dir); err != nil {
		_ = s.Remove(context.Background(), ws)
		return nil, errors.FatalIO(src, err)
	}
	return ws, nil
}

// checkDiskSpace fails when the work directory cannot hold required bytes.
// An unknown free space is logged and tolerated.
func (s *Stager) checkDiskSpace(required int64) error {
	free, err := s.FreeSpace(s.workDir)
	if err != nil {
		s.log.Warn("Cannot check disk space", "path", s.workDir, "error", err)
		return nil
	}
	if uint64(required) > free {
		return errors.DiskFull(s.workDir, uint64(required), free)
	}
	s.log.Debug("Disk space check passed", "required", humanize.Bytes(uint64(required)), "available", humanize.Bytes(free))
	return nil
}

// Validate checks that dir holds at least one of manifest.json, a *.sql
// file or a storage/ directory
func (s *Stager) Validate(dir string) error {
	if ok, _ := afero.Exists(s.fs, filepath.Join(dir, "manifest.json")); ok {
		return nil
	}
	if ok, _ := afero.DirExists(s.fs, filepath.Join(dir, "storage")); ok {
		return nil
	}
	sqlFile, err := fs.FindFirst(s.fs, dir, "*.sql")
	if err != nil {
		return errors.FatalIO(dir, err)
	}
	if sqlFile == "" {
		return errors.InvalidBackup(dir, "expected manifest.json, a .sql file or a storage/ directory")
	}
	return nil
}

// Remove deletes a workspace created by Stage, retrying while files are
// locked. Upload directories belong to the caller and are left alone.
func (s *Stager) Remove(ctx context.Context, ws *Workspace) error {
	if ws == nil || !ws.owned {
		return nil
	}

	var attemptErrs *multierror.Error
	_, err := retry.Do(ctx, s.cleanup, func() error {
		err := s.fs.RemoveAll(ws.Dir)
		if err != nil {
			attemptErrs = multierror.Append(attemptErrs, err)
		}
		return err
	}, func(err error, wait time.Duration) {
		s.log.Debug("Workspace removal retry", "dir", ws.Dir, "wait", wait, "error", err)
	})
	if err != nil {
		s.log.Warn("Workspace not removed", "dir", ws.Dir, "error", err)
		return fmt.Errorf("remove workspace %s: %w", ws.Dir, attemptErrs.ErrorOrNil())
	}
	s.log.Debug("Workspace removed", "dir", ws.Dir)
	return nil
}
