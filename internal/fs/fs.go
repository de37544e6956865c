// Package fs holds filesystem helpers over spf13/afero. Every helper takes
// the afero.Fs it operates on, so engines can run against an in-memory
// filesystem in tests.
package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// OS returns the real operating system filesystem
func OS() afero.Fs {
	return afero.NewOsFs()
}

// CopyFile copies a file from src to dst, keeping its mode
func CopyFile(fsys afero.Fs, src, dst string) error {
	srcFile, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// CopyTree recursively copies the directory src into dst
func CopyTree(fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fsys.MkdirAll(target, 0755)
		}
		return CopyFile(fsys, path, target)
	})
}

// TreeSize returns the total size of regular files under root
func TreeSize(fsys afero.Fs, root string) (int64, error) {
	var total int64
	err := afero.Walk(fsys, root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

var errFound = errors.New("found")

// FindFirst walks root in lexical order and returns the first regular file
// whose name matches the glob pattern, or "" when none does.
func FindFirst(fsys afero.Fs, root, pattern string) (string, error) {
	var found string
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, info.Name()); ok {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	return found, nil
}

// Resolve joins rel onto base and rejects results that escape base
func Resolve(base, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative", rel)
	}
	joined := filepath.Join(base, rel)
	within, err := filepath.Rel(filepath.Clean(base), joined)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, base)
	}
	return joined, nil
}

// CheckWriteAccess tests if dir is writable by creating and removing a probe file
func CheckWriteAccess(fsys afero.Fs, dir string) error {
	probe := filepath.Join(dir, ".dbrestore-write-test")
	f, err := fsys.Create(probe)
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	_ = f.Close()
	return fsys.Remove(probe)
}

// SetupTestDir creates an in-memory filesystem holding files
func SetupTestDir(files map[string]string) afero.Fs {
	memFs := afero.NewMemMapFs()
	for path, content := range files {
		dir := filepath.Dir(path)
		if dir != "." && dir != "/" {
			_ = memFs.MkdirAll(dir, 0755)
		}
		_ = afero.WriteFile(memFs, path, []byte(content), 0644)
	}
	return memFs
}
