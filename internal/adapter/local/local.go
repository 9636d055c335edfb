package local

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/Ning0612/adbexplorer/internal/adapter"
	"github.com/Ning0612/adbexplorer/internal/domain"
)

// Adapter implements adapter.LocalFS over an afero filesystem
type Adapter struct {
	fs afero.Fs
}

var _ adapter.LocalFS = (*Adapter)(nil)

// New creates a local adapter. A nil fs selects the OS filesystem.
func New(fsys afero.Fs) *Adapter {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Adapter{fs: fsys}
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, path string) (adapter.FileInfo, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return adapter.FileInfo{}, mapError(err)
	}
	return fileInfo(path, info), nil
}

// Size sums regular files below path. Unreadable subtrees are skipped so a
// partially written destination can still be measured.
func (a *Adapter) Size(ctx context.Context, path string) (int64, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, mapError(err)
	}
	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = afero.Walk(a.fs, path, func(_ string, fi os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// files vanish and appear while a transfer runs
			return nil
		}
		if fi.Mode().IsRegular() {
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	return total, nil
}

// ChildCount returns the number of immediate children of a directory
func (a *Adapter) ChildCount(ctx context.Context, path string) (int, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return 0, mapError(err)
	}
	if !info.IsDir() {
		return 0, domain.ErrNotDirectory
	}
	names, err := readDirNames(a.fs, path)
	if err != nil {
		return 0, mapError(err)
	}
	return len(names), nil
}

// Exists checks if a path exists
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := afero.Exists(a.fs, path)
	if err != nil {
		return false, mapError(err)
	}
	return ok, nil
}

// MkdirAll creates a directory and any necessary parents
func (a *Adapter) MkdirAll(ctx context.Context, path string) error {
	return mapError(a.fs.MkdirAll(path, 0755))
}

// RemoveAll deletes a file or directory tree
func (a *Adapter) RemoveAll(ctx context.Context, path string) error {
	return mapError(a.fs.RemoveAll(path))
}

// TempFile creates a temporary file in dir, or the OS temp dir when empty
func (a *Adapter) TempFile(dir, pattern string) (adapter.TempFile, error) {
	f, err := afero.TempFile(a.fs, dir, pattern)
	if err != nil {
		return nil, mapError(err)
	}
	return f, nil
}

// ReadFile returns a file's contents
func (a *Adapter) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, path)
	return data, mapError(err)
}

func readDirNames(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

func fileInfo(path string, info os.FileInfo) adapter.FileInfo {
	return adapter.FileInfo{
		Path:    path,
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return errors.Join(domain.ErrNotFound, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return errors.Join(domain.ErrPermissionDenied, err)
	}
	return err
}
