package adapter

import (
	"context"
	"time"
)

// FileInfo describes one local filesystem object
type FileInfo struct {
	// Path is the absolute local path
	Path    string
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// LocalFS is the local side of a transfer. Paths are absolute local paths.
// Implementations return domain-level errors (domain.ErrNotFound,
// domain.ErrPermissionDenied) for consistent handling.
type LocalFS interface {
	// Stat returns metadata for a single path
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Size returns a file's length, or the sum of regular file sizes below a directory.
	// A missing path has size 0 and no error, so it can be polled while a
	// transfer creates it.
	Size(ctx context.Context, path string) (int64, error)

	// ChildCount returns the number of immediate children of a directory
	ChildCount(ctx context.Context, path string) (int, error)

	// Exists checks if a path exists
	Exists(ctx context.Context, path string) (bool, error)

	// MkdirAll creates a directory and any necessary parents
	MkdirAll(ctx context.Context, path string) error

	// RemoveAll deletes a file or directory tree
	RemoveAll(ctx context.Context, path string) error

	// TempFile creates a new temporary file in dir (empty for the default temp dir)
	TempFile(dir, pattern string) (TempFile, error)

	// ReadFile returns the contents of a file
	ReadFile(path string) ([]byte, error)
}

// TempFile is a created temporary file
type TempFile interface {
	Write(p []byte) (int, error)
	Close() error
	Name() string
}
