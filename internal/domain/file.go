package domain

import (
	"path"
	"strings"
)

// Kind represents the type of a remote filesystem entry
type Kind int

const (
	KindOther Kind = iota
	KindFile
	KindDirectory
	KindLink
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindLink:
		return "link"
	default:
		return "other"
	}
}

// Entry represents one remote filesystem object from a directory listing.
// Entries are replaced wholesale on refresh, never mutated in place.
type Entry struct {
	// Name is the leaf name only
	Name string

	// Kind indicates if this is a file, directory, link or something else
	Kind Kind

	// FullPath is forward-slash separated and rooted, built from the
	// requested (not canonical) parent path
	FullPath string

	// Size in bytes (0 for non-files)
	Size int64

	// LinkDir marks a link whose target is a directory
	LinkDir bool
}

// IsDir returns true if this is a directory
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IsFile returns true if this is a regular file
func (e Entry) IsFile() bool {
	return e.Kind == KindFile
}

// IsDirLike returns true for directories and links that resolve to directories
func (e Entry) IsDirLike() bool {
	return e.Kind == KindDirectory || (e.Kind == KindLink && e.LinkDir)
}

// IsHidden returns true for dot-prefixed names
func (e Entry) IsHidden() bool {
	return strings.HasPrefix(e.Name, ".")
}

// TransferItem is an immutable snapshot of an entry selected for transfer,
// decoupled from the directory cache
type TransferItem struct {
	Name     string
	FullPath string
	Kind     Kind
	Size     int64
}

// IsDirLike returns true if the item must be sized and verified as a tree
func (t TransferItem) IsDirLike() bool {
	return t.Kind == KindDirectory
}

// NewTransferItem snapshots an entry. Links to directories are treated as directories.
func NewTransferItem(e Entry) TransferItem {
	kind := e.Kind
	if e.Kind == KindLink && e.LinkDir {
		kind = KindDirectory
	}
	return TransferItem{
		Name:     e.Name,
		FullPath: e.FullPath,
		Kind:     kind,
		Size:     e.Size,
	}
}

// JoinRemote joins a remote parent path and a leaf name with a forward slash
func JoinRemote(parent, name string) string {
	if parent == "" || parent == "/" {
		return "/" + name
	}
	return strings.TrimRight(parent, "/") + "/" + name
}

// BaseRemote returns the leaf name of a remote path
func BaseRemote(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}
