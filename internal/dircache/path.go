package dircache

import (
	"path"
	"strings"
)

// Normalize converts a raw remote path into its normalized form:
// backslashes become forward slashes, the result is rooted, cleaned,
// has no trailing slash, and an empty input becomes "/"
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Parent returns the parent of a normalized path. Root's parent is root.
func Parent(p string) string {
	n := Normalize(p)
	if n == "/" {
		return "/"
	}
	i := strings.LastIndex(n, "/")
	if i <= 0 {
		return "/"
	}
	return n[:i]
}

// IsWithin reports whether p equals root or lies below it. Both are normalized first.
func IsWithin(p, root string) bool {
	p, root = Normalize(p), Normalize(root)
	if root == "/" || p == root {
		return true
	}
	return strings.HasPrefix(p, root+"/")
}
