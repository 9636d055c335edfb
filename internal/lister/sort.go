package lister

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Ning0612/adbexplorer/internal/domain"
)

// SortEntries orders directory-like entries before the rest. Within a group
// visible names come before dot-prefixed ones, then case-insensitive
// collation decides, then raw byte order so the result is total.
func SortEntries(entries []domain.Entry) {
	// collators are not safe for concurrent use
	c := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDirLike() != b.IsDirLike() {
			return a.IsDirLike()
		}
		if a.IsHidden() != b.IsHidden() {
			return !a.IsHidden()
		}
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r < 0
		}
		return a.Name < b.Name
	})
}
