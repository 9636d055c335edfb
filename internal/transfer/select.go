package transfer

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Ning0612/adbexplorer/internal/domain"
)

// Select keeps the entries whose name matches a glob pattern such as
// "*.jpg" or "IMG_{0001,0002}*". An empty pattern keeps everything.
func Select(entries []domain.Entry, pattern string) ([]domain.Entry, error) {
	if pattern == "" {
		return entries, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	var out []domain.Entry
	for _, e := range entries {
		if ok, _ := doublestar.Match(pattern, e.Name); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Items snapshots entries for transfer
func Items(entries []domain.Entry) []domain.TransferItem {
	out := make([]domain.TransferItem, len(entries))
	for i, e := range entries {
		out[i] = domain.NewTransferItem(e)
	}
	return out
}
