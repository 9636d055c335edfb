package mutate

import (
	"fmt"
	"strings"

	"github.com/Ning0612/adbexplorer/internal/dircache"
	"github.com/Ning0612/adbexplorer/internal/domain"
)

// forbidden are shell metacharacters never accepted in a remote path
const forbidden = "`$;|&<>\\\"'*?!"

// ValidatePath rejects control characters and shell metacharacters
func ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: empty path", domain.ErrUnsafePath)
	}
	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character in %q", domain.ErrUnsafePath, p)
		}
		if strings.ContainsRune(forbidden, r) {
			return fmt.Errorf("%w: %q contains %q", domain.ErrUnsafePath, p, r)
		}
	}
	return nil
}

// ValidateName checks a new leaf name for create and rename
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("%w: %q must not contain a path separator", domain.ErrInvalidName, name)
	}
	if err := ValidatePath(name); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidName, err)
	}
	return nil
}

// CheckPolicy enforces the safe root. With allowEqual the safe root itself
// is accepted (creating directories); otherwise p must lie strictly below
// it. AllowUnsafe lifts the restriction.
func CheckPolicy(pol domain.Policy, p string, allowEqual bool) error {
	if pol.AllowUnsafe {
		return nil
	}
	n := dircache.Normalize(p)
	root := dircache.Normalize(pol.SafeRoot)
	if !dircache.IsWithin(n, root) || (!allowEqual && n == root) {
		return fmt.Errorf("%w: %s is not under %s", domain.ErrOutsideSafeRoot, n, root)
	}
	return nil
}

// cleanPath normalizes user input and validates the result, so Windows
// separators are converted before the metacharacter check sees them
func cleanPath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty path", domain.ErrUnsafePath)
	}
	p := dircache.Normalize(raw)
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	return p, nil
}

// checkRemovable applies every rule guarding a recursive delete or a rename
// source and returns the normalized path
func checkRemovable(pol domain.Policy, raw string) (string, error) {
	p, err := cleanPath(raw)
	if err != nil {
		return "", err
	}
	if p == "/" {
		return "", fmt.Errorf("%w: refusing to modify /", domain.ErrOutsideSafeRoot)
	}
	return p, CheckPolicy(pol, p, false)
}
