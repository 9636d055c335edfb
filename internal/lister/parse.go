package lister

import (
	"bufio"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ning0612/adbexplorer/internal/domain"
)

// statFormat is the batched stat format: type|size|path
const statFormat = "%F|%s|%n"

// ParseBatchStat parses "type|size|fullpath" lines. Names are joined to
// requested so entries keep the caller's spelling of the directory.
func ParseBatchStat(output, requested string) []domain.Entry {
	var entries []domain.Entry
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		name := path.Base(parts[2])
		if name == "." || name == ".." || name == "/" || name == "" {
			continue
		}
		size, _ := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		kind := statKind(parts[0])
		if kind != domain.KindFile {
			size = 0
		}
		entries = append(entries, domain.Entry{
			Name:     name,
			Kind:     kind,
			FullPath: domain.JoinRemote(requested, name),
			Size:     size,
		})
	}
	return entries
}

func statKind(t string) domain.Kind {
	t = strings.TrimSpace(t)
	switch {
	case t == "directory":
		return domain.KindDirectory
	case strings.HasPrefix(t, "regular"):
		return domain.KindFile
	case strings.HasPrefix(t, "symbolic link"):
		return domain.KindLink
	default:
		return domain.KindOther
	}
}

var (
	permPattern  = regexp.MustCompile(`^[-dlcbps?][-rwxsStTl?]{9}[.+@]?$`)
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockTime    = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?$`)
	tzOffset     = regexp.MustCompile(`^[+-]\d{4}$`)
	monthName    = regexp.MustCompile(`^(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)$`)
	dayOfMonth   = regexp.MustCompile(`^\d{1,2}$`)
	shortTime    = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	fourDigit    = regexp.MustCompile(`^\d{4}$`)
	epochSeconds = regexp.MustCompile(`^\d{1,12}$`)
	digits       = regexp.MustCompile(`^\d+$`)
)

// timestamp layouts in trial order; each layout is tried at every candidate
// column before the next layout. Each returns the number of tokens consumed,
// or 0 when it does not match.
var timestampLayouts = []func(tok []token) int{
	// 2024-01-31 13:45 [+0000]
	func(tok []token) int {
		if len(tok) < 2 || !isoDate.MatchString(tok[0].s) || !clockTime.MatchString(tok[1].s) {
			return 0
		}
		if len(tok) > 2 && tzOffset.MatchString(tok[2].s) {
			return 3
		}
		return 2
	},
	// Jan 31 13:45
	func(tok []token) int {
		if len(tok) < 3 || !monthName.MatchString(tok[0].s) || !dayOfMonth.MatchString(tok[1].s) || !shortTime.MatchString(tok[2].s) {
			return 0
		}
		return 3
	},
	// Jan 31 2023
	func(tok []token) int {
		if len(tok) < 3 || !monthName.MatchString(tok[0].s) || !dayOfMonth.MatchString(tok[1].s) || !fourDigit.MatchString(tok[2].s) {
			return 0
		}
		return 3
	},
	// 1706708700
	func(tok []token) int {
		if len(tok) < 1 || !epochSeconds.MatchString(tok[0].s) {
			return 0
		}
		return 1
	},
}

// timestampColumns are the token indexes where a timestamp may start:
// after the size, with the size omitted (or, on toolbox ls, after a size
// with no link count), after a "major, minor" pair, and toolbox ls
// directories with neither link count nor size
var timestampColumns = []int{5, 4, 6, 3}

type token struct {
	s          string
	start, end int
}

func tokenize(line string) []token {
	var toks []token
	start := -1
	for i, r := range line {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				toks = append(toks, token{s: line[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{s: line[start:], start: start, end: len(line)})
	}
	return toks
}

// ParseLsLine parses one long-format ls line. ok is false for lines that are
// not entries (headers, errors, "." and "..").
func ParseLsLine(line, requested string) (domain.Entry, bool) {
	line = strings.TrimRight(line, "\r")
	toks := tokenize(line)
	if len(toks) < 5 || !permPattern.MatchString(toks[0].s) {
		return domain.Entry{}, false
	}

	for _, layout := range timestampLayouts {
		for _, col := range timestampColumns {
			if col >= len(toks) {
				continue
			}
			// "major, minor" occupies columns 4 and 5
			if col == 5 && strings.HasSuffix(toks[4].s, ",") {
				continue
			}
			n := layout(toks[col:])
			if n == 0 || col+n >= len(toks) {
				continue
			}
			name := line[toks[col+n].start:]
			return buildLsEntry(toks, col, name, requested)
		}
	}
	return domain.Entry{}, false
}

func buildLsEntry(toks []token, col int, name, requested string) (domain.Entry, bool) {
	var kind domain.Kind
	switch toks[0].s[0] {
	case 'd':
		kind = domain.KindDirectory
	case 'l':
		kind = domain.KindLink
	case '?':
		kind = domain.KindOther
	default:
		kind = domain.KindFile
	}

	if kind == domain.KindLink {
		if i := strings.Index(name, " -> "); i >= 0 {
			name = name[:i]
		}
	}
	if name == "." || name == ".." || name == "" {
		return domain.Entry{}, false
	}

	var size int64
	if kind == domain.KindFile {
		switch col {
		case 4:
			// toolbox ls: perms owner group size; otherwise token 1 is the link count
			if !digits.MatchString(toks[1].s) && digits.MatchString(toks[3].s) {
				size, _ = strconv.ParseInt(toks[3].s, 10, 64)
			}
		case 5:
			size, _ = strconv.ParseInt(toks[4].s, 10, 64)
		case 6:
			if !strings.HasSuffix(toks[4].s, ",") && digits.MatchString(toks[5].s) {
				size, _ = strconv.ParseInt(toks[5].s, 10, 64)
			}
		}
	}

	return domain.Entry{
		Name:     name,
		Kind:     kind,
		FullPath: domain.JoinRemote(requested, name),
		Size:     size,
	}, true
}

// ParseLs parses long-format ls output
func ParseLs(output, requested string) []domain.Entry {
	var entries []domain.Entry
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if e, ok := ParseLsLine(scanner.Text(), requested); ok {
			entries = append(entries, e)
		}
	}
	return entries
}
