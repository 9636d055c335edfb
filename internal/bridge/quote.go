package bridge

import "strings"

// Quote wraps s in single quotes for the remote POSIX shell, escaping
// embedded single quotes as '\''
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteAll quotes every path and joins them with spaces
func QuoteAll(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = Quote(p)
	}
	return strings.Join(quoted, " ")
}

// Shell builds a "shell <command>" argument vector for a remote command line
func Shell(command string) []string {
	return []string{"shell", command}
}

// CommandWords returns the command word of every simple command in a remote
// shell line, skipping quoted text so path arguments are never mistaken for
// commands. Segments are split at unquoted ;, & and |.
func CommandWords(line string) []string {
	var (
		words   []string
		cur     strings.Builder
		quote   rune
		escaped bool
		inWord  bool
		atStart = true
	)
	flush := func() {
		if atStart && cur.Len() > 0 {
			words = append(words, cur.String())
			atStart = false
		}
		cur.Reset()
		inWord = false
	}

	for _, r := range line {
		switch {
		case escaped:
			escaped = false
			if atStart {
				cur.WriteRune(r)
			}
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else if atStart {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ';' || r == '&' || r == '|' || r == '\n':
			flush()
			atStart = true
		case r == ' ' || r == '\t':
			if inWord {
				flush()
			}
		default:
			inWord = true
			if atStart {
				cur.WriteRune(r)
			}
		}
	}
	flush()
	return words
}
