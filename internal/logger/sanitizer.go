package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer masks sensitive data before it reaches a log sink.
//
// Limitations:
//   - SanitizeArgs masks values of sensitive keys only (serial, token, ...)
//   - secrets hidden inside values of other keys are caught only by the
//     message patterns, which run on strings and errors
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []SanitizeRule
	keys     []string
}

// SanitizeRule is one regex replacement
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewSanitizer creates a sanitizer with the default rules
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultSanitizeRules(),
		keys: []string{
			"serial",
			"password", "passwd", "pwd",
			"token", "secret", "api_key", "apikey",
			"credential", "auth",
		},
	}
}

func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// bridge argument vectors carry the serial after -s
		{regexp.MustCompile(`(-s[ =])(\S{2})\S*`), "${1}${2}***"},

		{regexp.MustCompile(`(?i)password=\S+`), "password=***"},
		{regexp.MustCompile(`(?i)token=\S+`), "token=***"},

		// local user directories in transfer destinations
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`), "***:\\Users\\***"},
		{regexp.MustCompile(`/home/[^/\s]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/***"},
	}
}

// Sanitize applies every pattern to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := input
	for _, rule := range s.patterns {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return result
}

// SanitizeArgs masks sensitive key/value pairs and runs the patterns over
// string and error values
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}

		var value string
		switch v := result[i+1].(type) {
		case string:
			value = v
		case error:
			value = v.Error()
		case fmt.Stringer:
			value = v.String()
		case []string:
			value = strings.Join(v, " ")
		default:
			continue
		}

		if s.isSensitiveKey(key) {
			result[i+1] = maskValue(value)
		} else {
			result[i+1] = s.Sanitize(value)
		}
	}

	return result
}

func (s *Sanitizer) isSensitiveKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowerKey := strings.ToLower(key)
	for _, sk := range s.keys {
		if strings.Contains(lowerKey, sk) {
			return true
		}
	}
	return false
}

// maskValue keeps the first and last character of longer values
func maskValue(value string) string {
	if len(value) <= 2 {
		return "***"
	}
	if len(value) <= 8 {
		return fmt.Sprintf("%s***", string(value[0]))
	}
	return fmt.Sprintf("%s***%s", string(value[0]), string(value[len(value)-1]))
}

// AddRule adds a custom replacement rule
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, SanitizeRule{
		Pattern:     re,
		Replacement: replacement,
	})
	return nil
}
