package browser

import (
	"regexp"
	"strings"
)

// NormalizeWhitespace collapses every run of whitespace into one space.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// containsFold reports whether needle occurs in haystack, ignoring case.
func containsFold(haystack, needle string) bool {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(needle)).MatchString(haystack)
}

// hasPrefixFold reports whether s starts with prefix, ignoring case.
func hasPrefixFold(s, prefix string) bool {
	return regexp.MustCompile("(?i)^" + regexp.QuoteMeta(prefix)).MatchString(s)
}

// compilePattern compiles a user supplied pattern for case-insensitive
// matching.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
