// Package strings holds text helpers for rendering remote command output in reports
// and error messages.
package strings

import (
	"fmt"
	"strings"
)

// DefaultOneLineMaxLen is the width used for command and output cells in summary tables.
const DefaultOneLineMaxLen = 60

// MinTruncateLen leaves room for one character plus "...".
const MinTruncateLen = 4

// OneLine collapses all whitespace runs in s to single spaces and truncates the result
// to maxLen runes, ending with "..." when something was cut. maxLen below
// MinTruncateLen is clamped.
func OneLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// TailLines returns the last n lines, prefixed by a marker line saying how many were
// dropped. n <= 0 returns lines unchanged.
func TailLines(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	dropped := len(lines) - n
	out := make([]string, 0, n+1)
	out = append(out, fmt.Sprintf("... (%d lines omitted)", dropped))
	return append(out, lines[dropped:]...)
}

// SplitLines splits command output into lines without the trailing empty line that a
// final newline would produce. Windows line endings are normalized.
func SplitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// Indent prefixes every line of s with prefix.
func Indent(s, prefix string) string {
	if s == "" {
		return s
	}
	lines := SplitLines(s)
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
