package logutil

import "strings"

// SanitizeForLog removes newlines and control characters from device- or
// user-provided strings before they reach the log. Device output is fully
// attacker-controllable over the wire, so raw prompts, command echoes and
// error text must never be able to inject fake log entries.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r >= 32 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Truncate shortens captured device output for log lines. Full output lives
// in recordings, not logs.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
