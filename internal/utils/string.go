package utils

import "strings"

// SanitizeName lowercases s and replaces anything outside [a-z0-9_.-] with
// a dash, so stage and deployment names are safe as database keys and CLI
// arguments to external tools.
func SanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
