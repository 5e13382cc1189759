// internal/conflict/plate.go
package conflict

import "strings"

// Normalize canonicalizes a vehicle plate for comparison: every character
// outside [A-Za-z0-9] is dropped and letters are uppercased. An empty result
// means "no plate" and never matches anything.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		}
	}
	return b.String()
}
