package clan

import "strings"

// Color code prefixes used in presentation-tagged strings ("&c", "§c").
const (
	colorPrefixAmp     = '&'
	colorPrefixSection = '§'
)

// CleanTag returns the canonical lookup key for a clan tag.
// Color codes are stripped, surrounding whitespace trimmed and the result lower-cased.
// Every Table key operation goes through this function.
func CleanTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(StripColors(tag)))
}

// CleanName returns the canonical lookup key for a player name.
func CleanName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StripColors removes two-rune color codes from s.
func StripColors(s string) string {
	if !strings.ContainsRune(s, colorPrefixAmp) && !strings.ContainsRune(s, colorPrefixSection) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == colorPrefixAmp || r == colorPrefixSection {
			skip = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isValidTagChar returns true if the rune is allowed in a clean tag.
// Allows: a-z, 0-9 (tags are lower-cased before validation).
func isValidTagChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
