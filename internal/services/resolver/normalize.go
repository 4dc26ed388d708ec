package resolver

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidIDPattern is the catalog product id shape: three letters then four
// digits, after normalization.
var ValidIDPattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`)

// NormalizeID strips whitespace and bracket characters from a product id
// token and upper-cases it, so "[CBT 89 01]" becomes "CBT8901".
// Normalization is idempotent.
func NormalizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '[', ']', '(', ')', '{', '}', '<', '>':
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// IsValidID reports whether a normalized token has the catalog id shape.
func IsValidID(id string) bool {
	return ValidIDPattern.MatchString(id)
}
