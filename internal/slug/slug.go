package slug

import (
	"regexp"
	"strings"
)

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug returns true if s matches ^[a-z0-9_]{2,40}$
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify turns free-form selections such as "Change Owed" or "bank-deposit"
// into enum codes: lowercase, runs of anything outside [a-z0-9] become a
// single '_', trimmed to 40 runes without leading or trailing '_'.
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	n := 0
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && n > 0 {
				b.WriteByte('_')
				n++
			}
			pending = false
			b.WriteRune(r)
			n++
		} else {
			pending = true
		}
		if n >= 40 {
			break
		}
	}
	return strings.TrimRight(b.String(), "_")
}
