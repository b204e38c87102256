package variables

import (
	"regexp"
	"time"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Substitute replaces every {{key}} placeholder in template with the
// display form of the matching variable. Unresolved placeholders stay
// verbatim so a partially filled conversation still renders.
func Substitute(template string, vars Variables) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := vars[key]
		if !ok || value == "" {
			return match
		}
		return displayValue(key, value)
	})
}

// HasPlaceholders reports whether template contains any {{key}}.
func HasPlaceholders(template string) bool {
	return placeholderRe.MatchString(template)
}

// UnresolvedKeys returns the placeholder names in template that vars
// cannot fill, in order of first appearance without duplicates.
func UnresolvedKeys(template string, vars Variables) []string {
	var unresolved []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		key := m[1]
		if seen[key] || vars.Has(key) {
			continue
		}
		seen[key] = true
		unresolved = append(unresolved, key)
	}
	return unresolved
}

// displayValue renders a stored value for the user. Dates flip from
// the stored YYYY-MM-DD to the German DD.MM.YYYY; everything else
// passes through unchanged.
func displayValue(key, value string) string {
	if key == KeyDate {
		if t, err := time.Parse("2006-01-02", value); err == nil {
			return t.Format("02.01.2006")
		}
	}
	return value
}
