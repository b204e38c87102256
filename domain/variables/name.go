package variables

import (
	"regexp"
	"strings"
)

// nameRefusals are answers that must never be stored as a guest name.
var nameRefusals = []string{
	"weiß nicht",
	"weiss nicht",
	"keine ahnung",
	"kein name",
	"sag ich nicht",
	"keine angabe",
	"egal",
	"nein",
}

var (
	// bareNameRe accepts up to three alphabetic words, diacritics and
	// the usual name punctuation included.
	bareNameRe = regexp.MustCompile(`^[A-Za-zÀ-ÖØ-öø-ÿß][A-Za-zÀ-ÖØ-öø-ÿß'.\-]*(?:\s+[A-Za-zÀ-ÖØ-öø-ÿß][A-Za-zÀ-ÖØ-öø-ÿß'.\-]*){0,2}$`)

	explicitNameRe = regexp.MustCompile(`(?i)(?:ich\s+hei(?:ß|ss)e|mein\s+name\s+ist|name\s*:)\s+(.+)`)
)

// ExtractName pulls a guest name out of a message. It is only called
// when the dialogue is explicitly awaiting a name, so a short
// alphabetic message is taken at face value.
func (e *Extractor) ExtractName(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	lower := strings.ToLower(trimmed)
	for _, refusal := range nameRefusals {
		if strings.Contains(lower, refusal) {
			return "", false
		}
	}

	if bareNameRe.MatchString(trimmed) {
		return trimmed, true
	}

	if m := explicitNameRe.FindStringSubmatch(trimmed); m != nil {
		name := strings.TrimRight(strings.TrimSpace(m[1]), ".!?,")
		if name != "" {
			return name, true
		}
	}

	return "", false
}
