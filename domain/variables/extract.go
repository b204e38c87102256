package variables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extractor turns free-form German messages into typed reservation
// fields. Extraction is deterministic and pattern based; nothing here
// calls out to an NLP service.
type Extractor struct {
	// Location resolves relative dates (heute, morgen) and weekday
	// names against the venue's local calendar.
	Location *time.Location

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	// DotTimeWithoutSuffix treats "19.30" as a time even without a
	// trailing "Uhr". Off by default because the dot form is
	// ambiguous with numeric dates.
	DotTimeWithoutSuffix bool
}

// NewExtractor creates an extractor for the given local calendar.
func NewExtractor(loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{Location: loc, Now: time.Now}
}

// fieldMatcher binds a variable key to its pattern matcher. The slice
// below is the priority order; suppressedBy encodes mutual-exclusion
// rules as data rather than branching inside the matchers.
type fieldMatcher struct {
	field        string
	match        func(e *Extractor, text string, ref time.Time) (string, bool)
	suppressedBy func(text string) bool
}

var fieldMatchers = []fieldMatcher{
	{field: KeyDate, match: (*Extractor).matchDate},
	{field: KeyTime, match: (*Extractor).matchTime},
	{field: KeyGuestCount, match: (*Extractor).matchGuestCount, suppressedBy: hasDayMonthToken},
	{field: KeyPhone, match: (*Extractor).matchPhone},
	{field: KeyEmail, match: (*Extractor).matchEmail},
}

// Extract runs every field matcher against text and returns the newly
// recognized fields. Fields already present in existing are skipped,
// so repeated extraction never overwrites earlier answers.
func (e *Extractor) Extract(text string, existing Variables) Variables {
	ref := e.now()
	found := Variables{}
	for _, m := range fieldMatchers {
		if existing.Has(m.field) {
			continue
		}
		if m.suppressedBy != nil && m.suppressedBy(text) {
			continue
		}
		if value, ok := m.match(e, text, ref); ok {
			found[m.field] = value
		}
	}
	return found
}

func (e *Extractor) now() time.Time {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

// ---------------------------------------------------------------------------
// Date
// ---------------------------------------------------------------------------

var monthsByName = map[string]time.Month{
	"januar":    time.January,
	"februar":   time.February,
	"märz":      time.March,
	"maerz":     time.March,
	"april":     time.April,
	"mai":       time.May,
	"juni":      time.June,
	"juli":      time.July,
	"august":    time.August,
	"september": time.September,
	"oktober":   time.October,
	"november":  time.November,
	"dezember":  time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"montag":     time.Monday,
	"dienstag":   time.Tuesday,
	"mittwoch":   time.Wednesday,
	"donnerstag": time.Thursday,
	"freitag":    time.Friday,
	"samstag":    time.Saturday,
	"sonnabend":  time.Saturday,
	"sonntag":    time.Sunday,
}

const monthNamePattern = `januar|februar|märz|maerz|april|mai|juni|juli|august|september|oktober|november|dezember`

var (
	dayMonthNameRe = regexp.MustCompile(`(\d{1,2})\.?\s*(` + monthNamePattern + `)`)
	numericDateRe  = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})(?:\.(\d{2,4}))?`)
	weekdayRe      = regexp.MustCompile(`montag|dienstag|mittwoch|donnerstag|freitag|samstag|sonnabend|sonntag`)
)

func hasDayMonthToken(text string) bool {
	return dayMonthNameRe.MatchString(strings.ToLower(text))
}

func (e *Extractor) matchDate(text string, ref time.Time) (string, bool) {
	lower := strings.ToLower(text)
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())

	// Relative words. "übermorgen" first, since "morgen" is a
	// substring of it.
	switch {
	case strings.Contains(lower, "übermorgen"), strings.Contains(lower, "uebermorgen"):
		return formatDate(today.AddDate(0, 0, 2)), true
	case strings.Contains(lower, "morgen"):
		return formatDate(today.AddDate(0, 0, 1)), true
	case strings.Contains(lower, "heute"):
		return formatDate(today), true
	}

	// Weekday names resolve to the next occurrence on or after today.
	// The same weekday as today stays today, not next week.
	if name := weekdayRe.FindString(lower); name != "" {
		target := weekdaysByName[name]
		delta := (int(target) - int(today.Weekday()) + 7) % 7
		return formatDate(today.AddDate(0, 0, delta)), true
	}

	// "8. März" style.
	if m := dayMonthNameRe.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		month := monthsByName[m[2]]
		if date, ok := buildDate(today, day, month, 0); ok {
			return formatDate(date), true
		}
		return "", false
	}

	// Numeric D.M[.YY|YYYY]. A dot form directly followed by "Uhr" is
	// a time, not a date.
	if loc := numericDateRe.FindStringSubmatchIndex(lower); loc != nil {
		if strings.HasPrefix(strings.TrimLeft(lower[loc[1]:], " "), "uhr") {
			return "", false
		}
		m := numericDateRe.FindStringSubmatch(lower)
		day, _ := strconv.Atoi(m[1])
		monthNum, _ := strconv.Atoi(m[2])
		if monthNum < 1 || monthNum > 12 {
			return "", false
		}
		year := 0
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		if date, ok := buildDate(today, day, time.Month(monthNum), year); ok {
			return formatDate(date), true
		}
	}

	return "", false
}

// buildDate constructs a calendar-validated date. A zero year means
// "this year, or next year if the date already passed". Invalid days
// (31.02 and friends) are rejected via round-trip comparison.
func buildDate(today time.Time, day int, month time.Month, year int) (time.Time, bool) {
	rollForward := year == 0
	if year == 0 {
		year = today.Year()
	}
	date := time.Date(year, month, day, 0, 0, 0, 0, today.Location())
	if date.Day() != day || date.Month() != month {
		return time.Time{}, false
	}
	if rollForward && date.Before(today) {
		date = time.Date(year+1, month, day, 0, 0, 0, 0, today.Location())
		if date.Day() != day || date.Month() != month {
			return time.Time{}, false
		}
	}
	return date, true
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ---------------------------------------------------------------------------
// Time
// ---------------------------------------------------------------------------

var (
	colonTimeRe   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	dotTimeUhrRe  = regexp.MustCompile(`(\d{1,2})\.(\d{2})\s*uhr`)
	dotTimeBareRe = regexp.MustCompile(`(\d{1,2})\.(\d{2})`)
	bareUhrRe     = regexp.MustCompile(`(\d{1,2})\s*uhr`)
)

func (e *Extractor) matchTime(text string, _ time.Time) (string, bool) {
	lower := strings.ToLower(text)

	if m := colonTimeRe.FindStringSubmatch(lower); m != nil {
		return normalizeClock(m[1], m[2])
	}
	if m := dotTimeUhrRe.FindStringSubmatch(lower); m != nil {
		return normalizeClock(m[1], m[2])
	}
	if e.DotTimeWithoutSuffix {
		if m := dotTimeBareRe.FindStringSubmatch(lower); m != nil {
			return normalizeClock(m[1], m[2])
		}
	}
	if m := bareUhrRe.FindStringSubmatch(lower); m != nil {
		return normalizeClock(m[1], "00")
	}
	return "", false
}

// normalizeClock validates an hour/minute pair and renders HH:MM.
// 24:00 folds to 00:00.
func normalizeClock(hourStr, minuteStr string) (string, bool) {
	hour, _ := strconv.Atoi(hourStr)
	minute, _ := strconv.Atoi(minuteStr)
	if hour == 24 && minute == 0 {
		hour = 0
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// ---------------------------------------------------------------------------
// Guest count
// ---------------------------------------------------------------------------

const (
	maxGuestCountWithNoun = 100
	maxGuestCountBare     = 20
)

var (
	guestNounRe = regexp.MustCompile(`(\d+)\s*(personen|person|leute|gäste|gaeste|gast|mann|pax)\b`)
	bareIntRe   = regexp.MustCompile(`^\s*(\d{1,3})\s*$`)
)

func (e *Extractor) matchGuestCount(text string, _ time.Time) (string, bool) {
	lower := strings.ToLower(text)

	if m := guestNounRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= maxGuestCountWithNoun {
			return strconv.Itoa(n), true
		}
		return "", false
	}

	// A message that is nothing but a small integer is taken as a
	// party size ("4" in reply to "Für wie viele Personen?").
	if m := bareIntRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= maxGuestCountBare {
			return strconv.Itoa(n), true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Phone and email
// ---------------------------------------------------------------------------

// phoneCandidateRe finds digit runs with common separators. Dots are
// deliberately excluded so numeric dates never qualify.
var phoneCandidateRe = regexp.MustCompile(`\+?\d[\d \-/()]{5,20}\d`)

func (e *Extractor) matchPhone(text string, _ time.Time) (string, bool) {
	for _, candidate := range phoneCandidateRe.FindAllString(text, -1) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, candidate)
		if len(digits) >= 7 && len(digits) <= 15 {
			if strings.HasPrefix(candidate, "+") {
				return "+" + digits, true
			}
			return digits, true
		}
	}
	return "", false
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func (e *Extractor) matchEmail(text string, _ time.Time) (string, bool) {
	if m := emailRe.FindString(text); m != "" {
		return strings.ToLower(m), true
	}
	return "", false
}
