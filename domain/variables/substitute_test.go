package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	vars := Variables{
		KeyName:       "Max Mustermann",
		KeyDate:       "2026-05-12",
		KeyTime:       "19:30",
		KeyGuestCount: "4",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			"all resolved",
			"Hallo {{name}}, Tisch am {{date}} um {{time}} für {{guestCount}} Personen.",
			"Hallo Max Mustermann, Tisch am 12.05.2026 um 19:30 für 4 Personen.",
		},
		{
			"unresolved stays verbatim",
			"Bis {{time}}, {{unknown}}!",
			"Bis 19:30, {{unknown}}!",
		},
		{
			"whitespace inside braces",
			"Um {{ time }} Uhr",
			"Um 19:30 Uhr",
		},
		{
			"no placeholders",
			"Vielen Dank!",
			"Vielen Dank!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.template, vars))
		})
	}
}

func TestSubstituteEmptyValueStaysVerbatim(t *testing.T) {
	got := Substitute("Hallo {{name}}", Variables{KeyName: ""})
	assert.Equal(t, "Hallo {{name}}", got)
}

func TestDateRendersGerman(t *testing.T) {
	got := Substitute("{{date}}", Variables{KeyDate: "2026-12-01"})
	assert.Equal(t, "01.12.2026", got)

	// A malformed stored date passes through untouched.
	got = Substitute("{{date}}", Variables{KeyDate: "not-a-date"})
	assert.Equal(t, "not-a-date", got)
}

func TestUnresolvedKeys(t *testing.T) {
	template := "{{name}} {{date}} {{name}} {{time}}"
	vars := Variables{KeyDate: "2026-05-12"}

	assert.Equal(t, []string{"name", "time"}, UnresolvedKeys(template, vars))
	assert.Empty(t, UnresolvedKeys("kein platzhalter", vars))
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("hi {{name}}"))
	assert.False(t, HasPlaceholders("hi name"))
	assert.False(t, HasPlaceholders("hi {name}"))
}
