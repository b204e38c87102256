// Package variables implements deterministic extraction of reservation
// fields from free-form German chat messages, first-write-wins merging,
// and template substitution for outbound flow messages.
package variables

// Well-known variable keys captured from user input.
const (
	KeyName            = "name"
	KeyDate            = "date"
	KeyTime            = "time"
	KeyGuestCount      = "guestCount"
	KeyPhone           = "phone"
	KeyEmail           = "email"
	KeySpecialRequests = "specialRequests"
)

// reservationRequiredKeys are the fields a flow must have collected
// before a reservation can be created.
var reservationRequiredKeys = []string{KeyName, KeyDate, KeyTime, KeyGuestCount}

// Variables maps known field keys to their extracted values.
// Dates are stored as YYYY-MM-DD, times as HH:MM, guest counts as
// decimal integers.
type Variables map[string]string

// Has reports whether a key is present with a non-empty value.
func (v Variables) Has(key string) bool {
	return v[key] != ""
}

// Clone returns an independent copy.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge combines existing and incoming variables with a left bias:
// keys already present in existing are never replaced. Empty incoming
// values are ignored.
func Merge(existing, incoming Variables) Variables {
	merged := make(Variables, len(existing)+len(incoming))
	for k, val := range existing {
		merged[k] = val
	}
	for k, val := range incoming {
		if val == "" {
			continue
		}
		if merged[k] != "" {
			continue
		}
		merged[k] = val
	}
	return merged
}

// MissingReservationFields returns the reservation-required keys not
// yet present, in a fixed order.
func MissingReservationFields(v Variables) []string {
	var missing []string
	for _, key := range reservationRequiredKeys {
		if !v.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}
