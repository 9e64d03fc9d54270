package utils

import "strings"

// NormalizeCallerID converts a raw caller-id string into the canonical
// "+digits" form both feeds can be compared on. Returns "" when the input
// carries no usable number (empty, "anonymous", etc).
//
// Rules, applied in order:
//  1. empty input -> ""
//  2. already canonical (leading "+") -> returned unchanged
//  3. strip everything that is not a digit
//  4. countryCode followed by exactly 10 digits -> "+" + digits
//  5. exactly 10 digits -> assume domestic, "+" + countryCode + digits
//  6. any digits left -> "+" + digits as a last resort
//  7. no digits -> ""
func NormalizeCallerID(raw, countryCode string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "+") {
		return trimmed
	}

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == len(countryCode)+10 && strings.HasPrefix(digits, countryCode):
		return "+" + digits
	case len(digits) == 10:
		return "+" + countryCode + digits
	case len(digits) > 0:
		return "+" + digits
	default:
		return ""
	}
}

// SameCaller reports whether two raw caller ids refer to the same caller,
// i.e. both normalize to the same non-empty canonical form.
func SameCaller(rawA, rawB, countryCode string) bool {
	a := NormalizeCallerID(rawA, countryCode)
	b := NormalizeCallerID(rawB, countryCode)
	return a != "" && a == b
}
