package domain

import (
	"strconv"
	"strings"
)

// Money is carried as int64 minor units (paisa) everywhere inside the
// system. Decimal strings exist only at the HTTP boundary.

// ParseAmount converts a decimal string like "10", "10.5" or "10.50" to
// minor units. Negative values and more than two decimal places are
// rejected.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}

	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, ErrInvalidAmount
	}

	v, err := strconv.ParseInt(parts[0]+frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders minor units as a decimal string with two places.
func FormatAmount(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	s := strconv.FormatInt(minor, 10)
	for len(s) < 3 {
		s = "0" + s
	}
	out := s[:len(s)-2] + "." + s[len(s)-2:]
	if neg {
		return "-" + out
	}
	return out
}

// SplitCommission divides a settled amount between platform and organizer
// at an integer percentage rate. The fee rounds down, the organizer keeps
// the remainder, so the two shares always sum to the amount exactly.
func SplitCommission(amount int64, ratePercent int) (platformFee, organizerShare int64) {
	if ratePercent <= 0 {
		return 0, amount
	}
	if ratePercent > 100 {
		ratePercent = 100
	}
	platformFee = amount * int64(ratePercent) / 100
	return platformFee, amount - platformFee
}
