package routing

import "unicode/utf16"

// HashToPercentage maps a sticky value onto [0, 100). It hashes the UTF-16
// code units with 32-bit wraparound so buckets stay stable across gateway
// versions and deployments.
func HashToPercentage(value string) int {
	var hash int32
	for _, unit := range utf16.Encode([]rune(value)) {
		hash = hash*31 + int32(unit)
	}

	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return int(h % 100)
}

// IsRolloutAllowed reports whether a caller with the given sticky value falls
// inside a percentage rollout.
func IsRolloutAllowed(percentage float64, stickyValue string) bool {
	if percentage >= 100 {
		return true
	}
	if percentage <= 0 {
		return false
	}
	return float64(HashToPercentage(stickyValue)) < percentage
}
