package canbus

import "strings"

// Recognized bus-type tokens.
const (
	BusTypeBusmust = "busmust"
	BusTypePCAN    = "pcan"

	// Historical misspelling, accepted and normalized to BusTypeBusmust.
	legacyBusmustToken = "busust"
)

// normalizeBusType lowercases the token and folds the legacy alias onto the
// canonical busmust name.
func normalizeBusType(bustype string) string {
	t := strings.ToLower(bustype)
	if t == legacyBusmustToken {
		t = BusTypeBusmust
	}
	return t
}

// IsAvailable reports whether the bus-type token is recognized, after alias
// normalization. It says nothing about hardware presence.
func IsAvailable(bustype string) bool {
	switch normalizeBusType(bustype) {
	case BusTypeBusmust, BusTypePCAN:
		return true
	}
	return false
}
