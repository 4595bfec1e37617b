package identity

import (
	"strings"
)

// MatchMode selects how two identities are compared for similarity.
type MatchMode string

const (
	// MatchPrefix matches when either sequence is a prefix of the other.
	MatchPrefix MatchMode = "prefix"

	// MatchContains matches when either sequence occurs inside the other.
	MatchContains MatchMode = "contains"
)

// ParseMatchMode accepts "prefix" or "contains" (case-insensitive). An empty
// string selects MatchPrefix.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchPrefix:
		return MatchPrefix, nil
	case MatchContains:
		return MatchContains, nil
	default:
		return "", InvalidArgument("unknown match mode %q", s)
	}
}
