// Package access resolves which configured hosts a user may browse.
package access

import "strings"

// Level represents the access level a user has to a host.
type Level int

const (
	// None hides the host from the user.
	None Level = iota
	// ReadOnly allows browsing tables and rows.
	ReadOnly
	// Admin additionally allows reading every user's query history and
	// reconnecting hosts.
	Admin
)

// String returns the string representation of the access level.
func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case ReadOnly:
		return "read-only"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into an access Level. Unknown values map to None.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read-only", "readonly", "ro", "browse":
		return ReadOnly
	case "admin":
		return Admin
	default:
		return None
	}
}

// CanRead returns true if the level allows browsing.
func (l Level) CanRead() bool {
	return l >= ReadOnly
}

// CanAdmin returns true if the level allows admin operations.
func (l Level) CanAdmin() bool {
	return l >= Admin
}
