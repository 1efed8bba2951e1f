package access

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule maps a host id or address pattern to an access level.
type Rule struct {
	Pattern string
	Level   Level
}

// HostInfo identifies a host for access resolution.
type HostInfo struct {
	ID      string
	Address string
	Level   Level
}

// Resolver resolves access levels for users and hosts.
type Resolver struct {
	// Default access level for anonymous users
	AnonymousAccess Level

	// User-specific rules (keyed by username)
	UserRules map[string][]Rule

	// Admin usernames (have full access to everything)
	Admins map[string]bool
}

// NewResolver creates a new access resolver.
func NewResolver() *Resolver {
	return &Resolver{
		AnonymousAccess: None,
		UserRules:       make(map[string][]Rule),
		Admins:          make(map[string]bool),
	}
}

// SetAnonymousAccess sets the default access level for anonymous users.
func (r *Resolver) SetAnonymousAccess(level Level) {
	r.AnonymousAccess = level
}

// AddAdmin marks a user as admin.
func (r *Resolver) AddAdmin(username string) {
	r.Admins[username] = true
}

// AddUserRule adds an access rule for a specific user.
func (r *Resolver) AddUserRule(username, pattern string, level Level) {
	r.UserRules[username] = append(r.UserRules[username], Rule{Pattern: pattern, Level: level})
}

// Resolve determines the access level of a user for one host. The first
// matching rule wins, so an explicit "none" rule hides a host even when a
// later rule would grant it.
func (r *Resolver) Resolve(user *UserInfo, hostID, address string) Level {
	if user != nil && user.IsAdmin {
		return Admin
	}
	if user != nil && !user.IsAnonymous && r.Admins[user.Name] {
		return Admin
	}

	if user != nil && !user.IsAnonymous {
		// Known users without rules see nothing.
		level, _ := matchRules(r.UserRules[user.Name], hostID, address)
		return level
	}

	return r.AnonymousAccess
}

// matchRules finds the first matching rule and returns its level.
func matchRules(rules []Rule, hostID, address string) (Level, bool) {
	for _, rule := range rules {
		if matchPattern(rule.Pattern, hostID, address) {
			return rule.Level, true
		}
	}
	return None, false
}

func matchPattern(pattern, hostID, address string) bool {
	pattern = strings.TrimSpace(pattern)
	for _, candidate := range []string{hostID, address} {
		if candidate == "" {
			continue
		}
		if pattern == candidate {
			return true
		}
		if matched, _ := doublestar.Match(pattern, candidate); matched {
			return true
		}
	}
	return false
}

// CanAccess returns true if the user may browse the host.
func (r *Resolver) CanAccess(user *UserInfo, hostID, address string) bool {
	return r.Resolve(user, hostID, address).CanRead()
}

// VisibleHosts filters hosts to those the user can browse, recording the
// resolved level on each.
func (r *Resolver) VisibleHosts(user *UserInfo, hosts []HostInfo) []HostInfo {
	result := make([]HostInfo, 0, len(hosts))
	for _, h := range hosts {
		level := r.Resolve(user, h.ID, h.Address)
		if level.CanRead() {
			h.Level = level
			result = append(result, h)
		}
	}
	return result
}
