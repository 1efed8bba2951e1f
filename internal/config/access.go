package config

import "github.com/johan-st/tsbrowse/internal/access"

// AccessRule grants a level on hosts whose id or address matches Pattern.
type AccessRule struct {
	Pattern string `yaml:"pattern" toml:"pattern"`
	Level   string `yaml:"level" toml:"level"`
}

// ToAccessRule converts a config AccessRule to an access.Rule.
func (r AccessRule) ToAccessRule() access.Rule {
	return access.Rule{
		Pattern: r.Pattern,
		Level:   access.ParseLevel(r.Level),
	}
}

// User represents a user in the config file.
type User struct {
	Name       string       `yaml:"name" toml:"name"`
	Admin      bool         `yaml:"admin" toml:"admin"`
	PublicKeys []string     `yaml:"public_keys" toml:"public_keys"`
	Access     []AccessRule `yaml:"access" toml:"access"`
}

// BuildResolver creates an access resolver from the current user settings.
func (c *Config) BuildResolver() *access.Resolver {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := access.NewResolver()
	r.SetAnonymousAccess(access.ParseLevel(c.AnonymousAccess))

	for _, user := range c.Users {
		if user.Admin {
			r.AddAdmin(user.Name)
		}
		for _, rule := range user.Access {
			ar := rule.ToAccessRule()
			r.AddUserRule(user.Name, ar.Pattern, ar.Level)
		}
	}
	return r
}

// GetUsers returns a copy of the configured users.
func (c *Config) GetUsers() []User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := make([]User, len(c.Users))
	copy(users, c.Users)
	return users
}

// AllowsKeyless reports whether SSH clients without a public key may connect.
func (c *Config) AllowsKeyless() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AllowKeyless
}
