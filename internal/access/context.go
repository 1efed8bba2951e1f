package access

import "context"

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// UserInfo describes an authenticated SSH user.
type UserInfo struct {
	Name          string
	IsAdmin       bool
	PublicKeyFP   string // SSH public key fingerprint
	IsAnonymous   bool
	AnonymousName string // e.g. "amber-falcon-17"
	RemoteAddr    string
}

// SessionInfo describes one SSH session.
type SessionInfo struct {
	ID         string
	User       *UserInfo
	RemoteAddr string
	// Hosts lists the host ids visible to the session.
	Hosts []string
}

// WithUser adds user info to the context.
func WithUser(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves user info from the context.
func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(userKey).(*UserInfo)
	return user, ok
}

// WithSession adds session info to the context.
func WithSession(ctx context.Context, session *SessionInfo) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext retrieves session info from the context.
func SessionFromContext(ctx context.Context) (*SessionInfo, bool) {
	session, ok := ctx.Value(sessionKey).(*SessionInfo)
	return session, ok
}

// DisplayName returns the name to display for the user.
func (u *UserInfo) DisplayName() string {
	if u == nil {
		return "local"
	}
	if u.IsAnonymous {
		return u.AnonymousName
	}
	return u.Name
}
