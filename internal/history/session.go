package history

import (
	"time"

	"github.com/johan-st/tsbrowse/internal/access"
)

// Session is one SSH or local browsing session.
type Session struct {
	ID                   string
	UserName             string // authenticated user, empty for anonymous
	PublicKeyFingerprint string
	AnonymousName        string
	RemoteAddr           string
	CreatedAt            time.Time
	LastActiveAt         time.Time
	IsActive             bool
}

// Entry is one recorded fetch.
type Entry struct {
	ID        int64
	SessionID string
	UserName  string
	Host      string
	Table     string
	Page      int
	Filter    string
	SQL       string
	Rows      int
	Elapsed   time.Duration
	Error     string
	CreatedAt time.Time
}

// Query filters ListEntries. Zero values match everything.
type Query struct {
	SessionID string
	UserName  string
	Host      string
	Since     time.Time
	Limit     int
}

// AuditRecord is a non-fetch event worth keeping, such as a host switch.
type AuditRecord struct {
	ID        int64
	SessionID string
	Action    string
	Host      string
	Details   string // JSON
	CreatedAt time.Time
}

// Audit actions.
const (
	ActionConnect    = "connect"
	ActionReconnect  = "reconnect"
	ActionSwitchHost = "switch_host"
	ActionCopyRow    = "copy_row"
)

// NewSession creates a session record from user info.
func NewSession(id string, user *access.UserInfo, remoteAddr string) *Session {
	now := time.Now()
	s := &Session{
		ID:           id,
		RemoteAddr:   remoteAddr,
		CreatedAt:    now,
		LastActiveAt: now,
		IsActive:     true,
	}

	if user != nil {
		if user.IsAnonymous {
			s.AnonymousName = user.AnonymousName
		} else {
			s.UserName = user.Name
			s.PublicKeyFingerprint = user.PublicKeyFP
		}
	}
	return s
}

// DisplayName returns the name shown for the session.
func (s *Session) DisplayName() string {
	if s.UserName != "" {
		return s.UserName
	}
	if s.AnonymousName != "" {
		return s.AnonymousName
	}
	return "unknown"
}
