package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/history"
)

// Session is one connected SSH client with its own view of the hosts.
type Session struct {
	ID           string
	User         *access.UserInfo
	RemoteAddr   string
	StartTime    time.Time
	LastActivity time.Time

	// Registry holds only the hosts the user may see. It shares sessions
	// with the server's registry and must not be closed.
	Registry *database.Registry
	// Controller drives this client's browsing.
	Controller *browse.Controller
	// Levels maps visible host ids to the user's access level.
	Levels map[string]access.Level

	mu sync.RWMutex
}

// NewSession creates a new session.
func NewSession(user *access.UserInfo, remoteAddr string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		User:         user,
		RemoteAddr:   remoteAddr,
		StartTime:    now,
		LastActivity: now,
		Levels:       make(map[string]access.Level),
	}
}

// Touch updates the last activity time.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now()
}

// Duration returns how long the session has been open.
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// IdleTime returns how long since the last activity.
func (s *Session) IdleTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.LastActivity)
}

// IsAdmin reports whether the session's user is an admin.
func (s *Session) IsAdmin() bool {
	for _, l := range s.Levels {
		if l.CanAdmin() {
			return true
		}
	}
	return s.User != nil && s.User.IsAdmin
}

// Info returns the access.SessionInfo describing s.
func (s *Session) Info() *access.SessionInfo {
	info := &access.SessionInfo{ID: s.ID, User: s.User, RemoteAddr: s.RemoteAddr}
	if s.Registry != nil {
		for _, hs := range s.Registry.Sessions() {
			info.Hosts = append(info.Hosts, hs.ID())
		}
	}
	return info
}

// SessionManager tracks connected clients.
type SessionManager struct {
	sessions map[string]*Session
	history  *history.Store
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager. history may be nil.
func NewSessionManager(store *history.Store) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		history:  store,
	}
}

// CreateSession registers a new session and records it in history.
func (sm *SessionManager) CreateSession(ctx context.Context, user *access.UserInfo, remoteAddr string) *Session {
	session := NewSession(user, remoteAddr)

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	if sm.history != nil {
		if err := sm.history.CreateSession(ctx, history.NewSession(session.ID, user, remoteAddr)); err != nil {
			log.Warn("failed to record session", "session", session.ID, "err", err)
		}
	}
	return session
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// EndSession forgets a session and marks it ended in history.
func (sm *SessionManager) EndSession(ctx context.Context, id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if sm.history != nil {
		if err := sm.history.EndSession(ctx, id); err != nil {
			log.Warn("failed to end session", "session", id, "err", err)
		}
	}
}

// ListActiveSessions returns all connected sessions.
func (sm *SessionManager) ListActiveSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
