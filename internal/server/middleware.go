package server

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"

	"github.com/johan-st/tsbrowse/internal/access"
)

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeySession
	ctxKeySessionMgr
)

// Binder attaches a host view and controller to a new session.
type Binder func(sess *Session, width int)

// SessionMiddleware creates a session for each connection and ends it when
// the handler returns.
func SessionMiddleware(sessionMgr *SessionManager, bind Binder) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			user := GetUserFromContext(s.Context())
			if user == nil {
				user = &access.UserInfo{
					IsAnonymous:   true,
					AnonymousName: "unknown",
					RemoteAddr:    s.RemoteAddr().String(),
				}
			}

			session := sessionMgr.CreateSession(s.Context(), user, s.RemoteAddr().String())
			defer sessionMgr.EndSession(context.WithoutCancel(s.Context()), session.ID)

			width := 0
			if pty, _, ok := s.Pty(); ok {
				width = pty.Window.Width
			}
			if bind != nil {
				bind(session, width)
			}

			s.Context().SetValue(ctxKeySession, session)
			s.Context().SetValue(ctxKeySessionMgr, sessionMgr)

			next(s)
		}
	}
}

// LoggingMiddleware logs connections.
func LoggingMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			user := GetUserFromContext(s.Context())
			log.Info("connection", "remote", s.RemoteAddr(), "user", user.DisplayName(), "command", s.Command())
			next(s)
			log.Info("disconnected", "remote", s.RemoteAddr(), "user", user.DisplayName())
		}
	}
}

// GetSessionFromSSH retrieves the session from the SSH session context.
func GetSessionFromSSH(s ssh.Session) *Session {
	if session, ok := s.Context().Value(ctxKeySession).(*Session); ok {
		return session
	}
	return nil
}

// GetSessionMgrFromSSH retrieves the session manager from the SSH session context.
func GetSessionMgrFromSSH(s ssh.Session) *SessionManager {
	if mgr, ok := s.Context().Value(ctxKeySessionMgr).(*SessionManager); ok {
		return mgr
	}
	return nil
}
