// Package server serves the browser over SSH. Interactive sessions get the
// TUI; sessions with a command get the CLI.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/history"
)

const shutdownTimeout = 30 * time.Second

// Server is the SSH server for tsbrowse.
type Server struct {
	config        *config.Config
	registry      *database.Registry
	historyStore  *history.Store
	sessionMgr    *SessionManager
	authenticator *Authenticator
	sshServer     *ssh.Server
	tuiHandler    bubbletea.Handler
	cliHandler    func(ssh.Session)

	resolver *access.Resolver
	mu       sync.RWMutex
}

// NewServer creates a new SSH server over the hosts in reg. historyStore
// may be nil.
func NewServer(cfg *config.Config, reg *database.Registry, historyStore *history.Store) *Server {
	return &Server{
		config:        cfg,
		registry:      reg,
		historyStore:  historyStore,
		sessionMgr:    NewSessionManager(historyStore),
		authenticator: NewAuthenticator(cfg, historyStore),
		resolver:      cfg.BuildResolver(),
	}
}

// SetTUIHandler sets the Bubble Tea handler for interactive sessions.
func (s *Server) SetTUIHandler(handler bubbletea.Handler) {
	s.tuiHandler = handler
}

// SetCLIHandler sets the handler for CLI commands.
func (s *Server) SetCLIHandler(handler func(ssh.Session)) {
	s.cliHandler = handler
}

// UpdateResolver swaps the access rules used for new sessions.
func (s *Server) UpdateResolver(r *access.Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

// Resolver returns the current access resolver.
func (s *Server) Resolver() *access.Resolver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver
}

// Bind gives sess the hosts its user may read and a controller over them.
func (s *Server) Bind(sess *Session, width int) {
	resolver := s.Resolver()
	levels := make(map[string]access.Level)

	sub := s.registry.Subset(func(hs *database.HostSession) bool {
		level := resolver.Resolve(sess.User, hs.ID(), hs.Host().Address)
		if !level.CanRead() {
			return false
		}
		levels[hs.ID()] = level
		return true
	})

	opts := browse.Options{
		Query:     database.QueryOptionsFrom(s.config.GetBrowse()),
		Width:     width,
		Timeout:   s.config.GetQueryTimeout(),
		User:      sess.User.DisplayName(),
		SessionID: sess.ID,
	}
	if s.historyStore != nil {
		opts.Recorder = s.historyStore
	}

	sess.Registry = sub
	sess.Levels = levels
	sess.Controller = browse.New(sub, opts)
	log.Debug("session bound", "session", sess.ID, "user", sess.User.DisplayName(), "hosts", sub.Len())
}

// ApplyBrowse pushes new browse settings to every connected session.
func (s *Server) ApplyBrowse(b config.BrowseConfig, timeout time.Duration) {
	q := database.QueryOptionsFrom(b)
	for _, sess := range s.sessionMgr.ListActiveSessions() {
		if sess.Controller != nil {
			sess.Controller.SetQueryOptions(q, timeout)
		}
	}
}

func (s *Server) build() (*ssh.Server, error) {
	keyDir := filepath.Dir(s.config.Server.SSH.HostKeyPath)
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create host key directory: %w", err)
	}

	// Last middleware wraps first.
	middleware := []wish.Middleware{
		s.routingMiddleware(),
		SessionMiddleware(s.sessionMgr, s.Bind),
		LoggingMiddleware(),
	}

	opts := []ssh.Option{
		wish.WithAddress(s.config.Server.SSH.Listen),
		wish.WithHostKeyPath(s.config.Server.SSH.HostKeyPath),
		wish.WithPublicKeyAuth(s.authenticator.PublicKeyHandler()),
		wish.WithMiddleware(middleware...),
	}
	if s.config.AllowsKeyless() {
		opts = append(opts, wish.WithKeyboardInteractiveAuth(s.authenticator.KeyboardInteractiveHandler()))
	}
	if d := s.config.GetIdleTimeout(); d > 0 {
		opts = append(opts, wish.WithIdleTimeout(d))
	}
	if d := s.config.GetMaxTimeout(); d > 0 {
		opts = append(opts, wish.WithMaxTimeout(d))
	}

	server, err := wish.NewServer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH server: %w", err)
	}
	return server, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server, err := s.build()
	if err != nil {
		return err
	}
	s.sshServer = server

	log.Info("starting SSH server", "addr", s.config.Server.SSH.Listen)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, ssh.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down SSH server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sshServer != nil {
		return s.sshServer.Shutdown(ctx)
	}
	return nil
}

// GetAddr returns the server's listen address string.
func (s *Server) GetAddr() string {
	if s.sshServer != nil {
		return s.sshServer.Addr
	}
	return ""
}

// routingMiddleware routes requests to either TUI or CLI handler.
func (s *Server) routingMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			if len(sess.Command()) > 0 {
				if s.cliHandler == nil {
					wish.Fatalln(sess, "commands are not available")
					return
				}
				s.cliHandler(sess)
				return
			}

			if _, _, hasPty := sess.Pty(); !hasPty {
				wish.Fatalln(sess, "PTY required for interactive mode. Use -t flag or provide a command.")
				return
			}
			if s.tuiHandler == nil {
				wish.Fatalln(sess, "interactive mode is not available")
				return
			}
			bubbletea.Middleware(s.tuiHandler)(next)(sess)
		}
	}
}

// GetSessionManager returns the session manager.
func (s *Server) GetSessionManager() *SessionManager {
	return s.sessionMgr
}
