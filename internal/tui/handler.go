package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/johan-st/tsbrowse/internal/history"
	"github.com/johan-st/tsbrowse/internal/server"
)

// Handler returns a bubbletea middleware handler for SSH sessions. Each
// session drives the controller the server bound to it.
func Handler(historyStore *history.Store) bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		pty, _, ok := s.Pty()
		if !ok {
			return nil, nil
		}
		sess := server.GetSessionFromSSH(s)
		if sess == nil || sess.Controller == nil {
			return nil, nil
		}

		app := NewApp(s.Context(), sess.Controller, Options{
			User:      sess.User,
			Levels:    sess.Levels,
			History:   historyStore,
			SessionID: sess.ID,
		}, pty.Window.Width, pty.Window.Height)

		return app, []tea.ProgramOption{
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
		}
	}
}
