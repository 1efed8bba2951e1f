// Package cli implements the command-line interface for both SSH and local modes.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/ssh"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/history"
	"github.com/johan-st/tsbrowse/internal/server"
)

// Handler handles CLI commands over SSH or locally.
type Handler struct {
	config       *config.Config
	registry     *database.Registry
	historyStore *history.Store
	version      string
}

// NewHandler creates a new CLI handler. historyStore may be nil.
func NewHandler(cfg *config.Config, reg *database.Registry, historyStore *history.Store, version string) *Handler {
	return &Handler{
		config:       cfg,
		registry:     reg,
		historyStore: historyStore,
		version:      version,
	}
}

// LocalContext wraps command execution for local (non-SSH) mode.
type LocalContext struct {
	Ctx       context.Context
	User      *access.UserInfo
	SessionID string
	Args      []string
	Out       io.Writer
	Err       io.Writer
}

// NewLocalContext creates a context for local CLI execution.
func NewLocalContext(ctx context.Context, user *access.UserInfo, args []string, out, errOut io.Writer) *LocalContext {
	return &LocalContext{
		Ctx:  ctx,
		User: user,
		Args: args,
		Out:  out,
		Err:  errOut,
	}
}

// HandleLocal processes a CLI command in local mode (no SSH session).
func (h *Handler) HandleLocal(lctx *LocalContext) error {
	if len(lctx.Args) == 0 {
		fmt.Fprintln(lctx.Out, "No command specified. Run 'help' for usage.")
		return nil
	}

	ctx := &CommandContext{
		Ctx:          access.WithUser(lctx.Ctx, lctx.User),
		User:         lctx.User,
		Registry:     h.registry,
		HistoryStore: h.historyStore,
		Args:         lctx.Args[1:],
		Out:          lctx.Out,
		Err:          lctx.Err,
		sessionID:    lctx.SessionID,
	}
	ctx.controller = h.newController(ctx)

	h.routeCommand(lctx.Args[0], ctx)

	if ctx.exitCode != 0 {
		return fmt.Errorf("command failed with exit code %d", ctx.exitCode)
	}
	return nil
}

// Handle processes an SSH session with a CLI command.
func (h *Handler) Handle(s ssh.Session) {
	cmd := s.Command()
	if len(cmd) == 0 {
		fmt.Fprintln(s, "No command specified. Run 'help' for usage.")
		return
	}

	session := server.GetSessionFromSSH(s)
	ctx := &CommandContext{
		Ctx:          s.Context(),
		Session:      s,
		User:         server.GetUserFromContext(s.Context()),
		SessionInfo:  session,
		HistoryStore: h.historyStore,
		Args:         cmd[1:],
		Out:          s,
		Err:          s.Stderr(),
	}
	if session != nil {
		session.Touch()
		ctx.Ctx = access.WithSession(access.WithUser(ctx.Ctx, ctx.User), session.Info())
		ctx.sessionID = session.ID
		ctx.Registry = session.Registry
		ctx.controller = session.Controller
	}
	if ctx.Registry == nil {
		ctx.Registry = database.NewRegistry(nil)
	}
	if ctx.controller == nil {
		ctx.controller = h.newController(ctx)
	}

	h.routeCommand(cmd[0], ctx)

	if ctx.exitCode != 0 {
		s.Exit(ctx.exitCode)
	}
}

func (h *Handler) newController(ctx *CommandContext) *browse.Controller {
	opts := browse.Options{
		Query:     database.QueryOptionsFrom(h.config.GetBrowse()),
		Timeout:   h.config.GetQueryTimeout(),
		User:      ctx.User.DisplayName(),
		SessionID: ctx.sessionID,
	}
	if h.historyStore != nil {
		opts.Recorder = h.historyStore
	}
	return browse.New(ctx.Registry, opts)
}

// routeCommand routes a command to its handler.
func (h *Handler) routeCommand(cmd string, ctx *CommandContext) {
	switch cmd {
	// Host commands
	case "hosts", "ls":
		h.cmdHosts(ctx)
	case "tables":
		h.cmdTables(ctx)
	case "reconnect":
		h.cmdReconnect(ctx)

	// Row commands
	case "rows", "select":
		h.cmdRows(ctx)
	case "count":
		h.cmdCount(ctx)

	// Admin commands
	case "sessions":
		h.cmdSessions(ctx)
	case "history":
		h.cmdHistory(ctx)
	case "audit":
		h.cmdAudit(ctx)

	// Utility commands
	case "whoami":
		h.cmdWhoami(ctx)
	case "help":
		h.cmdHelp(ctx)
	case "version":
		h.cmdVersion(ctx)

	default:
		fmt.Fprintf(ctx.Err, "Unknown command: %s\n", cmd)
		fmt.Fprintln(ctx.Err, "Run 'help' for usage.")
		ctx.Exit(1)
	}
}

// CommandContext provides context for command execution.
type CommandContext struct {
	Ctx          context.Context
	Session      ssh.Session // nil in local mode
	User         *access.UserInfo
	SessionInfo  *server.Session
	Registry     *database.Registry
	HistoryStore *history.Store
	Args         []string
	Out          io.Writer
	Err          io.Writer

	controller *browse.Controller
	sessionID  string
	exitCode   int
}

// Exit sets the exit code (used instead of calling Session.Exit directly).
func (c *CommandContext) Exit(code int) {
	c.exitCode = code
}

// Fail prints an error and sets exit code 1.
func (c *CommandContext) Fail(format string, args ...any) {
	fmt.Fprintf(c.Err, format+"\n", args...)
	c.Exit(1)
}

// GetSessionID returns the session ID or empty string.
func (c *CommandContext) GetSessionID() string {
	return c.sessionID
}

// RequireArg ensures a positional argument is provided.
func (c *CommandContext) RequireArg(index int, name string) (string, bool) {
	args := c.GetPositionalArgs()
	if index >= len(args) {
		c.Fail("Missing required argument: %s", name)
		return "", false
	}
	return args[index], true
}

// GetFlag returns a flag value from args (e.g., --format=json).
func (c *CommandContext) GetFlag(name string) string {
	prefix := "--" + name + "="
	shortPrefix := "-" + name + "="
	for _, arg := range c.Args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
		if strings.HasPrefix(arg, shortPrefix) {
			return strings.TrimPrefix(arg, shortPrefix)
		}
	}
	return ""
}

// GetIntFlag returns a positive integer flag or def when absent. Invalid
// values fail the command.
func (c *CommandContext) GetIntFlag(name string, def int) (int, bool) {
	v := c.GetFlag(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		c.Fail("Invalid --%s: %q", name, v)
		return 0, false
	}
	return n, true
}

// HasFlag checks if a boolean flag is present.
func (c *CommandContext) HasFlag(name string) bool {
	flag := "--" + name
	shortFlag := "-" + name
	for _, arg := range c.Args {
		if arg == flag || arg == shortFlag {
			return true
		}
	}
	return false
}

// GetPositionalArgs returns args that are not flags.
func (c *CommandContext) GetPositionalArgs() []string {
	var result []string
	for _, arg := range c.Args {
		if !strings.HasPrefix(arg, "-") {
			result = append(result, arg)
		}
	}
	return result
}

// RequireHost returns a visible host by id.
func (c *CommandContext) RequireHost(id string) (*database.HostSession, bool) {
	hs, ok := c.Registry.Get(id)
	if !ok {
		c.Fail("Host not found: %s", id)
		return nil, false
	}
	return hs, true
}

// RequireAdmin checks if user has admin access.
func (c *CommandContext) RequireAdmin() bool {
	if c.isAdmin() {
		return true
	}
	c.Fail("Access denied: admin access required")
	return false
}

func (c *CommandContext) isAdmin() bool {
	if c.SessionInfo != nil {
		return c.SessionInfo.IsAdmin()
	}
	return c.User != nil && c.User.IsAdmin
}
