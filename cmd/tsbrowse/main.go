// tsbrowse browses time-series tables across several database hosts. It runs
// as a local TUI, as one-shot CLI commands, or as an SSH server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/cli"
	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/history"
	"github.com/johan-st/tsbrowse/internal/logging"
	"github.com/johan-st/tsbrowse/internal/server"
	"github.com/johan-st/tsbrowse/internal/tui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type mode int

const (
	modeTUI mode = iota
	modeCLI
	modeServe
)

func main() {
	configPath := flag.String("config", "", "path to config file (.yaml or .toml)")
	dbPath := flag.String("db", "", "browse a single SQLite file without a config")
	serve := flag.Bool("serve", false, "run SSH server mode (requires -config)")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("tsbrowse %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", buildDate)
		return
	}

	m := modeTUI
	switch {
	case *serve:
		m = modeServe
	case flag.NArg() > 0:
		m = modeCLI
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, m, *configPath, *dbPath, flag.Args()); err != nil {
		log.Fatal("tsbrowse failed", "err", err)
	}
}

func printUsage() {
	fmt.Println("tsbrowse - time-series table browser")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tsbrowse -config <file>                   Interactive TUI")
	fmt.Println("  tsbrowse -config <file> <command> [args]  CLI mode (run and exit)")
	fmt.Println("  tsbrowse -config <file> -serve            SSH server mode")
	fmt.Println("  tsbrowse -db <file.db> [command]          Browse one SQLite file")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tsbrowse -config hosts.yaml hosts")
	fmt.Println("  tsbrowse -config hosts.yaml rows plant-a events --filter=r9")
	fmt.Println("  tsbrowse -db demo.db rows demo events --page=2 --format=csv")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// loadConfig reads the config file, or builds one around a single SQLite
// file when only -db is given.
func loadConfig(configPath, dbPath string) (*config.Config, error) {
	switch {
	case configPath != "":
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveSecrets(); err != nil {
			return nil, err
		}
		return cfg, nil

	case dbPath != "":
		cfg := config.DefaultConfig()
		name := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
		cfg.Hosts = []config.Host{{Name: name, Address: dbPath, Driver: config.DriverSQLite}}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid database: %w", err)
		}
		return cfg, nil

	default:
		return nil, errors.New("either -config or -db is required")
	}
}

func run(ctx context.Context, m mode, configPath, dbPath string, args []string) error {
	if m == modeServe && configPath == "" {
		return errors.New("SSH mode requires -config")
	}

	cfg, err := loadConfig(configPath, dbPath)
	if err != nil {
		return err
	}

	logCloser, err := logging.Init(cfg.Logging, cfg.GetDataDir(), m == modeTUI)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	historyStore, err := history.NewStore(cfg.GetDataDir())
	if err != nil {
		log.Warn("history disabled", "err", err)
		historyStore = nil
	} else {
		defer historyStore.Close()
	}

	reg, err := database.ConnectAll(ctx, cfg.Hosts)
	if err != nil {
		if !errors.Is(err, database.ErrNoHosts) {
			return err
		}
		log.Warn("no host connected", "hosts", len(cfg.Hosts))
	}
	defer reg.Close()

	switch m {
	case modeServe:
		return runServer(ctx, cfg, reg, historyStore)
	case modeCLI:
		return runLocal(ctx, cfg, reg, historyStore, func(user *access.UserInfo, sessionID string) error {
			handler := cli.NewHandler(cfg, reg, historyStore, version)
			lctx := cli.NewLocalContext(ctx, user, args, os.Stdout, os.Stderr)
			lctx.SessionID = sessionID
			return handler.HandleLocal(lctx)
		})
	default:
		return runLocal(ctx, cfg, reg, historyStore, func(user *access.UserInfo, sessionID string) error {
			return runTUI(ctx, cfg, reg, historyStore, user, sessionID)
		})
	}
}

// runLocal wraps fn in a history session for the local operator.
func runLocal(ctx context.Context, cfg *config.Config, reg *database.Registry, store *history.Store,
	fn func(user *access.UserInfo, sessionID string) error) error {
	user := &access.UserInfo{Name: "local", IsAdmin: true}
	sessionID := uuid.New().String()

	if store != nil {
		if err := store.CreateSession(ctx, history.NewSession(sessionID, user, "local")); err != nil {
			log.Warn("failed to record session", "err", err)
		}
		defer store.EndSession(context.WithoutCancel(ctx), sessionID)
	}

	return fn(user, sessionID)
}

func runTUI(ctx context.Context, cfg *config.Config, reg *database.Registry, store *history.Store,
	user *access.UserInfo, sessionID string) error {
	width, height := 80, 24
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	opts := browse.Options{
		Query:     database.QueryOptionsFrom(cfg.GetBrowse()),
		Timeout:   cfg.GetQueryTimeout(),
		User:      user.DisplayName(),
		SessionID: sessionID,
	}
	if store != nil {
		opts.Recorder = store
	}
	ctrl := browse.New(reg, opts)

	stopWatch := watchConfig(cfg, func(c *config.Config) {
		ctrl.SetQueryOptions(database.QueryOptionsFrom(c.GetBrowse()), c.GetQueryTimeout())
	})
	defer stopWatch()

	app := tui.NewApp(ctx, ctrl, tui.Options{
		User:      user,
		History:   store,
		SessionID: sessionID,
		Clipboard: true,
	}, width, height)

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func runServer(ctx context.Context, cfg *config.Config, reg *database.Registry, store *history.Store) error {
	srv := server.NewServer(cfg, reg, store)
	srv.SetCLIHandler(cli.NewHandler(cfg, reg, store, version).Handle)
	srv.SetTUIHandler(tui.Handler(store))

	stopWatch := watchConfig(cfg, func(c *config.Config) {
		srv.UpdateResolver(c.BuildResolver())
		srv.ApplyBrowse(c.GetBrowse(), c.GetQueryTimeout())
	})
	defer stopWatch()

	return srv.Run(ctx)
}

// watchConfig reloads the config file on change. Logging settings are always
// applied; onReload handles the rest. The returned func stops watching.
func watchConfig(cfg *config.Config, onReload func(*config.Config)) func() {
	if cfg.Path() == "" {
		return func() {}
	}

	w, err := config.NewWatcher(cfg)
	if err != nil {
		log.Warn("failed to create config watcher", "err", err)
		return func() {}
	}
	w.OnReload(func(c *config.Config) {
		logging.Apply(c.GetLogging())
		if onReload != nil {
			onReload(c)
		}
	})
	if err := w.Start(); err != nil {
		log.Warn("failed to start config watcher", "err", err)
		w.Stop()
		return func() {}
	}
	return w.Stop
}
