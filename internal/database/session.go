// Package database manages one session per configured host and builds the
// paged, filtered queries the browser issues against them.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/tunnel"
)

// TunnelOpener opens a port-forward for a host.
type TunnelOpener func(ctx context.Context, cfg tunnel.Config) (tunnel.Tunnel, error)

// Option configures a HostSession.
type Option func(*HostSession)

// WithTunnelOpener replaces the default SSH forwarder.
func WithTunnelOpener(open TunnelOpener) Option {
	return func(s *HostSession) {
		s.openTunnel = open
	}
}

// WithLogger sets the logger used for connection events.
func WithLogger(l *log.Logger) Option {
	return func(s *HostSession) {
		s.logger = l
	}
}

// HostSession is the live state for one configured host.
type HostSession struct {
	host    config.Host
	dialect Dialect

	db      *sql.DB
	tunnel  tunnel.Tunnel
	tables  []string
	lastErr error

	openTunnel TunnelOpener
	logger     *log.Logger
	mu         sync.RWMutex
}

// NewSession creates an unconnected session for host.
func NewSession(host config.Host, opts ...Option) (*HostSession, error) {
	d, err := DialectFor(host.Driver)
	if err != nil {
		return nil, &ConnectError{Host: host.ID(), Op: "open", Err: err}
	}

	s := &HostSession{
		host:       host,
		dialect:    d,
		openTunnel: tunnel.Open,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("host", host.ID())
	return s, nil
}

// Connect creates a session and connects it. On failure the session is
// discarded and a *ConnectError is returned.
func Connect(ctx context.Context, host config.Host, opts ...Option) (*HostSession, error) {
	s, err := NewSession(host, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect opens the tunnel (if configured), the database handle and loads
// the catalog. Anything acquired is released again on failure.
func (s *HostSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	err := s.connectLocked(ctx)
	s.lastErr = err
	if err != nil {
		s.releaseLocked()
		s.logger.Warn("connect failed", "err", err)
		return err
	}

	s.logger.Info("connected", "tables", len(s.tables))
	return nil
}

func (s *HostSession) connectLocked(ctx context.Context) error {
	id := s.host.ID()
	addr := net.JoinHostPort(s.host.Address, strconv.Itoa(s.host.Port))
	if s.host.Driver == config.DriverSQLite {
		addr = s.host.Address
	}

	if s.host.Tunneled() {
		t, err := s.openTunnel(ctx, tunnel.Config{
			SSHHost:    s.host.Address,
			SSHPort:    s.host.SSH.Port,
			User:       s.host.SSH.User,
			Password:   s.host.SSH.Password,
			KnownHosts: s.host.SSH.KnownHosts,
			LocalPort:  s.host.SSH.LocalPort,
			RemoteHost: "127.0.0.1",
			RemotePort: s.host.Port,
		})
		if err != nil {
			return &ConnectError{Host: id, Op: "tunnel", Err: err}
		}
		s.tunnel = t
		addr = t.LocalAddr()
	}

	db, err := sql.Open(s.dialect.DriverName(), s.dialect.DSN(s.host, addr))
	if err != nil {
		return &ConnectError{Host: id, Op: "open", Err: err}
	}
	s.db = db

	// One controller issues queries sequentially; a small pool covers the
	// CLI and SSH clients sharing the session.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return &ConnectError{Host: id, Op: "ping", Err: err}
	}

	tables, err := s.loadCatalog(ctx)
	if err != nil {
		return &ConnectError{Host: id, Op: "catalog", Err: err}
	}
	s.tables = tables
	return nil
}

// Reconnect drops any existing handle and connects again.
func (s *HostSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()
	return s.Connect(ctx)
}

// Close releases the handle and terminates the tunnel.
func (s *HostSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *HostSession) releaseLocked() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	if s.tunnel != nil {
		if terr := s.tunnel.Close(); err == nil {
			err = terr
		}
		s.tunnel = nil
	}
	s.tables = nil
	return err
}

// ID returns the host id.
func (s *HostSession) ID() string {
	return s.host.ID()
}

// Host returns the descriptor the session was created from.
func (s *HostSession) Host() config.Host {
	return s.host
}

// Dialect returns the session's SQL dialect.
func (s *HostSession) Dialect() Dialect {
	return s.dialect
}

// Connected reports whether the session has a live handle.
func (s *HostSession) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Err returns the error from the last connect attempt, if any.
func (s *HostSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Tables returns a copy of the cached, sorted catalog.
func (s *HostSession) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tables...)
}

// HasTable reports whether name is in the catalog.
func (s *HostSession) HasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.SearchStrings(s.tables, name)
	return i < len(s.tables) && s.tables[i] == name
}

// ListTables re-reads the catalog and refreshes the cache.
func (s *HostSession) ListTables(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrNotConnected
	}
	tables, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	s.tables = tables
	return append([]string(nil), tables...), nil
}

// loadCatalog runs the catalog query, keeps the first column of each row,
// applies the host's table patterns and sorts.
func (s *HostSession) loadCatalog(ctx context.Context) ([]string, error) {
	query := s.dialect.CatalogQuery(s.host)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Host: s.host.ID(), SQL: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Host: s.host.ID(), SQL: query, Err: err}
	}

	var tables []string
	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, &QueryError{Host: s.host.ID(), SQL: query, Err: err}
		}
		name := FormatValue(values[0], nil, "")
		if !s.dialect.ValidIdent(name) {
			s.logger.Warn("skipping table with unquotable name", "host", s.host.ID(), "table", name)
			continue
		}
		if s.allowed(name) {
			tables = append(tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Host: s.host.ID(), SQL: query, Err: err}
	}

	sort.Strings(tables)
	return tables, nil
}

func (s *HostSession) allowed(table string) bool {
	if len(s.host.Tables) == 0 {
		return true
	}
	for _, pattern := range s.host.Tables {
		if ok, _ := doublestar.Match(pattern, table); ok {
			return true
		}
	}
	return false
}

// PageRequest selects one page of a table.
type PageRequest struct {
	Table  string
	Page   int
	Filter string
	QueryOptions
}

// Page is the result of a Fetch.
type Page struct {
	Headers []string
	Rows    [][]string

	Total      int64
	TotalKnown bool
	TotalPages int

	// SQL is the page statement that produced Rows.
	SQL     string
	Elapsed time.Duration
}

// Fetch runs the count and page statements for req, in that order.
func (s *HostSession) Fetch(ctx context.Context, req PageRequest) (*Page, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	if db == nil {
		return nil, ErrNotConnected
	}
	if !s.HasTable(req.Table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, req.Table)
	}

	start := time.Now()
	opts := req.QueryOptions.withDefaults()
	b := NewBuilder(s.dialect, opts)

	page := &Page{}

	count := b.Count(req.Table, req.Filter)
	total, known, err := s.count(ctx, db, count)
	if err != nil {
		return nil, err
	}
	page.Total, page.TotalKnown = total, known
	if known {
		page.TotalPages = PageCount(total, b.PageSize())
	}

	stmt := b.Page(req.Table, req.Page, req.Filter)
	page.SQL = stmt.SQL

	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
	}
	page.Headers = cols
	page.Rows = make([][]string, 0, b.PageSize())

	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = FormatValue(v, opts.Location, opts.TimeLayout)
		}
		page.Rows = append(page.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
	}

	page.Elapsed = time.Since(start)
	return page, nil
}

// Count returns the filtered row count of a table.
func (s *HostSession) Count(ctx context.Context, table, filter string, opts QueryOptions) (int64, bool, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	if db == nil {
		return 0, false, ErrNotConnected
	}
	if !s.HasTable(table) {
		return 0, false, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return s.count(ctx, db, NewBuilder(s.dialect, opts).Count(table, filter))
}

// count reads the first cell of the first row. A missing row or a non-integer
// cell yields known=false rather than an error.
func (s *HostSession) count(ctx context.Context, db *sql.DB, stmt Statement) (int64, bool, error) {
	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, false, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, false, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, false, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
		}
		s.logger.Debug("count returned no rows", "sql", stmt.SQL)
		return 0, false, nil
	}

	values, err := scanRow(rows, len(cols))
	if err != nil {
		return 0, false, &QueryError{Host: s.host.ID(), SQL: stmt.SQL, Err: err}
	}
	if len(values) == 0 {
		return 0, false, nil
	}

	n, ok := countValue(values[0])
	if !ok {
		s.logger.Debug("count returned a non-integer", "value", values[0])
	}
	return n, ok, nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	return values, nil
}
