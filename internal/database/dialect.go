package database

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/taosdata/driver-go/v3/taosRestful"
	_ "github.com/taosdata/driver-go/v3/taosWS"
	_ "modernc.org/sqlite"

	"github.com/johan-st/tsbrowse/internal/config"
)

// Dialect captures what differs between the supported database engines.
type Dialect interface {
	// Name is the config driver value, e.g. "tdengine".
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// DSN builds the data source name. addr is "host:port" (or a file path
	// for sqlite) and already accounts for any tunnel.
	DSN(host config.Host, addr string) string
	// CatalogQuery lists the browsable tables; the first column of each row
	// is the table name.
	CatalogQuery(host config.Host) string
	QuoteIdent(name string) string
	// ValidIdent reports whether a catalog name can be quoted safely.
	ValidIdent(name string) bool
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// Like returns a LIKE predicate for an already escaped pattern and the
	// arguments it binds. n is the position of its first argument.
	Like(column, pattern string, n int) (string, []any)
}

// DialectFor returns the dialect for a config driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverTDengine, "":
		return tdengine{rest: false}, nil
	case config.DriverTDengineREST:
		return tdengine{rest: true}, nil
	case config.DriverPostgres:
		return postgres{}, nil
	case config.DriverSQLite:
		return sqlite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// tdengine talks to taosAdapter over websocket or REST.
type tdengine struct {
	rest bool
}

func (d tdengine) Name() string {
	if d.rest {
		return config.DriverTDengineREST
	}
	return config.DriverTDengine
}

func (d tdengine) DriverName() string {
	if d.rest {
		return "taosRestful"
	}
	return "taosWS"
}

func (d tdengine) DSN(host config.Host, addr string) string {
	proto := "ws"
	if d.rest {
		proto = "http"
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s", host.User, host.Password, proto, addr, host.Database)
}

func (d tdengine) CatalogQuery(host config.Host) string {
	if host.Catalog == "tables" {
		return "SHOW TABLES"
	}
	return "SHOW STABLES"
}

// QuoteIdent wraps name in backticks. TDengine has no escape for a backtick
// inside a quoted identifier, so names containing one never leave the
// catalog (see ValidIdent).
func (d tdengine) QuoteIdent(name string) string {
	return "`" + name + "`"
}

func (d tdengine) ValidIdent(name string) bool {
	return name != "" && !strings.ContainsRune(name, '`')
}

func (d tdengine) Placeholder(int) string {
	return "?"
}

// tdLiteral escapes a string for a single-quoted TDengine literal.
var tdLiteral = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Like inlines the pattern as a quoted literal. The taosWS and taosRestful
// drivers interpolate arguments into the SQL text without quoting, so a
// bound string would reach the server as raw SQL.
func (d tdengine) Like(column, pattern string, _ int) (string, []any) {
	return d.QuoteIdent(column) + " LIKE '" + tdLiteral.Replace(pattern) + "'", nil
}

// postgres covers PostgreSQL and TimescaleDB through pgx.
type postgres struct{}

func (postgres) Name() string { return config.DriverPostgres }
func (postgres) DriverName() string { return "pgx" }

func (postgres) DSN(host config.Host, addr string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   addr,
		Path:   "/" + host.Database,
	}
	if host.User != "" {
		u.User = url.UserPassword(host.User, host.Password)
	}
	u.RawQuery = url.Values{"application_name": {"tsbrowse"}}.Encode()
	return u.String()
}

func (postgres) CatalogQuery(config.Host) string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()"
}

func (postgres) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (postgres) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (postgres) ValidIdent(name string) bool { return name != "" }

func (p postgres) Like(column, pattern string, n int) (string, []any) {
	return p.QuoteIdent(column) + " LIKE " + p.Placeholder(n), []any{pattern}
}

// sqlite opens local database files read-only.
type sqlite struct{}

func (sqlite) Name() string { return config.DriverSQLite }
func (sqlite) DriverName() string { return "sqlite" }

func (sqlite) DSN(_ config.Host, path string) string {
	return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
}

func (sqlite) CatalogQuery(config.Host) string {
	return "SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'"
}

func (sqlite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqlite) Placeholder(int) string {
	return "?"
}

func (sqlite) ValidIdent(name string) bool { return name != "" }

func (s sqlite) Like(column, pattern string, n int) (string, []any) {
	return s.QuoteIdent(column) + " LIKE " + s.Placeholder(n) + ` ESCAPE '\'`, []any{pattern}
}
