package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/johan-st/tsbrowse/internal/config"
)

// DefaultPageSize is the number of rows per page when none is configured.
const DefaultPageSize = 20

// DefaultTimeLayout renders timestamps as "2006-01-02 15:04:05".
const DefaultTimeLayout = time.DateTime

// Statement is a SQL string with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// QueryOptions configures how pages are built and rendered.
type QueryOptions struct {
	PageSize     int
	FilterColumn string
	TimeColumn   string
	TimeLayout   string
	// Location converts timestamps before formatting; nil means time.Local.
	Location *time.Location
}

// DefaultQueryOptions returns the settings used when nothing is configured.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		PageSize:     DefaultPageSize,
		FilterColumn: "robot_id",
		TimeColumn:   "ts",
		TimeLayout:   DefaultTimeLayout,
	}
}

// QueryOptionsFrom converts browse settings from the config file.
func QueryOptionsFrom(b config.BrowseConfig) QueryOptions {
	return QueryOptions{
		PageSize:     b.PageSize,
		FilterColumn: b.FilterColumn,
		TimeColumn:   b.TimeColumn,
		TimeLayout:   b.TimeFormat,
	}.withDefaults()
}

func (o QueryOptions) withDefaults() QueryOptions {
	d := DefaultQueryOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.FilterColumn == "" {
		o.FilterColumn = d.FilterColumn
	}
	if o.TimeColumn == "" {
		o.TimeColumn = d.TimeColumn
	}
	if o.TimeLayout == "" {
		o.TimeLayout = d.TimeLayout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Builder produces the count and page statements for a table.
type Builder struct {
	dialect Dialect
	opts    QueryOptions
}

// NewBuilder creates a builder for the given dialect.
func NewBuilder(d Dialect, opts QueryOptions) *Builder {
	return &Builder{dialect: d, opts: opts.withDefaults()}
}

// PageSize returns the effective page size.
func (b *Builder) PageSize() int {
	return b.opts.PageSize
}

// Count builds the filtered row count statement.
func (b *Builder) Count(table, filter string) Statement {
	where, args := b.where(filter)
	return Statement{
		SQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.dialect.QuoteIdent(table), where),
		Args: args,
	}
}

// Page builds the statement for one page, newest rows first. Pages below 1
// are treated as 1. LIMIT and OFFSET are integers and rendered inline.
func (b *Builder) Page(table string, page int, filter string) Statement {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * b.opts.PageSize

	where, args := b.where(filter)
	sql := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s DESC LIMIT %d OFFSET %d",
		b.dialect.QuoteIdent(table),
		where,
		b.dialect.QuoteIdent(b.opts.TimeColumn),
		b.opts.PageSize,
		offset,
	)
	return Statement{SQL: sql, Args: args}
}

func (b *Builder) where(filter string) (string, []any) {
	if filter == "" {
		return "", nil
	}
	clause, args := b.dialect.Like(b.opts.FilterColumn, "%"+EscapeLike(filter)+"%", 1)
	return " WHERE " + clause, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards so filter text matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// PageCount returns the number of pages needed for total rows, never less
// than 1.
func PageCount(total int64, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}

// FormatValue formats a cell for display.
func FormatValue(v any, loc *time.Location, layout string) string {
	if loc == nil {
		loc = time.Local
	}
	if layout == "" {
		layout = DefaultTimeLayout
	}

	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.In(loc).Format(layout)
	case *time.Time:
		if val == nil {
			return "NULL"
		}
		return val.In(loc).Format(layout)
	case []byte:
		return string(val)
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// countValue converts the first cell of a COUNT(*) row. Only integer kinds
// are accepted.
func countValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	default:
		return 0, false
	}
}
