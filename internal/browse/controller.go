// Package browse implements the query controller: it turns user intents into
// fetches against the active host and publishes the resulting view state.
package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/view"
)

// FetchRecord describes one completed or failed fetch.
type FetchRecord struct {
	SessionID string
	User      string
	Host      string
	Table     string
	Page      int
	Filter    string
	SQL       string
	Rows      int
	Elapsed   time.Duration
	Err       error
}

// Recorder receives every fetch the controller issues.
type Recorder interface {
	RecordFetch(ctx context.Context, rec FetchRecord)
}

// Options configures a Controller.
type Options struct {
	Query database.QueryOptions
	// Width is the initial container width used for column widths.
	Width int
	// Timeout bounds each fetch; zero means none.
	Timeout time.Duration

	Recorder  Recorder
	User      string
	SessionID string
}

// Snapshot is a consistent copy of the selection and view.
type Snapshot struct {
	Selection view.Selection
	View      view.State
}

// Controller serializes intents. Every intent holds the controller lock from
// reading the selection to publishing the new state, so fetches never race
// and a failed fetch leaves the previous state untouched.
type Controller struct {
	registry *database.Registry
	opts     Options

	sel    view.Selection
	state  view.State
	widths *view.ColumnWidths

	mu sync.Mutex
}

// New creates a controller over reg.
func New(reg *database.Registry, opts Options) *Controller {
	return &Controller{
		registry: reg,
		opts:     opts,
		widths:   view.NewColumnWidths(0),
		state:    view.State{ContainerWidth: opts.Width},
		sel:      view.Selection{Host: reg.ActiveID(), Page: 1},
	}
}

// Registry returns the registry the controller browses.
func (c *Controller) Registry() *database.Registry {
	return c.registry
}

// SetQueryOptions replaces the paging and formatting settings. The next
// fetch uses them.
func (c *Controller) SetQueryOptions(q database.QueryOptions, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Query = q
	c.opts.Timeout = timeout
}

// Snapshot returns the current selection and view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	st := c.state
	st.Headers = append([]string(nil), c.state.Headers...)
	st.Rows = append([][]string(nil), c.state.Rows...)
	st.Widths = append([]int(nil), c.state.Widths...)
	st.Committed = c.widths.Committed()
	st.Live = c.widths.Live()
	return Snapshot{Selection: c.sel, View: st}
}

// Start loads the first table of the active host.
func (c *Controller) Start(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.registry.Active()
	if err != nil {
		return c.snapshotLocked(), err
	}
	tables := s.Tables()
	if len(tables) == 0 {
		return c.snapshotLocked(), fmt.Errorf("%w: %s", database.ErrNoTable, s.ID())
	}

	next := view.Selection{Host: s.ID(), Table: tables[0], Page: 1, Filter: c.sel.Filter}
	err = c.apply(ctx, s, next, true)
	return c.snapshotLocked(), err
}

// Dispatch applies one intent and returns the resulting snapshot. On error
// the snapshot is the unchanged previous state.
func (c *Controller) Dispatch(ctx context.Context, intent Intent) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.dispatchLocked(ctx, intent)
	return c.snapshotLocked(), err
}

func (c *Controller) dispatchLocked(ctx context.Context, intent Intent) error {
	switch in := intent.(type) {
	case ChangeTable:
		s, err := c.registry.Active()
		if err != nil {
			return err
		}
		next := view.Selection{Host: s.ID(), Table: in.Name, Page: 1, Filter: c.sel.Filter}
		return c.apply(ctx, s, next, true)

	case Filter:
		s, err := c.current()
		if err != nil {
			return err
		}
		next := c.sel
		next.Filter = in.Text
		next.Page = 1
		return c.apply(ctx, s, next, false)

	case PrevPage:
		s, err := c.current()
		if err != nil {
			return err
		}
		next := c.sel
		next.Page = max(1, c.sel.Page-1)
		return c.apply(ctx, s, next, false)

	case NextPage:
		s, err := c.current()
		if err != nil {
			return err
		}
		next := c.sel
		next.Page = c.sel.Page + 1
		return c.apply(ctx, s, next, false)

	case Refresh:
		s, err := c.current()
		if err != nil {
			return err
		}
		return c.apply(ctx, s, c.sel, false)

	case Resizing:
		if err := c.widths.Drag(in.Index, in.Offset); err != nil {
			return err
		}
		c.state.Widths = c.widths.Widths(c.state.ContainerWidth)
		return nil

	case ResizeOver:
		c.widths.Commit()
		c.state.Widths = c.widths.Widths(c.state.ContainerWidth)
		return nil

	case SetWidth:
		c.state.ContainerWidth = in.Width
		c.opts.Width = in.Width
		c.state.Widths = c.widths.Widths(in.Width)
		return nil

	case SwitchHost:
		return c.load(ctx, view.Selection{Host: in.ID, Page: 1, Filter: c.sel.Filter})

	case Load:
		return c.load(ctx, in.Selection)

	default:
		return fmt.Errorf("unsupported intent %T", intent)
	}
}

// current returns the active session and requires a selected table.
func (c *Controller) current() (*database.HostSession, error) {
	s, err := c.registry.Active()
	if err != nil {
		return nil, err
	}
	if c.sel.Table == "" {
		return nil, database.ErrNoTable
	}
	return s, nil
}

// load fetches target and only then makes its host active. An empty table
// keeps the current one when the host has it, else picks the host's first.
func (c *Controller) load(ctx context.Context, target view.Selection) error {
	id := target.Host
	if id == "" {
		id = c.registry.ActiveID()
	}
	s, ok := c.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", database.ErrHostNotFound, id)
	}
	if !s.Connected() {
		return fmt.Errorf("%w: %s", database.ErrNotConnected, id)
	}

	table := target.Table
	if table == "" {
		table = c.sel.Table
		if !s.HasTable(table) {
			tables := s.Tables()
			if len(tables) == 0 {
				return fmt.Errorf("%w: %s", database.ErrNoTable, id)
			}
			table = tables[0]
		}
	}

	next := view.Selection{
		Host:   id,
		Table:  table,
		Page:   max(1, target.Page),
		Filter: target.Filter,
	}
	reset := id != c.sel.Host || table != c.sel.Table
	if err := c.apply(ctx, s, next, reset); err != nil {
		return err
	}

	if id != c.registry.ActiveID() {
		return c.registry.SwitchActive(id)
	}
	return nil
}

// apply runs the fetch for next and, on success, publishes it. resetWidths
// zeroes the deltas; otherwise they survive unless the column count changed.
func (c *Controller) apply(ctx context.Context, s *database.HostSession, next view.Selection, resetWidths bool) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	page, err := s.Fetch(ctx, database.PageRequest{
		Table:        next.Table,
		Page:         next.Page,
		Filter:       next.Filter,
		QueryOptions: c.opts.Query,
	})
	c.record(ctx, next, page, err)
	if err != nil {
		log.Debug("fetch failed", "host", next.Host, "table", next.Table, "page", next.Page, "err", err)
		return err
	}

	if resetWidths || c.widths.Len() != len(page.Headers) {
		c.widths.Reset(len(page.Headers))
	}

	c.sel = next
	c.state = view.State{
		Headers:        page.Headers,
		Rows:           page.Rows,
		Total:          page.Total,
		TotalKnown:     page.TotalKnown,
		TotalPages:     page.TotalPages,
		Widths:         c.widths.Widths(c.opts.Width),
		ContainerWidth: c.opts.Width,
		Elapsed:        page.Elapsed,
	}
	return nil
}

func (c *Controller) record(ctx context.Context, sel view.Selection, page *database.Page, err error) {
	if c.opts.Recorder == nil {
		return
	}

	rec := FetchRecord{
		SessionID: c.opts.SessionID,
		User:      c.opts.User,
		Host:      sel.Host,
		Table:     sel.Table,
		Page:      sel.Page,
		Filter:    sel.Filter,
		Err:       err,
	}
	if page != nil {
		rec.SQL = page.SQL
		rec.Rows = len(page.Rows)
		rec.Elapsed = page.Elapsed
	}
	var qe *database.QueryError
	if errors.As(err, &qe) {
		rec.SQL = qe.SQL
	}

	// The fetch context may already be expired; recording must not fail
	// because of it.
	c.opts.Recorder.RecordFetch(context.WithoutCancel(ctx), rec)
}
