// Package tui is the interactive terminal front end. It turns keys and mouse
// events into controller intents and renders the resulting snapshots.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/history"
)

// Focus represents which pane is focused
type Focus int

const (
	FocusHosts Focus = iota
	FocusTables
	FocusData
)

// resizeStep is how far one key press moves a column edge.
const resizeStep = 2

// listItem implements list.Item for bubbles/list
type listItem struct {
	title string
	desc  string
}

func (i listItem) Title() string       { return i.title }
func (i listItem) Description() string { return i.desc }
func (i listItem) FilterValue() string { return i.title }

// Options configures an App.
type Options struct {
	User *access.UserInfo
	// Levels maps host ids to the user's access level. Nil grants admin on
	// every host, as in local mode.
	Levels    map[string]access.Level
	History   *history.Store
	SessionID string
	// Clipboard enables copying rows to the local clipboard.
	Clipboard bool
}

type dragState struct {
	active bool
	index  int
	startX int
}

// App is the main TUI application model.
type App struct {
	ctx  context.Context
	ctrl *browse.Controller
	opts Options

	width, height int
	focus         Focus

	snap   browse.Snapshot
	err    error
	notice string

	hostList  list.Model
	tableList list.Model

	cursorRow int
	rowOffset int
	cursorCol int

	filtering   bool
	filterInput textinput.Model

	finder finder
	drag   dragState

	help     help.Model
	showHelp bool
	keys     KeyMap
}

func newList(title string, width, height int) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetHeight(1)
	delegate.SetSpacing(0)
	l := list.New([]list.Item{}, delegate, width, height)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = paneHeaderStyle
	return l
}

// NewApp creates a new TUI application over ctrl.
func NewApp(ctx context.Context, ctrl *browse.Controller, opts Options, width, height int) *App {
	fi := textinput.New()
	fi.Prompt = "filter> "
	fi.PromptStyle = filterPromptStyle
	fi.CharLimit = 256

	a := &App{
		ctx:         ctx,
		ctrl:        ctrl,
		opts:        opts,
		width:       width,
		height:      height,
		focus:       FocusData,
		hostList:    newList("Hosts", sideWidth(width), height/2),
		tableList:   newList("Tables", sideWidth(width), height/2),
		filterInput: fi,
		finder:      newFinder(),
		help:        help.New(),
		keys:        DefaultKeyMap(),
		snap:        ctrl.Snapshot(),
	}
	a.updateSizes()
	a.syncLists()
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Sequence(a.dispatch(browse.SetWidth{Width: dataWidth(a.width)}), a.start)
}

func (a *App) start() tea.Msg {
	snap, err := a.ctrl.Start(a.ctx)
	return SnapshotMsg{Snapshot: snap, Error: err}
}

// dispatch runs an intent off the UI goroutine. The controller serializes
// concurrent intents.
func (a *App) dispatch(in browse.Intent) tea.Cmd {
	ctx, ctrl := a.ctx, a.ctrl
	return func() tea.Msg {
		snap, err := ctrl.Dispatch(ctx, in)
		return SnapshotMsg{Snapshot: snap, Intent: in, Error: err}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.MouseMsg:
		return a, a.handleMouse(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, a.dispatch(browse.SetWidth{Width: dataWidth(a.width)})

	case SnapshotMsg:
		a.applySnapshot(msg)
		return a, nil

	case ReconnectedMsg:
		if msg.Error != nil {
			a.err = msg.Error
		} else {
			a.err = nil
			a.notice = "reconnected " + msg.Host
		}
		a.syncLists()
		return a, nil

	case CopiedMsg:
		if msg.Error != nil {
			a.err = msg.Error
		} else {
			a.notice = "row copied"
		}
		return a, nil
	}

	return a, nil
}

func (a *App) applySnapshot(msg SnapshotMsg) {
	prev := a.snap.Selection
	a.snap = msg.Snapshot
	if msg.Error != nil {
		a.err = msg.Error
		log.Debug("intent failed", "intent", fmt.Sprintf("%T", msg.Intent), "err", msg.Error)
	} else if _, ok := msg.Intent.(browse.SetWidth); !ok {
		a.err = nil
		a.notice = ""
	}

	sel := a.snap.Selection
	if sel.Host != prev.Host || sel.Table != prev.Table || sel.Page != prev.Page || sel.Filter != prev.Filter {
		a.cursorRow = 0
		a.rowOffset = 0
	}
	a.cursorRow = min(a.cursorRow, max(len(a.snap.View.Rows)-1, 0))
	a.cursorCol = min(a.cursorCol, max(len(a.snap.View.Headers)-1, 0))
	a.syncLists()
}

// syncLists refreshes the host and table lists from the registry.
func (a *App) syncLists() {
	reg := a.ctrl.Registry()
	sel := a.snap.Selection

	var hosts []list.Item
	hostIdx := 0
	for i, hs := range reg.Sessions() {
		status := upStyle.Render("●")
		if !hs.Connected() {
			status = downStyle.Render("○")
		}
		hosts = append(hosts, listItem{title: status + " " + hs.ID(), desc: hs.ID()})
		if hs.ID() == sel.Host {
			hostIdx = i
		}
	}
	a.hostList.SetItems(hosts)
	if a.focus != FocusHosts {
		a.hostList.Select(hostIdx)
	}

	var tables []list.Item
	tableIdx := 0
	if hs, ok := reg.Get(sel.Host); ok {
		for i, t := range hs.Tables() {
			tables = append(tables, listItem{title: t, desc: t})
			if t == sel.Table {
				tableIdx = i
			}
		}
	}
	a.tableList.SetItems(tables)
	if a.focus != FocusTables {
		a.tableList.Select(tableIdx)
	}
}

func (a *App) updateSizes() {
	contentHeight := a.height - 2 // filter/help (1) + status (1)
	side := sideWidth(a.width) - paneChrome
	hostHeight := max(contentHeight/3, 3)
	a.hostList.SetSize(side, hostHeight-2)
	a.tableList.SetSize(side, contentHeight-hostHeight-2)
	a.filterInput.Width = a.width - 12
	a.help.Width = a.width
}

// visibleRows is the number of data rows that fit in the data pane.
func (a *App) visibleRows() int {
	// borders (2) + title (1) + header (1)
	return max(a.height-2-4, 1)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.filtering {
		return a.handleFilterInput(msg)
	}
	if a.finder.active {
		return a.handleFinderInput(msg)
	}
	if a.showHelp {
		if key.Matches(msg, a.keys.Back) || key.Matches(msg, a.keys.Help) || key.Matches(msg, a.keys.Quit) {
			a.showHelp = false
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.showHelp = true
		return a, nil

	case key.Matches(msg, a.keys.Filter):
		a.filtering = true
		a.filterInput.SetValue(a.snap.Selection.Filter)
		a.filterInput.CursorEnd()
		return a, a.filterInput.Focus()

	case key.Matches(msg, a.keys.Find):
		if hs, ok := a.hostSession(); ok {
			a.finder.open(hs.Tables())
		}
		return a, textinput.Blink

	case key.Matches(msg, a.keys.NextPage):
		return a, a.dispatch(browse.NextPage{})

	case key.Matches(msg, a.keys.PrevPage):
		return a, a.dispatch(browse.PrevPage{})

	case key.Matches(msg, a.keys.Refresh):
		return a, a.dispatch(browse.Refresh{})

	case key.Matches(msg, a.keys.NextPane):
		a.focus = (a.focus + 1) % 3
		return a, nil

	case key.Matches(msg, a.keys.PrevPane):
		a.focus = (a.focus + 2) % 3
		return a, nil
	}

	switch a.focus {
	case FocusHosts:
		return a.handleHostKey(msg)
	case FocusTables:
		return a.handleTableKey(msg)
	default:
		return a.handleDataKey(msg)
	}
}

func (a *App) handleHostKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Right):
		a.focus = FocusTables
		return a, nil
	case key.Matches(msg, a.keys.Select):
		if id, ok := a.selectedHost(); ok {
			a.focus = FocusTables
			return a, a.dispatch(browse.SwitchHost{ID: id})
		}
		return a, nil
	case key.Matches(msg, a.keys.Reconnect):
		if id, ok := a.selectedHost(); ok {
			return a, a.reconnect(id)
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.hostList, cmd = a.hostList.Update(msg)
	return a, cmd
}

func (a *App) handleTableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Left):
		a.focus = FocusHosts
		return a, nil
	case key.Matches(msg, a.keys.Right):
		a.focus = FocusData
		return a, nil
	case key.Matches(msg, a.keys.Select):
		if item, ok := a.tableList.SelectedItem().(listItem); ok {
			a.focus = FocusData
			return a, a.dispatch(browse.ChangeTable{Name: item.desc})
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.tableList, cmd = a.tableList.Update(msg)
	return a, cmd
}

func (a *App) handleDataKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := len(a.snap.View.Rows)

	switch {
	case key.Matches(msg, a.keys.Up):
		if a.cursorRow > 0 {
			a.cursorRow--
		}
	case key.Matches(msg, a.keys.Down):
		if a.cursorRow < rows-1 {
			a.cursorRow++
		}
	case key.Matches(msg, a.keys.Left):
		if a.cursorCol > 0 {
			a.cursorCol--
		} else {
			a.focus = FocusTables
		}
	case key.Matches(msg, a.keys.Right):
		if a.cursorCol < len(a.snap.View.Headers)-1 {
			a.cursorCol++
		}
	case key.Matches(msg, a.keys.Narrow):
		return a, a.nudge(-resizeStep)
	case key.Matches(msg, a.keys.Widen):
		return a, a.nudge(resizeStep)
	case key.Matches(msg, a.keys.Copy):
		return a, a.copyRow()
	}

	// Keep the cursor on screen.
	visible := a.visibleRows()
	if a.cursorRow < a.rowOffset {
		a.rowOffset = a.cursorRow
	} else if a.cursorRow >= a.rowOffset+visible {
		a.rowOffset = a.cursorRow - visible + 1
	}
	return a, nil
}

// nudge resizes the selected column as one complete drag.
func (a *App) nudge(delta int) tea.Cmd {
	if len(a.snap.View.Headers) == 0 {
		return nil
	}
	return tea.Sequence(
		a.dispatch(browse.Resizing{Index: a.cursorCol, Offset: delta}),
		a.dispatch(browse.ResizeOver{}),
	)
}

func (a *App) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Back):
		a.filtering = false
		a.filterInput.Blur()
		return a, nil
	case key.Matches(msg, a.keys.Select):
		a.filtering = false
		a.filterInput.Blur()
		return a, a.dispatch(browse.Filter{Text: a.filterInput.Value()})
	}

	var cmd tea.Cmd
	a.filterInput, cmd = a.filterInput.Update(msg)
	return a, cmd
}

func (a *App) handleFinderInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.finder.close()
		return a, nil
	case "enter":
		name, ok := a.finder.selected()
		a.finder.close()
		if !ok {
			return a, nil
		}
		a.focus = FocusData
		return a, a.dispatch(browse.ChangeTable{Name: name})
	case "up", "ctrl+p":
		a.finder.move(-1)
		return a, nil
	case "down", "ctrl+n", "tab":
		a.finder.move(1)
		return a, nil
	}

	var cmd tea.Cmd
	before := a.finder.input.Value()
	a.finder.input, cmd = a.finder.input.Update(msg)
	if a.finder.input.Value() != before {
		a.finder.search()
	}
	return a, cmd
}

// handleMouse turns header drags into Resizing intents and the release into
// ResizeOver. Clicking a cell moves the cursor there.
func (a *App) handleMouse(msg tea.MouseMsg) tea.Cmd {
	widths := a.snap.View.Widths
	x := msg.X - dataOriginX(a.width)

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || x < 0 {
			return nil
		}
		if msg.Y == headerY {
			if i := boundaryAt(widths, x); i >= 0 {
				a.drag = dragState{active: true, index: i, startX: msg.X}
				return nil
			}
		}
		if col := columnAt(widths, x); col >= 0 {
			a.focus = FocusData
			a.cursorCol = col
			if row := a.rowOffset + msg.Y - headerY - 1; msg.Y > headerY && row < len(a.snap.View.Rows) {
				a.cursorRow = row
			}
		}

	case tea.MouseActionMotion:
		if a.drag.active {
			return a.dispatch(browse.Resizing{Index: a.drag.index, Offset: msg.X - a.drag.startX})
		}

	case tea.MouseActionRelease:
		if a.drag.active {
			a.drag.active = false
			return tea.Sequence(
				a.dispatch(browse.Resizing{Index: a.drag.index, Offset: msg.X - a.drag.startX}),
				a.dispatch(browse.ResizeOver{}),
			)
		}
	}
	return nil
}

func (a *App) selectedHost() (string, bool) {
	item, ok := a.hostList.SelectedItem().(listItem)
	if !ok {
		return "", false
	}
	return item.desc, true
}

func (a *App) level(hostID string) access.Level {
	if a.opts.Levels == nil {
		return access.Admin
	}
	return a.opts.Levels[hostID]
}

func (a *App) reconnect(id string) tea.Cmd {
	if !a.level(id).CanAdmin() {
		a.err = errors.New("reconnect requires admin access")
		return nil
	}
	hs, ok := a.ctrl.Registry().Get(id)
	if !ok {
		return nil
	}
	ctx, store, sessionID := a.ctx, a.opts.History, a.opts.SessionID
	a.notice = "reconnecting " + id + "…"
	return func() tea.Msg {
		err := hs.Reconnect(ctx)
		if store != nil {
			details := map[string]any{"ok": err == nil}
			if err != nil {
				details["error"] = err.Error()
			}
			if aerr := store.RecordAudit(ctx, sessionID, history.ActionReconnect, id, details); aerr != nil {
				log.Warn("failed to record audit", "err", aerr)
			}
		}
		return ReconnectedMsg{Host: id, Error: err}
	}
}

// copyRow puts the selected row on the clipboard as tab-separated text.
func (a *App) copyRow() tea.Cmd {
	rows := a.snap.View.Rows
	if a.cursorRow >= len(rows) {
		return nil
	}
	if !a.opts.Clipboard || clipboard.Unsupported {
		a.err = errors.New("clipboard is not available in this session")
		return nil
	}

	text := strings.Join(rows[a.cursorRow], "\t")
	ctx, store, sessionID, sel := a.ctx, a.opts.History, a.opts.SessionID, a.snap.Selection
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return CopiedMsg{Error: fmt.Errorf("copy row: %w", err)}
		}
		if store != nil {
			_ = store.RecordAudit(ctx, sessionID, history.ActionCopyRow, sel.Host, map[string]any{
				"table": sel.Table,
				"page":  sel.Page,
			})
		}
		return CopiedMsg{}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.width < 40 || a.height < 10 {
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
			errorStyle.Render("Terminal too small\nMin: 40x10"))
	}

	if a.showHelp {
		return a.renderHelp()
	}

	contentHeight := a.height - 2
	side := a.renderSide(sideWidth(a.width), contentHeight)
	data := a.renderDataPane(a.width-sideWidth(a.width), contentHeight)

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, side, data))
	b.WriteString("\n")
	b.WriteString(a.renderInputBar())
	b.WriteString("\n")
	b.WriteString(a.renderStatusBar())
	return b.String()
}

func (a *App) paneStyle(focused bool) lipgloss.Style {
	if focused {
		return focusedPaneStyle
	}
	return paneStyle
}

func (a *App) renderSide(width, height int) string {
	hostHeight := max(height/3, 3)
	hosts := a.paneStyle(a.focus == FocusHosts).
		Width(width - 2).
		Height(hostHeight - 2).
		Render(a.hostList.View())
	tables := a.paneStyle(a.focus == FocusTables).
		Width(width - 2).
		Height(height - hostHeight - 2).
		Render(a.tableList.View())
	return lipgloss.JoinVertical(lipgloss.Left, hosts, tables)
}

func (a *App) renderDataPane(width, height int) string {
	st := a.snap.View
	sel := a.snap.Selection
	inner := width - paneChrome

	if a.finder.active {
		return a.paneStyle(true).Width(width - 2).Height(height - 2).
			Render(a.finder.view(inner - 2))
	}

	var b strings.Builder
	title := paneHeaderStyle.Render(sel.Table)
	if sel.Table == "" {
		title = dimItemStyle.Render("no table")
	}
	meta := fmt.Sprintf("page %s", st.PageLabel(max(sel.Page, 1)))
	if st.TotalKnown {
		meta += fmt.Sprintf(" · %s rows", humanize.Comma(st.Total))
	}
	if sel.Filter != "" {
		meta += fmt.Sprintf(" · filter %q", sel.Filter)
	}
	b.WriteString(title + " " + dimItemStyle.Render(meta))
	b.WriteString("\n")

	if st.Empty() {
		b.WriteString(dimItemStyle.Render("nothing loaded"))
	} else {
		b.WriteString(a.renderHeader(st.Headers, st.Widths))
		b.WriteString("\n")

		end := min(a.rowOffset+a.visibleRows(), len(st.Rows))
		for i := a.rowOffset; i < end; i++ {
			line := renderRow(st.Rows[i], st.Widths)
			if i == a.cursorRow && a.focus == FocusData {
				line = tableSelectedRowStyle.Render(line)
			} else {
				line = tableCellStyle.Render(line)
			}
			b.WriteString(line)
			if i < end-1 {
				b.WriteString("\n")
			}
		}
		if len(st.Rows) == 0 {
			b.WriteString(dimItemStyle.Render("no rows on this page"))
		}
	}

	return a.paneStyle(a.focus == FocusData).
		Width(width - 2).
		Height(height - 2).
		MaxWidth(width).
		Render(b.String())
}

func (a *App) renderHeader(headers []string, widths []int) string {
	var b strings.Builder
	for i, w := range widths {
		h := ""
		if i < len(headers) {
			h = headers[i]
		}
		cell := fitCell(h, max(w, 1))
		if i == a.cursorCol && a.focus == FocusData {
			b.WriteString(tableActiveHeaderStyle.Render(cell))
		} else {
			b.WriteString(tableHeaderStyle.Render(cell))
		}
	}
	return b.String()
}

func (a *App) renderInputBar() string {
	if a.filtering {
		return a.filterInput.View()
	}
	return a.help.ShortHelpView(a.keys.ShortHelp())
}

func (a *App) renderStatusBar() string {
	sel := a.snap.Selection

	leftParts := []string{titleStyle.Render("tsbrowse"), dimItemStyle.Render(a.opts.User.DisplayName())}
	switch {
	case a.err != nil:
		leftParts = append(leftParts, errorStyle.Render(a.err.Error()))
	case a.notice != "":
		leftParts = append(leftParts, successStyle.Render(a.notice))
	}

	var rightParts []string
	if sel.Host != "" {
		rightParts = append(rightParts, statusKeyStyle.Render(sel.Host))
	}
	if sel.Table != "" {
		rightParts = append(rightParts, statusValueStyle.Render("> "+sel.Table))
	}
	if e := a.snap.View.Elapsed; e > 0 {
		rightParts = append(rightParts, dimItemStyle.Render(fmt.Sprintf("| %s", e.Round(time.Millisecond))))
	}
	if sel.Host != "" {
		if a.level(sel.Host).CanAdmin() {
			rightParts = append(rightParts, adminBadge.Render("ADMIN"))
		} else {
			rightParts = append(rightParts, readOnlyBadge.Render("RO"))
		}
	}

	leftContent := strings.Join(leftParts, " ")
	rightContent := strings.Join(rightParts, " ")

	padding := a.width - lipgloss.Width(leftContent) - lipgloss.Width(rightContent) - 2
	if padding < 1 {
		padding = 1
	}
	return statusBarStyle.Width(a.width).MaxHeight(1).Render(leftContent + strings.Repeat(" ", padding) + rightContent)
}

func (a *App) renderHelp() string {
	a.help.ShowAll = true
	defer func() { a.help.ShowAll = false }()

	body := titleStyle.Render("tsbrowse keys") + "\n\n" +
		a.help.View(a.keys) + "\n\n" +
		dimItemStyle.Render("Drag a column edge in the header to resize it. Press ? or esc to close.")
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
		focusedPaneStyle.Render(body))
}

// hostSession returns the session backing the current selection.
func (a *App) hostSession() (*database.HostSession, bool) {
	return a.ctrl.Registry().Get(a.snap.Selection.Host)
}
