package tui

import (
	"context"
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/johan-st/tsbrowse/internal/access"
	"github.com/johan-st/tsbrowse/internal/browse"
	"github.com/johan-st/tsbrowse/internal/config"
	"github.com/johan-st/tsbrowse/internal/database"
	"github.com/johan-st/tsbrowse/internal/testutil"
)

func TestBoundaryAt(t *testing.T) {
	widths := []int{10, 10, 12}

	tests := []struct {
		x    int
		want int
	}{
		{0, -1},
		{7, -1},
		{8, 0},
		{10, 0},
		{11, -1},
		{19, 1},
		{31, -1}, // last column has no edge
	}

	for _, tt := range tests {
		if got := boundaryAt(widths, tt.x); got != tt.want {
			t.Errorf("boundaryAt(%d) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestColumnAt(t *testing.T) {
	widths := []int{4, -3, 5}

	tests := []struct {
		x    int
		want int
	}{
		{-1, -1},
		{0, 0},
		{3, 0},
		{4, 1}, // negative width still occupies one cell
		{5, 2},
		{9, 2},
		{10, -1},
	}

	for _, tt := range tests {
		if got := columnAt(widths, tt.x); got != tt.want {
			t.Errorf("columnAt(%d) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestRenderRow(t *testing.T) {
	tests := []struct {
		name   string
		cells  []string
		widths []int
		want   string
	}{
		{"pads", []string{"a", "b"}, []int{3, 2}, "a  b "},
		{"truncates", []string{"robot_id", "x"}, []int{5, 2}, "rob… x "},
		{"collapsed", []string{"abc", "d"}, []int{0, 3}, " d  "},
		{"missing cells", []string{"a"}, []int{2, 2}, "a   "},
		{"newlines", []string{"a\nb"}, []int{4}, "a b "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderRow(tt.cells, tt.widths); got != tt.want {
				t.Errorf("renderRow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLayoutWidths(t *testing.T) {
	for _, total := range []int{40, 80, 120, 300} {
		side := sideWidth(total)
		if side < minSideWidth || side > maxSideWidth {
			t.Errorf("sideWidth(%d) = %d out of bounds", total, side)
		}
		if got := side + dataWidth(total) + paneChrome; got != total {
			t.Errorf("total %d: side+data+chrome = %d", total, got)
		}
	}
}

func TestFinder(t *testing.T) {
	f := newFinder()
	f.open([]string{"alarms", "events", "events_2023", "meters"})

	if len(f.matches) != 4 {
		t.Fatalf("empty pattern matches = %d, want 4", len(f.matches))
	}
	if got, _ := f.selected(); got != "alarms" {
		t.Errorf("first selection = %q, want alarms", got)
	}

	f.input.SetValue("evt")
	f.search()
	if len(f.matches) != 2 {
		t.Fatalf("matches for evt = %d, want 2", len(f.matches))
	}
	if got, _ := f.selected(); got != "events" {
		t.Errorf("best match = %q, want events", got)
	}

	f.move(-1)
	if got, _ := f.selected(); got != "events_2023" {
		t.Errorf("after wrap = %q, want events_2023", got)
	}

	f.input.SetValue("zzz")
	f.search()
	if _, ok := f.selected(); ok {
		t.Error("selected() ok with no matches")
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	hosts := []config.Host{
		testutil.Host("alpha", testutil.EventsDB(t)),
		testutil.Host("beta", testutil.EventsDB(t)),
	}
	reg, err := database.ConnectAll(context.Background(), hosts)
	if err != nil {
		t.Fatalf("ConnectAll() error: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	ctrl := browse.New(reg, browse.Options{})
	return NewApp(context.Background(), ctrl, Options{User: &access.UserInfo{Name: "tester"}}, 120, 40)
}

// run executes cmd and feeds the resulting messages back into the app,
// flattening sequences and batches.
func run(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	msg := cmd()
	if msg == nil {
		return
	}
	if cmds, ok := subCmds(msg); ok {
		for _, c := range cmds {
			run(t, a, c)
		}
		return
	}
	_, next := a.Update(msg)
	run(t, a, next)
}

// subCmds unpacks tea.BatchMsg and the unexported sequence message, both of
// which are slices of commands.
func subCmds(msg tea.Msg) ([]tea.Cmd, bool) {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Slice || v.Type().Elem() != reflect.TypeOf(tea.Cmd(nil)) {
		return nil, false
	}
	cmds := make([]tea.Cmd, v.Len())
	for i := range cmds {
		cmds[i], _ = v.Index(i).Interface().(tea.Cmd)
	}
	return cmds, true
}

func press(t *testing.T, a *App, keys ...string) {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		_, cmd := a.Update(msg)
		run(t, a, cmd)
	}
}

func TestApp_StartAndPage(t *testing.T) {
	a := newTestApp(t)
	run(t, a, a.Init())

	sel := a.snap.Selection
	if sel.Host != "alpha" || sel.Table != "alarms" || sel.Page != 1 {
		t.Fatalf("after start selection = %+v", sel)
	}
	if got := a.snap.View.ContainerWidth; got != dataWidth(120) {
		t.Errorf("container width = %d, want %d", got, dataWidth(120))
	}

	press(t, a, "f")
	for _, r := range "evn" {
		press(t, a, string(r))
	}
	press(t, a, "enter")
	if a.snap.Selection.Table != "events" {
		t.Fatalf("finder did not switch table: %+v", a.snap.Selection)
	}

	press(t, a, "n", "n")
	if a.snap.Selection.Page != 3 || len(a.snap.View.Rows) != 5 {
		t.Errorf("page 3: page=%d rows=%d", a.snap.Selection.Page, len(a.snap.View.Rows))
	}
	press(t, a, "p")
	if a.snap.Selection.Page != 2 {
		t.Errorf("after prev page = %d, want 2", a.snap.Selection.Page)
	}

	if !strings.Contains(a.View(), "page 2/3") {
		t.Error("view does not show page label")
	}
}

func TestApp_Filter(t *testing.T) {
	a := newTestApp(t)
	run(t, a, a.Init())
	press(t, a, "f", "e", "v", "enter")

	press(t, a, "/")
	for _, r := range "r9" {
		press(t, a, string(r))
	}
	press(t, a, "enter")

	if a.snap.Selection.Filter != "r9" {
		t.Fatalf("filter = %q, want r9", a.snap.Selection.Filter)
	}
	if a.snap.View.Total != 3 || len(a.snap.View.Rows) != 3 {
		t.Errorf("filtered total=%d rows=%d, want 3/3", a.snap.View.Total, len(a.snap.View.Rows))
	}
	if a.filtering {
		t.Error("still in filter mode after enter")
	}
}

func TestApp_KeyboardResize(t *testing.T) {
	a := newTestApp(t)
	run(t, a, a.Init())

	before := append([]int(nil), a.snap.View.Widths...)
	press(t, a, "l", ">")

	after := a.snap.View.Widths
	if after[1] != before[1]+resizeStep {
		t.Errorf("column 1 width = %d, want %d", after[1], before[1]+resizeStep)
	}
	if a.snap.View.Committed[1] != resizeStep || a.snap.View.Live[1] != 0 {
		t.Errorf("committed=%v live=%v", a.snap.View.Committed, a.snap.View.Live)
	}
}

func TestApp_MouseResize(t *testing.T) {
	a := newTestApp(t)
	run(t, a, a.Init())

	edge := dataOriginX(a.width) + a.snap.View.Widths[0] - 1
	mouse := func(action tea.MouseAction, x int) {
		_, cmd := a.Update(tea.MouseMsg{X: x, Y: headerY, Button: tea.MouseButtonLeft, Action: action})
		run(t, a, cmd)
	}

	base := a.snap.View.Widths[0]
	mouse(tea.MouseActionPress, edge)
	mouse(tea.MouseActionMotion, edge+3)
	if a.snap.View.Live[0] != 3 || a.snap.View.Widths[0] != base+3 {
		t.Fatalf("during drag live=%v widths=%v", a.snap.View.Live, a.snap.View.Widths)
	}
	mouse(tea.MouseActionRelease, edge+5)
	if a.snap.View.Committed[0] != 5 || a.snap.View.Live[0] != 0 {
		t.Errorf("after release committed=%v live=%v", a.snap.View.Committed, a.snap.View.Live)
	}
	if a.drag.active {
		t.Error("drag still active after release")
	}
}

func TestApp_SwitchHost(t *testing.T) {
	a := newTestApp(t)
	run(t, a, a.Init())

	press(t, a, "tab") // data -> hosts
	if a.focus != FocusHosts {
		t.Fatalf("focus = %v, want hosts", a.focus)
	}
	press(t, a, "j", "enter")

	if a.snap.Selection.Host != "beta" || a.snap.Selection.Table != "alarms" {
		t.Errorf("after switch selection = %+v", a.snap.Selection)
	}
	if a.ctrl.Registry().ActiveID() != "beta" {
		t.Errorf("active host = %q, want beta", a.ctrl.Registry().ActiveID())
	}
}

func TestApp_CopyRequiresClipboard(t *testing.T) {
	a := newTestApp(t)
	run(t, a, a.Init())

	press(t, a, "y")
	if a.err == nil || !strings.Contains(a.err.Error(), "clipboard") {
		t.Errorf("err = %v, want clipboard unavailable", a.err)
	}
}
