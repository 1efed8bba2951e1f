package browse

import "github.com/johan-st/tsbrowse/internal/view"

// Intent is a user action understood by the Controller.
type Intent interface {
	isIntent()
}

// ChangeTable selects another table on the active host: page 1, filter kept,
// width deltas reset.
type ChangeTable struct {
	Name string
}

// Filter sets the robot id filter and returns to page 1.
type Filter struct {
	Text string
}

// PrevPage moves back one page, never below page 1.
type PrevPage struct{}

// NextPage moves forward one page. There is no upper bound; pages past the
// end are empty.
type NextPage struct{}

// Resizing previews a column drag. Offset is the total displacement since
// the drag started.
type Resizing struct {
	Index  int
	Offset int
}

// ResizeOver commits the in-progress drag.
type ResizeOver struct{}

// SwitchHost makes another host active, keeping the current table when the
// host has it.
type SwitchHost struct {
	ID string
}

// SetWidth reports a new container width.
type SetWidth struct {
	Width int
}

// Refresh re-fetches the current page.
type Refresh struct{}

// Load jumps straight to a selection. An empty host or table keeps the
// current one; Filter and Page are taken as given, with page 0 meaning 1.
type Load struct {
	Selection view.Selection
}

func (ChangeTable) isIntent() {}
func (Filter) isIntent() {}
func (PrevPage) isIntent() {}
func (NextPage) isIntent() {}
func (Resizing) isIntent() {}
func (ResizeOver) isIntent() {}
func (SwitchHost) isIntent() {}
func (SetWidth) isIntent() {}
func (Refresh) isIntent() {}
func (Load) isIntent() {}
