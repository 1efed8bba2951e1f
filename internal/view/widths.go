// Package view holds the display state produced by the query controller and
// the column width arithmetic shared by every front end.
package view

import "fmt"

// Compute splits width evenly across n columns, hands the integer-division
// remainder to the last column, then applies committed and live deltas.
// Widths may go negative; clamping is left to the renderer.
func Compute(width, n int, committed, live []int) []int {
	if n <= 0 {
		return []int{}
	}

	base := width / n
	widths := make([]int, n)
	for i := range widths {
		widths[i] = base
	}
	widths[n-1] += width - base*n

	for i := range widths {
		if i < len(committed) {
			widths[i] += committed[i]
		}
		if i < len(live) {
			widths[i] += live[i]
		}
	}
	return widths
}

// ColumnWidths tracks committed and in-flight resize deltas for one table.
// It is not safe for concurrent use; the controller serializes access.
type ColumnWidths struct {
	committed []int
	live      []int
}

// NewColumnWidths returns zeroed deltas for n columns.
func NewColumnWidths(n int) *ColumnWidths {
	c := &ColumnWidths{}
	c.Reset(n)
	return c
}

// Reset zeroes both delta vectors and resizes them to n columns.
func (c *ColumnWidths) Reset(n int) {
	if n < 0 {
		n = 0
	}
	c.committed = make([]int, n)
	c.live = make([]int, n)
}

// Len returns the number of tracked columns.
func (c *ColumnWidths) Len() int {
	return len(c.committed)
}

// Drag sets the live delta for column i. Repeated drags overwrite rather than
// accumulate: offset is the total displacement since the drag began.
func (c *ColumnWidths) Drag(i, offset int) error {
	if i < 0 || i >= len(c.live) {
		return fmt.Errorf("column index %d out of range [0,%d)", i, len(c.live))
	}
	c.live[i] = offset
	return nil
}

// Commit folds the live deltas into the committed ones and zeroes live.
func (c *ColumnWidths) Commit() {
	for i := range c.live {
		c.committed[i] += c.live[i]
		c.live[i] = 0
	}
}

// Committed returns a copy of the committed deltas.
func (c *ColumnWidths) Committed() []int {
	return append([]int(nil), c.committed...)
}

// Live returns a copy of the live deltas.
func (c *ColumnWidths) Live() []int {
	return append([]int(nil), c.live...)
}

// Widths computes the effective widths for a container of the given width.
func (c *ColumnWidths) Widths(width int) []int {
	return Compute(width, len(c.committed), c.committed, c.live)
}
