package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	minSideWidth = 16
	maxSideWidth = 32
	// paneChrome is the horizontal space taken by a pane's border and padding.
	paneChrome = 4
)

// sideWidth returns the width of the host and table column.
func sideWidth(total int) int {
	return min(max(total/5, minSideWidth), maxSideWidth)
}

// dataWidth returns the inner width of the data pane, which is the
// container width the controller computes column widths for.
func dataWidth(total int) int {
	return max(total-sideWidth(total)-paneChrome, 1)
}

// dataOriginX is the screen column of the data pane's first cell.
func dataOriginX(total int) int {
	return sideWidth(total) + paneChrome/2
}

// headerY is the screen row of the column headers: top border, title line,
// then headers.
const headerY = 2

// boundaryAt returns the column whose right edge is within one cell of x,
// or -1. x is relative to the data pane origin. The last column has no
// draggable edge.
func boundaryAt(widths []int, x int) int {
	edge := 0
	for i := 0; i < len(widths)-1; i++ {
		edge += max(widths[i], 1)
		if x >= edge-2 && x <= edge {
			return i
		}
	}
	return -1
}

// columnAt returns the index of the column containing x, or -1.
func columnAt(widths []int, x int) int {
	if x < 0 {
		return -1
	}
	edge := 0
	for i, w := range widths {
		edge += max(w, 1)
		if x < edge {
			return i
		}
	}
	return -1
}

// fitCell pads or truncates v to exactly w cells, keeping one cell of gap.
func fitCell(v string, w int) string {
	if w <= 0 {
		return ""
	}
	v = strings.ReplaceAll(v, "\n", " ")
	if w == 1 {
		return " "
	}
	return runewidth.FillRight(runewidth.Truncate(v, w-1, "…"), w)
}

// renderRow lays cells out using widths. Widths below one cell render as
// one cell so every column stays reachable.
func renderRow(cells []string, widths []int) string {
	var b strings.Builder
	for i, w := range widths {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		b.WriteString(fitCell(v, max(w, 1)))
	}
	return b.String()
}
