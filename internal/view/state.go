package view

import (
	"strconv"
	"time"
)

// Selection identifies what is being browsed. Page is 1-based.
type Selection struct {
	Host   string
	Table  string
	Page   int
	Filter string
}

// State is an immutable snapshot of what a front end should render.
type State struct {
	Headers []string
	Rows    [][]string

	// Total is the filtered row count. TotalKnown is false when the count
	// query returned no usable value; Total and TotalPages are then zero.
	Total      int64
	TotalKnown bool
	TotalPages int

	Committed      []int
	Live           []int
	Widths         []int
	ContainerWidth int

	// Elapsed is the wall time of the last fetch.
	Elapsed time.Duration
}

// Empty reports whether the state has no columns yet.
func (s State) Empty() bool {
	return len(s.Headers) == 0
}

// PageLabel formats the page indicator, e.g. "3/12" or "3/?".
func (s State) PageLabel(page int) string {
	if !s.TotalKnown {
		return strconv.Itoa(page) + "/?"
	}
	return strconv.Itoa(page) + "/" + strconv.Itoa(s.TotalPages)
}
