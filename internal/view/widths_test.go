package view

import (
	"reflect"
	"testing"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		n         int
		committed []int
		live      []int
		want      []int
	}{
		{
			name:      "even split with remainder on last column",
			width:     100,
			n:         3,
			committed: []int{0, 0, 0},
			live:      []int{0, 0, 0},
			want:      []int{33, 33, 34},
		},
		{
			name:      "committed and live deltas",
			width:     100,
			n:         3,
			committed: []int{5, 0, 0},
			live:      []int{0, -3, 0},
			want:      []int{38, 30, 34},
		},
		{
			name:      "negative widths are not clamped",
			width:     10,
			n:         2,
			committed: []int{-20, 0},
			live:      []int{0, 0},
			want:      []int{-15, 5},
		},
		{
			name: "zero columns",
			n:    0,
			want: []int{},
		},
		{
			name:  "narrow container",
			width: 2,
			n:     3,
			want:  []int{0, 0, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.width, tt.n, tt.committed, tt.live)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompute_SumPreserved(t *testing.T) {
	for width := 0; width < 200; width += 7 {
		for n := 1; n < 9; n++ {
			widths := Compute(width, n, make([]int, n), make([]int, n))
			sum := 0
			for _, w := range widths {
				sum += w
			}
			if sum != width {
				t.Fatalf("Compute(%d, %d) sums to %d", width, n, sum)
			}
		}
	}
}

func TestColumnWidths_DragCommit(t *testing.T) {
	c := NewColumnWidths(3)

	if err := c.Drag(1, 4); err != nil {
		t.Fatalf("Drag() error: %v", err)
	}
	if err := c.Drag(1, 9); err != nil {
		t.Fatalf("Drag() error: %v", err)
	}
	if got := c.Live(); !reflect.DeepEqual(got, []int{0, 9, 0}) {
		t.Fatalf("live after overwrite = %v, want [0 9 0]", got)
	}
	if got := c.Widths(90); !reflect.DeepEqual(got, []int{30, 39, 30}) {
		t.Errorf("Widths() during drag = %v", got)
	}

	before := c.Widths(90)
	c.Commit()
	if got := c.Live(); !reflect.DeepEqual(got, []int{0, 0, 0}) {
		t.Errorf("live after commit = %v, want zeros", got)
	}
	if got := c.Committed(); !reflect.DeepEqual(got, []int{0, 9, 0}) {
		t.Errorf("committed after commit = %v, want [0 9 0]", got)
	}
	if after := c.Widths(90); !reflect.DeepEqual(before, after) {
		t.Errorf("Widths() changed across commit: %v -> %v", before, after)
	}

	// A second drag is relative to the committed position.
	_ = c.Drag(1, -2)
	c.Commit()
	if got := c.Committed(); !reflect.DeepEqual(got, []int{0, 7, 0}) {
		t.Errorf("committed after second commit = %v, want [0 7 0]", got)
	}
}

func TestColumnWidths_DragOutOfRange(t *testing.T) {
	c := NewColumnWidths(2)

	for _, i := range []int{-1, 2, 10} {
		if err := c.Drag(i, 5); err == nil {
			t.Errorf("Drag(%d) expected error", i)
		}
	}
	if got := c.Live(); !reflect.DeepEqual(got, []int{0, 0}) {
		t.Errorf("live changed after rejected drag: %v", got)
	}
}

func TestColumnWidths_Reset(t *testing.T) {
	c := NewColumnWidths(2)
	_ = c.Drag(0, 3)
	c.Commit()

	c.Reset(4)
	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}
	if got := c.Committed(); !reflect.DeepEqual(got, []int{0, 0, 0, 0}) {
		t.Errorf("committed after reset = %v", got)
	}
}

func TestState_PageLabel(t *testing.T) {
	s := State{TotalKnown: true, TotalPages: 12}
	if got := s.PageLabel(3); got != "3/12" {
		t.Errorf("PageLabel() = %q, want 3/12", got)
	}
	s.TotalKnown = false
	if got := s.PageLabel(3); got != "3/?" {
		t.Errorf("PageLabel() = %q, want 3/?", got)
	}

	// An unknown count leaves Total and TotalPages zero.
	var unknown State
	if got := unknown.PageLabel(1); got != "1/?" {
		t.Errorf("zero State PageLabel() = %q, want 1/?", got)
	}
}
