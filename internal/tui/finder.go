package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/sahilm/fuzzy"
)

const finderLimit = 10

// finder is the fuzzy table picker.
type finder struct {
	active  bool
	input   textinput.Model
	items   []string
	matches []fuzzy.Match
	cursor  int
}

func newFinder() finder {
	ti := textinput.New()
	ti.Prompt = "table> "
	ti.CharLimit = 128
	return finder{input: ti}
}

func (f *finder) open(items []string) {
	f.active = true
	f.items = items
	f.input.SetValue("")
	f.input.Focus()
	f.search()
}

func (f *finder) close() {
	f.active = false
	f.input.Blur()
}

// search ranks items against the input. An empty pattern lists items in
// catalog order.
func (f *finder) search() {
	pattern := f.input.Value()
	f.cursor = 0
	if pattern == "" {
		f.matches = f.matches[:0]
		for i, item := range f.items {
			f.matches = append(f.matches, fuzzy.Match{Str: item, Index: i})
		}
		return
	}
	f.matches = fuzzy.Find(pattern, f.items)
}

func (f *finder) move(delta int) {
	if len(f.matches) == 0 {
		return
	}
	f.cursor = (f.cursor + delta + len(f.matches)) % len(f.matches)
}

func (f *finder) selected() (string, bool) {
	if f.cursor >= len(f.matches) {
		return "", false
	}
	return f.matches[f.cursor].Str, true
}

func (f *finder) view(width int) string {
	var b strings.Builder
	b.WriteString(f.input.View())
	b.WriteString("\n")

	for i, m := range f.matches {
		if i >= finderLimit {
			b.WriteString(dimItemStyle.Render("  …"))
			break
		}
		line := highlight(m)
		if i == f.cursor {
			line = selectedItemStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(f.matches) == 0 {
		b.WriteString(dimItemStyle.Render("  no match"))
	}

	return paneStyle.Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

// highlight renders the matched runes of m in the match style.
func highlight(m fuzzy.Match) string {
	hit := make(map[int]bool, len(m.MatchedIndexes))
	for _, i := range m.MatchedIndexes {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range m.Str {
		if hit[i] {
			b.WriteString(matchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
