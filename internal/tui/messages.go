package tui

import "github.com/johan-st/tsbrowse/internal/browse"

// SnapshotMsg carries the controller state after an intent. On error the
// snapshot is the unchanged previous state.
type SnapshotMsg struct {
	Snapshot browse.Snapshot
	Intent   browse.Intent
	Error    error
}

// ReconnectedMsg is sent when a host reconnect attempt finishes.
type ReconnectedMsg struct {
	Host  string
	Error error
}

// CopiedMsg is sent after a row was copied to the clipboard.
type CopiedMsg struct {
	Error error
}
