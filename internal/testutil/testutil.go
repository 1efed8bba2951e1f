// Package testutil provides helpers for building throwaway SQLite hosts.
package testutil

import (
	"bytes"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/johan-st/tsbrowse/internal/config"
)

// BaseTime is the timestamp of the oldest generated event.
var BaseTime = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// Event is one row of the events table.
type Event struct {
	TS      time.Time
	RobotID string
	Status  string
}

// Events generates n events one minute apart. Robot ids cycle through
// r1..r15 so each id appears n/15 times.
func Events(n int) []Event {
	statuses := []string{"ok", "warn", "fault"}
	events := make([]Event, n)
	for i := range events {
		events[i] = Event{
			TS:      BaseTime.Add(time.Duration(i) * time.Minute),
			RobotID: fmt.Sprintf("r%d", i%15+1),
			Status:  statuses[i%len(statuses)],
		}
	}
	return events
}

// EventsDB creates a database with an "events" table holding 45 generated
// events and an "alarms" table whose robot ids contain LIKE wildcards.
// It returns the file path; the file is removed with the test's temp dir.
func EventsDB(t *testing.T) string {
	t.Helper()
	return EventsDBWith(t, "events.db", Events(45))
}

// EventsDBWith is EventsDB with caller-supplied events.
func EventsDBWith(t *testing.T, name string, events []Event) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer db.Close()

	MustExec(t, db, `CREATE TABLE events (ts TEXT NOT NULL, robot_id TEXT, status TEXT)`)
	MustExec(t, db, `CREATE TABLE alarms (ts TEXT NOT NULL, robot_id TEXT, code INTEGER)`)

	for _, e := range events {
		MustExec(t, db, `INSERT INTO events (ts, robot_id, status) VALUES (?, ?, ?)`,
			e.TS.Format(time.DateTime), e.RobotID, e.Status)
	}

	alarms := []string{"a_1", "ab1", "a%1", `a\1`}
	for i, id := range alarms {
		MustExec(t, db, `INSERT INTO alarms (ts, robot_id, code) VALUES (?, ?, ?)`,
			BaseTime.Add(time.Duration(i)*time.Hour).Format(time.DateTime), id, 100+i)
	}

	return path
}

// Host returns a sqlite host descriptor for path.
func Host(name, path string) config.Host {
	return config.Host{
		Name:    name,
		Address: path,
		Driver:  config.DriverSQLite,
	}
}

// MustExec executes SQL or fails the test.
func MustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("MustExec failed: %v\nQuery: %s", err, query)
	}
}

// OutputCapture is a helper for capturing CLI output.
type OutputCapture struct {
	Out bytes.Buffer
	Err bytes.Buffer
}

// Stdout returns captured stdout as string.
func (c *OutputCapture) Stdout() string {
	return c.Out.String()
}

// Stderr returns captured stderr as string.
func (c *OutputCapture) Stderr() string {
	return c.Err.String()
}
