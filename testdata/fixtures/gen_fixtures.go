//go:build ignore

// gen_fixtures generates demo databases for trying tsbrowse without a
// TDengine server.
// Run with: go run gen_fixtures.go
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

func main() {
	if err := generatePlant("plant-a.db", 600, 12); err != nil {
		log.Fatalf("Failed to generate plant-a.db: %v", err)
	}
	if err := generatePlant("plant-b.db", 2500, 40); err != nil {
		log.Fatalf("Failed to generate plant-b.db: %v", err)
	}
	if err := generateEmpty(); err != nil {
		log.Fatalf("Failed to generate empty.db: %v", err)
	}
	log.Println("All fixtures generated successfully")
}

// generatePlant writes robot events one minute apart and a few alarms whose
// ids contain LIKE wildcards.
func generatePlant(path string, events, robots int) error {
	os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE events (
			ts TEXT NOT NULL,
			robot_id TEXT NOT NULL,
			status TEXT,
			temperature REAL,
			cycle INTEGER
		);

		CREATE TABLE alarms (
			ts TEXT NOT NULL,
			robot_id TEXT NOT NULL,
			code INTEGER,
			message TEXT
		);

		CREATE INDEX idx_events_ts ON events(ts);
	`)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO events (ts, robot_id, status, temperature, cycle) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	statuses := []string{"ok", "ok", "ok", "warn", "fault"}
	for i := 0; i < events; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).Format(time.DateTime)
		robot := fmt.Sprintf("r%d", i%robots+1)
		temp := 40 + float64(i%17)*1.5
		if _, err := stmt.Exec(ts, robot, statuses[i%len(statuses)], temp, i/robots); err != nil {
			tx.Rollback()
			return err
		}
	}

	alarms := []struct {
		robot string
		code  int
		msg   string
	}{
		{"r_1", 100, "underscore id"},
		{"r%1", 101, "percent id"},
		{`r\1`, 102, "backslash id"},
		{"r9", 200, "gripper jam"},
	}
	for i, a := range alarms {
		ts := start.Add(time.Duration(i) * time.Hour).Format(time.DateTime)
		if _, err := tx.Exec(`INSERT INTO alarms (ts, robot_id, code, message) VALUES (?, ?, ?, ?)`,
			ts, a.robot, a.code, a.msg); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// empty.db - a host with no tables
func generateEmpty() error {
	os.Remove("empty.db")
	db, err := sql.Open("sqlite", "empty.db")
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Ping()
}
