// Package store persists the last good schedule per area in SQLite so a
// restart can publish a status before the first API call succeeds.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/loadshed-mqtt/core/event"
	"github.com/kilianp07/loadshed-mqtt/core/poller"
)

// SQLiteStore implements poller.Cache.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS schedule (
    area_id     TEXT PRIMARY KEY,
    area_name   TEXT NOT NULL,
    region_name TEXT NOT NULL,
    fetched_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS schedule_event (
    area_id TEXT NOT NULL,
    seq     INTEGER NOT NULL,
    start   TEXT NOT NULL,
    "end"   TEXT NOT NULL,
    note    TEXT NOT NULL,
    PRIMARY KEY(area_id, seq)
);`

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveSchedule replaces the cached schedule of areaID.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, areaID string, sch event.Schedule, fetched time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO schedule (area_id, area_name, region_name, fetched_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(area_id) DO UPDATE SET
            area_name = excluded.area_name,
            region_name = excluded.region_name,
            fetched_at = excluded.fetched_at`,
		areaID, sch.AreaName, sch.RegionName, fetched.Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_event WHERE area_id = ?`, areaID); err != nil {
		return err
	}
	for i, ev := range sch.Events {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schedule_event (area_id, seq, start, "end", note)
            VALUES (?, ?, ?, ?, ?)`,
			areaID, i, ev.Start.Format(time.RFC3339Nano), ev.End.Format(time.RFC3339Nano), ev.Note); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSchedule returns the cached schedule of areaID and when it was
// fetched, or poller.ErrNoCachedSchedule.
func (s *SQLiteStore) LoadSchedule(ctx context.Context, areaID string) (event.Schedule, time.Time, error) {
	var sch event.Schedule
	var fetchedRaw string
	err := s.db.QueryRowContext(ctx, `SELECT area_name, region_name, fetched_at FROM schedule WHERE area_id = ?`, areaID).
		Scan(&sch.AreaName, &sch.RegionName, &fetchedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Schedule{}, time.Time{}, poller.ErrNoCachedSchedule
	}
	if err != nil {
		return event.Schedule{}, time.Time{}, err
	}
	fetched, err := time.Parse(time.RFC3339Nano, fetchedRaw)
	if err != nil {
		return event.Schedule{}, time.Time{}, fmt.Errorf("fetched_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT start, "end", note FROM schedule_event
        WHERE area_id = ? ORDER BY seq`, areaID)
	if err != nil {
		return event.Schedule{}, time.Time{}, err
	}
	defer func() { _ = rows.Close() }()
	var raw []event.Raw
	for rows.Next() {
		var r event.Raw
		if err := rows.Scan(&r.Start, &r.End, &r.Note); err != nil {
			return event.Schedule{}, time.Time{}, err
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return event.Schedule{}, time.Time{}, err
	}
	if sch.Events, err = event.Parse(raw); err != nil {
		return event.Schedule{}, time.Time{}, err
	}
	return sch, fetched, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ poller.Cache = (*SQLiteStore)(nil)
