package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sigreer/jbod/internal/led"
)

// RecordLEDEvent stores one LED operation. It implements led.Auditor.
func (d *DB) RecordLEDEvent(ctx context.Context, ev led.Event) error {
	var observed sql.NullBool
	if ev.Observed != nil {
		observed = sql.NullBool{Bool: *ev.Observed, Valid: true}
	}
	var errText sql.NullString
	if ev.Error != "" {
		errText = sql.NullString{String: ev.Error, Valid: true}
	}

	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO led_events (op_id, ts, target, element_index, indicator, requested, observed, attempts, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Time.UnixNano(), ev.Target, ev.Index, ev.Indicator, ev.Requested, observed, ev.Attempts, ev.Result, errText)
	if err != nil {
		return fmt.Errorf("failed to record LED event: %w", err)
	}
	return nil
}

// RecentLEDEvents returns the most recent LED operations, newest first
func (d *DB) RecentLEDEvents(ctx context.Context, limit int) ([]led.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.QueryContext(ctx, `
		SELECT op_id, ts, target, element_index, indicator, requested, observed, attempts, result, error
		FROM led_events
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query LED events: %w", err)
	}
	defer rows.Close()

	return scanLEDEvents(rows)
}

// SlotLEDEvents returns the LED operations on one element, newest first
func (d *DB) SlotLEDEvents(ctx context.Context, target string, index, limit int) ([]led.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.QueryContext(ctx, `
		SELECT op_id, ts, target, element_index, indicator, requested, observed, attempts, result, error
		FROM led_events
		WHERE target = ? AND element_index = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, target, index, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query LED events: %w", err)
	}
	defer rows.Close()

	return scanLEDEvents(rows)
}

// PruneLEDEvents deletes operations older than the given time and returns
// how many were removed.
func (d *DB) PruneLEDEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM led_events WHERE ts < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune LED events: %w", err)
	}
	return res.RowsAffected()
}

func scanLEDEvents(rows *sql.Rows) ([]led.Event, error) {
	var events []led.Event
	for rows.Next() {
		var (
			ev       led.Event
			ts       int64
			observed sql.NullBool
			errText  sql.NullString
		)
		err := rows.Scan(
			&ev.ID, &ts, &ev.Target, &ev.Index, &ev.Indicator,
			&ev.Requested, &observed, &ev.Attempts, &ev.Result, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan LED event: %w", err)
		}

		ev.Time = time.Unix(0, ts)
		ev.Error = errText.String
		if observed.Valid {
			o := observed.Bool
			ev.Observed = &o
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
