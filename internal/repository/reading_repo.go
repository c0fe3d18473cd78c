package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	nest "github.com/gleadbet/nest"
)

type ReadingSQLite struct {
	db *sql.DB
}

func NewReadingSQLite(db *sql.DB) *ReadingSQLite {
	return &ReadingSQLite{db: db}
}

const (
	insertReadingSQL = `
		INSERT INTO readings (device_id, temp_c, humidity_pct, taken_at)
		VALUES (?, ?, ?, ?)
	`

	// Range bounds are optional; the query is assembled from these fragments.
	selectReadingsBase = `
		SELECT device_id, temp_c, humidity_pct, taken_at
		FROM readings WHERE device_id=?
	`
	orderReadings = ` ORDER BY taken_at ASC`
)

func (r *ReadingSQLite) Append(ctx context.Context, reading nest.Reading) error {
	takenAt := reading.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	var humidity any
	if reading.HumidityPct != nil {
		humidity = *reading.HumidityPct
	}
	if _, err := r.db.ExecContext(ctx, insertReadingSQL, reading.DeviceID, reading.TempC, humidity, takenAt.UTC()); err != nil {
		return fmt.Errorf("insert reading for %s: %w", reading.DeviceID, err)
	}
	return nil
}

func (r *ReadingSQLite) ListRange(ctx context.Context, deviceID string, from, to time.Time) ([]nest.Reading, error) {
	query := selectReadingsBase
	args := []any{deviceID}
	if !from.IsZero() {
		query += ` AND taken_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND taken_at <= ?`
		args = append(args, to.UTC())
	}
	query += orderReadings

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select readings for %s: %w", deviceID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []nest.Reading
	for rows.Next() {
		var (
			reading  nest.Reading
			humidity sql.NullFloat64
			takenAt  time.Time
		)
		if err := rows.Scan(&reading.DeviceID, &reading.TempC, &humidity, &takenAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if humidity.Valid {
			v := humidity.Float64
			reading.HumidityPct = &v
		}
		reading.TakenAt = takenAt.UTC()
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}
