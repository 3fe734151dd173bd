package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/optical.position/internal/fusion"
)

// ErrNoReading is returned when nothing has been recorded yet. It wraps
// sql.ErrNoRows.
var ErrNoReading = fmt.Errorf("no reading recorded: %w", sql.ErrNoRows)

// PlatformStateRecord is the stored platform reading.
type PlatformStateRecord struct {
	State     fusion.PlatformState `json:"state"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// RecordPlatformState replaces the stored platform reading.
func (db *DB) RecordPlatformState(state fusion.PlatformState, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO platform_state (id, height_m, heading_deg, updated_unix_ns)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			height_m = excluded.height_m,
			heading_deg = excluded.heading_deg,
			updated_unix_ns = excluded.updated_unix_ns`,
		state.HeightMeters, state.HeadingDegrees, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record platform state: %w", err)
	}
	return nil
}

// LatestPlatformState returns the stored platform reading or ErrNoReading.
func (db *DB) LatestPlatformState() (PlatformStateRecord, error) {
	var rec PlatformStateRecord
	var ns int64
	err := db.QueryRow(`SELECT height_m, heading_deg, updated_unix_ns FROM platform_state WHERE id = 1`).
		Scan(&rec.State.HeightMeters, &rec.State.HeadingDegrees, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return PlatformStateRecord{}, ErrNoReading
	}
	if err != nil {
		return PlatformStateRecord{}, fmt.Errorf("failed to load platform state: %w", err)
	}
	rec.UpdatedAt = time.Unix(0, ns).UTC()
	return rec, nil
}

// RecordCorrection replaces the stored correction.
func (db *DB) RecordCorrection(c fusion.Correction) error {
	_, err := db.Exec(`
		INSERT INTO correction (
			id, correction_id, pixel_x, pixel_y, height_m, heading_deg,
			distance_m, relative_bearing_deg, computed_unix_ns
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			correction_id = excluded.correction_id,
			pixel_x = excluded.pixel_x,
			pixel_y = excluded.pixel_y,
			height_m = excluded.height_m,
			heading_deg = excluded.heading_deg,
			distance_m = excluded.distance_m,
			relative_bearing_deg = excluded.relative_bearing_deg,
			computed_unix_ns = excluded.computed_unix_ns`,
		c.ID, c.Offset.X, c.Offset.Y, c.State.HeightMeters, c.State.HeadingDegrees,
		c.Fix.DistanceMeters, c.Fix.RelativeBearingDegrees, c.ComputedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record correction: %w", err)
	}
	return nil
}

// Publish implements the tracking sink interface.
func (db *DB) Publish(c fusion.Correction) error {
	return db.RecordCorrection(c)
}

// LatestCorrection returns the stored correction or ErrNoReading.
func (db *DB) LatestCorrection() (fusion.Correction, error) {
	var c fusion.Correction
	var ns int64
	err := db.QueryRow(`
		SELECT correction_id, pixel_x, pixel_y, height_m, heading_deg,
			distance_m, relative_bearing_deg, computed_unix_ns
		FROM correction WHERE id = 1`).
		Scan(&c.ID, &c.Offset.X, &c.Offset.Y, &c.State.HeightMeters, &c.State.HeadingDegrees,
			&c.Fix.DistanceMeters, &c.Fix.RelativeBearingDegrees, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return fusion.Correction{}, ErrNoReading
	}
	if err != nil {
		return fusion.Correction{}, fmt.Errorf("failed to load correction: %w", err)
	}
	c.ComputedAt = time.Unix(0, ns).UTC()
	return c, nil
}

