package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/sensor-emulator/internal/lidar/emulator"
)

// RunRecord is one row of the emulation run ledger.
type RunRecord struct {
	RunID           string
	Mount           string
	Frames          int
	DataPackets     int
	PositionPackets int
	CapturePath     string
	Returns         int
	Measurements    int
	MeanRangeMeters float64
	StdRangeMeters  float64
	MeanIntensity   float64
	StartedAt       time.Time
	FinishedAt      time.Time
	Error           string // empty on success
}

// Succeeded reports whether the run produced a capture.
func (r *RunRecord) Succeeded() bool {
	return r.Error == ""
}

func (r *RunRecord) String() string {
	status := "ok"
	if !r.Succeeded() {
		status = "failed: " + r.Error
	}
	return fmt.Sprintf("%s %s frames=%d data=%d position=%d took=%s %s",
		r.RunID, r.Mount, r.Frames, r.DataPackets, r.PositionPackets,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), status)
}

// RecordRun stores the outcome of one mount run. It satisfies
// emulator.RunRecorder.
func (db *DB) RecordRun(res *emulator.MountResult) error {
	var errText, capture sql.NullString
	if res.Err != nil {
		errText = sql.NullString{String: res.Err.Error(), Valid: true}
	}
	if res.CapturePath != "" {
		capture = sql.NullString{String: res.CapturePath, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO emulation_runs (
			run_id, mount, frames, data_packets, position_packets, capture_path,
			started_at_us, finished_at_us, error,
			returns, measurements, mean_range_m, std_range_m, mean_intensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Mount, res.Frames, res.DataPackets, res.PositionPackets, capture,
		res.StartedAt.UnixMicro(), res.FinishedAt.UnixMicro(), errText,
		res.Summary.Returns, res.Summary.Measurements,
		res.Summary.MeanRangeMeters, res.Summary.StdRangeMeters, res.Summary.MeanIntensity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", res.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first. An empty mount matches
// every mount.
func (db *DB) RecentRuns(mount string, limit int) ([]RunRecord, error) {
	rows, err := db.Query(`
		SELECT run_id, mount, frames, data_packets, position_packets, capture_path,
			started_at_us, finished_at_us, error,
			returns, measurements, mean_range_m, std_range_m, mean_intensity
		FROM emulation_runs
		WHERE ? = '' OR mount = ?
		ORDER BY started_at_us DESC, rowid DESC
		LIMIT ?`, mount, mount, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r                      RunRecord
			capture, errText       sql.NullString
			started, finished      int64
			meanR, stdR, intensity sql.NullFloat64
		)
		if err := rows.Scan(
			&r.RunID, &r.Mount, &r.Frames, &r.DataPackets, &r.PositionPackets, &capture,
			&started, &finished, &errText,
			&r.Returns, &r.Measurements, &meanR, &stdR, &intensity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CapturePath = capture.String
		r.Error = errText.String
		r.StartedAt = time.UnixMicro(started).UTC()
		r.FinishedAt = time.UnixMicro(finished).UTC()
		r.MeanRangeMeters = meanR.Float64
		r.StdRangeMeters = stdR.Float64
		r.MeanIntensity = intensity.Float64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
