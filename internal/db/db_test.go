package db

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensor-emulator/internal/lidar/emulator"
	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
	"github.com/banshee-data/sensor-emulator/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp(MigrationsFS()))
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.MigrateDown(MigrationsFS()))
	version, _, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, err = db.Exec("SELECT returns FROM emulation_runs")
	assert.Error(t, err)
}

func TestMigrateVersion_Fresh(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"000001_init.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE t1 (id INTEGER PRIMARY KEY);")},
		"000001_init.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE t1;")},
	}
	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestRecordRun_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2019, 1, 10, 11, 0, 0, 0, time.UTC)

	ok := &emulator.MountResult{
		RunID:           "run-ok",
		Mount:           "velodyne_left",
		Frames:          3,
		DataPackets:     540,
		PositionPackets: 38,
		CapturePath:     "out/velodyne_left.pcap",
		Summary: hdl32e.Summary{
			Returns:         100,
			Measurements:    128,
			MeanRangeMeters: 12.5,
			StdRangeMeters:  3.25,
			MeanIntensity:   40,
		},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
	failed := &emulator.MountResult{
		RunID:      "run-failed",
		Mount:      "velodyne_right",
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(time.Minute),
		Err:        &emulator.MountError{Mount: "velodyne_right", Err: errors.New("boom")},
	}
	require.NoError(t, db.RecordRun(ok))
	require.NoError(t, db.RecordRun(failed))

	runs, err := db.RecentRuns("", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-failed", runs[0].RunID)
	assert.False(t, runs[0].Succeeded())
	assert.Equal(t, "mount velodyne_right: boom", runs[0].Error)
	assert.Empty(t, runs[0].CapturePath)
	assert.Contains(t, runs[0].String(), "failed: mount velodyne_right: boom")

	got := runs[1]
	assert.True(t, got.Succeeded())
	assert.Equal(t, "velodyne_left", got.Mount)
	assert.Equal(t, 540, got.DataPackets)
	assert.Equal(t, 38, got.PositionPackets)
	assert.Equal(t, "out/velodyne_left.pcap", got.CapturePath)
	assert.Equal(t, 100, got.Returns)
	assert.Equal(t, 128, got.Measurements)
	assert.InDelta(t, 12.5, got.MeanRangeMeters, 1e-9)
	assert.InDelta(t, 3.25, got.StdRangeMeters, 1e-9)
	assert.True(t, got.StartedAt.Equal(start))
	assert.Contains(t, got.String(), "took=1.5s ok")

	left, err := db.RecentRuns("velodyne_left", 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "run-ok", left[0].RunID)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	res := &emulator.MountResult{RunID: "dup", Mount: "velodyne_left"}
	require.NoError(t, db.RecordRun(res))
	assert.Error(t, db.RecordRun(res))
}

func TestRecordRun_Concurrent(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.RecordRun(&emulator.MountResult{
				RunID: string(rune('a' + i)),
				Mount: "velodyne_left",
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	runs, err := db.RecentRuns("velodyne_left", 100)
	require.NoError(t, err)
	assert.Len(t, runs, 8)
}

func TestDB_SatisfiesRunRecorder(t *testing.T) {
	var _ emulator.RunRecorder = (*DB)(nil)
}
