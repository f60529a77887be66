package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensor-emulator/internal/camera"
	"github.com/banshee-data/sensor-emulator/internal/config"
	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/lidar/emulator"
	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
	"github.com/banshee-data/sensor-emulator/internal/monitoring"
	"github.com/banshee-data/sensor-emulator/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"velodyne_left", "velodyne_right"}, splitList(" velodyne_left, ,velodyne_right,"))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	defer func(r, w int, o string) { *ratio, *workers, *outDir = r, w, o }(*ratio, *workers, *outDir)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultPositionRatio, cfg.GetPositionRatio())

	*ratio, *workers, *outDir = 12, 4, "/tmp/captures"
	cfg, err = loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.GetPositionRatio())
	assert.Equal(t, 4, cfg.GetWorkers())
	assert.Equal(t, "/tmp/captures", cfg.GetOutputDir())

	*ratio = 1
	_, err = loadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emulator.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"position_ratio": 12, "mounts": ["velodyne_left"]}`), 0644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.GetPositionRatio())
	assert.Equal(t, []string{"velodyne_left"}, cfg.GetMounts())
	assert.Equal(t, config.DefaultOutputDir, cfg.GetOutputDir())
}

func TestRunLidar_DiscoversAndVerifies(t *testing.T) {
	defer func(v bool) { *verify = v }(*verify)
	*verify = true

	fsys := fsutil.NewMemoryFileSystem()
	testutil.WriteMount(t, fsys, "/data", "velodyne_left", 13*hdl32e.FIRINGS_PER_PACKET)
	testutil.WriteMount(t, fsys, "/data", "velodyne_right", 2*hdl32e.FIRINGS_PER_PACKET)
	testutil.WriteMount(t, fsys, "/data", "lms_front", 2*hdl32e.FIRINGS_PER_PACKET)

	cfg := config.DefaultEmulatorConfig()
	cfg.SetOutputDir("/out")
	cfg.SetPositionRatio(12)
	require.NoError(t, runLidar(context.Background(), cfg, fsys, "/data", nil))

	for _, name := range []string{"velodyne_left.pcap", "velodyne_right.pcap"} {
		_, err := fsys.Stat(filepath.Join("/out", name))
		assert.NoError(t, err, name)
	}
	_, err := fsys.Stat("/out/lms_front.pcap")
	assert.Error(t, err)
}

func TestRunLidar_ExplicitUnknownMount(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	testutil.WriteMount(t, fsys, "/data", "velodyne_left", 2*hdl32e.FIRINGS_PER_PACKET)

	cfg := config.DefaultEmulatorConfig()
	cfg.SetOutputDir("/out")
	err := runLidar(context.Background(), cfg, fsys, "/data", []string{"velodyne_left", "lidar_front"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, emulator.ErrValidation))

	_, statErr := fsys.Stat("/out/velodyne_left.pcap")
	assert.NoError(t, statErr, "valid mounts still complete")
}

func TestRunLidar_NoMounts(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/data/readme.txt", nil)
	err := runLidar(context.Background(), config.DefaultEmulatorConfig(), fsys, "/data", nil)
	assert.ErrorContains(t, err, "no lidar mounts")
}

func TestRunCamera(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/data/mono_left/1000000.png", nil)
	fsys.WriteFile("/data/mono_left/1100000.png", nil)
	fsys.WriteFile("/data/mono_left.timestamps", []byte("1000000 1\n1100000 1\n"))
	fsys.WriteFile("/data/mono_rear/1.png", nil)
	fsys.WriteFile("/data/mono_rear.timestamps", []byte("1\n"))
	testutil.WriteMount(t, fsys, "/data", "velodyne_left", 1*hdl32e.FIRINGS_PER_PACKET)

	cfg := config.DefaultEmulatorConfig()
	cfg.SetOutputDir("/videos")
	builder := &camera.MockCommandBuilder{}
	require.NoError(t, runCamera(context.Background(), cfg, fsys, builder, "/data", nil))

	require.Len(t, builder.Commands, 2)
	left := builder.Commands[0]
	assert.Contains(t, left.Args, "10")
	assert.Equal(t, "/videos/mono_left.mp4", left.Args[len(left.Args)-1])

	// A single timestamp cannot give a rate, so the default is used.
	rear := builder.Commands[1]
	assert.Contains(t, rear.Args, "25")
	assert.Equal(t, "/videos/mono_rear.mp4", rear.Args[len(rear.Args)-1])
}

func TestRunCamera_EncoderFailureReported(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/data/stereo/1.png", nil)
	builder := &camera.MockCommandBuilder{
		NextExecutor: &camera.MockCommandExecutor{Err: errors.New("exit status 1")},
	}

	err := runCamera(context.Background(), config.DefaultEmulatorConfig(), fsys, builder, "/data", []string{"stereo"})
	assert.True(t, errors.Is(err, camera.ErrEncoder))
	assert.ErrorContains(t, err, "camera stereo")
}

func TestPrintHistory_RequiresDB(t *testing.T) {
	assert.Error(t, printHistory("", 5))

	path := filepath.Join(t.TempDir(), "runs.db")
	assert.NoError(t, printHistory(path, 5))
}

func TestRun_Migrate(t *testing.T) {
	defer func(m, d string) { *migrateCmd, *dbFile = m, d }(*migrateCmd, *dbFile)

	*migrateCmd = "status"
	assert.ErrorContains(t, run(context.Background()), "-migrate requires -db")

	*dbFile = filepath.Join(t.TempDir(), "runs.db")
	for _, action := range []string{"up", "down", "status"} {
		*migrateCmd = action
		assert.NoError(t, run(context.Background()), action)
	}

	*migrateCmd = "sideways"
	assert.ErrorContains(t, run(context.Background()), "unknown migrate action")
}

func TestExecute_ExitCode(t *testing.T) {
	defer func(h int, d string, v bool) { *history, *dbFile, *showVersion = h, d, v }(*history, *dbFile, *showVersion)

	*showVersion = true
	assert.Equal(t, 0, execute())

	*showVersion = false
	*history = 3
	assert.Equal(t, 1, execute(), "-history without -db fails")

	*dbFile = filepath.Join(t.TempDir(), "runs.db")
	assert.Equal(t, 0, execute())
}
