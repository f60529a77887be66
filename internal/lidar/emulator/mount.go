package emulator

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
	"github.com/banshee-data/sensor-emulator/internal/monitoring"
)

// TIMESTAMPS_EXT names the per-mount index file that sits next to the
// mount directory: <dataset>/<mount>.timestamps.
const TIMESTAMPS_EXT = ".timestamps"

// SensorMount is one logical sensor position and the location of its scans.
type SensorMount struct {
	Name           string // e.g. velodyne_left
	Dir            string // directory holding <timestamp>.png frames
	TimestampsPath string // sibling index file
}

// NewSensorMount validates the basename of dir against allowed and
// returns the mount. No filesystem access happens here.
func NewSensorMount(dir string, allowed []string) (*SensorMount, error) {
	dir = filepath.Clean(dir)
	name := filepath.Base(dir)
	if !slices.Contains(allowed, name) {
		return nil, fmt.Errorf("%w: unrecognised mount %q (expected one of %s)", ErrValidation, name, strings.Join(allowed, ", "))
	}
	return &SensorMount{
		Name:           name,
		Dir:            dir,
		TimestampsPath: filepath.Join(filepath.Dir(dir), name+TIMESTAMPS_EXT),
	}, nil
}

// FramePath returns the scan frame path for timestamp ts.
func (m *SensorMount) FramePath(ts int64) string {
	return filepath.Join(m.Dir, strconv.FormatInt(ts, 10)+hdl32e.SCAN_FRAME_EXT)
}

// ReadTimestamps loads the mount's index: one int64 microsecond timestamp
// per line in the first whitespace-delimited field, strictly ascending.
// Blank lines are skipped; trailing fields are ignored.
func ReadTimestamps(fsys fsutil.FileSystem, path string) ([]int64, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: timestamp index %s", hdl32e.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read timestamp index %s: %w", path, err)
	}

	var out []int64
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: bad timestamp %q", ErrValidation, path, line, fields[0])
		}
		if n := len(out); n > 0 && ts <= out[n-1] {
			return nil, fmt.Errorf("%w: %s:%d: timestamp %d does not follow %d", ErrValidation, path, line, ts, out[n-1])
		}
		out = append(out, ts)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: timestamp index %s is empty", ErrValidation, path)
	}
	return out, nil
}

// DiscoverMounts lists directories directly under root whose name is in
// allowed, in name order. Other sensors in the dataset (cameras, radar) are
// skipped. A mount is returned even when its .timestamps index is missing so
// that processing reports it as a failed mount instead of dropping it.
func DiscoverMounts(fsys fsutil.FileSystem, root string, allowed []string) ([]*SensorMount, error) {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: dataset root %s", hdl32e.ErrNotFound, root)
		}
		return nil, fmt.Errorf("failed to list dataset root %s: %w", root, err)
	}

	indexes := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), TIMESTAMPS_EXT) {
			indexes[strings.TrimSuffix(e.Name(), TIMESTAMPS_EXT)] = true
		}
	}

	var mounts []*SensorMount
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !slices.Contains(allowed, e.Name()) {
			if indexes[e.Name()] {
				monitoring.Logf("skipping %s: not a recognised mount", e.Name())
			}
			continue
		}
		if !indexes[e.Name()] {
			monitoring.Logf("%s: no %s index next to the mount directory", e.Name(), TIMESTAMPS_EXT)
		}
		m, err := NewSensorMount(filepath.Join(root, e.Name()), allowed)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}
