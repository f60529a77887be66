// Package testutil provides shared test fixtures: synthetic scan frames and
// dataset layouts in an in-memory filesystem.
package testutil

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
)

const (
	FirstTimestamp = int64(1_547_120_000_000_000) // 2019-01-10 11:33:20 UTC
	FrameGap       = int64(100_000)               // 10 Hz rotation
	GroupGap       = int64(553)                   // microseconds between firing packets
)

// MakeBlock builds a block whose every value identifies its beam and
// column, so packet order can be checked after a round trip. Ranges are
// never zero.
func MakeBlock(cols int, startUs int64) *hdl32e.MeasurementBlock {
	b := &hdl32e.MeasurementBlock{
		Azimuths:   make([]uint16, cols),
		Timestamps: make([]int64, cols/hdl32e.FIRINGS_PER_PACKET),
	}
	for beam := 0; beam < hdl32e.BEAMS; beam++ {
		b.Ranges[beam] = make([]uint16, cols)
		b.Intensities[beam] = make([]uint8, cols)
		for col := 0; col < cols; col++ {
			b.Ranges[beam][col] = uint16(1000 + beam*cols + col)
			b.Intensities[beam][col] = uint8(beam + col)
		}
	}
	for col := 0; col < cols; col++ {
		b.Azimuths[col] = uint16((col * 16) % 36000)
	}
	for i := range b.Timestamps {
		b.Timestamps[i] = startUs + int64(i)*GroupGap
	}
	return b
}

// EncodeFrame returns block as PNG scan frame bytes.
func EncodeFrame(t testing.TB, block *hdl32e.MeasurementBlock) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := hdl32e.WriteFrame(&buf, block); err != nil {
		t.Fatalf("failed to encode scan frame: %v", err)
	}
	return buf.Bytes()
}

// WriteMount lays out <root>/<name>/<ts>.png frames and the sibling
// <root>/<name>.timestamps index, one frame per entry of columns, and
// returns the blocks written in index order.
func WriteMount(t testing.TB, fsys *fsutil.MemoryFileSystem, root, name string, columns ...int) []*hdl32e.MeasurementBlock {
	t.Helper()
	var index strings.Builder
	var blocks []*hdl32e.MeasurementBlock
	for i, cols := range columns {
		ts := FirstTimestamp + int64(i)*FrameGap
		block := MakeBlock(cols, ts)
		fsys.WriteFile(filepath.Join(root, name, fmt.Sprintf("%d%s", ts, hdl32e.SCAN_FRAME_EXT)), EncodeFrame(t, block))
		fmt.Fprintf(&index, "%d %d\n", ts, i)
		blocks = append(blocks, block)
	}
	fsys.WriteFile(filepath.Join(root, name+".timestamps"), []byte(index.String()))
	return blocks
}
