package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
)

func TestMakeBlock(t *testing.T) {
	b := MakeBlock(24, FirstTimestamp)
	assert.Equal(t, 24, b.Columns())
	assert.Equal(t, 2, b.Packets())
	assert.Equal(t, []int64{FirstTimestamp, FirstTimestamp + GroupGap}, b.Timestamps)
	for beam := 0; beam < hdl32e.BEAMS; beam++ {
		for _, r := range b.Ranges[beam] {
			assert.NotZero(t, r)
		}
	}
}

func TestWriteMount(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	blocks := WriteMount(t, fsys, "/data", "velodyne_left", 12, 36)
	require.Len(t, blocks, 2)

	index, err := fsys.ReadFile("/data/velodyne_left.timestamps")
	require.NoError(t, err)
	assert.Equal(t, "1547120000000000 0\n1547120000100000 1\n", string(index))

	data, err := fsys.ReadFile("/data/velodyne_left/1547120000100000.png")
	require.NoError(t, err)
	got, err := hdl32e.DecodeFrame(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Azimuths, got.Azimuths)
	assert.Equal(t, blocks[1].Timestamps, got.Timestamps)
}
