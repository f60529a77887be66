package hdl32e

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
)

/*
Raster Scan Frame Layout

Each captured rotation is stored as an 8-bit grayscale PNG named <timestamp>.png.
The rows of the raster stack the measurement fields; every column is one firing
group (one azimuth):

├── rows [0, 32)    intensity, one byte per beam
├── rows [32, 96)   range, two rows per beam, little-endian uint16
├── rows [96, 98)   azimuth, little-endian uint16 in 0.01 degree units
└── rows [98, 106)  capture timestamp, little-endian int64 microseconds

Timestamps inside one packet's 12 columns are interpolated copies, so only the
first column of every group of 12 is kept as the packet timestamp.
*/

const (
	SCAN_FRAME_EXT       = ".png"
	INTENSITY_ROW_START  = 0
	RANGE_ROW_START      = BEAMS                                      // 32
	AZIMUTH_ROW_START    = RANGE_ROW_START + 2*BEAMS                  // 96
	TIMESTAMP_ROW_START  = AZIMUTH_ROW_START + 2                      // 98
	TIMESTAMP_ROW_HEIGHT = 8                                          // int64 bytes
	SCAN_FRAME_ROWS      = TIMESTAMP_ROW_START + TIMESTAMP_ROW_HEIGHT // 106
)

// MeasurementBlock holds one decoded rotation. Ranges and Intensities are
// indexed [beam][column]; Azimuths has one entry per column and Timestamps
// one entry per firing packet (every FIRINGS_PER_PACKET columns).
type MeasurementBlock struct {
	Ranges      [BEAMS][]uint16
	Intensities [BEAMS][]uint8
	Azimuths    []uint16
	Timestamps  []int64
}

// Columns returns the number of firing groups in the block.
func (b *MeasurementBlock) Columns() int {
	return len(b.Azimuths)
}

// Packets returns the number of firing packets the block encodes to.
func (b *MeasurementBlock) Packets() int {
	return len(b.Azimuths) / FIRINGS_PER_PACKET
}

// Group returns the columns and timestamp for firing packet i as a new
// MeasurementBlock view sharing storage with b.
func (b *MeasurementBlock) Group(i int) (*MeasurementBlock, error) {
	if i < 0 || i >= b.Packets() {
		return nil, fmt.Errorf("%w: firing group %d out of range [0,%d)", ErrInvalidInput, i, b.Packets())
	}
	lo, hi := i*FIRINGS_PER_PACKET, (i+1)*FIRINGS_PER_PACKET
	g := &MeasurementBlock{
		Azimuths:   b.Azimuths[lo:hi],
		Timestamps: b.Timestamps[i : i+1],
	}
	for beam := 0; beam < BEAMS; beam++ {
		g.Ranges[beam] = b.Ranges[beam][lo:hi]
		g.Intensities[beam] = b.Intensities[beam][lo:hi]
	}
	return g, nil
}

// FrameDecoder reads raster scan frames through a FileSystem so tests can
// run against an in-memory tree.
type FrameDecoder struct {
	fs fsutil.FileSystem
}

// NewFrameDecoder returns a decoder reading from fsys. A nil fsys reads from
// the operating system.
func NewFrameDecoder(fsys fsutil.FileSystem) *FrameDecoder {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &FrameDecoder{fs: fsys}
}

// DecodeFile loads and decodes the scan frame at path.
func (d *FrameDecoder) DecodeFile(path string) (*MeasurementBlock, error) {
	if ext := filepath.Ext(path); ext != SCAN_FRAME_EXT {
		return nil, fmt.Errorf("%w: scan frame should have %s extension but had %q: %s", ErrFormat, SCAN_FRAME_EXT, ext, path)
	}

	f, err := d.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: scan frame %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open scan frame %s: %w", path, err)
	}
	defer f.Close()

	block, err := DecodeFrame(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return block, nil
}

// DecodeFrame decodes a PNG raster scan frame from r.
func DecodeFrame(r io.Reader) (*MeasurementBlock, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return DecodeRaster(toGray(img))
}

// toGray returns img as 8-bit grayscale, converting other colour models.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// DecodeRaster splits a grayscale raster into measurement arrays.
func DecodeRaster(img *image.Gray) (*MeasurementBlock, error) {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	if rows != SCAN_FRAME_ROWS {
		return nil, fmt.Errorf("%w: expected %d rows, got %d", ErrFormat, SCAN_FRAME_ROWS, rows)
	}
	if cols == 0 || cols%FIRINGS_PER_PACKET != 0 {
		return nil, fmt.Errorf("%w: column count %d is not a positive multiple of %d", ErrFormat, cols, FIRINGS_PER_PACKET)
	}

	px := func(row, col int) uint8 {
		return img.GrayAt(bounds.Min.X+col, bounds.Min.Y+row).Y
	}

	block := &MeasurementBlock{
		Azimuths:   make([]uint16, cols),
		Timestamps: make([]int64, cols/FIRINGS_PER_PACKET),
	}
	for beam := 0; beam < BEAMS; beam++ {
		block.Ranges[beam] = make([]uint16, cols)
		block.Intensities[beam] = make([]uint8, cols)
	}

	for col := 0; col < cols; col++ {
		for beam := 0; beam < BEAMS; beam++ {
			block.Intensities[beam][col] = px(INTENSITY_ROW_START+beam, col)
			lo := px(RANGE_ROW_START+2*beam, col)
			hi := px(RANGE_ROW_START+2*beam+1, col)
			block.Ranges[beam][col] = uint16(lo) | uint16(hi)<<8
		}
		block.Azimuths[col] = uint16(px(AZIMUTH_ROW_START, col)) | uint16(px(AZIMUTH_ROW_START+1, col))<<8

		if col%FIRINGS_PER_PACKET == 0 {
			var ts uint64
			for k := 0; k < TIMESTAMP_ROW_HEIGHT; k++ {
				ts |= uint64(px(TIMESTAMP_ROW_START+k, col)) << (8 * k)
			}
			block.Timestamps[col/FIRINGS_PER_PACKET] = int64(ts)
		}
	}

	return block, nil
}

// EncodeRaster is the inverse of DecodeRaster. Every column of a packet
// group carries that group's timestamp. It is used to build scan frame
// fixtures.
func EncodeRaster(block *MeasurementBlock) (*image.Gray, error) {
	cols := block.Columns()
	if cols == 0 || cols%FIRINGS_PER_PACKET != 0 || len(block.Timestamps) != cols/FIRINGS_PER_PACKET {
		return nil, fmt.Errorf("%w: block has %d columns and %d timestamps", ErrInvalidInput, cols, len(block.Timestamps))
	}
	img := image.NewGray(image.Rect(0, 0, cols, SCAN_FRAME_ROWS))
	set := func(row, col int, v uint8) {
		img.Pix[row*img.Stride+col] = v
	}
	for col := 0; col < cols; col++ {
		for beam := 0; beam < BEAMS; beam++ {
			if len(block.Ranges[beam]) != cols || len(block.Intensities[beam]) != cols {
				return nil, fmt.Errorf("%w: beam %d has mismatched column count", ErrInvalidInput, beam)
			}
			set(INTENSITY_ROW_START+beam, col, block.Intensities[beam][col])
			r := block.Ranges[beam][col]
			set(RANGE_ROW_START+2*beam, col, uint8(r))
			set(RANGE_ROW_START+2*beam+1, col, uint8(r>>8))
		}
		az := block.Azimuths[col]
		set(AZIMUTH_ROW_START, col, uint8(az))
		set(AZIMUTH_ROW_START+1, col, uint8(az>>8))
		ts := uint64(block.Timestamps[col/FIRINGS_PER_PACKET])
		for k := 0; k < TIMESTAMP_ROW_HEIGHT; k++ {
			set(TIMESTAMP_ROW_START+k, col, uint8(ts>>(8*k)))
		}
	}
	return img, nil
}

// WriteFrame encodes block as a PNG scan frame to w.
func WriteFrame(w io.Writer, block *MeasurementBlock) error {
	img, err := EncodeRaster(block)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
