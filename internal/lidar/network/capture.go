package network

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/monitoring"
)

const (
	DefaultCaptureExtension = "pcap"
	DefaultSnapLen          = 65536
)

// CaptureWriter writes one pcap file per sensor mount into a fixed output
// directory. Files are written to a temporary name and renamed into place,
// so a failed write never leaves a truncated capture under the final name.
type CaptureWriter struct {
	fs      fsutil.FileSystem
	dir     string
	ext     string
	snaplen uint32
}

// NewCaptureWriter returns a writer for dir. Empty ext and zero snaplen take
// the defaults; a nil fsys writes to the operating system.
func NewCaptureWriter(fsys fsutil.FileSystem, dir, ext string, snaplen uint32) *CaptureWriter {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if ext == "" {
		ext = DefaultCaptureExtension
	}
	if snaplen == 0 {
		snaplen = DefaultSnapLen
	}
	return &CaptureWriter{fs: fsys, dir: dir, ext: ext, snaplen: snaplen}
}

// Path returns the capture path for mount.
func (w *CaptureWriter) Path(mount string) string {
	return filepath.Join(w.dir, mount+"."+w.ext)
}

// Write creates the output directory if needed and writes packets, in
// order, to the mount's capture file, replacing any existing file.
func (w *CaptureWriter) Write(mount string, packets []Packet) (string, error) {
	if err := w.fs.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", w.dir, err)
	}

	path := w.Path(mount)
	tmp := path + ".tmp"
	if err := w.writeFile(tmp, packets); err != nil {
		if rmErr := w.fs.Remove(tmp); rmErr != nil {
			monitoring.Logf("failed to remove partial capture %s: %v", tmp, rmErr)
		}
		return "", err
	}
	if err := w.fs.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move capture into place at %s: %w", path, err)
	}

	monitoring.Logf("wrote capture %s: %d packets", path, len(packets))
	return path, nil
}

func (w *CaptureWriter) writeFile(path string, packets []Packet) (err error) {
	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close capture %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	pw := pcapgo.NewWriter(bw)
	if err := pw.WriteFileHeader(w.snaplen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     p.Timestamp,
			CaptureLength: len(p.Data),
			Length:        len(p.Data),
		}
		if err := pw.WritePacket(ci, p.Data); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush capture %s: %w", path, err)
	}
	return nil
}
