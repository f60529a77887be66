package network

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
)

// CapturedPacket is one record read back from a capture file with its UDP
// fields split out.
type CapturedPacket struct {
	Timestamp time.Time
	Data      []byte // full frame
	SrcPort   uint16
	DstPort   uint16
	Payload   []byte // UDP payload
}

// CaptureReader provides sequential access to the packets of a capture.
// This abstraction enables unit testing without real capture files.
type CaptureReader interface {
	// NextPacket returns the next packet, or nil and io.EOF at the end.
	NextPacket() (*CapturedPacket, error)

	// LinkType returns the capture's link type.
	LinkType() int

	// Close releases the underlying file.
	Close() error
}

type pcapReader struct {
	f fs.File
	r *pcapgo.Reader
}

// OpenCapture opens a pcap file for reading.
func OpenCapture(fsys fsutil.FileSystem, path string) (CaptureReader, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header from %s: %w", path, err)
	}
	return &pcapReader{f: f, r: r}, nil
}

func (p *pcapReader) NextPacket() (*CapturedPacket, error) {
	data, ci, err := p.r.ReadPacketData()
	if err != nil {
		return nil, err
	}

	cp := &CapturedPacket{Timestamp: ci.Timestamp, Data: data}
	pkt := gopacket.NewPacket(data, p.r.LinkType(), gopacket.NoCopy)
	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		if udp, ok := udpLayer.(*layers.UDP); ok {
			cp.SrcPort = uint16(udp.SrcPort)
			cp.DstPort = uint16(udp.DstPort)
			cp.Payload = udp.Payload
		}
	}
	return cp, nil
}

func (p *pcapReader) LinkType() int { return int(p.r.LinkType()) }

func (p *pcapReader) Close() error { return p.f.Close() }

// ReadCapture reads every packet in the capture at path, in file order.
func ReadCapture(fsys fsutil.FileSystem, path string) ([]*CapturedPacket, error) {
	r, err := OpenCapture(fsys, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var packets []*CapturedPacket
	for {
		p, err := r.NextPacket()
		if errors.Is(err, io.EOF) {
			return packets, nil
		}
		if err != nil {
			return packets, fmt.Errorf("failed to read packet %d from %s: %w", len(packets)+1, path, err)
		}
		packets = append(packets, p)
	}
}
