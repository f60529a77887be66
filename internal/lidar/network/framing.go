package network

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Default addressing matches a factory-configured HDL-32E broadcasting on
// the local segment.
const (
	DefaultSourceMAC      = "60:76:88:20:12:6e"
	DefaultDestinationMAC = "ff:ff:ff:ff:ff:ff"
	DefaultSourceIP       = "192.168.1.201"
	DefaultDestinationIP  = "255.255.255.255"
	DefaultDataPort       = 2368
	DefaultPositionPort   = 8308
	DefaultTTL            = 64
)

// PacketKind distinguishes firing data from position payloads.
type PacketKind int

const (
	KindData PacketKind = iota
	KindPosition
)

func (k PacketKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindPosition:
		return "position"
	default:
		return fmt.Sprintf("PacketKind(%d)", int(k))
	}
}

// Packet is one fully framed Ethernet/IPv4/UDP frame ready for a capture.
type Packet struct {
	Kind      PacketKind
	Timestamp time.Time
	Data      []byte
}

// FramerConfig holds the constant link, network and transport addressing
// used for every packet of a run.
type FramerConfig struct {
	SourceMAC      string
	DestinationMAC string
	SourceIP       string
	DestinationIP  string
	DataPort       uint16 // used as both source and destination port
	PositionPort   uint16 // used as both source and destination port
	TTL            uint8
}

// DefaultFramerConfig returns the factory HDL-32E addressing.
func DefaultFramerConfig() FramerConfig {
	return FramerConfig{
		SourceMAC:      DefaultSourceMAC,
		DestinationMAC: DefaultDestinationMAC,
		SourceIP:       DefaultSourceIP,
		DestinationIP:  DefaultDestinationIP,
		DataPort:       DefaultDataPort,
		PositionPort:   DefaultPositionPort,
		TTL:            DefaultTTL,
	}
}

// Framer wraps payloads in Ethernet, IPv4 and UDP headers. A Framer is
// immutable after construction and safe for concurrent use.
type Framer struct {
	srcMAC, dstMAC net.HardwareAddr
	srcIP, dstIP   net.IP
	dataPort       uint16
	positionPort   uint16
	ttl            uint8
}

// NewFramer parses and validates cfg.
func NewFramer(cfg FramerConfig) (*Framer, error) {
	srcMAC, err := net.ParseMAC(cfg.SourceMAC)
	if err != nil {
		return nil, fmt.Errorf("invalid source MAC %q: %w", cfg.SourceMAC, err)
	}
	dstMAC, err := net.ParseMAC(cfg.DestinationMAC)
	if err != nil {
		return nil, fmt.Errorf("invalid destination MAC %q: %w", cfg.DestinationMAC, err)
	}
	srcIP := net.ParseIP(cfg.SourceIP).To4()
	if srcIP == nil {
		return nil, fmt.Errorf("invalid source IPv4 address %q", cfg.SourceIP)
	}
	dstIP := net.ParseIP(cfg.DestinationIP).To4()
	if dstIP == nil {
		return nil, fmt.Errorf("invalid destination IPv4 address %q", cfg.DestinationIP)
	}
	if cfg.DataPort == 0 || cfg.PositionPort == 0 {
		return nil, fmt.Errorf("data and position ports must be non-zero, got %d and %d", cfg.DataPort, cfg.PositionPort)
	}
	if cfg.DataPort == cfg.PositionPort {
		return nil, fmt.Errorf("data and position ports must differ, both are %d", cfg.DataPort)
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Framer{
		srcMAC:       srcMAC,
		dstMAC:       dstMAC,
		srcIP:        srcIP,
		dstIP:        dstIP,
		dataPort:     cfg.DataPort,
		positionPort: cfg.PositionPort,
		ttl:          ttl,
	}, nil
}

// Port returns the UDP port used for kind.
func (f *Framer) Port(kind PacketKind) uint16 {
	if kind == KindPosition {
		return f.positionPort
	}
	return f.dataPort
}

// Frame serializes payload behind Ethernet/IPv4/UDP headers with lengths
// and checksums filled in.
func (f *Framer) Frame(kind PacketKind, payload []byte, ts time.Time) (Packet, error) {
	port := layers.UDPPort(f.Port(kind))

	eth := &layers.Ethernet{
		SrcMAC:       f.srcMAC,
		DstMAC:       f.dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Id:       1,
		TTL:      f.ttl,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    f.srcIP,
		DstIP:    f.dstIP,
	}
	udp := &layers.UDP{
		SrcPort: port,
		DstPort: port,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return Packet{}, fmt.Errorf("failed to bind UDP checksum to IPv4 layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return Packet{}, fmt.Errorf("failed to serialize %s packet: %w", kind, err)
	}

	return Packet{Kind: kind, Timestamp: ts, Data: buf.Bytes()}, nil
}
