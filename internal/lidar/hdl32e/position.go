package hdl32e

import (
	"fmt"
)

/*
Velodyne HDL-32E Position Packet

PACKET STRUCTURE (512 bytes of UDP payload):
├── Unused (198 bytes)
├── Timestamp (4 bytes) - microseconds past the hour, little-endian
├── Unused (4 bytes)
├── NMEA sentence (72 bytes) - $GPRMC, NUL padded
└── Unused (234 bytes)

The emulator has no GPS source, so every emission carries the same synthetic
fix with a zero timestamp.
*/

const (
	POSITION_PACKET_SIZE     = 512
	POSITION_TIMESTAMP_START = 198
	POSITION_NMEA_START      = POSITION_TIMESTAMP_START + 4 + 4 // 206
	POSITION_NMEA_SIZE       = 72
)

// SyntheticNMEA is the $GPRMC body (without '$' and checksum) carried in every
// position packet: a valid fix at 00:00:00 UTC near Oxford, stationary.
const SyntheticNMEA = "GPRMC,000000,A,5145.1200,N,00115.4600,W,000.0,000.0,010119,000.0,E"

var positionPacket = buildPositionPacket()

// NMEAChecksum returns the XOR of all bytes in body, the NMEA 0183 checksum.
func NMEAChecksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// NMEASentence returns the full sentence for body, framed as $body*HH\r\n.
func NMEASentence(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, NMEAChecksum(body))
}

func buildPositionPacket() []byte {
	p := make([]byte, POSITION_PACKET_SIZE)
	sentence := NMEASentence(SyntheticNMEA)
	if len(sentence) > POSITION_NMEA_SIZE {
		panic(fmt.Sprintf("hdl32e: NMEA sentence is %d bytes, field holds %d", len(sentence), POSITION_NMEA_SIZE))
	}
	copy(p[POSITION_NMEA_START:], sentence)
	return p
}

// PositionPacket returns the synthetic GPS/timing payload. The returned
// slice is a fresh copy each call.
func PositionPacket() []byte {
	out := make([]byte, len(positionPacket))
	copy(out, positionPacket)
	return out
}
