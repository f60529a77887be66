package hdl32e

import (
	"encoding/binary"
	"fmt"
)

/*
Velodyne HDL-32E Data Packet (single return mode)

PACKET STRUCTURE (1206 bytes of UDP payload):
├── Firing Blocks (1200 bytes) - 12 blocks × 100 bytes each
│   └── Each block: 2-byte flag (0xFF 0xEE) + 2-byte azimuth + 32 beams × 3 bytes (distance + intensity)
└── Tail (6 bytes)
    ├── 4-byte timestamp, microseconds since the top of the hour, little-endian
    └── 2-byte factory/model identifier 0x3711, written 0x37 then 0x11

All multi-byte measurement values are little-endian. Distances are in 2mm units
and azimuths in 0.01 degree units; both are carried through unscaled.
*/

const (
	BEAMS                 = 32                                              // Laser channels per firing block
	FIRINGS_PER_PACKET    = 12                                              // Firing blocks per data packet
	BYTES_PER_BEAM        = 3                                               // 2 bytes distance + 1 byte intensity
	FLAG_SIZE             = 2                                               // Block flag 0xFFEE
	AZIMUTH_SIZE          = 2                                               // Block azimuth
	FIRING_BLOCK_SIZE     = FLAG_SIZE + AZIMUTH_SIZE + BEAMS*BYTES_PER_BEAM // 100 bytes
	TIMESTAMP_SIZE        = 4                                               // Tail timestamp
	FACTORY_SIZE          = 2                                               // Tail factory/model identifier
	TAIL_START            = FIRINGS_PER_PACKET * FIRING_BLOCK_SIZE          // 1200
	DATA_PACKET_SIZE      = TAIL_START + TIMESTAMP_SIZE + FACTORY_SIZE      // 1206
	MICROSECONDS_PER_HOUR = 3_600_000_000                                   // Timestamp wrap period

	FLAG_UPPER_BANK = 0xFFEE // Written big-endian: 0xFF then 0xEE
	FACTORY_ID      = 0x3711 // Written big-endian: 0x37 then 0x11
)

// WrapTimestamp reduces an absolute microsecond timestamp to microseconds
// past the most recent top of the hour, as carried in the packet tail.
func WrapTimestamp(us int64) uint32 {
	w := us % MICROSECONDS_PER_HOUR
	if w < 0 {
		w += MICROSECONDS_PER_HOUR
	}
	return uint32(w)
}

// EncodeFiringPacket serializes exactly one packet's worth of columns into a
// 1206-byte data packet payload. group must hold FIRINGS_PER_PACKET columns
// and at least one timestamp; Group(i) on a decoded block yields such a view.
func EncodeFiringPacket(group *MeasurementBlock) ([]byte, error) {
	return AppendFiringPacket(make([]byte, 0, DATA_PACKET_SIZE), group)
}

// AppendFiringPacket appends the data packet payload for group to dst.
func AppendFiringPacket(dst []byte, group *MeasurementBlock) ([]byte, error) {
	if group == nil {
		return nil, fmt.Errorf("%w: nil firing group", ErrInvalidInput)
	}
	if n := group.Columns(); n != FIRINGS_PER_PACKET {
		return nil, fmt.Errorf("%w: firing packet needs %d columns, got %d", ErrInvalidInput, FIRINGS_PER_PACKET, n)
	}
	if len(group.Timestamps) == 0 {
		return nil, fmt.Errorf("%w: firing group has no timestamp", ErrInvalidInput)
	}
	for beam := 0; beam < BEAMS; beam++ {
		if len(group.Ranges[beam]) != FIRINGS_PER_PACKET || len(group.Intensities[beam]) != FIRINGS_PER_PACKET {
			return nil, fmt.Errorf("%w: beam %d has %d ranges and %d intensities", ErrInvalidInput,
				beam, len(group.Ranges[beam]), len(group.Intensities[beam]))
		}
	}

	for col := 0; col < FIRINGS_PER_PACKET; col++ {
		dst = binary.BigEndian.AppendUint16(dst, FLAG_UPPER_BANK)
		dst = binary.LittleEndian.AppendUint16(dst, group.Azimuths[col])
		for beam := 0; beam < BEAMS; beam++ {
			dst = binary.LittleEndian.AppendUint16(dst, group.Ranges[beam][col])
			dst = append(dst, group.Intensities[beam][col])
		}
	}
	dst = binary.LittleEndian.AppendUint32(dst, WrapTimestamp(group.Timestamps[0]))
	dst = binary.BigEndian.AppendUint16(dst, FACTORY_ID)
	return dst, nil
}

// FiringPacket is the decoded form of a data packet payload.
type FiringPacket struct {
	Azimuths    [FIRINGS_PER_PACKET]uint16
	Ranges      [BEAMS][FIRINGS_PER_PACKET]uint16
	Intensities [BEAMS][FIRINGS_PER_PACKET]uint8
	Timestamp   uint32 // microseconds past the hour
	Factory     uint16
}

// DecodeFiringPacket parses a 1206-byte data packet payload.
func DecodeFiringPacket(data []byte) (*FiringPacket, error) {
	if len(data) != DATA_PACKET_SIZE {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrFormat, DATA_PACKET_SIZE, len(data))
	}

	p := &FiringPacket{}
	for col := 0; col < FIRINGS_PER_PACKET; col++ {
		block := data[col*FIRING_BLOCK_SIZE : (col+1)*FIRING_BLOCK_SIZE]
		if flag := binary.BigEndian.Uint16(block[0:2]); flag != FLAG_UPPER_BANK {
			return nil, fmt.Errorf("%w: block %d flag 0x%04X", ErrFormat, col, flag)
		}
		p.Azimuths[col] = binary.LittleEndian.Uint16(block[2:4])
		for beam := 0; beam < BEAMS; beam++ {
			off := FLAG_SIZE + AZIMUTH_SIZE + beam*BYTES_PER_BEAM
			p.Ranges[beam][col] = binary.LittleEndian.Uint16(block[off:])
			p.Intensities[beam][col] = block[off+2]
		}
	}
	p.Timestamp = binary.LittleEndian.Uint32(data[TAIL_START:])
	p.Factory = binary.BigEndian.Uint16(data[TAIL_START+TIMESTAMP_SIZE:])
	return p, nil
}
