package emulator

import (
	"fmt"
	"time"

	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
	"github.com/banshee-data/sensor-emulator/internal/lidar/network"
)

// Scheduler turns a mount's measurement blocks into the ordered packet
// stream. It owns the emission counter for exactly one mount: the counter
// starts at 1 and advances once per emitted packet, and whenever it lands
// on a multiple of the ratio a position packet is emitted instead of the
// next firing group.
//
// A Scheduler is not safe for concurrent use; give each mount its own.
type Scheduler struct {
	framer *network.Framer
	ratio  int

	counter         int
	packets         []network.Packet
	lastDataTime    time.Time
	dataPackets     int
	positionPackets int
}

// NewScheduler returns a scheduler emitting one position packet per ratio
// emissions. ratio must be at least 2 so that data packets can be emitted.
func NewScheduler(framer *network.Framer, ratio int) (*Scheduler, error) {
	if framer == nil {
		return nil, fmt.Errorf("%w: nil framer", hdl32e.ErrInvalidInput)
	}
	if ratio < 2 {
		return nil, fmt.Errorf("%w: position ratio must be at least 2, got %d", ErrValidation, ratio)
	}
	return &Scheduler{framer: framer, ratio: ratio, counter: 1}, nil
}

// Add consumes every firing group of block in column order, injecting
// position packets at the configured cadence.
func (s *Scheduler) Add(block *hdl32e.MeasurementBlock) error {
	for i := 0; i < block.Packets(); i++ {
		if s.counter%s.ratio == 0 {
			if err := s.emitPosition(); err != nil {
				return err
			}
		}

		group, err := block.Group(i)
		if err != nil {
			return err
		}
		payload, err := hdl32e.EncodeFiringPacket(group)
		if err != nil {
			return fmt.Errorf("failed to encode firing group %d: %w", i, err)
		}
		ts := time.UnixMicro(group.Timestamps[0]).UTC()
		p, err := s.framer.Frame(network.KindData, payload, ts)
		if err != nil {
			return err
		}
		s.packets = append(s.packets, p)
		s.lastDataTime = ts
		s.dataPackets++
		s.counter++
	}
	return nil
}

// emitPosition appends a position packet stamped with the most recent
// data packet's time.
func (s *Scheduler) emitPosition() error {
	p, err := s.framer.Frame(network.KindPosition, hdl32e.PositionPacket(), s.lastDataTime)
	if err != nil {
		return err
	}
	s.packets = append(s.packets, p)
	s.positionPackets++
	s.counter++
	return nil
}

// Packets returns the packets emitted so far in emission order.
func (s *Scheduler) Packets() []network.Packet {
	return s.packets
}

// Emitted returns the number of packets emitted so far.
func (s *Scheduler) Emitted() int {
	return s.counter - 1
}

// Counts returns the number of data and position packets emitted.
func (s *Scheduler) Counts() (data, position int) {
	return s.dataPackets, s.positionPackets
}
