// Package emulator drives the per-mount conversion of raster scan frames into
// HDL-32E packet captures.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/lidar/hdl32e"
	"github.com/banshee-data/sensor-emulator/internal/lidar/network"
	"github.com/banshee-data/sensor-emulator/internal/monitoring"
	"github.com/banshee-data/sensor-emulator/internal/timeutil"
)

// DefaultPositionRatio emits one position packet per 15 emissions.
const DefaultPositionRatio = 15

// RunRecorder persists the outcome of a mount run. Implementations must be
// safe for concurrent use when Workers > 1.
type RunRecorder interface {
	RecordRun(result *MountResult) error
}

// Options configures an Emulator. Zero values take defaults.
type Options struct {
	Ratio            int                    // position packet cadence, >= 2
	Framer           *network.Framer        // defaults to factory addressing
	Writer           *network.CaptureWriter // required
	FS               fsutil.FileSystem      // defaults to the OS filesystem
	AllowedMounts    []string               // recognised mount names
	Workers          int                    // mounts processed concurrently
	ProgressInterval int                    // frames between progress lines; 0 disables
	Recorder         RunRecorder            // optional run ledger
	Clock            timeutil.Clock         // defaults to the wall clock
}

// MountResult describes one processed mount.
type MountResult struct {
	RunID           string
	Mount           string
	Frames          int
	DataPackets     int
	PositionPackets int
	CapturePath     string
	Summary         hdl32e.Summary
	StartedAt       time.Time
	FinishedAt      time.Time
	Err             error
}

// Emulator converts sensor mounts to captures.
type Emulator struct {
	ratio            int
	framer           *network.Framer
	writer           *network.CaptureWriter
	fs               fsutil.FileSystem
	decoder          *hdl32e.FrameDecoder
	allowed          []string
	workers          int
	progressInterval int
	recorder         RunRecorder
	clock            timeutil.Clock
}

// New validates opts and returns an Emulator.
func New(opts Options) (*Emulator, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("%w: capture writer is required", ErrValidation)
	}
	if opts.Ratio == 0 {
		opts.Ratio = DefaultPositionRatio
	}
	if opts.Ratio < 2 {
		return nil, fmt.Errorf("%w: position ratio must be at least 2, got %d", ErrValidation, opts.Ratio)
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Framer == nil {
		f, err := network.NewFramer(network.DefaultFramerConfig())
		if err != nil {
			return nil, err
		}
		opts.Framer = f
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if len(opts.AllowedMounts) == 0 {
		return nil, fmt.Errorf("%w: no recognised mount names configured", ErrValidation)
	}

	return &Emulator{
		ratio:            opts.Ratio,
		framer:           opts.Framer,
		writer:           opts.Writer,
		fs:               opts.FS,
		decoder:          hdl32e.NewFrameDecoder(opts.FS),
		allowed:          opts.AllowedMounts,
		workers:          opts.Workers,
		progressInterval: opts.ProgressInterval,
		recorder:         opts.Recorder,
		clock:            opts.Clock,
	}, nil
}

// ProcessMount emulates a single mount directory. The timestamp index is
// read and validated before any frame is decoded, and the capture is only
// written once every frame has been encoded, so a failed mount never leaves
// a capture behind.
func (e *Emulator) ProcessMount(ctx context.Context, dir string) (*MountResult, error) {
	m, err := NewSensorMount(dir, e.allowed)
	if err != nil {
		return nil, err
	}

	result := &MountResult{
		RunID:     uuid.NewString(),
		Mount:     m.Name,
		StartedAt: e.clock.Now(),
	}
	err = e.processMount(ctx, m, result)
	result.FinishedAt = e.clock.Now()
	if err != nil {
		result.Err = &MountError{Mount: m.Name, Err: err}
	}

	if e.recorder != nil {
		if rerr := e.recorder.RecordRun(result); rerr != nil {
			monitoring.Logf("failed to record run %s for %s: %v", result.RunID, m.Name, rerr)
		}
	}
	return result, result.Err
}

func (e *Emulator) processMount(ctx context.Context, m *SensorMount, result *MountResult) error {
	logf := monitoring.MountLogf(m.Name)

	// Cancellation is honoured between mounts; a started mount runs to completion.
	if err := ctx.Err(); err != nil {
		return err
	}
	timestamps, err := ReadTimestamps(e.fs, m.TimestampsPath)
	if err != nil {
		return err
	}
	logf("emulating %d frames at position ratio %d", len(timestamps), e.ratio)

	sched, err := NewScheduler(e.framer, e.ratio)
	if err != nil {
		return err
	}
	var acc hdl32e.SummaryAccumulator

	for i, ts := range timestamps {
		path := m.FramePath(ts)
		block, err := e.decoder.DecodeFile(path)
		if err != nil {
			return err
		}
		if err := sched.Add(block); err != nil {
			return fmt.Errorf("frame %s: %w", path, err)
		}
		acc.Add(block)
		result.Frames++

		if e.progressInterval > 0 && (i+1)%e.progressInterval == 0 {
			logf("%d/%d frames, %d packets", i+1, len(timestamps), sched.Emitted())
		}
	}

	path, err := e.writer.Write(m.Name, sched.Packets())
	if err != nil {
		return err
	}
	result.CapturePath = path
	result.DataPackets, result.PositionPackets = sched.Counts()
	result.Summary = acc.Summary()

	s := result.Summary
	logf("done in %s: %d data packets, %d position packets, %.1f%% returns, mean range %.2fm",
		e.clock.Since(result.StartedAt), result.DataPackets, result.PositionPackets, 100*s.ReturnFraction(), s.MeanRangeMeters)
	return nil
}

// Run processes every mount directory independently, up to Workers at a
// time. A failing mount does not stop the others; the returned error joins
// one *MountError per failed mount. Results are returned in input order,
// with a nil entry for mounts rejected before processing started.
func (e *Emulator) Run(ctx context.Context, dirs []string) ([]*MountResult, error) {
	results := make([]*MountResult, len(dirs))
	errs := make([]error, len(dirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = &MountError{Mount: dir, Err: err}
				return nil
			}
			res, err := e.ProcessMount(gctx, dir)
			results[i] = res
			if err != nil {
				var me *MountError
				if !errors.As(err, &me) {
					err = &MountError{Mount: dir, Err: err}
				}
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// VerifyCapture reads a capture back and checks that position packets sit
// exactly at every ratio-th emission and that every payload has the size
// its port implies.
func VerifyCapture(fsys fsutil.FileSystem, path string, framer *network.Framer, ratio int) (data, position int, err error) {
	packets, err := network.ReadCapture(fsys, path)
	if err != nil {
		return 0, 0, err
	}
	dataPort := framer.Port(network.KindData)
	posPort := framer.Port(network.KindPosition)

	for i, p := range packets {
		counter := i + 1
		wantPosition := counter%ratio == 0
		switch {
		case p.DstPort == posPort && wantPosition:
			if len(p.Payload) != hdl32e.POSITION_PACKET_SIZE {
				return data, position, fmt.Errorf("%w: packet %d: position payload is %d bytes", ErrCaptureMismatch, counter, len(p.Payload))
			}
			position++
		case p.DstPort == dataPort && !wantPosition:
			if len(p.Payload) != hdl32e.DATA_PACKET_SIZE {
				return data, position, fmt.Errorf("%w: packet %d: data payload is %d bytes", ErrCaptureMismatch, counter, len(p.Payload))
			}
			data++
		default:
			return data, position, fmt.Errorf("%w: packet %d: unexpected port %d", ErrCaptureMismatch, counter, p.DstPort)
		}
	}
	return data, position, nil
}
