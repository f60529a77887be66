package camera

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/monitoring"
)

const (
	DefaultEncoder   = "ffmpeg"
	DefaultVideoExt  = "mp4"
	DefaultFrameRate = 25.0
)

var (
	// ErrNoFrames reports an image directory with nothing to encode.
	ErrNoFrames = errors.New("camera: no image frames")

	// ErrEncoder reports a failed encoder run.
	ErrEncoder = errors.New("camera: encoder failed")
)

// VideoAssembler turns a directory of image frames into one video file
// named after the directory. Frames are taken in name order, which for
// <timestamp>.png frames is capture order.
type VideoAssembler struct {
	Builder CommandBuilder
	FS      fsutil.FileSystem
	Encoder string // executable, defaults to ffmpeg
	OutDir  string
}

// NewVideoAssembler returns an assembler writing into outDir.
func NewVideoAssembler(fsys fsutil.FileSystem, outDir string) *VideoAssembler {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &VideoAssembler{
		Builder: ExecCommandBuilder{},
		FS:      fsys,
		Encoder: DefaultEncoder,
		OutDir:  outDir,
	}
}

// frameExt returns the extension shared by the non-hidden files in dir and
// how many there are. Mixed extensions are rejected since the encoder reads
// them through a single glob.
func (a *VideoAssembler) frameExt(dir string) (string, int, error) {
	entries, err := a.FS.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list image directory %s: %w", dir, err)
	}
	ext, n := "", 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fe := filepath.Ext(e.Name())
		if ext == "" {
			ext = fe
		} else if fe != ext {
			return "", 0, fmt.Errorf("%w: %s mixes %s and %s frames", ErrNoFrames, dir, ext, fe)
		}
		n++
	}
	if n == 0 || ext == "" {
		return "", 0, fmt.Errorf("%w: %s", ErrNoFrames, dir)
	}
	return ext, n, nil
}

// Args returns the encoder arguments for the frames in dir.
func (a *VideoAssembler) Args(dir, ext string, frameRate float64, videoExt string) []string {
	name := filepath.Base(filepath.Clean(dir))
	return []string{
		"-y",
		"-framerate", strconv.FormatFloat(frameRate, 'f', -1, 64),
		"-pattern_type", "glob",
		"-i", filepath.Join(dir, "*"+ext),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		filepath.Join(a.OutDir, name+"."+videoExt),
	}
}

// Assemble encodes the frames in dir at frameRate into
// <OutDir>/<dir name>.<videoExt> and returns the video path.
func (a *VideoAssembler) Assemble(ctx context.Context, dir string, frameRate float64, videoExt string) (string, error) {
	if frameRate <= 0 {
		return "", fmt.Errorf("frame rate must be positive, got %g", frameRate)
	}
	if videoExt == "" {
		videoExt = DefaultVideoExt
	}
	videoExt = strings.TrimPrefix(videoExt, ".")

	ext, n, err := a.frameExt(dir)
	if err != nil {
		return "", err
	}
	if err := a.FS.MkdirAll(a.OutDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", a.OutDir, err)
	}

	args := a.Args(dir, ext, frameRate, videoExt)
	out := args[len(args)-1]
	monitoring.Logf("encoding %d frames from %s at %g fps into %s", n, dir, frameRate, out)

	output, err := a.Builder.BuildCommand(ctx, a.Encoder, args...).Run()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v\n%s", ErrEncoder, a.Encoder, err, lastLines(output, 5))
	}
	return out, nil
}

// FrameRateFromTimestamps derives frames per second from ascending
// microsecond capture timestamps.
func FrameRateFromTimestamps(ts []int64) (float64, error) {
	if len(ts) < 2 {
		return 0, fmt.Errorf("need at least two timestamps, got %d", len(ts))
	}
	span := ts[len(ts)-1] - ts[0]
	if span <= 0 {
		return 0, fmt.Errorf("timestamps do not advance")
	}
	return float64(len(ts)-1) * 1e6 / float64(span), nil
}

func lastLines(b []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
