package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/banshee-data/sensor-emulator/internal/camera"
	"github.com/banshee-data/sensor-emulator/internal/config"
	"github.com/banshee-data/sensor-emulator/internal/db"
	"github.com/banshee-data/sensor-emulator/internal/fsutil"
	"github.com/banshee-data/sensor-emulator/internal/lidar/emulator"
	"github.com/banshee-data/sensor-emulator/internal/lidar/network"
	"github.com/banshee-data/sensor-emulator/internal/version"
)

var (
	sensor      = flag.String("sensor", "lidar", "Sensor type to emulate: lidar or camera")
	dataset     = flag.String("dataset", "", "Dataset root holding <mount>/ directories and <mount>.timestamps files")
	mounts      = flag.String("mounts", "", "Comma-separated mount names to process (default: every mount found in the dataset)")
	outDir      = flag.String("out", "", "Output directory (overrides output_dir)")
	configFile  = flag.String("config", "", "Path to JSON emulator configuration (defaults apply when empty)")
	ratio       = flag.Int("ratio", 0, "Emit a position packet every N packets (overrides position_ratio)")
	workers     = flag.Int("workers", 0, "Mounts processed in parallel (overrides workers)")
	dbFile      = flag.String("db", "", "Optional SQLite run ledger")
	history     = flag.Int("history", 0, "Print the N most recent runs from -db and exit")
	migrateCmd  = flag.String("migrate", "", "Apply a schema action to -db (up, down or status) and exit")
	verify      = flag.Bool("verify", false, "Read each capture back and check packet cadence")
	frameRate   = flag.Float64("frame-rate", 0, "Camera video frame rate in fps (default: derived from timestamps)")
	videoExt    = flag.String("video-ext", camera.DefaultVideoExt, "Camera video container extension")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	os.Exit(execute())
}

// execute runs the command and returns the process exit code. Deferred
// cleanup runs before main calls os.Exit.
func execute() int {
	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Print(err)
		return 1
	}
	return 0
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	if *migrateCmd != "" {
		if *dbFile == "" {
			return errors.New("-migrate requires -db")
		}
		return db.RunMigrateCommand(*migrateCmd, *dbFile, os.Stdout)
	}
	if *history > 0 {
		return printHistory(*dbFile, *history)
	}
	if *dataset == "" {
		return errors.New("-dataset is required")
	}

	switch *sensor {
	case "lidar":
		return runLidar(ctx, cfg, fsutil.OSFileSystem{}, *dataset, splitList(*mounts))
	case "camera":
		return runCamera(ctx, cfg, fsutil.OSFileSystem{}, camera.ExecCommandBuilder{}, *dataset, splitList(*mounts))
	default:
		return fmt.Errorf("unknown -sensor %q (want lidar or camera)", *sensor)
	}
}

// loadConfig reads path, or starts from defaults, and applies flag overrides.
func loadConfig(path string) (*config.EmulatorConfig, error) {
	cfg := config.DefaultEmulatorConfig()
	if path != "" {
		loaded, err := config.LoadEmulatorConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *ratio != 0 {
		cfg.SetPositionRatio(*ratio)
	}
	if *outDir != "" {
		cfg.SetOutputDir(*outDir)
	}
	if *workers != 0 {
		cfg.SetWorkers(*workers)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runLidar(ctx context.Context, cfg *config.EmulatorConfig, fsys fsutil.FileSystem, root string, names []string) error {
	framer, err := network.NewFramer(cfg.FramerConfig())
	if err != nil {
		return err
	}

	opts := emulator.Options{
		Ratio:            cfg.GetPositionRatio(),
		Framer:           framer,
		Writer:           network.NewCaptureWriter(fsys, cfg.GetOutputDir(), cfg.GetCaptureExtension(), cfg.GetSnapLen()),
		FS:               fsys,
		AllowedMounts:    cfg.GetMounts(),
		Workers:          cfg.GetWorkers(),
		ProgressInterval: cfg.GetProgressInterval(),
	}
	if *dbFile != "" {
		ledger, err := db.NewDB(*dbFile)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		defer ledger.Close()
		opts.Recorder = ledger
	}
	emu, err := emulator.New(opts)
	if err != nil {
		return err
	}

	var dirs []string
	if len(names) > 0 {
		for _, n := range names {
			dirs = append(dirs, filepath.Join(root, n))
		}
	} else {
		found, err := emulator.DiscoverMounts(fsys, root, cfg.GetMounts())
		if err != nil {
			return err
		}
		for _, m := range found {
			dirs = append(dirs, m.Dir)
		}
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no lidar mounts found under %s", root)
	}

	log.Printf("emulating %d mount(s) from %s into %s (ratio=%d workers=%d)",
		len(dirs), root, cfg.GetOutputDir(), cfg.GetPositionRatio(), cfg.GetWorkers())
	results, runErr := emu.Run(ctx, dirs)

	for _, res := range results {
		if res == nil || res.Err != nil {
			continue
		}
		log.Printf("%s: %d frames -> %s (%d data, %d position)",
			res.Mount, res.Frames, res.CapturePath, res.DataPackets, res.PositionPackets)
		if *verify {
			data, position, err := emulator.VerifyCapture(fsys, res.CapturePath, framer, cfg.GetPositionRatio())
			if err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("verify %s: %w", res.CapturePath, err))
				continue
			}
			log.Printf("%s: verified %d data and %d position packets", res.Mount, data, position)
		}
	}
	return runErr
}

// cameraDirs lists dataset directories that carry a timestamp index and
// are not lidar mounts.
func cameraDirs(fsys fsutil.FileSystem, root string, lidarMounts []string) ([]string, error) {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset root %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(lidarMounts, e.Name()) {
			continue
		}
		if _, err := fsys.Stat(filepath.Join(root, e.Name()+emulator.TIMESTAMPS_EXT)); err == nil {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}

func runCamera(ctx context.Context, cfg *config.EmulatorConfig, fsys fsutil.FileSystem, builder camera.CommandBuilder, root string, names []string) error {
	var dirs []string
	if len(names) > 0 {
		for _, n := range names {
			dirs = append(dirs, filepath.Join(root, n))
		}
	} else {
		found, err := cameraDirs(fsys, root, cfg.GetMounts())
		if err != nil {
			return err
		}
		dirs = found
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no camera directories found under %s", root)
	}

	assembler := camera.NewVideoAssembler(fsys, cfg.GetOutputDir())
	assembler.Builder = builder

	var errs []error
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		fps := *frameRate
		if fps <= 0 {
			fps = cameraFrameRate(fsys, dir)
		}
		out, err := assembler.Assemble(ctx, dir, fps, *videoExt)
		if err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", filepath.Base(dir), err))
			continue
		}
		log.Printf("%s: wrote %s", filepath.Base(dir), out)
	}
	return errors.Join(errs...)
}

// cameraFrameRate derives the frame rate from the directory's timestamp
// index, falling back to the default when the index is unusable.
func cameraFrameRate(fsys fsutil.FileSystem, dir string) float64 {
	index := filepath.Clean(dir) + emulator.TIMESTAMPS_EXT
	ts, err := emulator.ReadTimestamps(fsys, index)
	if err == nil {
		var fps float64
		if fps, err = camera.FrameRateFromTimestamps(ts); err == nil {
			return fps
		}
	}
	log.Printf("%s: using %g fps: %v", filepath.Base(dir), camera.DefaultFrameRate, err)
	return camera.DefaultFrameRate
}

func printHistory(path string, n int) error {
	if path == "" {
		return errors.New("-history requires -db")
	}
	ledger, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer ledger.Close()

	runs, err := ledger.RecentRuns("", n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Println(r.String())
	}
	return nil
}
