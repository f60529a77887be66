package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/sensor-emulator/internal/lidar/emulator"
	"github.com/banshee-data/sensor-emulator/internal/lidar/network"
)

// DefaultConfigPath is the path to the canonical emulator defaults file.
const DefaultConfigPath = "config/emulator.defaults.json"

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultPositionRatio    = emulator.DefaultPositionRatio
	DefaultOutputDir        = "out"
	DefaultWorkers          = 2
	DefaultProgressInterval = 100
)

// DefaultMounts is the allow-list of recognised sensor mount identifiers.
var DefaultMounts = []string{"velodyne_left", "velodyne_right"}

// EmulatorConfig represents the root configuration for an emulation run.
// Every field is optional; the Get* methods supply defaults so partial
// files and command-line overrides compose.
type EmulatorConfig struct {
	// Scheduling
	PositionRatio *int `json:"position_ratio,omitempty"` // every Nth emission is a position packet

	// Output
	OutputDir        *string `json:"output_dir,omitempty"`
	CaptureExtension *string `json:"capture_extension,omitempty"`
	SnapLen          *int    `json:"snaplen,omitempty"`

	// Framing
	SourceMAC      *string `json:"source_mac,omitempty"`
	DestinationMAC *string `json:"destination_mac,omitempty"`
	SourceIP       *string `json:"source_ip,omitempty"`
	DestinationIP  *string `json:"destination_ip,omitempty"`
	DataPort       *int    `json:"data_port,omitempty"`
	PositionPort   *int    `json:"position_port,omitempty"`

	// Mounts and execution
	Mounts           []string `json:"mounts,omitempty"`
	Workers          *int     `json:"workers,omitempty"`
	ProgressInterval *int     `json:"progress_interval,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// EmptyEmulatorConfig returns an EmulatorConfig with all fields unset.
func EmptyEmulatorConfig() *EmulatorConfig {
	return &EmulatorConfig{}
}

// DefaultEmulatorConfig returns a config with every field set to its default.
func DefaultEmulatorConfig() *EmulatorConfig {
	return &EmulatorConfig{
		PositionRatio:    ptrInt(DefaultPositionRatio),
		OutputDir:        ptrString(DefaultOutputDir),
		CaptureExtension: ptrString(network.DefaultCaptureExtension),
		SnapLen:          ptrInt(network.DefaultSnapLen),
		SourceMAC:        ptrString(network.DefaultSourceMAC),
		DestinationMAC:   ptrString(network.DefaultDestinationMAC),
		SourceIP:         ptrString(network.DefaultSourceIP),
		DestinationIP:    ptrString(network.DefaultDestinationIP),
		DataPort:         ptrInt(network.DefaultDataPort),
		PositionPort:     ptrInt(network.DefaultPositionPort),
		Mounts:           append([]string(nil), DefaultMounts...),
		Workers:          ptrInt(DefaultWorkers),
		ProgressInterval: ptrInt(DefaultProgressInterval),
	}
}

// LoadEmulatorConfig loads an EmulatorConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
// Fields omitted from the JSON file fall back to defaults via the Get* methods.
func LoadEmulatorConfig(path string) (*EmulatorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEmulatorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *EmulatorConfig) Validate() error {
	if c.PositionRatio != nil && *c.PositionRatio < 2 {
		return fmt.Errorf("position_ratio must be at least 2, got %d", *c.PositionRatio)
	}

	if c.CaptureExtension != nil && (*c.CaptureExtension == "" || strings.ContainsAny(*c.CaptureExtension, "./\\")) {
		return fmt.Errorf("capture_extension must be a bare extension, got %q", *c.CaptureExtension)
	}

	if c.SnapLen != nil && (*c.SnapLen < 1600 || *c.SnapLen > 262144) {
		return fmt.Errorf("snaplen must be between 1600 and 262144, got %d", *c.SnapLen)
	}

	for name, mac := range map[string]*string{"source_mac": c.SourceMAC, "destination_mac": c.DestinationMAC} {
		if mac != nil {
			if _, err := net.ParseMAC(*mac); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *mac, err)
			}
		}
	}

	for name, ip := range map[string]*string{"source_ip": c.SourceIP, "destination_ip": c.DestinationIP} {
		if ip != nil && net.ParseIP(*ip).To4() == nil {
			return fmt.Errorf("%s must be an IPv4 address, got %q", name, *ip)
		}
	}

	for name, port := range map[string]*int{"data_port": c.DataPort, "position_port": c.PositionPort} {
		if port != nil && (*port < 1 || *port > 65535) {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, *port)
		}
	}
	if c.GetDataPort() == c.GetPositionPort() {
		return fmt.Errorf("data_port and position_port must differ, both are %d", c.GetDataPort())
	}

	seen := make(map[string]bool, len(c.Mounts))
	for _, m := range c.Mounts {
		if m == "" || m != filepath.Base(m) || strings.HasPrefix(m, ".") {
			return fmt.Errorf("mount names must be plain directory names, got %q", m)
		}
		if seen[m] {
			return fmt.Errorf("duplicate mount %q", m)
		}
		seen[m] = true
	}

	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	if c.ProgressInterval != nil && *c.ProgressInterval < 0 {
		return fmt.Errorf("progress_interval must be non-negative, got %d", *c.ProgressInterval)
	}

	return nil
}

// GetPositionRatio returns the position_ratio value or the default.
func (c *EmulatorConfig) GetPositionRatio() int {
	if c.PositionRatio == nil {
		return DefaultPositionRatio
	}
	return *c.PositionRatio
}

// GetOutputDir returns the output_dir value or the default.
func (c *EmulatorConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return DefaultOutputDir
	}
	return *c.OutputDir
}

// GetCaptureExtension returns the capture_extension value or the default.
func (c *EmulatorConfig) GetCaptureExtension() string {
	if c.CaptureExtension == nil {
		return network.DefaultCaptureExtension
	}
	return *c.CaptureExtension
}

// GetSnapLen returns the snaplen value or the default.
func (c *EmulatorConfig) GetSnapLen() uint32 {
	if c.SnapLen == nil {
		return network.DefaultSnapLen
	}
	return uint32(*c.SnapLen)
}

// GetDataPort returns the data_port value or the default.
func (c *EmulatorConfig) GetDataPort() int {
	if c.DataPort == nil {
		return network.DefaultDataPort
	}
	return *c.DataPort
}

// GetPositionPort returns the position_port value or the default.
func (c *EmulatorConfig) GetPositionPort() int {
	if c.PositionPort == nil {
		return network.DefaultPositionPort
	}
	return *c.PositionPort
}

// GetMounts returns the mount allow-list or the default.
func (c *EmulatorConfig) GetMounts() []string {
	if len(c.Mounts) == 0 {
		return append([]string(nil), DefaultMounts...)
	}
	return append([]string(nil), c.Mounts...)
}

// GetWorkers returns the workers value or the default.
func (c *EmulatorConfig) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

// GetProgressInterval returns the progress_interval value or the default.
// Zero disables per-frame progress logging.
func (c *EmulatorConfig) GetProgressInterval() int {
	if c.ProgressInterval == nil {
		return DefaultProgressInterval
	}
	return *c.ProgressInterval
}

// FramerConfig returns the packet addressing described by c.
func (c *EmulatorConfig) FramerConfig() network.FramerConfig {
	fc := network.DefaultFramerConfig()
	if c.SourceMAC != nil {
		fc.SourceMAC = *c.SourceMAC
	}
	if c.DestinationMAC != nil {
		fc.DestinationMAC = *c.DestinationMAC
	}
	if c.SourceIP != nil {
		fc.SourceIP = *c.SourceIP
	}
	if c.DestinationIP != nil {
		fc.DestinationIP = *c.DestinationIP
	}
	fc.DataPort = uint16(c.GetDataPort())
	fc.PositionPort = uint16(c.GetPositionPort())
	return fc
}

// SetPositionRatio overrides position_ratio, typically from a CLI flag.
func (c *EmulatorConfig) SetPositionRatio(v int) { c.PositionRatio = ptrInt(v) }

// SetOutputDir overrides output_dir.
func (c *EmulatorConfig) SetOutputDir(v string) { c.OutputDir = ptrString(v) }

// SetWorkers overrides workers.
func (c *EmulatorConfig) SetWorkers(v int) { c.Workers = ptrInt(v) }
