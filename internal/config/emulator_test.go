package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyEmulatorConfig_Defaults(t *testing.T) {
	cfg := EmptyEmulatorConfig()

	assert.Equal(t, 15, cfg.GetPositionRatio())
	assert.Equal(t, "out", cfg.GetOutputDir())
	assert.Equal(t, "pcap", cfg.GetCaptureExtension())
	assert.Equal(t, uint32(65536), cfg.GetSnapLen())
	assert.Equal(t, 2368, cfg.GetDataPort())
	assert.Equal(t, 8308, cfg.GetPositionPort())
	assert.Equal(t, []string{"velodyne_left", "velodyne_right"}, cfg.GetMounts())
	assert.Equal(t, 2, cfg.GetWorkers())
	assert.Equal(t, 100, cfg.GetProgressInterval())
	assert.NoError(t, cfg.Validate())
}

func TestDefaultEmulatorConfig_MatchesAccessors(t *testing.T) {
	cfg := DefaultEmulatorConfig()
	require.NoError(t, cfg.Validate())

	empty := EmptyEmulatorConfig()
	assert.Equal(t, empty.GetPositionRatio(), *cfg.PositionRatio)
	assert.Equal(t, empty.GetOutputDir(), *cfg.OutputDir)
	assert.Equal(t, empty.GetMounts(), cfg.Mounts)
	assert.Equal(t, empty.FramerConfig(), cfg.FramerConfig())
}

func TestDefaultsFileMatchesCode(t *testing.T) {
	cfg, err := LoadEmulatorConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	assert.Equal(t, DefaultEmulatorConfig(), cfg)
}

func TestLoadEmulatorConfig_Partial(t *testing.T) {
	path := writeConfig(t, "emu.json", `{
  "position_ratio": 12,
  "output_dir": "/tmp/captures",
  "mounts": ["velodyne_left"],
  "destination_ip": "192.168.1.255"
}`)

	cfg, err := LoadEmulatorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.GetPositionRatio())
	assert.Equal(t, "/tmp/captures", cfg.GetOutputDir())
	assert.Equal(t, []string{"velodyne_left"}, cfg.GetMounts())
	assert.Equal(t, 2, cfg.GetWorkers(), "omitted field keeps default")

	fc := cfg.FramerConfig()
	assert.Equal(t, "192.168.1.255", fc.DestinationIP)
	assert.Equal(t, "192.168.1.201", fc.SourceIP)
	assert.Equal(t, uint16(2368), fc.DataPort)
	assert.Equal(t, uint16(8308), fc.PositionPort)
}

func TestLoadEmulatorConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "emu.yaml", `{}`},
		{"malformed json", "emu.json", `{"position_ratio": `},
		{"ratio too small", "emu.json", `{"position_ratio": 1}`},
		{"bad mac", "emu.json", `{"source_mac": "zz:zz"}`},
		{"ipv6", "emu.json", `{"destination_ip": "ff02::1"}`},
		{"port out of range", "emu.json", `{"data_port": 70000}`},
		{"same ports", "emu.json", `{"data_port": 8308}`},
		{"mount with separator", "emu.json", `{"mounts": ["../velodyne_left"]}`},
		{"duplicate mount", "emu.json", `{"mounts": ["a", "a"]}`},
		{"zero workers", "emu.json", `{"workers": 0}`},
		{"dotted extension", "emu.json", `{"capture_extension": ".pcap"}`},
		{"tiny snaplen", "emu.json", `{"snaplen": 100}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadEmulatorConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadEmulatorConfig_Missing(t *testing.T) {
	_, err := LoadEmulatorConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadEmulatorConfig_TooLarge(t *testing.T) {
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	path := filepath.Join(t.TempDir(), "big.json")
	require.NoError(t, os.WriteFile(path, big, 0644))

	_, err := LoadEmulatorConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestSetters(t *testing.T) {
	cfg := EmptyEmulatorConfig()
	cfg.SetPositionRatio(12)
	cfg.SetOutputDir("captures")
	cfg.SetWorkers(4)

	assert.Equal(t, 12, cfg.GetPositionRatio())
	assert.Equal(t, "captures", cfg.GetOutputDir())
	assert.Equal(t, 4, cfg.GetWorkers())
}

func TestGetMounts_ReturnsCopy(t *testing.T) {
	cfg := EmptyEmulatorConfig()
	m := cfg.GetMounts()
	m[0] = "mutated"
	assert.Equal(t, "velodyne_left", cfg.GetMounts()[0])
	assert.Equal(t, "velodyne_left", DefaultMounts[0])
}
