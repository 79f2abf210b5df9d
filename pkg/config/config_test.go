package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/gpu"
	"github.com/orneryd/geocorrelate/pkg/logging"
	"github.com/orneryd/geocorrelate/pkg/metric"
	"github.com/orneryd/geocorrelate/pkg/search"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "correlate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := LoadDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "anisotropic", cfg.Basis.Metric)
	assert.Equal(t, 40.0, cfg.Basis.Dip)
	assert.Equal(t, 90.0, cfg.Basis.DipDirection)
	assert.Equal(t, metric.Weights{Major: 5, Intermediate: 5, Minor: 1}, cfg.Basis.Weights)
	assert.Equal(t, "parallel", cfg.Search.Strategy)
	assert.Equal(t, search.DefaultTileSize, cfg.Search.TileSize)
	assert.Equal(t, "none", cfg.Device.Backend)
	assert.Equal(t, "float64", cfg.Input.Storage)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadFromFile_MissingOrEmptyPath(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, LoadDefaults(), cfg)

	cfg, err = LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, LoadDefaults(), cfg)
}

func TestLoadFromFile_EmptyFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, LoadDefaults(), cfg)
}

func TestLoadFromFile_Overrides(t *testing.T) {
	path := writeConfig(t, `
basis:
  dip: 15
  dip_direction: 270
  weights:
    major: 10
    intermediate: 4
    minor: 2
search:
  strategy: vectorized
  workers: 3
  tile_size: 256
input:
  storage: float32
  label_kind: number
  reference_columns: [mid_x, mid_y, mid_z, M1_LITHOLOGY]
logging:
  level: debug
  format: json
metrics:
  textfile: /tmp/geocorrelate.prom
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "anisotropic", cfg.Basis.Metric, "unset keys keep defaults")
	assert.Equal(t, 15.0, cfg.Basis.Dip)
	assert.Equal(t, 270.0, cfg.Basis.DipDirection)
	assert.Equal(t, metric.Weights{Major: 10, Intermediate: 4, Minor: 2}, cfg.Basis.Weights)
	assert.Equal(t, "/tmp/geocorrelate.prom", cfg.Metrics.Textfile)

	opts, err := cfg.CorrelateOptions()
	require.NoError(t, err)
	assert.Equal(t, metric.KindAnisotropic, opts.Metric)
	assert.Equal(t, 15.0, opts.Dip)
	assert.Equal(t, search.StrategyVectorized, opts.Search.Strategy)
	assert.Equal(t, 3, opts.Search.Workers)
	assert.Equal(t, 256, opts.Search.TileSize)

	po, err := cfg.PointOptions()
	require.NoError(t, err)
	assert.Equal(t, geometry.StorageFloat32, po.Storage)
	assert.Equal(t, geometry.LabelNumber, po.LabelKind)
	assert.Nil(t, po.QueryColumns)
	assert.Equal(t, []string{"mid_x", "mid_y", "mid_z", "M1_LITHOLOGY"}, po.ReferenceColumns)

	lc := cfg.LoggingConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
}

func TestLoadFromFile_Device(t *testing.T) {
	path := writeConfig(t, `
basis:
  metric: euclidean
search:
  strategy: device
device:
  backend: host
  device_id: 0
  work_group_size: 128
  precision: fixed
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	dev, err := cfg.GPUConfig()
	require.NoError(t, err)
	assert.Equal(t, &gpu.Config{
		Backend:       gpu.BackendHost,
		DeviceID:      0,
		WorkGroupSize: 128,
		Precision:     gpu.PrecisionFixed,
	}, dev)
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "search:\n  stratgy: vectorized\n"},
		{"unknown section", "server:\n  port: 1\n"},
		{"bad yaml", "basis: [\n"},
		{"bad metric", "basis:\n  metric: manhattan\n"},
		{"zero weight", "basis:\n  weights: {major: 0, intermediate: 5, minor: 1}\n"},
		{"negative weight", "basis:\n  weights: {major: 5, intermediate: -1, minor: 1}\n"},
		{"nan dip", "basis:\n  dip: .nan\n"},
		{"bad strategy", "search:\n  strategy: quantum\n"},
		{"negative workers", "search:\n  workers: -1\n"},
		{"device without backend", "search:\n  strategy: device\n"},
		{"bad backend", "device:\n  backend: cuda\n"},
		{"work group too large", "device:\n  work_group_size: 1024\n"},
		{"fixed with anisotropic", "device:\n  backend: host\n  precision: fixed\n"},
		{"bad storage", "input:\n  storage: int16\n"},
		{"bad label kind", "input:\n  label_kind: date\n"},
		{"short query columns", "input:\n  query_columns: [a, b]\n"},
		{"short reference columns", "input:\n  reference_columns: [a, b, c]\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestValidate_EuclideanIgnoresWeights(t *testing.T) {
	cfg := LoadDefaults()
	cfg.Basis.Metric = "euclidean"
	cfg.Basis.Weights = metric.Weights{}
	assert.NoError(t, cfg.Validate())
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	assert.Equal(t, "", FindConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "correlate.yml"), []byte("{}\n"), 0o644))
	assert.Equal(t, "correlate.yml", FindConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "correlate.yaml"), []byte("{}\n"), 0o644))
	assert.Equal(t, "correlate.yaml", FindConfigFile())
}

func TestString(t *testing.T) {
	assert.Equal(t,
		"Config{Metric: anisotropic, Direction: 40/90, Strategy: parallel, Device: none, Storage: float64}",
		LoadDefaults().String())
}
