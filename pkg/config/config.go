// Package config handles correlator configuration via an optional YAML file.
//
// Configuration Precedence (highest to lowest):
//  1. Config file (correlate.yaml or correlate.yml in the working directory)
//  2. Built-in defaults
//
// The command line carries only the three file paths and the environment is
// never consulted, so a run is fully described by its arguments and the file.
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		return err
//	}
//	opts, err := cfg.CorrelateOptions()
//
// Example file:
//
//	basis:
//	  metric: anisotropic
//	  dip: 40
//	  dip_direction: 90
//	  weights: {major: 5, intermediate: 5, minor: 1}
//	search:
//	  strategy: vectorized
//	  workers: 8
//	device:
//	  backend: opencl
//	  work_group_size: 64
//	input:
//	  storage: float32
//	  reference_columns: [mid_x, mid_y, mid_z, M1_LITHOLOGY]
//	logging:
//	  level: debug
//	  format: json
//	metrics:
//	  textfile: /var/lib/node_exporter/geocorrelate.prom
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/geocorrelate/pkg/correlate"
	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/gpu"
	"github.com/orneryd/geocorrelate/pkg/logging"
	"github.com/orneryd/geocorrelate/pkg/metric"
	"github.com/orneryd/geocorrelate/pkg/pointio"
	"github.com/orneryd/geocorrelate/pkg/search"
)

// Config holds all correlator configuration.
//
// Configuration is organized into logical sections:
//   - Basis: metric, major direction and anisotropy weights
//   - Search: execution strategy and worker pool
//   - Device: compute device for the device strategy
//   - Input: coordinate storage and column selection
//   - Logging: level and format
//   - Metrics: optional textfile export
type Config struct {
	Basis   BasisConfig   `yaml:"basis"`
	Search  SearchConfig  `yaml:"search"`
	Device  DeviceConfig  `yaml:"device"`
	Input   InputConfig   `yaml:"input"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BasisConfig selects the distance metric.
type BasisConfig struct {
	// Metric is anisotropic or euclidean
	Metric string `yaml:"metric"`
	// Dip of the major direction in degrees
	Dip float64 `yaml:"dip"`
	// DipDirection of the major direction in degrees
	DipDirection float64 `yaml:"dip_direction"`
	// Weights are linear divisors per axis
	Weights metric.Weights `yaml:"weights"`
}

// SearchConfig controls the search engine.
type SearchConfig struct {
	// Strategy is parallel, vectorized or device
	Strategy string `yaml:"strategy"`
	// Workers bounds the worker pool (0 = one per CPU)
	Workers int `yaml:"workers"`
	// TileSize is the vectorized reference tile length
	TileSize int `yaml:"tile_size"`
}

// DeviceConfig selects the compute device. Only read by the device strategy.
type DeviceConfig struct {
	Backend       string `yaml:"backend"`
	DeviceID      int    `yaml:"device_id"`
	WorkGroupSize int    `yaml:"work_group_size"`
	Precision     string `yaml:"precision"`
}

// InputConfig controls point file parsing.
type InputConfig struct {
	// Storage is float64, float32 or int8
	Storage string `yaml:"storage"`
	// LabelKind is string or number
	LabelKind string `yaml:"label_kind"`
	// QueryColumns names x, y, z in query files (empty = positional)
	QueryColumns []string `yaml:"query_columns"`
	// ReferenceColumns names x, y, z, label in reference files (empty = positional)
	ReferenceColumns []string `yaml:"reference_columns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile receives the prometheus text exposition after each run (empty = off)
	Textfile string `yaml:"textfile"`
}

// LoadDefaults returns the built-in configuration: anisotropic metric with
// major direction (40, 90) and weights 5/5/1, parallel search, no device.
func LoadDefaults() *Config {
	cfg := &Config{}

	cfg.Basis.Metric = string(metric.KindAnisotropic)
	cfg.Basis.Dip = 40
	cfg.Basis.DipDirection = 90
	cfg.Basis.Weights = metric.DefaultWeights()

	cfg.Search.Strategy = string(search.StrategyParallel)
	cfg.Search.Workers = 0
	cfg.Search.TileSize = search.DefaultTileSize

	dev := gpu.DefaultConfig()
	cfg.Device.Backend = string(dev.Backend)
	cfg.Device.DeviceID = dev.DeviceID
	cfg.Device.WorkGroupSize = dev.WorkGroupSize
	cfg.Device.Precision = string(dev.Precision)

	cfg.Input.Storage = string(geometry.StorageFloat64)
	cfg.Input.LabelKind = string(geometry.LabelString)

	cfg.Logging.Level = "info"
	cfg.Logging.Format = string(logging.FormatConsole)

	return cfg
}

// LoadFromFile loads defaults and overlays the YAML file at configPath.
//
// An empty path or a missing file yields the defaults. Unknown keys are an error
// so a misspelt option never silently falls back to its default. The result is
// validated before it is returned.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := LoadDefaults()
	if configPath == "" {
		return cfg, nil
	}

	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// FindConfigFile returns the first of ./correlate.yaml and ./correlate.yml that
// exists, or the empty string.
func FindConfigFile() string {
	for _, path := range []string{"correlate.yaml", "correlate.yml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks every section. Returns nil if the configuration is usable.
func (c *Config) Validate() error {
	switch metric.Kind(c.Basis.Metric) {
	case metric.KindAnisotropic:
		if !finite(c.Basis.Dip) || !finite(c.Basis.DipDirection) {
			return fmt.Errorf("basis: dip and dip_direction must be finite, got %g/%g", c.Basis.Dip, c.Basis.DipDirection)
		}
		if err := c.Basis.Weights.Validate(); err != nil {
			return fmt.Errorf("basis: %w", err)
		}
	case metric.KindEuclidean:
	default:
		return fmt.Errorf("basis: unknown metric %q (want anisotropic or euclidean)", c.Basis.Metric)
	}

	strategy, err := search.ParseStrategy(c.Search.Strategy)
	if err != nil {
		return err
	}
	if c.Search.Workers < 0 {
		return fmt.Errorf("search: workers must be >= 0, got %d", c.Search.Workers)
	}
	if c.Search.TileSize < 0 {
		return fmt.Errorf("search: tile_size must be >= 0, got %d", c.Search.TileSize)
	}

	dev, err := c.GPUConfig()
	if err != nil {
		return err
	}
	if err := dev.Validate(); err != nil {
		return err
	}
	if strategy == search.StrategyDevice && dev.Backend == gpu.BackendNone {
		return errors.New("search: strategy device requires device.backend opencl or host")
	}
	if dev.Precision == gpu.PrecisionFixed && metric.Kind(c.Basis.Metric) != metric.KindEuclidean {
		return fmt.Errorf("device: %w", gpu.ErrPrecisionUnsupported)
	}

	if _, err := c.PointOptions(); err != nil {
		return err
	}
	if n := len(c.Input.QueryColumns); n != 0 && n != 3 {
		return fmt.Errorf("input: query_columns needs 3 names, got %d", n)
	}
	if n := len(c.Input.ReferenceColumns); n != 0 && n != 4 {
		return fmt.Errorf("input: reference_columns needs 4 names, got %d", n)
	}

	return c.LoggingConfig().Validate()
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Metric: %s, Direction: %g/%g, Strategy: %s, Device: %s, Storage: %s}",
		c.Basis.Metric, c.Basis.Dip, c.Basis.DipDirection,
		c.Search.Strategy, c.Device.Backend, c.Input.Storage)
}

// CorrelateOptions converts the basis and search sections. The device handle,
// logger and metrics are attached by the caller.
func (c *Config) CorrelateOptions() (correlate.Options, error) {
	strategy, err := search.ParseStrategy(c.Search.Strategy)
	if err != nil {
		return correlate.Options{}, err
	}
	opts := correlate.DefaultOptions()
	opts.Metric = metric.Kind(c.Basis.Metric)
	opts.Dip = c.Basis.Dip
	opts.DipDirection = c.Basis.DipDirection
	opts.Weights = c.Basis.Weights
	opts.Search = search.Config{
		Strategy: strategy,
		Workers:  c.Search.Workers,
		TileSize: c.Search.TileSize,
	}
	return opts, nil
}

// GPUConfig converts the device section.
func (c *Config) GPUConfig() (*gpu.Config, error) {
	backend, err := gpu.ParseBackend(c.Device.Backend)
	if err != nil {
		return nil, err
	}
	precision, err := gpu.ParsePrecision(c.Device.Precision)
	if err != nil {
		return nil, err
	}
	return &gpu.Config{
		Backend:       backend,
		DeviceID:      c.Device.DeviceID,
		WorkGroupSize: c.Device.WorkGroupSize,
		Precision:     precision,
	}, nil
}

// PointOptions converts the input section.
func (c *Config) PointOptions() (pointio.Options, error) {
	storage, err := geometry.ParseStorage(c.Input.Storage)
	if err != nil {
		return pointio.Options{}, err
	}
	kind, err := geometry.ParseLabelKind(c.Input.LabelKind)
	if err != nil {
		return pointio.Options{}, err
	}
	return pointio.Options{
		Storage:          storage,
		LabelKind:        kind,
		QueryColumns:     c.Input.QueryColumns,
		ReferenceColumns: c.Input.ReferenceColumns,
	}, nil
}

// LoggingConfig converts the logging section. Output is left to the caller.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: logging.Format(c.Logging.Format)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
