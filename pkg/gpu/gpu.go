// Package gpu runs the nearest-neighbour correlation as a device batch kernel.
//
// Every query point is one work item. A work item scans the whole reference set,
// keeps the first minimum and writes the winning reference index and coordinates
// back to the host. The host maps indices to labels.
//
// Supported Backends:
//
// 1. **OpenCL** (Cross-platform):
//   - Loaded at runtime through purego, no CGO
//   - Works with NVIDIA, AMD, Intel and Apple devices
//   - float64 precision needs cl_khr_fp64
//
// 2. **Host** (software device):
//   - Runs the same per-work-item kernel on goroutines
//   - Padded global size and work-groups behave as on a real device
//   - Must be chosen explicitly; an unavailable OpenCL device never falls back to it
//
// Precision:
//
//   - float64: the device evaluates metric.Params with the same operation order as
//     the CPU strategies, so winners match them exactly.
//   - fixed: Euclidean only. Coordinates are rounded to the nearest integer and the
//     squared distance is compared in 64-bit integers. Each coordinate moves by at
//     most 0.5, so the chosen neighbour is within sqrt(3) of the true minimum
//     distance. Integral data (int8 storage) is exact.
//
// Example Usage:
//
//	config := gpu.DefaultConfig()
//	config.Backend = gpu.BackendOpenCL
//
//	manager, err := gpu.NewManager(config)
//	if err != nil {
//		return err // *DeviceUnavailableError
//	}
//	device, err := manager.Open()
//	if err != nil {
//		return err
//	}
//	defer device.Release()
//
//	hits, err := device.Correlate(gpu.Job{Queries: qs, References: refs, Params: m.Params()})
package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/orneryd/geocorrelate/pkg/gpu/opencl"
)

// Errors
var (
	ErrDeviceUnavailable    = errors.New("gpu: device unavailable")
	ErrPrecisionUnsupported = errors.New("gpu: fixed precision supports only the euclidean metric")
	ErrCoordinateRange      = errors.New("gpu: coordinate outside fixed-precision range")
	ErrNoReferences         = errors.New("gpu: job has no reference points")
	ErrDeviceReleased       = errors.New("gpu: device released")
	ErrInvalidHit           = errors.New("gpu: kernel returned an invalid hit")
)

// DeviceUnavailableError reports a backend or device that cannot be used.
// It matches ErrDeviceUnavailable with errors.Is.
type DeviceUnavailableError struct {
	Backend  Backend
	DeviceID int
	Reason   string
	Err      error
}

func (e *DeviceUnavailableError) Error() string {
	msg := fmt.Sprintf("gpu: %s device %d unavailable: %s", e.Backend, e.DeviceID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// Is makes every DeviceUnavailableError match ErrDeviceUnavailable.
func (e *DeviceUnavailableError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

// Backend represents the device compute backend.
type Backend string

const (
	BackendNone   Backend = "none"   // no device configured
	BackendOpenCL Backend = "opencl" // purego OpenCL
	BackendHost   Backend = "host"   // software device on goroutines
)

// ParseBackend validates a backend name. Empty means none.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendNone:
		return BackendNone, nil
	case BackendOpenCL, BackendHost:
		return Backend(s), nil
	}
	return "", fmt.Errorf("gpu: unknown backend %q (want none, opencl or host)", s)
}

// Precision selects the arithmetic the kernel compares distances with.
type Precision string

const (
	PrecisionFloat64 Precision = "float64"
	PrecisionFixed   Precision = "fixed"
)

// ParsePrecision validates a precision name. Empty means float64.
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case "", PrecisionFloat64:
		return PrecisionFloat64, nil
	case PrecisionFixed:
		return PrecisionFixed, nil
	}
	return "", fmt.Errorf("gpu: unknown precision %q (want float64 or fixed)", s)
}

// MaxWorkGroupSize bounds Config.WorkGroupSize.
const MaxWorkGroupSize = 256

// Config holds device configuration options.
type Config struct {
	// Backend selects the compute backend
	Backend Backend

	// DeviceID selects a device (OpenCL devices are numbered across platforms)
	DeviceID int

	// WorkGroupSize is the local work size; the global size is padded to a multiple of it
	WorkGroupSize int

	// Precision selects float64 or fixed-point distance comparison
	Precision Precision
}

// DefaultConfig returns a configuration with no backend selected.
func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendNone,
		DeviceID:      0,
		WorkGroupSize: 64,
		Precision:     PrecisionFloat64,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if _, err := ParsePrecision(string(c.Precision)); err != nil {
		return err
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("gpu: device_id must be >= 0, got %d", c.DeviceID)
	}
	if c.WorkGroupSize < 1 || c.WorkGroupSize > MaxWorkGroupSize {
		return fmt.Errorf("gpu: work_group_size must be in [1, %d], got %d", MaxWorkGroupSize, c.WorkGroupSize)
	}
	return nil
}

// DeviceInfo contains information about a compute device.
type DeviceInfo struct {
	ID           int
	Name         string
	Vendor       string
	Backend      Backend
	MemoryMB     int
	ComputeUnits int
	MaxWorkGroup int
	FP64         bool
	Available    bool
}

// Stats tracks device usage statistics.
type Stats struct {
	KernelExecutions    int64
	WorkItems           int64
	BytesTransferred    int64
	AverageKernelTimeNs int64
}

// Manager probes a backend and opens devices on it.
//
// Thread Safety:
//
//	All methods are thread-safe and can be called concurrently.
type Manager struct {
	config *Config
	device *DeviceInfo
	mu     sync.RWMutex

	stats       Stats
	kernelTotal time.Duration
}

// NewManager probes the configured backend.
//
// There is no fallback: BackendNone, an unloadable OpenCL library or a missing
// device all return a *DeviceUnavailableError.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	device, err := probeBackend(config)
	if err != nil {
		return nil, err
	}
	return &Manager{config: config, device: device}, nil
}

func probeBackend(config *Config) (*DeviceInfo, error) {
	switch config.Backend {
	case BackendHost:
		return probeHost(config.DeviceID)
	case BackendOpenCL:
		return probeOpenCL(config)
	}
	return nil, &DeviceUnavailableError{
		Backend:  config.Backend,
		DeviceID: config.DeviceID,
		Reason:   "no device backend configured",
	}
}

func probeHost(deviceID int) (*DeviceInfo, error) {
	if deviceID != 0 {
		return nil, &DeviceUnavailableError{
			Backend:  BackendHost,
			DeviceID: deviceID,
			Reason:   "the host backend has a single device 0",
		}
	}
	return &DeviceInfo{
		ID:           0,
		Name:         "host",
		Vendor:       runtime.GOARCH,
		Backend:      BackendHost,
		ComputeUnits: runtime.GOMAXPROCS(0),
		MaxWorkGroup: MaxWorkGroupSize,
		FP64:         true,
		Available:    true,
	}, nil
}

func probeOpenCL(config *Config) (*DeviceInfo, error) {
	device, err := opencl.NewDevice(config.DeviceID)
	if err != nil {
		return nil, &DeviceUnavailableError{
			Backend:  BackendOpenCL,
			DeviceID: config.DeviceID,
			Reason:   "cannot open device",
			Err:      err,
		}
	}
	defer device.Release()

	info := openCLInfo(device)
	if config.Precision == PrecisionFloat64 && !info.FP64 {
		return nil, &DeviceUnavailableError{
			Backend:  BackendOpenCL,
			DeviceID: config.DeviceID,
			Reason:   "float64 precision requested",
			Err:      opencl.ErrNoFP64,
		}
	}
	return info, nil
}

func openCLInfo(d *opencl.Device) *DeviceInfo {
	return &DeviceInfo{
		ID:           d.ID(),
		Name:         d.Name(),
		Vendor:       d.Vendor(),
		Backend:      BackendOpenCL,
		MemoryMB:     d.MemoryMB(),
		ComputeUnits: d.ComputeUnits(),
		MaxWorkGroup: d.MaxWorkGroupSize(),
		FP64:         d.SupportsFP64(),
		Available:    true,
	}
}

// Open creates a device handle on the probed backend.
func (m *Manager) Open() (Device, error) {
	switch m.config.Backend {
	case BackendHost:
		return newHostDevice(m), nil
	case BackendOpenCL:
		d, err := newOpenCLDevice(m)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, &DeviceUnavailableError{Backend: m.config.Backend, DeviceID: m.config.DeviceID, Reason: "no device backend configured"}
}

// Config returns the manager configuration.
func (m *Manager) Config() Config {
	return *m.config
}

// Device returns the probed device info.
func (m *Manager) Device() *DeviceInfo {
	return m.device
}

// Stats returns device usage statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Manager) recordKernel(elapsed time.Duration, items int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.KernelExecutions++
	m.stats.WorkItems += int64(items)
	m.stats.BytesTransferred += bytes
	m.kernelTotal += elapsed
	m.stats.AverageKernelTimeNs = int64(m.kernelTotal) / m.stats.KernelExecutions
}
