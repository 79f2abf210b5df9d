package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/orneryd/geocorrelate/pkg/gpu/opencl"
	"github.com/orneryd/geocorrelate/pkg/metric"
)

// openCLDevice adapts an opencl.Device to the Device interface.
type openCLDevice struct {
	manager   *Manager
	device    *opencl.Device
	info      DeviceInfo
	workGroup int
	precision Precision
}

func newOpenCLDevice(m *Manager) (*openCLDevice, error) {
	dev, err := opencl.NewDevice(m.config.DeviceID)
	if err != nil {
		return nil, &DeviceUnavailableError{Backend: BackendOpenCL, DeviceID: m.config.DeviceID, Reason: "cannot open device", Err: err}
	}

	kernel := opencl.KernelFloat64
	if m.config.Precision == PrecisionFixed {
		kernel = opencl.KernelFixed
	}
	if err := dev.Prepare(kernel); err != nil {
		dev.Release()
		if errors.Is(err, opencl.ErrNoFP64) {
			return nil, &DeviceUnavailableError{Backend: BackendOpenCL, DeviceID: m.config.DeviceID, Reason: "float64 precision requested", Err: err}
		}
		return nil, fmt.Errorf("gpu: prepare %s: %w", kernel, err)
	}

	return &openCLDevice{
		manager:   m,
		device:    dev,
		info:      *openCLInfo(dev),
		workGroup: m.config.WorkGroupSize,
		precision: m.config.Precision,
	}, nil
}

func (d *openCLDevice) Info() DeviceInfo { return d.info }

func (d *openCLDevice) Release() { d.device.Release() }

func (d *openCLDevice) Correlate(job Job) ([]Hit, error) {
	if err := job.validate(d.precision); err != nil {
		return nil, err
	}
	n := len(job.Queries)
	if n == 0 {
		return []Hit{}, nil
	}

	start := time.Now()
	if d.precision == PrecisionFixed {
		qs, err := quantize(job.Queries)
		if err != nil {
			return nil, err
		}
		rs, err := quantize(job.References)
		if err != nil {
			return nil, err
		}
		index, err := d.device.NearestFixed(qs, rs, d.workGroup)
		if err != nil {
			return nil, translate(err)
		}
		hits, err := collectHits(index, nil, job.References)
		if err != nil {
			return nil, err
		}
		d.manager.recordKernel(time.Since(start), n, int64(len(qs)+len(rs)+n)*4)
		return hits, nil
	}

	qs, rs := pack(job.Queries), pack(job.References)
	index, points, err := d.device.NearestFloat64(qs, rs, packParams(&job.Params), job.Params.Kind == metric.KindAnisotropic, d.workGroup)
	if err != nil {
		return nil, translate(err)
	}
	hits, err := collectHits(index, points, job.References)
	if err != nil {
		return nil, err
	}
	d.manager.recordKernel(time.Since(start), n, int64(len(qs)+len(rs)+12+len(points))*8+int64(n)*4)
	return hits, nil
}

func translate(err error) error {
	if errors.Is(err, opencl.ErrDeviceReleased) {
		return fmt.Errorf("%w: %v", ErrDeviceReleased, err)
	}
	return fmt.Errorf("gpu: opencl kernel: %w", err)
}
