package gpu

import (
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/gpu/opencl"
	"github.com/orneryd/geocorrelate/pkg/metric"
)

// hostDevice executes the correlation kernels on goroutines, one goroutine per
// work-group, with the same padded global size a real device would use.
type hostDevice struct {
	manager   *Manager
	info      DeviceInfo
	workGroup int
	precision Precision
	released  atomic.Bool
}

func newHostDevice(m *Manager) *hostDevice {
	return &hostDevice{
		manager:   m,
		info:      *m.device,
		workGroup: m.config.WorkGroupSize,
		precision: m.config.Precision,
	}
}

func (d *hostDevice) Info() DeviceInfo { return d.info }

func (d *hostDevice) Release() { d.released.Store(true) }

func (d *hostDevice) Correlate(job Job) ([]Hit, error) {
	if d.released.Load() {
		return nil, ErrDeviceReleased
	}
	if err := job.validate(d.precision); err != nil {
		return nil, err
	}
	n := len(job.Queries)
	if n == 0 {
		return []Hit{}, nil
	}

	start := time.Now()
	index := make([]int32, n)
	var bytes int64

	var kernel func(i int)
	if d.precision == PrecisionFixed {
		qs, err := quantize(job.Queries)
		if err != nil {
			return nil, err
		}
		rs, err := quantize(job.References)
		if err != nil {
			return nil, err
		}
		bytes = int64(len(qs)+len(rs)+n) * 4
		kernel = func(i int) { index[i] = fixedKernel(qs, rs, i) }
	} else {
		params := job.Params
		refs := job.References
		bytes = int64(3*(n+len(refs))+12)*8 + int64(n)*(4+24)
		kernel = func(i int) { index[i] = float64Kernel(&params, job.Queries[i], refs) }
	}

	global := opencl.GlobalSize(n, d.workGroup)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < global; lo += d.workGroup {
		g.Go(func() error {
			for i := lo; i < lo+d.workGroup; i++ {
				if i >= n {
					return nil
				}
				kernel(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits, err := collectHits(index, nil, job.References)
	if err != nil {
		return nil, err
	}
	d.manager.recordKernel(time.Since(start), n, bytes)
	return hits, nil
}

// float64Kernel is the host rendition of correlate_f64 for one work item.
func float64Kernel(params *metric.Params, q geometry.Point3, refs []geometry.Point3) int32 {
	distance := metric.EuclideanDistance
	if params.Kind == metric.KindAnisotropic {
		distance = func(p, r geometry.Point3) float64 { return metric.AnisotropicDistance(params, p, r) }
	}
	best := 0
	bestD := distance(q, refs[0])
	for j := 1; j < len(refs); j++ {
		if d := distance(q, refs[j]); d < bestD {
			best, bestD = j, d
		}
	}
	return int32(best)
}

// fixedKernel is the host rendition of correlate_fixed for one work item.
func fixedKernel(qs, rs []int32, i int) int32 {
	qx, qy, qz := int64(qs[3*i]), int64(qs[3*i+1]), int64(qs[3*i+2])
	var best int32
	var bestD int64
	for j := 0; j < len(rs)/3; j++ {
		dx := int64(rs[3*j]) - qx
		dy := int64(rs[3*j+1]) - qy
		dz := int64(rs[3*j+2]) - qz
		d := dx*dx + dy*dy + dz*dz
		if j == 0 || d < bestD {
			best, bestD = int32(j), d
		}
	}
	return best
}
