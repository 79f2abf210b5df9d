package gpu

import (
	"fmt"
	"math"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/metric"
)

// FixedRange is the largest coordinate magnitude fixed precision accepts.
// Differences then fit in 31 bits and a sum of three squares fits in int64.
const FixedRange = 1 << 29

// Device runs correlation jobs.
type Device interface {
	// Correlate returns one Hit per query, in query order.
	Correlate(job Job) ([]Hit, error)
	Info() DeviceInfo
	Release()
}

// Job is one batch: every query scans every reference under Params.
type Job struct {
	Queries    []geometry.Point3
	References []geometry.Point3
	Params     metric.Params
}

// Hit is the output of one work item.
type Hit struct {
	Index int
	Point geometry.Point3
}

func (j *Job) validate(p Precision) error {
	if len(j.References) == 0 {
		return ErrNoReferences
	}
	if p == PrecisionFixed && j.Params.Kind != metric.KindEuclidean {
		return fmt.Errorf("%w: got %s", ErrPrecisionUnsupported, j.Params.Kind)
	}
	return nil
}

// quantize rounds coordinates to packed int32 x,y,z triples.
func quantize(points []geometry.Point3) ([]int32, error) {
	out := make([]int32, 3*len(points))
	for i, p := range points {
		for k, v := range [3]float64{p.X, p.Y, p.Z} {
			r := math.Round(v)
			if !(math.Abs(r) <= FixedRange) {
				return nil, fmt.Errorf("%w: point %d value %v", ErrCoordinateRange, i, v)
			}
			out[3*i+k] = int32(r)
		}
	}
	return out, nil
}

// pack flattens points into x,y,z triples.
func pack(points []geometry.Point3) []float64 {
	out := make([]float64, 3*len(points))
	for i, p := range points {
		out[3*i], out[3*i+1], out[3*i+2] = p.X, p.Y, p.Z
	}
	return out
}

// collectHits turns kernel output into Hits. Points holds the winning x,y,z
// triples written by the kernel; nil means they are looked up in refs.
// An index outside refs is an error.
func collectHits(index []int32, points []float64, refs []geometry.Point3) ([]Hit, error) {
	if points != nil && len(points) != 3*len(index) {
		return nil, fmt.Errorf("%w: %d coordinates for %d work items", ErrInvalidHit, len(points), len(index))
	}
	hits := make([]Hit, len(index))
	for i, j := range index {
		if j < 0 || int(j) >= len(refs) {
			return nil, fmt.Errorf("%w: work item %d returned reference %d of %d", ErrInvalidHit, i, j, len(refs))
		}
		p := refs[j]
		if points != nil {
			p = geometry.Point3{X: points[3*i], Y: points[3*i+1], Z: points[3*i+2]}
		}
		hits[i] = Hit{Index: int(j), Point: p}
	}
	return hits, nil
}

func packParams(p *metric.Params) [12]float64 {
	var out [12]float64
	for k := 0; k < 3; k++ {
		copy(out[3*k:3*k+3], p.Columns[k][:])
	}
	copy(out[9:], p.Weights[:])
	return out
}
