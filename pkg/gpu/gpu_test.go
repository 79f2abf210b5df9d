// Package gpu tests for device correlation.
package gpu

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/orneryd/geocorrelate/pkg/geometry"
	"github.com/orneryd/geocorrelate/pkg/metric"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Backend != BackendNone {
		t.Error("backend should be none by default")
	}
	if config.WorkGroupSize != 64 {
		t.Errorf("expected work group size 64, got %d", config.WorkGroupSize)
	}
	if config.Precision != PrecisionFloat64 {
		t.Errorf("expected float64 precision, got %s", config.Precision)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"host", func(c *Config) { c.Backend = BackendHost }, false},
		{"unknown backend", func(c *Config) { c.Backend = "cuda" }, true},
		{"unknown precision", func(c *Config) { c.Precision = "half" }, true},
		{"negative device", func(c *Config) { c.DeviceID = -1 }, true},
		{"zero work group", func(c *Config) { c.WorkGroupSize = 0 }, true},
		{"work group too large", func(c *Config) { c.WorkGroupSize = MaxWorkGroupSize + 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	t.Run("no backend is unavailable", func(t *testing.T) {
		_, err := NewManager(nil)
		if !errors.Is(err, ErrDeviceUnavailable) {
			t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
		}
		var due *DeviceUnavailableError
		if !errors.As(err, &due) {
			t.Fatalf("expected *DeviceUnavailableError, got %T", err)
		}
		if due.Backend != BackendNone {
			t.Errorf("backend = %s", due.Backend)
		}
	})

	t.Run("host", func(t *testing.T) {
		m, err := NewManager(&Config{Backend: BackendHost, WorkGroupSize: 32, Precision: PrecisionFloat64})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if m.Device() == nil || !m.Device().Available {
			t.Error("host device should be available")
		}
	})

	t.Run("host rejects other device ids", func(t *testing.T) {
		_, err := NewManager(&Config{Backend: BackendHost, DeviceID: 3, WorkGroupSize: 32, Precision: PrecisionFloat64})
		if !errors.Is(err, ErrDeviceUnavailable) {
			t.Errorf("expected ErrDeviceUnavailable, got %v", err)
		}
	})

	t.Run("opencl", func(t *testing.T) {
		m, err := NewManager(&Config{Backend: BackendOpenCL, WorkGroupSize: 64, Precision: PrecisionFloat64})
		if err != nil {
			if !errors.Is(err, ErrDeviceUnavailable) {
				t.Fatalf("unavailable OpenCL must report ErrDeviceUnavailable, got %v", err)
			}
			t.Logf("OpenCL unavailable: %v", err)
			return
		}
		t.Logf("OpenCL device: %+v", *m.Device())
	})
}

func openHost(t *testing.T, precision Precision, workGroup int) (*Manager, Device) {
	t.Helper()
	m, err := NewManager(&Config{Backend: BackendHost, WorkGroupSize: workGroup, Precision: precision})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	d, err := m.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(d.Release)
	return m, d
}

func TestHostDevice_Example(t *testing.T) {
	for _, precision := range []Precision{PrecisionFloat64, PrecisionFixed} {
		t.Run(string(precision), func(t *testing.T) {
			m, d := openHost(t, precision, 4)

			refs := []geometry.Point3{{}, {X: 10, Y: 10, Z: 10}}
			queries := []geometry.Point3{{X: 1, Y: 1, Z: 1}, {X: 9, Y: 9, Z: 9}}
			hits, err := d.Correlate(Job{Queries: queries, References: refs, Params: metric.NewEuclidean().Params()})
			if err != nil {
				t.Fatalf("Correlate() error = %v", err)
			}
			if len(hits) != 2 || hits[0].Index != 0 || hits[1].Index != 1 {
				t.Fatalf("unexpected hits %+v", hits)
			}
			if hits[1].Point != refs[1] {
				t.Errorf("hit point = %+v, want %+v", hits[1].Point, refs[1])
			}

			stats := m.Stats()
			if stats.KernelExecutions != 1 || stats.WorkItems != 2 {
				t.Errorf("unexpected stats %+v", stats)
			}
		})
	}
}

func TestHostDevice_FirstMinimumWins(t *testing.T) {
	_, d := openHost(t, PrecisionFloat64, 8)

	refs := []geometry.Point3{{X: 5}, {X: -1}, {X: 1}, {X: -1}}
	queries := []geometry.Point3{{}, {X: 10}}
	hits, err := d.Correlate(Job{Queries: queries, References: refs, Params: metric.NewEuclidean().Params()})
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	if hits[0].Index != 1 {
		t.Errorf("tie should resolve to index 1, got %d", hits[0].Index)
	}
	if hits[1].Index != 0 {
		t.Errorf("expected index 0, got %d", hits[1].Index)
	}
}

func TestHostDevice_MatchesScalarSearch(t *testing.T) {
	b, err := geometry.BuildBasis(40, 90)
	if err != nil {
		t.Fatal(err)
	}
	aniso, err := metric.NewAnisotropic(b, metric.DefaultWeights())
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(5))
	random := func(n int) []geometry.Point3 {
		pts := make([]geometry.Point3, n)
		for i := range pts {
			pts[i] = geometry.Point3{X: rng.Float64() * 100, Y: rng.Float64() * 100, Z: rng.Float64() * 20}
		}
		return pts
	}
	refs, queries := random(300), random(250)

	// 250 queries with work-groups of 64 leaves padded work items.
	_, d := openHost(t, PrecisionFloat64, 64)
	for _, m := range []metric.Metric{aniso, metric.NewEuclidean()} {
		hits, err := d.Correlate(Job{Queries: queries, References: refs, Params: m.Params()})
		if err != nil {
			t.Fatalf("%s: Correlate() error = %v", m.Name(), err)
		}
		for i, q := range queries {
			want := 0
			best := m.Distance(q, refs[0])
			for j := 1; j < len(refs); j++ {
				if dd := m.Distance(q, refs[j]); dd < best {
					want, best = j, dd
				}
			}
			if hits[i].Index != want {
				t.Errorf("%s: query %d got %d want %d", m.Name(), i, hits[i].Index, want)
			}
		}
	}
}

func TestHostDevice_FixedPrecision(t *testing.T) {
	_, d := openHost(t, PrecisionFixed, 16)

	t.Run("rejects anisotropic", func(t *testing.T) {
		b, _ := geometry.BuildBasis(40, 90)
		aniso, _ := metric.NewAnisotropic(b, metric.DefaultWeights())
		_, err := d.Correlate(Job{
			Queries:    []geometry.Point3{{}},
			References: []geometry.Point3{{}},
			Params:     aniso.Params(),
		})
		if !errors.Is(err, ErrPrecisionUnsupported) {
			t.Errorf("expected ErrPrecisionUnsupported, got %v", err)
		}
	})

	t.Run("rejects out of range", func(t *testing.T) {
		_, err := d.Correlate(Job{
			Queries:    []geometry.Point3{{X: 2 * FixedRange}},
			References: []geometry.Point3{{}},
			Params:     metric.NewEuclidean().Params(),
		})
		if !errors.Is(err, ErrCoordinateRange) {
			t.Errorf("expected ErrCoordinateRange, got %v", err)
		}
	})

	t.Run("exact for integral data", func(t *testing.T) {
		rng := rand.New(rand.NewSource(9))
		random := func(n int) []geometry.Point3 {
			pts := make([]geometry.Point3, n)
			for i := range pts {
				pts[i] = geometry.Point3{
					X: float64(rng.Intn(256) - 128),
					Y: float64(rng.Intn(256) - 128),
					Z: float64(rng.Intn(256) - 128),
				}
			}
			return pts
		}
		refs, queries := random(100), random(77)
		hits, err := d.Correlate(Job{Queries: queries, References: refs, Params: metric.NewEuclidean().Params()})
		if err != nil {
			t.Fatalf("Correlate() error = %v", err)
		}
		for i, q := range queries {
			want := 0
			best := metric.EuclideanDistance(q, refs[0])
			for j := 1; j < len(refs); j++ {
				if dd := metric.EuclideanDistance(q, refs[j]); dd < best {
					want, best = j, dd
				}
			}
			if hits[i].Index != want {
				t.Errorf("query %d got %d want %d", i, hits[i].Index, want)
			}
		}
	})
}

func TestHostDevice_Errors(t *testing.T) {
	_, d := openHost(t, PrecisionFloat64, 8)

	_, err := d.Correlate(Job{Queries: []geometry.Point3{{}}, Params: metric.NewEuclidean().Params()})
	if !errors.Is(err, ErrNoReferences) {
		t.Errorf("expected ErrNoReferences, got %v", err)
	}

	hits, err := d.Correlate(Job{References: []geometry.Point3{{}}, Params: metric.NewEuclidean().Params()})
	if err != nil || len(hits) != 0 {
		t.Errorf("empty query set: hits=%v err=%v", hits, err)
	}

	d.Release()
	_, err = d.Correlate(Job{Queries: []geometry.Point3{{}}, References: []geometry.Point3{{}}})
	if !errors.Is(err, ErrDeviceReleased) {
		t.Errorf("expected ErrDeviceReleased, got %v", err)
	}
}

func TestQuantize(t *testing.T) {
	got, err := quantize([]geometry.Point3{{X: 1.4, Y: -1.5, Z: 2.5}})
	if err != nil {
		t.Fatal(err)
	}
	want := []int32{1, -2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("quantize[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCollectHits(t *testing.T) {
	refs := []geometry.Point3{{X: 1}, {Y: 2}, {Z: 3}}

	hits, err := collectHits([]int32{2, 0}, nil, refs)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Index != 2 || hits[0].Point != refs[2] || hits[1].Index != 0 || hits[1].Point != refs[0] {
		t.Errorf("unexpected hits %+v", hits)
	}

	hits, err = collectHits([]int32{1}, []float64{4, 5, 6}, refs)
	if err != nil {
		t.Fatal(err)
	}
	if want := (geometry.Point3{X: 4, Y: 5, Z: 6}); hits[0].Point != want {
		t.Errorf("point = %+v, want kernel coordinates %+v", hits[0].Point, want)
	}

	tests := []struct {
		name   string
		index  []int32
		points []float64
	}{
		{"index past end", []int32{0, 3}, nil},
		{"negative index", []int32{-1}, nil},
		{"short coordinates", []int32{0, 1}, []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := collectHits(tt.index, tt.points, refs); !errors.Is(err, ErrInvalidHit) {
				t.Errorf("expected ErrInvalidHit, got %v", err)
			}
		})
	}
}

func TestParseBackendAndPrecision(t *testing.T) {
	if b, err := ParseBackend(""); err != nil || b != BackendNone {
		t.Errorf("ParseBackend(\"\") = %v, %v", b, err)
	}
	if _, err := ParseBackend("metal"); err == nil {
		t.Error("expected error for metal")
	}
	if p, err := ParsePrecision("fixed"); err != nil || p != PrecisionFixed {
		t.Errorf("ParsePrecision(fixed) = %v, %v", p, err)
	}
}
