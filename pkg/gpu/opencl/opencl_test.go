package opencl

import (
	"errors"
	"testing"
)

func TestGlobalSize(t *testing.T) {
	tests := []struct {
		n, wg, want int
	}{
		{0, 64, 0},
		{1, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
		{1000, 256, 1024},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := GlobalSize(tt.n, tt.wg); got != tt.want {
			t.Errorf("GlobalSize(%d, %d) = %d, want %d", tt.n, tt.wg, got, tt.want)
		}
	}
}

func TestIsAvailable(t *testing.T) {
	available := IsAvailable()
	t.Logf("OpenCL available: %v (devices: %d)", available, DeviceCount())
}

func TestNewDeviceInvalidID(t *testing.T) {
	if !IsAvailable() {
		t.Skip("OpenCL not available")
	}
	_, err := NewDevice(DeviceCount() + 10)
	if !errors.Is(err, ErrDeviceCreation) {
		t.Errorf("expected ErrDeviceCreation, got %v", err)
	}
}

func openTestDevice(t *testing.T) *Device {
	t.Helper()
	if !IsAvailable() {
		t.Skip("OpenCL not available")
	}
	d, err := NewDevice(0)
	if err != nil {
		t.Skipf("OpenCL device 0 unusable: %v", err)
	}
	t.Cleanup(d.Release)
	t.Logf("device %q vendor %q, %d CUs, max work-group %d, fp64=%v",
		d.Name(), d.Vendor(), d.ComputeUnits(), d.MaxWorkGroupSize(), d.SupportsFP64())
	return d
}

func TestNearestFixed(t *testing.T) {
	d := openTestDevice(t)

	refs := []int32{0, 0, 0, 10, 10, 10}
	queries := []int32{1, 1, 1, 9, 9, 9, 5, 5, 5}
	got, err := d.NearestFixed(queries, refs, 64)
	if err != nil {
		t.Fatalf("NearestFixed() error = %v", err)
	}
	// (5,5,5) is equidistant; the first reference wins.
	want := []int32{0, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("query %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNearestFloat64(t *testing.T) {
	d := openTestDevice(t)
	if !d.SupportsFP64() {
		t.Skip("device lacks fp64")
	}

	refs := []float64{0, 0, 0, 10, 10, 10}
	queries := []float64{1, 1, 1, 9, 9, 9}
	var params [ParamCount]float64
	idx, pts, err := d.NearestFloat64(queries, refs, params, false, 32)
	if err != nil {
		t.Fatalf("NearestFloat64() error = %v", err)
	}
	if idx[0] != 0 || idx[1] != 1 {
		t.Errorf("got %v, want [0 1]", idx)
	}
	if pts[3] != 10 || pts[4] != 10 || pts[5] != 10 {
		t.Errorf("winning coordinates %v", pts[3:6])
	}
}

func TestReleasedDevice(t *testing.T) {
	d := openTestDevice(t)
	d.Release()
	d.Release()

	_, err := d.NearestFixed([]int32{0, 0, 0}, []int32{1, 1, 1}, 1)
	if !errors.Is(err, ErrDeviceReleased) {
		t.Errorf("expected ErrDeviceReleased, got %v", err)
	}
}
