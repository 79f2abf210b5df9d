//go:build arm64 && !nosimd

package simd

import "github.com/viterin/vek"

// vek reports whether it has accelerated kernels for this CPU.
func runtimeInfo() RuntimeInfo {
	info := vek.Info()
	if info.Acceleration {
		return RuntimeInfo{
			Implementation: ImplNEON,
			Features:       info.CPUFeatures,
			Accelerated:    true,
		}
	}
	return RuntimeInfo{
		Implementation: ImplGeneric,
		Features:       info.CPUFeatures,
		Accelerated:    false,
	}
}
