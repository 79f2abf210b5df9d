//go:build (!amd64 && !arm64) || nosimd

package simd

import "github.com/viterin/vek"

// Platforms without AVX2/NEON, and nosimd builds, always report the generic backend.
func runtimeInfo() RuntimeInfo {
	info := vek.Info()
	return RuntimeInfo{
		Implementation: ImplGeneric,
		Features:       info.CPUFeatures,
		Accelerated:    false,
	}
}
