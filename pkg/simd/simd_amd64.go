//go:build amd64 && !nosimd

package simd

import (
	"github.com/viterin/vek"
	"golang.org/x/sys/cpu"
)

// hasAVX2 checks if the CPU supports AVX2+FMA at runtime.
// vek only dispatches to its assembly kernels when both are present.
var hasAVX2 = cpu.X86.HasAVX2 && cpu.X86.HasFMA

func runtimeInfo() RuntimeInfo {
	info := vek.Info()
	if hasAVX2 && info.Acceleration {
		return RuntimeInfo{
			Implementation: ImplAVX2,
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
