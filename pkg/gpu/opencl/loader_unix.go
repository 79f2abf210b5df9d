//go:build darwin || linux || freebsd

package opencl

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

func libraryCandidates() []string {
	if runtime.GOOS == "darwin" {
		return []string{"/System/Library/Frameworks/OpenCL.framework/OpenCL"}
	}
	return []string{"libOpenCL.so.1", "libOpenCL.so"}
}

func loadLibrary() (uintptr, error) {
	var lastErr error
	for _, name := range libraryCandidates() {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("load OpenCL library: %w", lastErr)
}

func registerFunctions(lib uintptr) {
	purego.RegisterLibFunc(&clGetPlatformIDs, lib, "clGetPlatformIDs")
	purego.RegisterLibFunc(&clGetDeviceIDs, lib, "clGetDeviceIDs")
	purego.RegisterLibFunc(&clGetDeviceInfo, lib, "clGetDeviceInfo")
	purego.RegisterLibFunc(&clCreateContext, lib, "clCreateContext")
	purego.RegisterLibFunc(&clCreateCommandQueue, lib, "clCreateCommandQueue")
	purego.RegisterLibFunc(&clCreateProgramWithSource, lib, "clCreateProgramWithSource")
	purego.RegisterLibFunc(&clBuildProgram, lib, "clBuildProgram")
	purego.RegisterLibFunc(&clGetProgramBuildInfo, lib, "clGetProgramBuildInfo")
	purego.RegisterLibFunc(&clCreateKernel, lib, "clCreateKernel")
	purego.RegisterLibFunc(&clCreateBuffer, lib, "clCreateBuffer")
	purego.RegisterLibFunc(&clSetKernelArg, lib, "clSetKernelArg")
	purego.RegisterLibFunc(&clEnqueueNDRangeKernel, lib, "clEnqueueNDRangeKernel")
	purego.RegisterLibFunc(&clEnqueueReadBuffer, lib, "clEnqueueReadBuffer")
	purego.RegisterLibFunc(&clFinish, lib, "clFinish")
	purego.RegisterLibFunc(&clReleaseMemObject, lib, "clReleaseMemObject")
	purego.RegisterLibFunc(&clReleaseKernel, lib, "clReleaseKernel")
	purego.RegisterLibFunc(&clReleaseProgram, lib, "clReleaseProgram")
	purego.RegisterLibFunc(&clReleaseCommandQueue, lib, "clReleaseCommandQueue")
	purego.RegisterLibFunc(&clReleaseContext, lib, "clReleaseContext")
}
