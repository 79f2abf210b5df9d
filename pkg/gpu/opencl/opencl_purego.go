// Package opencl runs the correlation kernels on OpenCL devices.
//
// This implementation uses purego for FFI to dynamically load the OpenCL ICD
// loader, so no CGO compilation is needed. The library is looked up in the
// standard locations:
//   - Linux: libOpenCL.so.1 / libOpenCL.so (from the vendor ICD or ocl-icd)
//   - macOS: the OpenCL framework
//
// Devices are numbered across all platforms in platform order, so device 0 is
// the first device of the first platform that reports any.
//
// Kernels are compiled when first used with FP_CONTRACT OFF, so the device
// never fuses a multiply and add the host code evaluates separately.
package opencl

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// OpenCL constants
const (
	CL_SUCCESS               = 0
	CL_DEVICE_NOT_FOUND      = -1
	CL_BUILD_PROGRAM_FAILURE = -11
	CL_INVALID_VALUE         = -30

	CL_TRUE = 1

	CL_DEVICE_TYPE_ALL = uint64(0xFFFFFFFF)

	CL_DEVICE_MAX_COMPUTE_UNITS   = 0x1002
	CL_DEVICE_MAX_WORK_GROUP_SIZE = 0x1004
	CL_DEVICE_GLOBAL_MEM_SIZE     = 0x101F
	CL_DEVICE_NAME                = 0x102B
	CL_DEVICE_VENDOR              = 0x102C
	CL_DEVICE_EXTENSIONS          = 0x1030
	CL_DEVICE_DOUBLE_FP_CONFIG    = 0x1032

	CL_PROGRAM_BUILD_LOG = 0x1183

	CL_MEM_READ_WRITE     = uint64(1 << 0)
	CL_MEM_WRITE_ONLY     = uint64(1 << 1)
	CL_MEM_READ_ONLY      = uint64(1 << 2)
	CL_MEM_COPY_HOST_PTR  = uint64(1 << 5)
	CL_QUEUE_DEFAULT_PROP = uint64(0)
)

// OpenCL handle types
type clPlatformID uintptr
type clDeviceID uintptr
type clContext uintptr
type clCommandQueue uintptr
type clProgram uintptr
type clKernel uintptr
type clMem uintptr

// OpenCL function pointers (set by registerFunctions)
var (
	openclLib uintptr
	openclMu  sync.Mutex
	openclErr error

	clGetPlatformIDs          func(numEntries uint32, platforms *clPlatformID, numPlatforms *uint32) int32
	clGetDeviceIDs            func(platform clPlatformID, deviceType uint64, numEntries uint32, devices *clDeviceID, numDevices *uint32) int32
	clGetDeviceInfo           func(device clDeviceID, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clCreateContext           func(properties *uintptr, numDevices uint32, devices *clDeviceID, notify uintptr, userData uintptr, errcode *int32) clContext
	clCreateCommandQueue      func(context clContext, device clDeviceID, properties uint64, errcode *int32) clCommandQueue
	clCreateProgramWithSource func(context clContext, count uint32, sources **byte, lengths *uintptr, errcode *int32) clProgram
	clBuildProgram            func(program clProgram, numDevices uint32, devices *clDeviceID, options *byte, notify uintptr, userData uintptr) int32
	clGetProgramBuildInfo     func(program clProgram, device clDeviceID, param uint32, size uintptr, value unsafe.Pointer, sizeRet *uintptr) int32
	clCreateKernel            func(program clProgram, name *byte, errcode *int32) clKernel
	clCreateBuffer            func(context clContext, flags uint64, size uintptr, hostPtr unsafe.Pointer, errcode *int32) clMem
	clSetKernelArg            func(kernel clKernel, index uint32, size uintptr, value unsafe.Pointer) int32
	clEnqueueNDRangeKernel    func(queue clCommandQueue, kernel clKernel, workDim uint32, globalOffset *uintptr, globalSize *uintptr, localSize *uintptr, numEvents uint32, waitList uintptr, event uintptr) int32
	clEnqueueReadBuffer       func(queue clCommandQueue, buffer clMem, blocking uint32, offset uintptr, size uintptr, ptr unsafe.Pointer, numEvents uint32, waitList uintptr, event uintptr) int32
	clFinish                  func(queue clCommandQueue) int32
	clReleaseMemObject        func(mem clMem) int32
	clReleaseKernel           func(kernel clKernel) int32
	clReleaseProgram          func(program clProgram) int32
	clReleaseCommandQueue     func(queue clCommandQueue) int32
	clReleaseContext          func(context clContext) int32
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available (library not found)")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrNoFP64             = errors.New("opencl: device does not support cl_khr_fp64")
	ErrBuildFailed        = errors.New("opencl: kernel build failed")
	ErrBufferCreation     = errors.New("opencl: failed to create buffer")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrDeviceReleased     = errors.New("opencl: device released")
)

// initOpenCL loads the OpenCL library once.
func initOpenCL() error {
	openclMu.Lock()
	defer openclMu.Unlock()

	if openclLib != 0 {
		return nil
	}
	if openclErr != nil {
		return openclErr
	}

	lib, err := loadLibrary()
	if err != nil {
		openclErr = fmt.Errorf("%w: %v", ErrOpenCLNotAvailable, err)
		return openclErr
	}
	openclLib = lib
	registerFunctions(lib)
	return nil
}

// Device is an OpenCL device with its context and command queue.
type Device struct {
	device       clDeviceID
	context      clContext
	queue        clCommandQueue
	id           int
	name         string
	vendor       string
	memory       uint64
	computeUnits int
	maxWorkGroup int
	fp64         bool

	kernels map[string]*compiledKernel
	mu      sync.Mutex
}

// IsAvailable reports whether the library loads and exposes at least one device.
func IsAvailable() bool {
	return DeviceCount() > 0
}

// DeviceCount returns the number of OpenCL devices across all platforms.
func DeviceCount() int {
	if err := initOpenCL(); err != nil {
		return 0
	}
	devices, err := allDevices()
	if err != nil {
		return 0
	}
	return len(devices)
}

func allDevices() ([]clDeviceID, error) {
	var numPlatforms uint32
	if rc := clGetPlatformIDs(0, nil, &numPlatforms); rc != CL_SUCCESS || numPlatforms == 0 {
		return nil, fmt.Errorf("%w: no platforms (code %d)", ErrOpenCLNotAvailable, rc)
	}
	platforms := make([]clPlatformID, numPlatforms)
	if rc := clGetPlatformIDs(numPlatforms, &platforms[0], nil); rc != CL_SUCCESS {
		return nil, fmt.Errorf("%w: clGetPlatformIDs (code %d)", ErrOpenCLNotAvailable, rc)
	}

	var devices []clDeviceID
	for _, p := range platforms {
		var n uint32
		rc := clGetDeviceIDs(p, CL_DEVICE_TYPE_ALL, 0, nil, &n)
		if rc == CL_DEVICE_NOT_FOUND || n == 0 {
			continue
		}
		if rc != CL_SUCCESS {
			return nil, fmt.Errorf("%w: clGetDeviceIDs (code %d)", ErrOpenCLNotAvailable, rc)
		}
		ids := make([]clDeviceID, n)
		if rc := clGetDeviceIDs(p, CL_DEVICE_TYPE_ALL, n, &ids[0], nil); rc != CL_SUCCESS {
			return nil, fmt.Errorf("%w: clGetDeviceIDs (code %d)", ErrOpenCLNotAvailable, rc)
		}
		devices = append(devices, ids...)
	}
	return devices, nil
}

// NewDevice opens device deviceID with its own context and in-order queue.
func NewDevice(deviceID int) (*Device, error) {
	if err := initOpenCL(); err != nil {
		return nil, err
	}

	devices, err := allDevices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("%w: device %d not found (%d available)", ErrDeviceCreation, deviceID, len(devices))
	}
	dev := devices[deviceID]

	var rc int32
	ctx := clCreateContext(nil, 1, &dev, 0, 0, &rc)
	if rc != CL_SUCCESS || ctx == 0 {
		return nil, fmt.Errorf("%w: clCreateContext (code %d)", ErrDeviceCreation, rc)
	}
	queue := clCreateCommandQueue(ctx, dev, CL_QUEUE_DEFAULT_PROP, &rc)
	if rc != CL_SUCCESS || queue == 0 {
		clReleaseContext(ctx)
		return nil, fmt.Errorf("%w: clCreateCommandQueue (code %d)", ErrDeviceCreation, rc)
	}

	d := &Device{
		device:  dev,
		context: ctx,
		queue:   queue,
		id:      deviceID,
		kernels: make(map[string]*compiledKernel),
	}
	d.name = deviceInfoString(dev, CL_DEVICE_NAME)
	d.vendor = deviceInfoString(dev, CL_DEVICE_VENDOR)

	var units uint32
	deviceInfoValue(dev, CL_DEVICE_MAX_COMPUTE_UNITS, unsafe.Pointer(&units), unsafe.Sizeof(units))
	d.computeUnits = int(units)

	var wg uintptr
	deviceInfoValue(dev, CL_DEVICE_MAX_WORK_GROUP_SIZE, unsafe.Pointer(&wg), unsafe.Sizeof(wg))
	d.maxWorkGroup = int(wg)

	deviceInfoValue(dev, CL_DEVICE_GLOBAL_MEM_SIZE, unsafe.Pointer(&d.memory), unsafe.Sizeof(d.memory))

	var fpConfig uint64
	deviceInfoValue(dev, CL_DEVICE_DOUBLE_FP_CONFIG, unsafe.Pointer(&fpConfig), unsafe.Sizeof(fpConfig))
	d.fp64 = fpConfig != 0 || strings.Contains(deviceInfoString(dev, CL_DEVICE_EXTENSIONS), "cl_khr_fp64")

	return d, nil
}

func deviceInfoValue(dev clDeviceID, param uint32, value unsafe.Pointer, size uintptr) bool {
	return clGetDeviceInfo(dev, param, size, value, nil) == CL_SUCCESS
}

func deviceInfoString(dev clDeviceID, param uint32) string {
	var size uintptr
	if clGetDeviceInfo(dev, param, 0, nil, &size) != CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetDeviceInfo(dev, param, size, unsafe.Pointer(&buf[0]), nil) != CL_SUCCESS {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00 ")
}

// Release frees the kernels, queue and context. Safe to call twice.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, k := range d.kernels {
		k.release()
		delete(d.kernels, name)
	}
	if d.queue != 0 {
		clFinish(d.queue)
		clReleaseCommandQueue(d.queue)
	}
	if d.context != 0 {
		clReleaseContext(d.context)
	}
	d.queue = 0
	d.context = 0
}

// ID returns the device ID.
func (d *Device) ID() int { return d.id }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Vendor returns the device vendor string.
func (d *Device) Vendor() string { return d.vendor }

// MemoryMB returns the global memory size in megabytes.
func (d *Device) MemoryMB() int { return int(d.memory / (1024 * 1024)) }

// ComputeUnits returns the number of parallel compute units.
func (d *Device) ComputeUnits() int { return d.computeUnits }

// MaxWorkGroupSize returns the largest work-group the device accepts.
func (d *Device) MaxWorkGroupSize() int { return d.maxWorkGroup }

// SupportsFP64 reports whether the device has double precision.
func (d *Device) SupportsFP64() bool { return d.fp64 }
