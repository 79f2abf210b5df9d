package opencl

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"
)

// Kernel names
const (
	KernelFloat64 = "correlate_f64"
	KernelFixed   = "correlate_fixed"
)

// ParamCount is the length of the float64 kernel parameter block: the three
// inverse-basis columns followed by the three axis weights.
const ParamCount = 12

// Each work item i scans every reference and keeps the first minimum.
// Arithmetic order matches the host metric exactly.
const float64Source = `
#pragma OPENCL FP_CONTRACT OFF
#pragma OPENCL EXTENSION cl_khr_fp64 : enable

__kernel void correlate_f64(__global const double *queries,
                            __global const double *refs,
                            __constant double *params,
                            const int anisotropic,
                            const int n,
                            const int m,
                            __global int *out_index,
                            __global double *out_point)
{
    const int i = get_global_id(0);
    if (i >= n) {
        return;
    }
    const double qx = queries[3 * i];
    const double qy = queries[3 * i + 1];
    const double qz = queries[3 * i + 2];

    int best = 0;
    double best_d = 0.0;
    for (int j = 0; j < m; j++) {
        const double dx = refs[3 * j] - qx;
        const double dy = refs[3 * j + 1] - qy;
        const double dz = refs[3 * j + 2] - qz;
        double sum;
        if (anisotropic) {
            sum = 0.0;
            for (int k = 0; k < 3; k++) {
                double a = params[3 * k] * dx;
                double b = params[3 * k + 1] * dy;
                double c = params[3 * k + 2] * dz;
                double p = ((a + b) + c) / params[9 + k];
                double p2 = p * p;
                sum = sum + p2;
            }
        } else {
            double a = dx * dx;
            double b = dy * dy;
            double c = dz * dz;
            sum = (a + b) + c;
        }
        const double d = sqrt(sum);
        if (j == 0 || d < best_d) {
            best = j;
            best_d = d;
        }
    }
    out_index[i] = best;
    out_point[3 * i] = refs[3 * best];
    out_point[3 * i + 1] = refs[3 * best + 1];
    out_point[3 * i + 2] = refs[3 * best + 2];
}
`

// Integer coordinates, squared distance compared in 64-bit.
const fixedSource = `
__kernel void correlate_fixed(__global const int *queries,
                              __global const int *refs,
                              const int n,
                              const int m,
                              __global int *out_index)
{
    const int i = get_global_id(0);
    if (i >= n) {
        return;
    }
    const long qx = queries[3 * i];
    const long qy = queries[3 * i + 1];
    const long qz = queries[3 * i + 2];

    int best = 0;
    long best_d = 0;
    for (int j = 0; j < m; j++) {
        const long dx = (long)refs[3 * j] - qx;
        const long dy = (long)refs[3 * j + 1] - qy;
        const long dz = (long)refs[3 * j + 2] - qz;
        const long d = dx * dx + dy * dy + dz * dz;
        if (j == 0 || d < best_d) {
            best = j;
            best_d = d;
        }
    }
    out_index[i] = best;
}
`

type compiledKernel struct {
	program clProgram
	kernel  clKernel
}

func (k *compiledKernel) release() {
	if k.kernel != 0 {
		clReleaseKernel(k.kernel)
	}
	if k.program != 0 {
		clReleaseProgram(k.program)
	}
	k.kernel, k.program = 0, 0
}

// GlobalSize pads n up to a multiple of the work-group size.
func GlobalSize(n, workGroup int) int {
	if workGroup <= 0 {
		return n
	}
	return (n + workGroup - 1) / workGroup * workGroup
}

// kernel returns the compiled kernel, building it on first use. Caller holds d.mu.
func (d *Device) kernel(name string) (clKernel, error) {
	if k, ok := d.kernels[name]; ok {
		return k.kernel, nil
	}

	var source string
	switch name {
	case KernelFloat64:
		if !d.fp64 {
			return 0, ErrNoFP64
		}
		source = float64Source
	case KernelFixed:
		source = fixedSource
	default:
		return 0, fmt.Errorf("%w: unknown kernel %q", ErrBuildFailed, name)
	}

	src := []byte(source)
	srcPtr := &src[0]
	srcLen := uintptr(len(src))
	var rc int32
	program := clCreateProgramWithSource(d.context, 1, &srcPtr, &srcLen, &rc)
	runtime.KeepAlive(src)
	if rc != CL_SUCCESS || program == 0 {
		return 0, fmt.Errorf("%w: clCreateProgramWithSource (code %d)", ErrBuildFailed, rc)
	}

	options := []byte("\x00")
	if rc := clBuildProgram(program, 1, &d.device, &options[0], 0, 0); rc != CL_SUCCESS {
		log := d.buildLog(program)
		clReleaseProgram(program)
		return 0, fmt.Errorf("%w: %s (code %d): %s", ErrBuildFailed, name, rc, log)
	}

	cname := append([]byte(name), 0)
	k := clCreateKernel(program, &cname[0], &rc)
	if rc != CL_SUCCESS || k == 0 {
		clReleaseProgram(program)
		return 0, fmt.Errorf("%w: clCreateKernel %s (code %d)", ErrBuildFailed, name, rc)
	}
	d.kernels[name] = &compiledKernel{program: program, kernel: k}
	return k, nil
}

func (d *Device) buildLog(program clProgram) string {
	var size uintptr
	if clGetProgramBuildInfo(program, d.device, CL_PROGRAM_BUILD_LOG, 0, nil, &size) != CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, size)
	if clGetProgramBuildInfo(program, d.device, CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil) != CL_SUCCESS {
		return ""
	}
	return string(buf[:len(buf)-1])
}

// Prepare compiles a kernel ahead of the first dispatch.
func (d *Device) Prepare(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.context == 0 {
		return ErrDeviceReleased
	}
	_, err := d.kernel(name)
	return err
}

func (d *Device) newBuffer(flags uint64, size uintptr, host unsafe.Pointer) (clMem, error) {
	var rc int32
	mem := clCreateBuffer(d.context, flags, size, host, &rc)
	if rc != CL_SUCCESS || mem == 0 {
		return 0, fmt.Errorf("%w: %d bytes (code %d)", ErrBufferCreation, size, rc)
	}
	return mem, nil
}

func setArgs(k clKernel, args ...interface{}) error {
	for i, a := range args {
		var rc int32
		switch v := a.(type) {
		case clMem:
			rc = clSetKernelArg(k, uint32(i), unsafe.Sizeof(v), unsafe.Pointer(&v))
		case int32:
			rc = clSetKernelArg(k, uint32(i), unsafe.Sizeof(v), unsafe.Pointer(&v))
		default:
			return fmt.Errorf("%w: unsupported argument %T", ErrKernelExecution, a)
		}
		if rc != CL_SUCCESS {
			return fmt.Errorf("%w: clSetKernelArg %d (code %d)", ErrKernelExecution, i, rc)
		}
	}
	return nil
}

func (d *Device) dispatch(k clKernel, n, workGroup int) error {
	local := workGroup
	if d.maxWorkGroup > 0 && local > d.maxWorkGroup {
		local = d.maxWorkGroup
	}
	if local <= 0 {
		local = 1
	}
	global := uintptr(GlobalSize(n, local))
	localSize := uintptr(local)
	if rc := clEnqueueNDRangeKernel(d.queue, k, 1, nil, &global, &localSize, 0, 0, 0); rc != CL_SUCCESS {
		return fmt.Errorf("%w: clEnqueueNDRangeKernel (code %d)", ErrKernelExecution, rc)
	}
	return nil
}

func (d *Device) read(mem clMem, size uintptr, dst unsafe.Pointer) error {
	if rc := clEnqueueReadBuffer(d.queue, mem, CL_TRUE, 0, size, dst, 0, 0, 0); rc != CL_SUCCESS {
		return fmt.Errorf("%w: clEnqueueReadBuffer (code %d)", ErrKernelExecution, rc)
	}
	return nil
}

func checkSizes(n, m int) error {
	if n > math.MaxInt32 || m > math.MaxInt32 || 3*n > math.MaxInt32 || 3*m > math.MaxInt32 {
		return fmt.Errorf("%w: %d queries x %d references exceeds kernel index range", ErrKernelExecution, n, m)
	}
	return nil
}

// NearestFloat64 runs the double precision kernel.
//
// queries and refs are packed x,y,z triples. params holds the inverse-basis
// columns and weights; it is ignored unless anisotropic is set. It returns the
// winning reference index and coordinates for each query.
func (d *Device) NearestFloat64(queries, refs []float64, params [ParamCount]float64, anisotropic bool, workGroup int) ([]int32, []float64, error) {
	n, m := len(queries)/3, len(refs)/3
	if n == 0 {
		return nil, nil, nil
	}
	if m == 0 {
		return nil, nil, fmt.Errorf("%w: no reference points", ErrKernelExecution)
	}
	if err := checkSizes(n, m); err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.context == 0 {
		return nil, nil, ErrDeviceReleased
	}
	k, err := d.kernel(KernelFloat64)
	if err != nil {
		return nil, nil, err
	}

	qBuf, err := d.newBuffer(CL_MEM_READ_ONLY|CL_MEM_COPY_HOST_PTR, uintptr(len(queries))*8, unsafe.Pointer(&queries[0]))
	if err != nil {
		return nil, nil, err
	}
	defer clReleaseMemObject(qBuf)
	rBuf, err := d.newBuffer(CL_MEM_READ_ONLY|CL_MEM_COPY_HOST_PTR, uintptr(len(refs))*8, unsafe.Pointer(&refs[0]))
	if err != nil {
		return nil, nil, err
	}
	defer clReleaseMemObject(rBuf)
	pBuf, err := d.newBuffer(CL_MEM_READ_ONLY|CL_MEM_COPY_HOST_PTR, ParamCount*8, unsafe.Pointer(&params[0]))
	if err != nil {
		return nil, nil, err
	}
	defer clReleaseMemObject(pBuf)
	idxBuf, err := d.newBuffer(CL_MEM_WRITE_ONLY, uintptr(n)*4, nil)
	if err != nil {
		return nil, nil, err
	}
	defer clReleaseMemObject(idxBuf)
	ptBuf, err := d.newBuffer(CL_MEM_WRITE_ONLY, uintptr(n)*3*8, nil)
	if err != nil {
		return nil, nil, err
	}
	defer clReleaseMemObject(ptBuf)

	var aniso int32
	if anisotropic {
		aniso = 1
	}
	if err := setArgs(k, qBuf, rBuf, pBuf, aniso, int32(n), int32(m), idxBuf, ptBuf); err != nil {
		return nil, nil, err
	}
	if err := d.dispatch(k, n, workGroup); err != nil {
		return nil, nil, err
	}

	index := make([]int32, n)
	points := make([]float64, 3*n)
	if err := d.read(idxBuf, uintptr(n)*4, unsafe.Pointer(&index[0])); err != nil {
		return nil, nil, err
	}
	if err := d.read(ptBuf, uintptr(n)*3*8, unsafe.Pointer(&points[0])); err != nil {
		return nil, nil, err
	}
	clFinish(d.queue)
	return index, points, nil
}

// NearestFixed runs the integer Euclidean kernel over packed x,y,z triples.
func (d *Device) NearestFixed(queries, refs []int32, workGroup int) ([]int32, error) {
	n, m := len(queries)/3, len(refs)/3
	if n == 0 {
		return nil, nil
	}
	if m == 0 {
		return nil, fmt.Errorf("%w: no reference points", ErrKernelExecution)
	}
	if err := checkSizes(n, m); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.context == 0 {
		return nil, ErrDeviceReleased
	}
	k, err := d.kernel(KernelFixed)
	if err != nil {
		return nil, err
	}

	qBuf, err := d.newBuffer(CL_MEM_READ_ONLY|CL_MEM_COPY_HOST_PTR, uintptr(len(queries))*4, unsafe.Pointer(&queries[0]))
	if err != nil {
		return nil, err
	}
	defer clReleaseMemObject(qBuf)
	rBuf, err := d.newBuffer(CL_MEM_READ_ONLY|CL_MEM_COPY_HOST_PTR, uintptr(len(refs))*4, unsafe.Pointer(&refs[0]))
	if err != nil {
		return nil, err
	}
	defer clReleaseMemObject(rBuf)
	idxBuf, err := d.newBuffer(CL_MEM_WRITE_ONLY, uintptr(n)*4, nil)
	if err != nil {
		return nil, err
	}
	defer clReleaseMemObject(idxBuf)

	if err := setArgs(k, qBuf, rBuf, int32(n), int32(m), idxBuf); err != nil {
		return nil, err
	}
	if err := d.dispatch(k, n, workGroup); err != nil {
		return nil, err
	}

	index := make([]int32, n)
	if err := d.read(idxBuf, uintptr(n)*4, unsafe.Pointer(&index[0])); err != nil {
		return nil, err
	}
	clFinish(d.queue)
	return index, nil
}
