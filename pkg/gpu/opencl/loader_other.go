//go:build !(darwin || linux || freebsd)

package opencl

import (
	"errors"
	"runtime"
)

func loadLibrary() (uintptr, error) {
	return 0, errors.New("dynamic loading not supported on " + runtime.GOOS)
}

func registerFunctions(uintptr) {}
