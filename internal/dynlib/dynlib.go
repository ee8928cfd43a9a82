//go:build linux && cgo

// Package dynlib resolves symbols out of a shared library at runtime via
// dlopen/dlsym, the same mechanism the teacher's pkg/can/kvaser.go reaches
// through cgo's static "#cgo LDFLAGS: -lcanlib" link, generalised here to a
// library path chosen at construction instead of link time. Grounded
// equally on the Windows syscall.LoadDLL/FindProc symbol-table idiom in
// other_examples' pcan-pcanbasic.go: a missing symbol degrades the calling
// capability to unsupported, it never panics at load time.
package dynlib

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Library is a handle to a dlopen'd shared object plus its resolved
// symbols, each looked up on its first Symbol call and cached.
type Library struct {
	handle  unsafe.Pointer
	symbols map[string]unsafe.Pointer
}

// Open dlopens path with RTLD_NOW|RTLD_GLOBAL. An empty path resolves
// symbols already loaded into the process (dlopen(NULL, ...)), useful in
// tests that stub out the vendor API.
func Open(path string) (*Library, error) {
	var cpath *C.char
	if path != "" {
		cpath = C.CString(path)
		defer C.free(unsafe.Pointer(cpath))
	}
	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_GLOBAL)
	if handle == nil {
		return nil, fmt.Errorf("dynlib: dlopen %q: %s", path, C.GoString(C.dlerror()))
	}
	return &Library{handle: handle, symbols: make(map[string]unsafe.Pointer)}, nil
}

// Symbol resolves name, caching the result. ok is false if the library
// doesn't export name; callers treat that as "operation not supported" on
// the capability that symbol backs, not a hard error.
func (l *Library) Symbol(name string) (unsafe.Pointer, bool) {
	if sym, cached := l.symbols[name]; cached {
		return sym, sym != nil
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	C.dlerror() // clear any pending error
	sym := C.dlsym(l.handle, cname)
	l.symbols[name] = sym
	return sym, sym != nil
}

// Close releases the library handle.
func (l *Library) Close() error {
	if l.handle == nil {
		return nil
	}
	if C.dlclose(l.handle) != 0 {
		return fmt.Errorf("dynlib: dlclose: %s", C.GoString(C.dlerror()))
	}
	l.handle = nil
	return nil
}
