//go:build cgo && !windows

package native

/*
#cgo linux LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdlib.h>
#include <stddef.h>

typedef struct { void** list; size_t len; char* err; } scrap_display_list;
typedef struct { void* display; char* err; } scrap_display;
typedef struct { void* capturer; char* err; } scrap_capturer;
typedef struct { unsigned char* data; size_t len; char would_block; char* err; } scrap_frame;

static scrap_display_list call_display_list(void* fn) {
	return ((scrap_display_list (*)(void))fn)();
}

static scrap_display call_display_primary(void* fn) {
	return ((scrap_display (*)(void))fn)();
}

static scrap_capturer call_capturer_new(void* fn, void* display) {
	return ((scrap_capturer (*)(void*))fn)(display);
}

static scrap_frame call_capturer_frame(void* fn, void* capturer) {
	return ((scrap_frame (*)(void*))fn)(capturer);
}

static void call_release(void* fn, void* p) {
	((void (*)(void*))fn)(p);
}

static size_t call_size(void* fn, void* p) {
	return ((size_t (*)(void*))fn)(p);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// cgoLibrary calls the library exports through C trampolines, which keeps
// the by-value result structs in C calling convention.
type cgoLibrary struct {
	handle unsafe.Pointer
	sym    symbols
}

func loadABI(path string) (abi, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dlopen: %s", C.GoString(C.dlerror()))
	}

	l := &cgoLibrary{handle: handle}
	if err := l.sym.resolve(l.dlsym); err != nil {
		C.dlclose(handle)
		return nil, err
	}
	return l, nil
}

func (l *cgoLibrary) dlsym(name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	symbol := C.dlsym(l.handle, cname)
	if symbol == nil {
		return 0, fmt.Errorf("dlsym: %s", C.GoString(C.dlerror()))
	}
	return uintptr(symbol), nil
}

func fn(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }

func (l *cgoLibrary) displayList() (uintptr, int, uintptr) {
	r := C.call_display_list(fn(l.sym.displayList))
	return uintptr(unsafe.Pointer(r.list)), int(r.len), uintptr(unsafe.Pointer(r.err))
}

func (l *cgoLibrary) displayListFree(list uintptr) {
	C.call_release(fn(l.sym.displayListFree), unsafe.Pointer(list))
}

func (l *cgoLibrary) displayPrimary() (uintptr, uintptr) {
	r := C.call_display_primary(fn(l.sym.displayPrimary))
	return uintptr(r.display), uintptr(unsafe.Pointer(r.err))
}

func (l *cgoLibrary) displayFree(d uintptr) {
	C.call_release(fn(l.sym.displayFree), unsafe.Pointer(d))
}

func (l *cgoLibrary) displayWidth(d uintptr) int {
	return int(C.call_size(fn(l.sym.displayWidth), unsafe.Pointer(d)))
}

func (l *cgoLibrary) displayHeight(d uintptr) int {
	return int(C.call_size(fn(l.sym.displayHeight), unsafe.Pointer(d)))
}

func (l *cgoLibrary) capturerNew(d uintptr) (uintptr, uintptr) {
	r := C.call_capturer_new(fn(l.sym.capturerNew), unsafe.Pointer(d))
	return uintptr(r.capturer), uintptr(unsafe.Pointer(r.err))
}

func (l *cgoLibrary) capturerFree(c uintptr) {
	C.call_release(fn(l.sym.capturerFree), unsafe.Pointer(c))
}

func (l *cgoLibrary) capturerWidth(c uintptr) int {
	return int(C.call_size(fn(l.sym.capturerWidth), unsafe.Pointer(c)))
}

func (l *cgoLibrary) capturerHeight(c uintptr) int {
	return int(C.call_size(fn(l.sym.capturerHeight), unsafe.Pointer(c)))
}

func (l *cgoLibrary) capturerFrame(c uintptr) (uintptr, int, bool, uintptr) {
	r := C.call_capturer_frame(fn(l.sym.capturerFrame), unsafe.Pointer(c))
	return uintptr(unsafe.Pointer(r.data)), int(r.len), r.would_block != 0, uintptr(unsafe.Pointer(r.err))
}

func (l *cgoLibrary) errorFree(err uintptr) {
	C.call_release(fn(l.sym.errorFree), unsafe.Pointer(err))
}

func (l *cgoLibrary) close() error {
	if rc := C.dlclose(l.handle); rc != 0 {
		return fmt.Errorf("dlclose: %s", C.GoString(C.dlerror()))
	}
	return nil
}
