// Package native drives a screen capture library that speaks the scrap-sys
// C ABI, loaded at runtime. It uses cgo when available, purego on darwin
// builds without cgo and syscall.SyscallN on windows/amd64.
package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

var (
	// ErrLibraryNotFound is returned when no candidate library file exists.
	ErrLibraryNotFound = errors.New("scrap-sys library not found")

	// ErrNotSupported is returned on platforms without a loader.
	ErrNotSupported = errors.New("native capture not supported on this platform")

	// ErrMissingSymbol is returned when the library lacks a required export.
	ErrMissingSymbol = errors.New("scrap-sys library is missing a symbol")
)

// EnvLibraryPath overrides the library search.
const EnvLibraryPath = "SCRAP_SYS_PATH"

// abi is one loaded scrap-sys library. Pointers are opaque addresses in
// library memory; error pointers must be passed back to errorFree.
type abi interface {
	displayList() (list uintptr, n int, err uintptr)
	displayListFree(list uintptr)
	displayPrimary() (display, err uintptr)
	displayFree(display uintptr)
	displayWidth(display uintptr) int
	displayHeight(display uintptr) int
	capturerNew(display uintptr) (capturer, err uintptr)
	capturerFree(capturer uintptr)
	capturerWidth(capturer uintptr) int
	capturerHeight(capturer uintptr) int
	capturerFrame(capturer uintptr) (data uintptr, n int, wouldBlock bool, err uintptr)
	errorFree(err uintptr)
	close() error
}

// symbols are the addresses of the library exports.
type symbols struct {
	errorFree       uintptr
	displayList     uintptr
	displayListFree uintptr
	displayPrimary  uintptr
	displayFree     uintptr
	displayWidth    uintptr
	displayHeight   uintptr
	capturerNew     uintptr
	capturerFree    uintptr
	capturerWidth   uintptr
	capturerHeight  uintptr
	capturerFrame   uintptr
}

// resolve looks up every export. The original scrap-sys does not export
// display_list_free; its list arrays come from the C allocator and are
// released with free instead.
func (s *symbols) resolve(lookup func(name string) (uintptr, error)) error {
	required := []struct {
		name string
		dst  *uintptr
	}{
		{"error_free", &s.errorFree},
		{"display_list", &s.displayList},
		{"display_primary", &s.displayPrimary},
		{"display_free", &s.displayFree},
		{"display_width", &s.displayWidth},
		{"display_height", &s.displayHeight},
		{"capturer_new", &s.capturerNew},
		{"capturer_free", &s.capturerFree},
		{"capturer_width", &s.capturerWidth},
		{"capturer_height", &s.capturerHeight},
		{"capturer_frame", &s.capturerFrame},
	}
	for _, sym := range required {
		addr, err := lookup(sym.name)
		if err != nil || addr == 0 {
			return fmt.Errorf("%w: %s", ErrMissingSymbol, sym.name)
		}
		*sym.dst = addr
	}

	if addr, err := lookup("display_list_free"); err == nil && addr != 0 {
		s.displayListFree = addr
		return nil
	}
	addr, err := lookup("free")
	if err != nil || addr == 0 {
		return fmt.Errorf("%w: display_list_free", ErrMissingSymbol)
	}
	s.displayListFree = addr
	return nil
}

// FindLibrary returns the library path Open would load.
// It searches in the following locations:
// 1. The explicit path, if it exists
// 2. Path specified by the SCRAP_SYS_PATH environment variable
// 3. ./lib/{os}_{arch}/ relative to the executable and the working directory
// 4. The bare library name, left to the system loader
func FindLibrary(path string) (string, bool) {
	for _, p := range []string{path, os.Getenv(EnvLibraryPath)} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}

	name := libraryName(runtime.GOOS)
	platformDir := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)

	var searchPaths []string
	if execPath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(execPath), "lib", platformDir, name))
	}
	if wd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(wd, "lib", platformDir, name),
			filepath.Join(wd, "..", "lib", platformDir, name),
		)
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs, true
		}
	}
	return name, false
}

func libraryName(goos string) string {
	switch goos {
	case "darwin":
		return "libscrap_sys.dylib"
	case "windows":
		return "scrap_sys.dll"
	default:
		return "libscrap_sys.so"
	}
}

// cString copies a null-terminated string out of library memory.
func cString(p uintptr) string {
	if p == 0 {
		return ""
	}
	ptr := unsafe.Pointer(p)
	n := 0
	for *(*byte)(unsafe.Add(ptr, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}
