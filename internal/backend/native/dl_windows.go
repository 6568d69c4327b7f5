//go:build windows && amd64

package native

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	kernel32       = syscall.NewLazyDLL("kernel32.dll")
	loadLibraryW   = kernel32.NewProc("LoadLibraryW")
	getProcAddress = kernel32.NewProc("GetProcAddress")
	freeLibrary    = kernel32.NewProc("FreeLibrary")
	getProcessHeap = kernel32.NewProc("GetProcessHeap")
	heapFree       = kernel32.NewProc("HeapFree")
)

// windowsLibrary calls the exports with syscall.SyscallN. Under the x64
// calling convention a struct wider than 8 bytes is returned through a
// caller-allocated buffer passed as a hidden first argument, so every
// *OrErr result is read by handing the callee a pointer to its Go mirror.
type windowsLibrary struct {
	handle uintptr
	sym    symbols
}

func loadABI(path string) (abi, error) {
	handle, err := dlopenLibrary(path)
	if err != nil {
		return nil, err
	}

	l := &windowsLibrary{handle: handle}
	if err := l.sym.resolve(l.lookup); err != nil {
		_ = dlcloseLibrary(handle)
		return nil, err
	}
	return l, nil
}

// lookup resolves name in the library. A missing "free" resolves to
// HeapFree: the Rust allocator of scrap-sys lives on the process heap.
func (l *windowsLibrary) lookup(name string) (uintptr, error) {
	addr, err := dlsymLibrary(l.handle, name)
	if err == nil || name != "free" {
		return addr, err
	}
	if err := heapFree.Find(); err != nil {
		return 0, err
	}
	return heapFree.Addr(), nil
}

func dlopenLibrary(path string) (uintptr, error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	handle, _, err := loadLibraryW.Call(uintptr(unsafe.Pointer(pathPtr)))
	if handle == 0 {
		return 0, fmt.Errorf("LoadLibrary failed: %w", err)
	}
	return handle, nil
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	namePtr, err := syscall.BytePtrFromString(name)
	if err != nil {
		return 0, err
	}
	addr, _, err := getProcAddress.Call(handle, uintptr(unsafe.Pointer(namePtr)))
	if addr == 0 {
		return 0, fmt.Errorf("GetProcAddress(%s) failed: %w", name, err)
	}
	return addr, nil
}

func dlcloseLibrary(handle uintptr) error {
	ret, _, err := freeLibrary.Call(handle)
	if ret == 0 {
		return fmt.Errorf("FreeLibrary failed: %w", err)
	}
	return nil
}

func (l *windowsLibrary) displayList() (uintptr, int, uintptr) {
	var r displayListOrErr
	syscall.SyscallN(l.sym.displayList, uintptr(unsafe.Pointer(&r)))
	return r.List, int(r.Len), r.Err
}

func (l *windowsLibrary) displayListFree(list uintptr) {
	if l.sym.displayListFree == heapFree.Addr() {
		heap, _, _ := getProcessHeap.Call()
		syscall.SyscallN(l.sym.displayListFree, heap, 0, list)
		return
	}
	syscall.SyscallN(l.sym.displayListFree, list)
}

func (l *windowsLibrary) displayPrimary() (uintptr, uintptr) {
	var r displayOrErr
	syscall.SyscallN(l.sym.displayPrimary, uintptr(unsafe.Pointer(&r)))
	return r.Display, r.Err
}

func (l *windowsLibrary) capturerNew(d uintptr) (uintptr, uintptr) {
	var r capturerOrErr
	syscall.SyscallN(l.sym.capturerNew, uintptr(unsafe.Pointer(&r)), d)
	return r.Capturer, r.Err
}

func (l *windowsLibrary) capturerFrame(c uintptr) (uintptr, int, bool, uintptr) {
	var r frameOrErr
	syscall.SyscallN(l.sym.capturerFrame, uintptr(unsafe.Pointer(&r)), c)
	return r.Data, int(r.Len), r.WouldBlock != 0, r.Err
}

func (l *windowsLibrary) displayFree(d uintptr)        { syscall.SyscallN(l.sym.displayFree, d) }
func (l *windowsLibrary) displayWidth(d uintptr) int   { return l.size(l.sym.displayWidth, d) }
func (l *windowsLibrary) displayHeight(d uintptr) int  { return l.size(l.sym.displayHeight, d) }
func (l *windowsLibrary) capturerFree(c uintptr)       { syscall.SyscallN(l.sym.capturerFree, c) }
func (l *windowsLibrary) capturerWidth(c uintptr) int  { return l.size(l.sym.capturerWidth, c) }
func (l *windowsLibrary) capturerHeight(c uintptr) int { return l.size(l.sym.capturerHeight, c) }
func (l *windowsLibrary) errorFree(err uintptr)        { syscall.SyscallN(l.sym.errorFree, err) }

func (l *windowsLibrary) size(fn, arg uintptr) int {
	r, _, _ := syscall.SyscallN(fn, arg)
	return int(r)
}

func (l *windowsLibrary) close() error {
	return dlcloseLibrary(l.handle)
}
