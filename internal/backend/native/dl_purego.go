//go:build !cgo && darwin

package native

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type puregoLibrary struct {
	handle uintptr

	errorFreeFn       func(uintptr)
	displayListFn     func() displayListOrErr
	displayListFreeFn func(uintptr)
	displayPrimaryFn  func() displayOrErr
	displayFreeFn     func(uintptr)
	displayWidthFn    func(uintptr) uintptr
	displayHeightFn   func(uintptr) uintptr
	capturerNewFn     func(uintptr) capturerOrErr
	capturerFreeFn    func(uintptr)
	capturerWidthFn   func(uintptr) uintptr
	capturerHeightFn  func(uintptr) uintptr
	capturerFrameFn   func(uintptr) frameOrErr
}

func loadABI(path string) (abi, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen: %w", err)
	}

	var sym symbols
	if err := sym.resolve(func(name string) (uintptr, error) {
		return purego.Dlsym(handle, name)
	}); err != nil {
		_ = purego.Dlclose(handle)
		return nil, err
	}

	l := &puregoLibrary{handle: handle}
	purego.RegisterFunc(&l.errorFreeFn, sym.errorFree)
	purego.RegisterFunc(&l.displayListFn, sym.displayList)
	purego.RegisterFunc(&l.displayListFreeFn, sym.displayListFree)
	purego.RegisterFunc(&l.displayPrimaryFn, sym.displayPrimary)
	purego.RegisterFunc(&l.displayFreeFn, sym.displayFree)
	purego.RegisterFunc(&l.displayWidthFn, sym.displayWidth)
	purego.RegisterFunc(&l.displayHeightFn, sym.displayHeight)
	purego.RegisterFunc(&l.capturerNewFn, sym.capturerNew)
	purego.RegisterFunc(&l.capturerFreeFn, sym.capturerFree)
	purego.RegisterFunc(&l.capturerWidthFn, sym.capturerWidth)
	purego.RegisterFunc(&l.capturerHeightFn, sym.capturerHeight)
	purego.RegisterFunc(&l.capturerFrameFn, sym.capturerFrame)
	return l, nil
}

func (l *puregoLibrary) displayList() (uintptr, int, uintptr) {
	r := l.displayListFn()
	return r.List, int(r.Len), r.Err
}

func (l *puregoLibrary) displayListFree(list uintptr) { l.displayListFreeFn(list) }

func (l *puregoLibrary) displayPrimary() (uintptr, uintptr) {
	r := l.displayPrimaryFn()
	return r.Display, r.Err
}

func (l *puregoLibrary) displayFree(d uintptr)        { l.displayFreeFn(d) }
func (l *puregoLibrary) displayWidth(d uintptr) int   { return int(l.displayWidthFn(d)) }
func (l *puregoLibrary) displayHeight(d uintptr) int  { return int(l.displayHeightFn(d)) }
func (l *puregoLibrary) capturerFree(c uintptr)       { l.capturerFreeFn(c) }
func (l *puregoLibrary) capturerWidth(c uintptr) int  { return int(l.capturerWidthFn(c)) }
func (l *puregoLibrary) capturerHeight(c uintptr) int { return int(l.capturerHeightFn(c)) }
func (l *puregoLibrary) errorFree(err uintptr)        { l.errorFreeFn(err) }

func (l *puregoLibrary) capturerNew(d uintptr) (uintptr, uintptr) {
	r := l.capturerNewFn(d)
	return r.Capturer, r.Err
}

func (l *puregoLibrary) capturerFrame(c uintptr) (uintptr, int, bool, uintptr) {
	r := l.capturerFrameFn(c)
	return r.Data, int(r.Len), r.WouldBlock != 0, r.Err
}

func (l *puregoLibrary) close() error {
	return purego.Dlclose(l.handle)
}
