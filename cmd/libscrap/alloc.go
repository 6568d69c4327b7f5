package main

/*
#include <stdlib.h>
#include <string.h>
#include "scrap_types.h"
#include "cells.h"
*/
import "C"

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/thesyncim/libgoscrap/internal/boundary"
)

// liveAllocs counts C allocations handed across the boundary that have not
// been released yet: handle cells, display list arrays, error strings and
// frame staging buffers.
var liveAllocs atomic.Int64

func cAlloc(size C.size_t) unsafe.Pointer {
	p := C.malloc(size)
	liveAllocs.Add(1)
	return p
}

func cFree(p unsafe.Pointer) {
	if p == nil {
		return
	}
	C.free(p)
	liveAllocs.Add(-1)
}

// newCError materializes err as a caller-owned, null-terminated string.
// Released with error_free.
func newCError(err error) *C.char {
	reportError(err)
	s := C.CString(err.Error())
	liveAllocs.Add(1)
	return s
}

// reportError logs an error on its way to the caller. Unclassified failures,
// such as recovered panics, log at Warn; the rest are expected outcomes.
func reportError(err error) {
	class := boundary.Classify(err)
	level := slog.LevelDebug
	if class == boundary.ClassUnknown {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "libscrap: error", "class", class, "error", err)
}

func freeCError(s *C.char) {
	cFree(unsafe.Pointer(s))
}

func newDisplayCell(h boundary.Handle) *C.struct_Display {
	cell := (*C.struct_Display)(cAlloc(C.sizeof_struct_Display))
	cell.id = C.uint64_t(h)
	return cell
}

func newCapturerCell(h boundary.Handle) *C.struct_Capturer {
	cell := (*C.struct_Capturer)(cAlloc(C.sizeof_struct_Capturer))
	cell.id = C.uint64_t(h)
	return cell
}

func displayHandle(d *C.struct_Display) boundary.Handle {
	if d == nil {
		return 0
	}
	return boundary.Handle(d.id)
}

func capturerHandle(c *C.struct_Capturer) boundary.Handle {
	if c == nil {
		return 0
	}
	return boundary.Handle(c.id)
}

// displayCells views a display list array as a Go slice.
func displayCells(list **C.struct_Display, n int) []*C.struct_Display {
	if list == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice(list, n)
}

// newDisplayList allocates the pointer array for a display list, one cell per
// handle. An empty enumeration still gets a non-null array so the envelope
// has exactly one populated side.
func newDisplayList(handles []boundary.Handle) **C.struct_Display {
	n := len(handles)
	capacity := n
	if capacity == 0 {
		capacity = 1
	}
	var elem *C.struct_Display
	list := (**C.struct_Display)(cAlloc(C.size_t(capacity) * C.size_t(unsafe.Sizeof(elem))))
	cells := displayCells(list, capacity)
	cells[0] = nil
	for i, h := range handles {
		cells[i] = newDisplayCell(h)
	}
	return list
}

// stage is a C buffer a capturer's Go-heap frames are copied into, since Go
// memory cannot be returned to C. It is reused across frames and handed out
// under the same validity window as the backend buffer it mirrors.
type stage struct {
	buf  unsafe.Pointer
	size int
}

var (
	stagesMu sync.Mutex
	stages   = make(map[boundary.Handle]*stage)
)

func stageFrame(h boundary.Handle, data []byte) *C.uchar {
	stagesMu.Lock()
	s, ok := stages[h]
	if !ok {
		s = &stage{}
		stages[h] = s
	}
	stagesMu.Unlock()

	if s.size < len(data) {
		cFree(s.buf)
		s.buf = cAlloc(C.size_t(len(data)))
		s.size = len(data)
	}
	copy(unsafe.Slice((*byte)(s.buf), len(data)), data)
	return (*C.uchar)(s.buf)
}

func dropStage(h boundary.Handle) {
	stagesMu.Lock()
	s, ok := stages[h]
	delete(stages, h)
	stagesMu.Unlock()

	if ok {
		cFree(s.buf)
	}
}

func dropAllStages() {
	stagesMu.Lock()
	old := stages
	stages = make(map[boundary.Handle]*stage)
	stagesMu.Unlock()

	for _, s := range old {
		cFree(s.buf)
	}
}
