package main

/*
#include <stdlib.h>
#include "scrap_types.h"
#include "cells.h"
*/
import "C"

import (
	"unsafe"

	"github.com/thesyncim/libgoscrap/internal/boundary"
)

//export error_free
func error_free(err *C.char) {
	defer recoverInto("error_free", nil)
	freeCError(err)
}

//export display_list
func display_list() (out C.DisplayListOrErr) {
	defer recoverInto("display_list", func(err error) {
		out = C.DisplayListOrErr{err: newCError(err)}
	})

	res := current().ListDisplays()
	if res.Err != nil {
		out.err = newCError(res.Err)
		return out
	}
	out.list = newDisplayList(res.Displays)
	out.len = C.size_t(len(res.Displays))
	return out
}

// display_list_free releases the array of a display list. The cells it points
// to are owned separately and survive.
//
//export display_list_free
func display_list_free(list **C.struct_Display) {
	defer recoverInto("display_list_free", nil)
	cFree(unsafe.Pointer(list))
}

//export display_primary
func display_primary() (out C.DisplayOrErr) {
	defer recoverInto("display_primary", func(err error) {
		out = C.DisplayOrErr{err: newCError(err)}
	})
	return displayOrErr(current().PrimaryDisplay())
}

//export get_display
func get_display(index C.int) (out C.DisplayOrErr) {
	defer recoverInto("get_display", func(err error) {
		out = C.DisplayOrErr{err: newCError(err)}
	})
	return displayOrErr(current().DisplayAt(int(index)))
}

func displayOrErr(res boundary.DisplayResult) (out C.DisplayOrErr) {
	if res.Err != nil {
		out.err = newCError(res.Err)
		return out
	}
	out.display = newDisplayCell(res.Display)
	return out
}

//export display_free
func display_free(display *C.struct_Display) {
	defer recoverInto("display_free", nil)
	if display == nil {
		return
	}
	_ = current().FreeDisplay(displayHandle(display))
	cFree(unsafe.Pointer(display))
}

//export display_width
func display_width(display *C.struct_Display) C.size_t {
	defer recoverInto("display_width", nil)
	w, _ := current().DisplayWidth(displayHandle(display))
	return C.size_t(w)
}

//export display_height
func display_height(display *C.struct_Display) C.size_t {
	defer recoverInto("display_height", nil)
	h, _ := current().DisplayHeight(displayHandle(display))
	return C.size_t(h)
}

// capturer_new consumes the display cell before anything else can fail, so
// the caller never gets it back.
//
//export capturer_new
func capturer_new(display *C.struct_Display) (out C.CapturerOrErr) {
	defer recoverInto("capturer_new", func(err error) {
		out = C.CapturerOrErr{err: newCError(err)}
	})

	h := displayHandle(display)
	cFree(unsafe.Pointer(display))

	res := current().NewCapturer(h)
	if res.Err != nil {
		out.err = newCError(res.Err)
		return out
	}
	out.capturer = newCapturerCell(res.Capturer)
	return out
}

//export capturer_free
func capturer_free(capturer *C.struct_Capturer) {
	defer recoverInto("capturer_free", nil)
	if capturer == nil {
		return
	}
	h := capturerHandle(capturer)
	_ = current().FreeCapturer(h)
	dropStage(h)
	cFree(unsafe.Pointer(capturer))
}

//export capturer_width
func capturer_width(capturer *C.struct_Capturer) C.size_t {
	defer recoverInto("capturer_width", nil)
	w, _ := current().CapturerWidth(capturerHandle(capturer))
	return C.size_t(w)
}

//export capturer_height
func capturer_height(capturer *C.struct_Capturer) C.size_t {
	defer recoverInto("capturer_height", nil)
	h, _ := current().CapturerHeight(capturerHandle(capturer))
	return C.size_t(h)
}

// capturer_frame polls once. Frames that already live in C memory are handed
// out as is; Go-heap frames are copied into the capturer's staging buffer.
//
//export capturer_frame
func capturer_frame(capturer *C.struct_Capturer) (out C.FrameOrErr) {
	defer recoverInto("capturer_frame", func(err error) {
		out = C.FrameOrErr{err: newCError(err)}
	})

	h := capturerHandle(capturer)
	res := current().NextFrame(h)
	switch res.Outcome() {
	case boundary.OutcomeError:
		out.err = newCError(res.Err)
	case boundary.OutcomeWouldBlock:
		out.would_block = 1
	default:
		if res.Foreign {
			out.data = (*C.uchar)(unsafe.Pointer(unsafe.SliceData(res.Data)))
		} else {
			out.data = stageFrame(h, res.Data)
		}
		out.len = C.size_t(len(res.Data))
	}
	return out
}

//export capturer_frame_release
func capturer_frame_release(capturer *C.struct_Capturer) {
	defer recoverInto("capturer_frame_release", nil)
	_ = current().ReleaseFrame(capturerHandle(capturer))
}
