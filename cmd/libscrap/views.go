package main

/*
#include "scrap_types.h"
*/
import "C"

import "unsafe"

// Read-only views of C results for main_test.go, which cannot import "C"
// itself.

// errorText reads an error string without taking ownership of it.
func errorText(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

// frameBytes views the pixels of a frame envelope without copying.
func frameBytes(f C.FrameOrErr) []byte {
	if f.data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(f.data)), int(f.len))
}
