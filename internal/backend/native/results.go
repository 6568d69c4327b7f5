package native

// Result structs mirrored from scrap-sys.h for the loaders that receive them
// without cgo. The field layout must match the C declarations.
type displayListOrErr struct {
	List uintptr
	Len  uintptr
	Err  uintptr
}

type displayOrErr struct {
	Display uintptr
	Err     uintptr
}

type capturerOrErr struct {
	Capturer uintptr
	Err      uintptr
}

type frameOrErr struct {
	Data       uintptr
	Len        uintptr
	WouldBlock byte
	Err        uintptr
}
