// Package capture defines the contract between the boundary layer and the
// screen capture backends that actually talk to the operating system.
package capture

import (
	"errors"
	"io"
)

// ErrWouldBlock is returned by Capturer.Frame when no new frame is ready yet.
// It is a transient condition: the caller should poll again later.
var ErrWouldBlock = errors.New("capture: would block")

// ErrNoDisplays is returned by backends that find no active display.
var ErrNoDisplays = errors.New("capture: no active displays")

// PixelFormat is the layout of the packed pixels a backend produces.
type PixelFormat int

const (
	// PixelFormatBGRA is 32-bit packed blue, green, red, alpha (or padding).
	PixelFormatBGRA PixelFormat = iota

	// PixelFormatRGBA is 32-bit packed red, green, blue, alpha.
	PixelFormatRGBA
)

// String returns the string representation of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatBGRA:
		return "BGRA"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "Unknown"
	}
}

// BytesPerPixel returns the size of one packed pixel.
func (f PixelFormat) BytesPerPixel() int {
	return 4
}

// Display is one physical output known to a backend.
type Display interface {
	Width() int
	Height() int
}

// Capturer is a live capture session bound to one Display.
//
// Frame returns a view into a buffer owned by the Capturer. The view is valid
// until the next call to Frame or until Close, whichever comes first; the
// caller must not retain or modify it. ErrWouldBlock reports that no frame is
// ready yet. Frame must not suspend the caller waiting for one.
type Capturer interface {
	Width() int
	Height() int
	Format() PixelFormat
	Frame() ([]byte, error)
	Close() error
}

// Backend enumerates displays and opens capture sessions on them.
//
// NewCapturer takes ownership of d whether it succeeds or not.
type Backend interface {
	Name() string
	Displays() ([]Display, error)
	Primary() (Display, error)
	NewCapturer(d Display) (Capturer, error)
}

// ForeignBuffers is implemented by capturers whose frames live outside the Go
// heap (for instance in a natively loaded library). Such frames may be handed
// to C callers without staging.
type ForeignBuffers interface {
	ForeignBuffers() bool
}

// FrameReleaser is implemented by capturers that want to hear when the caller
// is done with the current frame.
type FrameReleaser interface {
	ReleaseFrame()
}

// ReleaseDisplay drops a display the boundary no longer needs. Displays that
// hold backend resources implement io.Closer.
func ReleaseDisplay(d Display) {
	if c, ok := d.(io.Closer); ok {
		_ = c.Close()
	}
}

// IsForeign reports whether frames from c live outside the Go heap.
func IsForeign(c Capturer) bool {
	f, ok := c.(ForeignBuffers)
	return ok && f.ForeignBuffers()
}

// FrameSize returns width*height*bytes-per-pixel for a tightly packed frame.
func FrameSize(width, height int, format PixelFormat) int {
	return width * height * format.BytesPerPixel()
}

// Unavailable returns a backend on which every operation fails with err.
// It stands in when no real backend could be opened, so failures still travel
// through the regular error channel.
func Unavailable(err error) Backend {
	return unavailable{err: err}
}

type unavailable struct{ err error }

func (u unavailable) Name() string                          { return "unavailable" }
func (u unavailable) Displays() ([]Display, error)          { return nil, u.err }
func (u unavailable) Primary() (Display, error)             { return nil, u.err }
func (u unavailable) NewCapturer(Display) (Capturer, error) { return nil, u.err }
