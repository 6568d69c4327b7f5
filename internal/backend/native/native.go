package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

// Backend is a capture.Backend over a loaded scrap-sys library.
type Backend struct {
	lib  abi
	path string

	mu     sync.Mutex
	closed bool
}

// Open loads the library found by FindLibrary(path).
func Open(path string) (*Backend, error) {
	resolved, found := FindLibrary(path)
	lib, err := loadABI(resolved)
	if err != nil {
		if !found && !errors.Is(err, ErrNotSupported) {
			return nil, fmt.Errorf("%w: %s: %w", ErrLibraryNotFound, resolved, err)
		}
		return nil, fmt.Errorf("load %s: %w", resolved, err)
	}
	slog.Debug("loaded scrap-sys library", "path", resolved)
	return newBackend(lib, resolved), nil
}

func newBackend(lib abi, path string) *Backend {
	return &Backend{lib: lib, path: path}
}

func (b *Backend) Name() string { return "native" }

// Path returns the library file in use.
func (b *Backend) Path() string { return b.path }

// Displays enumerates the library's displays in its order.
func (b *Backend) Displays() ([]capture.Display, error) {
	list, n, errp := b.lib.displayList()
	if errp != 0 {
		return nil, b.takeError(errp)
	}
	if list == 0 {
		return nil, nil
	}

	ptrs := unsafe.Slice((*uintptr)(unsafe.Pointer(list)), n)
	out := make([]capture.Display, 0, n)
	for _, p := range ptrs {
		out = append(out, &display{lib: b.lib, ptr: p})
	}
	b.lib.displayListFree(list)
	return out, nil
}

// Primary returns the library's primary display.
func (b *Backend) Primary() (capture.Display, error) {
	d, errp := b.lib.displayPrimary()
	if errp != 0 {
		return nil, b.takeError(errp)
	}
	return &display{lib: b.lib, ptr: d}, nil
}

// NewCapturer opens a session on d. The library consumes the display even
// when it fails.
func (b *Backend) NewCapturer(d capture.Display) (capture.Capturer, error) {
	nd, ok := d.(*display)
	if !ok {
		capture.ReleaseDisplay(d)
		return nil, fmt.Errorf("native: display %T does not belong to this backend", d)
	}

	c, errp := b.lib.capturerNew(nd.take())
	if errp != 0 {
		return nil, b.takeError(errp)
	}
	return &capturer{
		lib:    b.lib,
		ptr:    c,
		width:  b.lib.capturerWidth(c),
		height: b.lib.capturerHeight(c),
	}, nil
}

// Close unloads the library. Every display and capturer must be released
// first.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.lib.close()
}

func (b *Backend) takeError(errp uintptr) error {
	return takeError(b.lib, errp)
}

// takeError copies and releases a library error string. The text is kept
// verbatim.
func takeError(lib abi, errp uintptr) error {
	msg := cString(errp)
	lib.errorFree(errp)
	return errors.New(msg)
}

type display struct {
	lib abi

	mu  sync.Mutex
	ptr uintptr
}

func (d *display) Width() int  { return d.lib.displayWidth(d.ptr) }
func (d *display) Height() int { return d.lib.displayHeight(d.ptr) }

// take hands the library pointer over to a consumer.
func (d *display) take() uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.ptr
	d.ptr = 0
	return p
}

func (d *display) Close() error {
	if p := d.take(); p != 0 {
		d.lib.displayFree(p)
	}
	return nil
}

// capturer hands out frames that live in library memory; they stay valid
// until the next Frame or Close.
type capturer struct {
	lib    abi
	ptr    uintptr
	width  int
	height int
	closed bool
}

func (c *capturer) Width() int                  { return c.width }
func (c *capturer) Height() int                 { return c.height }
func (c *capturer) Format() capture.PixelFormat { return capture.PixelFormatBGRA }
func (c *capturer) ForeignBuffers() bool        { return true }

func (c *capturer) Frame() ([]byte, error) {
	if c.closed {
		return nil, errors.New("native: capturer closed")
	}
	data, n, wouldBlock, errp := c.lib.capturerFrame(c.ptr)
	switch {
	case errp != 0:
		return nil, takeError(c.lib, errp)
	case wouldBlock:
		return nil, capture.ErrWouldBlock
	case data == 0 || n == 0:
		return nil, capture.ErrWouldBlock
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(data)), n), nil
}

func (c *capturer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.lib.capturerFree(c.ptr)
	return nil
}
