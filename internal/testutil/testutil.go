// Package testutil provides a scripted capture backend shared by the
// libgoscrap test suites.
package testutil

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

// ErrCapturerClosed is returned by FakeCapturer.Frame after Close.
var ErrCapturerClosed = errors.New("fake: capturer closed")

// Size is a display resolution.
type Size struct {
	Width  int
	Height int
}

// FakeDisplay is a display produced by FakeBackend.
type FakeDisplay struct {
	ID     int
	size   Size
	closed atomic.Int32
}

func (d *FakeDisplay) Width() int  { return d.size.Width }
func (d *FakeDisplay) Height() int { return d.size.Height }

// Close records that the boundary dropped the display.
func (d *FakeDisplay) Close() error {
	d.closed.Add(1)
	return nil
}

// Closed returns how many times Close was called.
func (d *FakeDisplay) Closed() int { return int(d.closed.Load()) }

// FakeBackend is an in-memory capture backend with scriptable failures.
// It is safe for concurrent use.
type FakeBackend struct {
	mu sync.Mutex

	sizes   []Size
	primary int

	listErr    error
	primaryErr error
	openErr    error
	frameErr   error
	blockFirst int
	format     capture.PixelFormat
	foreign    bool

	enumerations int
	displays     []*FakeDisplay
	capturers    []*FakeCapturer
	nextID       int
}

// NewFakeBackend returns a backend enumerating one display per size, in
// order. The first display is primary.
func NewFakeBackend(sizes ...Size) *FakeBackend {
	return &FakeBackend{sizes: sizes}
}

// NewDualDisplayBackend returns the common 1920x1080 + 1280x720 setup.
func NewDualDisplayBackend() *FakeBackend {
	return NewFakeBackend(Size{1920, 1080}, Size{1280, 720})
}

// FailList makes Displays fail with err.
func (b *FakeBackend) FailList(err error) *FakeBackend {
	b.set(func() { b.listErr = err })
	return b
}

// FailPrimary makes Primary fail with err.
func (b *FakeBackend) FailPrimary(err error) *FakeBackend {
	b.set(func() { b.primaryErr = err })
	return b
}

// FailOpen makes NewCapturer fail with err.
func (b *FakeBackend) FailOpen(err error) *FakeBackend {
	b.set(func() { b.openErr = err })
	return b
}

// FailFrames makes every Frame call on new capturers fail with err.
func (b *FakeBackend) FailFrames(err error) *FakeBackend {
	b.set(func() { b.frameErr = err })
	return b
}

// BlockFirst makes new capturers report would-block n times before the first
// frame.
func (b *FakeBackend) BlockFirst(n int) *FakeBackend {
	b.set(func() { b.blockFirst = n })
	return b
}

// WithPrimary selects which enumerated display Primary returns.
func (b *FakeBackend) WithPrimary(i int) *FakeBackend {
	b.set(func() { b.primary = i })
	return b
}

// WithFormat sets the pixel format of new capturers.
func (b *FakeBackend) WithFormat(f capture.PixelFormat) *FakeBackend {
	b.set(func() { b.format = f })
	return b
}

// WithForeignBuffers makes new capturers claim their frames are foreign memory.
func (b *FakeBackend) WithForeignBuffers() *FakeBackend {
	b.set(func() { b.foreign = true })
	return b
}

func (b *FakeBackend) set(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

func (b *FakeBackend) Name() string { return "fake" }

func (b *FakeBackend) newDisplay(s Size) *FakeDisplay {
	b.nextID++
	d := &FakeDisplay{ID: b.nextID, size: s}
	b.displays = append(b.displays, d)
	return d
}

// Displays returns freshly allocated displays, like a real enumeration.
func (b *FakeBackend) Displays() ([]capture.Display, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.enumerations++
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]capture.Display, 0, len(b.sizes))
	for _, s := range b.sizes {
		out = append(out, b.newDisplay(s))
	}
	return out, nil
}

// Primary returns the primary display.
func (b *FakeBackend) Primary() (capture.Display, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.primaryErr != nil {
		return nil, b.primaryErr
	}
	if b.primary < 0 || b.primary >= len(b.sizes) {
		return nil, capture.ErrNoDisplays
	}
	return b.newDisplay(b.sizes[b.primary]), nil
}

// NewCapturer opens a scripted capture session. On failure the display is
// released, as real backends drop what they took ownership of.
func (b *FakeBackend) NewCapturer(d capture.Display) (capture.Capturer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fd, ok := d.(*FakeDisplay)
	if !ok {
		return nil, fmt.Errorf("fake: foreign display %T", d)
	}
	if b.openErr != nil {
		_ = fd.Close()
		return nil, b.openErr
	}

	c := &FakeCapturer{
		display:    fd,
		format:     b.format,
		foreign:    b.foreign,
		blockFirst: b.blockFirst,
		frameErr:   b.frameErr,
	}
	size := capture.FrameSize(fd.Width(), fd.Height(), b.format)
	c.buffers[0] = make([]byte, size)
	c.buffers[1] = make([]byte, size)
	b.capturers = append(b.capturers, c)
	return c, nil
}

// Enumerations returns how many times Displays was called.
func (b *FakeBackend) Enumerations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enumerations
}

// AllDisplays returns every display the backend ever produced.
func (b *FakeBackend) AllDisplays() []*FakeDisplay {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeDisplay(nil), b.displays...)
}

// Capturers returns every capturer the backend opened.
func (b *FakeBackend) Capturers() []*FakeCapturer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeCapturer(nil), b.capturers...)
}

// FakeCapturer rotates between two frame buffers, like double-buffered
// capture hardware. Each frame is filled with its sequence number.
type FakeCapturer struct {
	display    *FakeDisplay
	format     capture.PixelFormat
	foreign    bool
	blockFirst int
	frameErr   error

	mu       sync.Mutex
	buffers  [2][]byte
	frames   int
	blocked  int
	blocking bool
	releases int
	closed   bool
}

func (c *FakeCapturer) Width() int                  { return c.display.Width() }
func (c *FakeCapturer) Height() int                 { return c.display.Height() }
func (c *FakeCapturer) Format() capture.PixelFormat { return c.format }
func (c *FakeCapturer) ForeignBuffers() bool        { return c.foreign }

// Display returns the display the session is bound to.
func (c *FakeCapturer) Display() *FakeDisplay { return c.display }

// SetBlocking makes Frame report would-block until called with false.
func (c *FakeCapturer) SetBlocking(blocking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocking = blocking
}

// Frame returns the next buffer in rotation.
func (c *FakeCapturer) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCapturerClosed
	}
	if c.frameErr != nil {
		return nil, c.frameErr
	}
	if c.blocking {
		return nil, capture.ErrWouldBlock
	}
	if c.blocked < c.blockFirst {
		c.blocked++
		return nil, capture.ErrWouldBlock
	}

	c.frames++
	buf := c.buffers[c.frames%2]
	for i := range buf {
		buf[i] = byte(c.frames)
	}
	return buf, nil
}

// ReleaseFrame counts explicit releases.
func (c *FakeCapturer) ReleaseFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

// Releases returns how many times ReleaseFrame was called.
func (c *FakeCapturer) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// LastFrame returns the buffer handed out by the latest successful Frame.
func (c *FakeCapturer) LastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frames == 0 {
		return nil
	}
	return c.buffers[c.frames%2]
}

// Frames returns how many frames were produced.
func (c *FakeCapturer) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Close ends the session and releases the bound display.
func (c *FakeCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCapturerClosed
	}
	c.closed = true
	return c.display.Close()
}

// Closed reports whether Close was called.
func (c *FakeCapturer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// GradientBGRA returns a packed BGRA test pattern with a diagonal gradient in
// every channel, so channel swaps are detectable.
func GradientBGRA(width, height int) []byte {
	pix := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			pix[i] = byte(x)
			pix[i+1] = byte(y)
			pix[i+2] = byte(x + y)
			pix[i+3] = 0xff
		}
	}
	return pix
}
