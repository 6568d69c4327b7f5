// Package scrap captures screens from Go through the same handle protocol the
// libscrap C library exposes.
//
// Displays are obtained from Displays, PrimaryDisplay or DisplayAt and are
// either closed or handed to NewCapturer, which consumes them. A Capturer is
// polled with Frame; a nil frame with wouldBlock set means no new frame is
// ready and the caller should try again later.
package scrap

import (
	"log/slog"
	"sync"
	"time"

	"github.com/thesyncim/libgoscrap/internal/backend"
	"github.com/thesyncim/libgoscrap/internal/boundary"
	"github.com/thesyncim/libgoscrap/internal/capture"
	"github.com/thesyncim/libgoscrap/pkg/frame"
)

// Errors reported by the library. Backend failures carry the backend's own
// message and match none of these.
var (
	ErrIndexOutOfRange = boundary.ErrIndexOutOfRange
	ErrInvalidHandle   = boundary.ErrInvalidHandle
	ErrConsumedHandle  = boundary.ErrConsumedHandle
)

// Stats reports live display and capturer handles.
type Stats = boundary.Stats

type config struct {
	backend string
	opts    backend.Options
	logger  *slog.Logger
}

// Option configures Open.
type Option func(*config)

// WithBackend selects the capture backend: auto, x11, screenshot or native.
func WithBackend(name string) Option {
	return func(c *config) { c.backend = name }
}

// WithNativeLibrary sets the scrap-sys library used by the native backend.
func WithNativeLibrary(path string) Option {
	return func(c *config) { c.opts.NativePath = path }
}

// WithFrameInterval sets the target time between frames.
func WithFrameInterval(d time.Duration) Option {
	return func(c *config) { c.opts.FrameInterval = d }
}

// WithLogger sets the logger for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Library owns every display and capturer it hands out.
type Library struct {
	b *boundary.Boundary
}

// Open opens a capture backend. Without options it reads the same
// environment as libscrap: SCRAP_BACKEND, SCRAP_SYS_PATH and
// SCRAP_FRAME_INTERVAL.
func Open(opts ...Option) (*Library, error) {
	envOpts, err := backend.OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	cfg := config{backend: envBackend(), opts: envOpts}
	for _, opt := range opts {
		opt(&cfg)
	}

	be, err := backend.Open(cfg.backend, cfg.opts)
	if err != nil {
		return nil, err
	}
	return newLibrary(be, cfg.logger), nil
}

func newLibrary(be capture.Backend, logger *slog.Logger) *Library {
	return &Library{b: boundary.New(be, boundary.WithLogger(logger))}
}

// Backend returns the name of the backend in use.
func (l *Library) Backend() string { return l.b.Backend().Name() }

// Stats returns the live handle counts.
func (l *Library) Stats() Stats { return l.b.Stats() }

// Close releases every display and capturer still open.
func (l *Library) Close() error { return l.b.Close() }

// Displays returns every known display.
func (l *Library) Displays() ([]*Display, error) {
	res := l.b.ListDisplays()
	if res.Err != nil {
		return nil, res.Err
	}
	out := make([]*Display, len(res.Displays))
	for i, h := range res.Displays {
		out[i] = l.newDisplay(h)
	}
	return out, nil
}

// PrimaryDisplay returns the primary display.
func (l *Library) PrimaryDisplay() (*Display, error) {
	res := l.b.PrimaryDisplay()
	if res.Err != nil {
		return nil, res.Err
	}
	return l.newDisplay(res.Display), nil
}

// DisplayAt returns the display at index in the Displays order.
func (l *Library) DisplayAt(index int) (*Display, error) {
	res := l.b.DisplayAt(index)
	if res.Err != nil {
		return nil, res.Err
	}
	return l.newDisplay(res.Display), nil
}

// NewCapturer starts capturing display. The display is consumed: its
// methods panic afterwards, whether or not the capturer could be created.
func (l *Library) NewCapturer(display *Display) (*Capturer, error) {
	display.disown()

	res := l.b.NewCapturer(display.h)
	if res.Err != nil {
		return nil, res.Err
	}
	c := &Capturer{lib: l, h: res.Capturer}
	c.width, _ = l.b.CapturerWidth(c.h)
	c.height, _ = l.b.CapturerHeight(c.h)
	c.format, _ = l.b.CapturerFormat(c.h)
	return c, nil
}

func (l *Library) newDisplay(h boundary.Handle) *Display {
	return &Display{lib: l, h: h, owned: true}
}

// Display is a system display that can be captured. Once passed to
// NewCapturer, no other method may be called on it.
type Display struct {
	lib *Library
	h   boundary.Handle

	mu    sync.Mutex
	owned bool
}

func (d *Display) assertOwned() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.owned {
		panic("scrap: display used after NewCapturer or Close")
	}
}

func (d *Display) disown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.owned {
		panic("scrap: display used after NewCapturer or Close")
	}
	d.owned = false
}

// Width returns the display width in pixels.
func (d *Display) Width() int {
	d.assertOwned()
	w, _ := d.lib.b.DisplayWidth(d.h)
	return w
}

// Height returns the display height in pixels.
func (d *Display) Height() int {
	d.assertOwned()
	h, _ := d.lib.b.DisplayHeight(d.h)
	return h
}

// Close releases a display that will not be captured. It is a no-op on a
// display already consumed or closed.
func (d *Display) Close() error {
	d.mu.Lock()
	owned := d.owned
	d.owned = false
	d.mu.Unlock()

	if !owned {
		return nil
	}
	return d.lib.b.FreeDisplay(d.h)
}

// Capturer captures one display. It must not be polled from two goroutines
// at once.
type Capturer struct {
	lib *Library
	h   boundary.Handle

	// Cached since they are read on every frame.
	width  int
	height int
	format frame.PixelFormat
}

// Width returns the width of the captured display.
func (c *Capturer) Width() int { return c.width }

// Height returns the height of the captured display.
func (c *Capturer) Height() int { return c.height }

// Format returns the channel order of the frames.
func (c *Capturer) Format() frame.PixelFormat { return c.format }

// Frame polls for the next frame without blocking. When no frame is ready,
// wouldBlock is true and pix is nil.
//
// pix is owned by the Capturer. It is valid until the next call to Frame or
// ReleaseFrame, or until Close, and must not be modified. Rows hold 4*Width
// pixel bytes and may be padded: the stride is len(pix) / Height.
func (c *Capturer) Frame() (pix []byte, wouldBlock bool, err error) {
	res := c.lib.b.NextFrame(c.h)
	switch res.Outcome() {
	case boundary.OutcomeError:
		return nil, false, res.Err
	case boundary.OutcomeWouldBlock:
		return nil, true, nil
	}
	return res.Data, false, nil
}

// FrameImage is Frame wrapped in an image.Image. The image borrows the frame
// and follows the same validity rules; use Detach to keep it.
func (c *Capturer) FrameImage() (img *frame.Image, wouldBlock bool, err error) {
	res := c.lib.b.NextFrame(c.h)
	switch res.Outcome() {
	case boundary.OutcomeError:
		return nil, false, res.Err
	case boundary.OutcomeWouldBlock:
		return nil, true, nil
	}
	img = frame.New(res.Data, c.width, c.height, c.format)
	img.Seq = res.Seq
	return img, false, nil
}

// ReleaseFrame ends the validity of the current frame early.
func (c *Capturer) ReleaseFrame() {
	_ = c.lib.b.ReleaseFrame(c.h)
}

// Close stops capturing. Frames obtained from c become invalid.
func (c *Capturer) Close() error {
	return c.lib.b.FreeCapturer(c.h)
}
