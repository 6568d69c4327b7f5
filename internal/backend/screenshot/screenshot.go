// Package screenshot captures displays through github.com/kbinani/screenshot,
// which covers Windows, macOS and X11. Its captures block, so each capturer
// runs them on a goroutine and polls never wait.
package screenshot

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

var errClosed = errors.New("screenshot: capturer closed")

// Options configures the backend.
type Options struct {
	// FrameInterval delays each capture after the previous frame was taken.
	FrameInterval time.Duration
}

// Backend is a capture.Backend over the screenshot package.
type Backend struct {
	interval time.Duration

	count  func() int
	bounds func(int) image.Rectangle
	grab   func(image.Rectangle) (*image.RGBA, error)
}

// New returns a backend. It does not touch the display server until the
// first enumeration.
func New(opts Options) *Backend {
	return &Backend{
		interval: opts.FrameInterval,
		count:    screenshot.NumActiveDisplays,
		bounds:   screenshot.GetDisplayBounds,
		grab:     screenshot.CaptureRect,
	}
}

func (b *Backend) Name() string { return "screenshot" }

// Displays lists the active displays; index 0 is the main display.
func (b *Backend) Displays() ([]capture.Display, error) {
	n := b.count()
	out := make([]capture.Display, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &display{index: i, rect: b.bounds(i)})
	}
	return out, nil
}

// Primary returns display 0.
func (b *Backend) Primary() (capture.Display, error) {
	if b.count() == 0 {
		return nil, capture.ErrNoDisplays
	}
	return &display{index: 0, rect: b.bounds(0)}, nil
}

// NewCapturer starts a capture session on d.
func (b *Backend) NewCapturer(d capture.Display) (capture.Capturer, error) {
	sd, ok := d.(*display)
	if !ok {
		capture.ReleaseDisplay(d)
		return nil, fmt.Errorf("screenshot: display %T does not belong to this backend", d)
	}
	if sd.rect.Empty() {
		return nil, fmt.Errorf("screenshot: display %d has no area", sd.index)
	}
	return newCapturer(sd.rect, b.grab, b.interval), nil
}

type display struct {
	index int
	rect  image.Rectangle
}

func (d *display) Width() int  { return d.rect.Dx() }
func (d *display) Height() int { return d.rect.Dy() }

type grabResult struct {
	img *image.RGBA
	err error
}

// capturer keeps at most one capture in flight. Frame collects a finished
// capture and immediately starts the next one.
type capturer struct {
	rect     image.Rectangle
	grab     func(image.Rectangle) (*image.RGBA, error)
	interval time.Duration

	results chan grabResult
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending bool
	current []byte
	closed  bool
}

func newCapturer(rect image.Rectangle, grab func(image.Rectangle) (*image.RGBA, error), interval time.Duration) *capturer {
	return &capturer{
		rect:     rect,
		grab:     grab,
		interval: interval,
		results:  make(chan grabResult, 1),
		done:     make(chan struct{}),
	}
}

func (c *capturer) Width() int                  { return c.rect.Dx() }
func (c *capturer) Height() int                 { return c.rect.Dy() }
func (c *capturer) Format() capture.PixelFormat { return capture.PixelFormatRGBA }

func (c *capturer) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed
	}
	if !c.pending {
		c.start(0)
		return nil, capture.ErrWouldBlock
	}

	select {
	case r := <-c.results:
		c.pending = false
		c.start(c.interval)
		if r.err != nil {
			return nil, r.err
		}
		c.current = packed(r.img)
		return c.current, nil
	default:
		return nil, capture.ErrWouldBlock
	}
}

// start launches one capture. Must hold c.mu.
func (c *capturer) start(delay time.Duration) {
	c.pending = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-c.done:
				t.Stop()
				return
			}
		}
		img, err := c.grab(c.rect)
		c.results <- grabResult{img: img, err: err}
	}()
}

// Close waits for the capture in flight to finish.
func (c *capturer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.current = nil
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// packed returns the pixels of img without row padding.
func packed(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	row := w * 4
	if img.Stride == row {
		return img.Pix[:row*h]
	}
	out := make([]byte, row*h)
	for y := 0; y < h; y++ {
		copy(out[y*row:(y+1)*row], img.Pix[y*img.Stride:])
	}
	return out
}
