// Package boundary implements the ownership protocol that sits between flat
// callers and a capture backend: a handle registry for displays and
// capturers, a uniform result envelope, and a zero-copy frame relay.
//
// Every handle produced here has exactly one release operation. Display
// handles passed to NewCapturer are consumed whether or not the backend
// manages to open a session. Calling an operation on a freed or consumed
// handle is outside the safety contract; the arena detects the common cases
// and reports ErrInvalidHandle or ErrConsumedHandle, but callers must not
// depend on that.
package boundary

import (
	"errors"
	"io"
	"log/slog"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

// Boundary owns every display and capturer it has handed out.
// Distinct handles may be used from different goroutines; one handle may not.
type Boundary struct {
	backend   capture.Backend
	logger    *slog.Logger
	displays  *arena[capture.Display]
	capturers *arena[*session]
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithLogger sets the logger used for lifecycle and contract messages.
func WithLogger(l *slog.Logger) Option {
	return func(b *Boundary) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Boundary over backend.
func New(backend capture.Backend, opts ...Option) *Boundary {
	b := &Boundary{
		backend:   backend,
		logger:    slog.Default(),
		displays:  newArena[capture.Display](KindDisplay),
		capturers: newArena[*session](KindCapturer),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "boundary", "backend", backend.Name())
	return b
}

// Backend returns the backend this boundary drives.
func (b *Boundary) Backend() capture.Backend { return b.backend }

// ListDisplays boxes every display of the enumeration into its own handle.
// The handles are independent: each must be freed with FreeDisplay.
func (b *Boundary) ListDisplays() DisplayListResult {
	displays, err := b.backend.Displays()
	if err != nil {
		return DisplayListResult{Err: backendErr(OpListDisplays, err)}
	}

	handles := make([]Handle, 0, len(displays))
	for _, d := range displays {
		handles = append(handles, b.displays.insert(d))
	}
	b.logger.Debug("listed displays", "count", len(handles))
	return DisplayListResult{Displays: handles}
}

// PrimaryDisplay boxes the backend's primary display.
func (b *Boundary) PrimaryDisplay() DisplayResult {
	d, err := b.backend.Primary()
	if err != nil {
		return DisplayResult{Err: backendErr(OpPrimaryDisplay, err)}
	}
	h := b.displays.insert(d)
	b.logger.Debug("primary display", "handle", h, "width", d.Width(), "height", d.Height())
	return DisplayResult{Display: h}
}

// DisplayAt enumerates the displays and boxes the one at index. An
// enumeration failure is reported as is; an index outside [0, count) yields
// ErrIndexOutOfRange.
func (b *Boundary) DisplayAt(index int) DisplayResult {
	displays, err := b.backend.Displays()
	if err != nil {
		return DisplayResult{Err: backendErr(OpGetDisplay, err)}
	}

	if index < 0 || index >= len(displays) {
		for _, d := range displays {
			capture.ReleaseDisplay(d)
		}
		return DisplayResult{Err: ErrIndexOutOfRange}
	}

	for i, d := range displays {
		if i != index {
			capture.ReleaseDisplay(d)
		}
	}
	h := b.displays.insert(displays[index])
	b.logger.Debug("display at index", "index", index, "handle", h)
	return DisplayResult{Display: h}
}

// FreeDisplay releases a display handle.
func (b *Boundary) FreeDisplay(h Handle) error {
	d, err := b.displays.remove(h)
	if err != nil {
		return b.violation("display_free", h, err)
	}
	capture.ReleaseDisplay(d)
	b.logger.Debug("freed display", "handle", h)
	return nil
}

// DisplayWidth returns the width in pixels of a live display.
func (b *Boundary) DisplayWidth(h Handle) (int, error) {
	d, err := b.displays.get(h)
	if err != nil {
		return 0, b.violation("display_width", h, err)
	}
	return d.Width(), nil
}

// DisplayHeight returns the height in pixels of a live display.
func (b *Boundary) DisplayHeight(h Handle) (int, error) {
	d, err := b.displays.get(h)
	if err != nil {
		return 0, b.violation("display_height", h, err)
	}
	return d.Height(), nil
}

// NewCapturer consumes the display handle and opens a capture session on it.
// The display handle is invalid after this call, on success and on failure
// alike; a failed open never hands the display back.
func (b *Boundary) NewCapturer(display Handle) CapturerResult {
	d, err := b.displays.consume(display)
	if err != nil {
		return CapturerResult{Err: b.violation("capturer_new", display, err)}
	}

	c, err := b.backend.NewCapturer(d)
	if err != nil {
		b.logger.Debug("capture session failed", "display", display, "error", err)
		return CapturerResult{Err: backendErr(OpNewCapturer, err)}
	}

	h := b.capturers.insert(newSession(c))
	b.logger.Debug("opened capture session", "display", display, "capturer", h,
		"width", c.Width(), "height", c.Height(), "format", c.Format())
	return CapturerResult{Capturer: h}
}

// FreeCapturer closes the capture session and releases its handle. Any frame
// obtained from it becomes invalid.
func (b *Boundary) FreeCapturer(h Handle) error {
	s, err := b.capturers.remove(h)
	if err != nil {
		return b.violation("capturer_free", h, err)
	}
	if err := s.close(); err != nil {
		b.logger.Warn("closing capture session", "capturer", h, "error", err)
		return err
	}
	b.logger.Debug("freed capturer", "handle", h)
	return nil
}

// CapturerWidth returns the width of the captured display.
func (b *Boundary) CapturerWidth(h Handle) (int, error) {
	s, err := b.capturers.get(h)
	if err != nil {
		return 0, b.violation("capturer_width", h, err)
	}
	return s.width, nil
}

// CapturerHeight returns the height of the captured display.
func (b *Boundary) CapturerHeight(h Handle) (int, error) {
	s, err := b.capturers.get(h)
	if err != nil {
		return 0, b.violation("capturer_height", h, err)
	}
	return s.height, nil
}

// CapturerFormat returns the pixel format frames are delivered in.
func (b *Boundary) CapturerFormat(h Handle) (capture.PixelFormat, error) {
	s, err := b.capturers.get(h)
	if err != nil {
		return 0, b.violation("capturer_format", h, err)
	}
	return s.format, nil
}

// NextFrame polls the capturer once without blocking.
func (b *Boundary) NextFrame(h Handle) FrameResult {
	s, err := b.capturers.get(h)
	if err != nil {
		return frameFailed(b.violation("capturer_frame", h, err))
	}
	return s.next()
}

// ReleaseFrame ends the validity window of the current frame before the next
// poll. It is optional: NextFrame invalidates the previous frame anyway.
func (b *Boundary) ReleaseFrame(h Handle) error {
	s, err := b.capturers.get(h)
	if err != nil {
		return b.violation("capturer_frame_release", h, err)
	}
	s.release()
	return nil
}

// Stats reports how many handles are currently live.
type Stats struct {
	Displays  int
	Capturers int
}

// Stats returns the live handle counts.
func (b *Boundary) Stats() Stats {
	return Stats{
		Displays:  b.displays.len(),
		Capturers: b.capturers.len(),
	}
}

// Close releases every live handle, then the backend if it is an io.Closer.
// Handles held by callers become invalid.
func (b *Boundary) Close() error {
	var errs []error
	for _, s := range b.capturers.drain() {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range b.displays.drain() {
		capture.ReleaseDisplay(d)
	}
	if c, ok := b.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Boundary) violation(op string, h Handle, err error) error {
	b.logger.Warn("handle contract violation", "op", op, "handle", h, "error", err)
	return err
}
