package boundary

import (
	"errors"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

// session is the boundary state behind a Capturer handle. It is not
// synchronized: a single handle must not be polled from two goroutines.
type session struct {
	capturer capture.Capturer
	width    int
	height   int
	format   capture.PixelFormat
	foreign  bool

	// view is the frame last handed out. It aliases the capturer's buffer and
	// is never copied or freed here.
	view   []byte
	frames uint64
}

func newSession(c capture.Capturer) *session {
	return &session{
		capturer: c,
		width:    c.Width(),
		height:   c.Height(),
		format:   c.Format(),
		foreign:  capture.IsForeign(c),
	}
}

// next polls the backend once. It never waits for a frame.
func (s *session) next() FrameResult {
	// Whatever the outcome, the previous view is gone.
	s.view = nil

	data, err := s.capturer.Frame()
	switch {
	case errors.Is(err, capture.ErrWouldBlock):
		return frameWouldBlock()
	case err != nil:
		return frameFailed(backendErr(OpFrame, err))
	case len(data) == 0:
		// A success without bytes would leave every envelope field empty.
		return frameWouldBlock()
	}

	s.view = data
	s.frames++
	return frameReady(data, s.frames, s.foreign)
}

// release drops the borrowed view early.
func (s *session) release() {
	s.view = nil
	if r, ok := s.capturer.(capture.FrameReleaser); ok {
		r.ReleaseFrame()
	}
}

func (s *session) close() error {
	s.view = nil
	return s.capturer.Close()
}
