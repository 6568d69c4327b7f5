package scrap

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/thesyncim/libgoscrap/internal/backend"
	"github.com/thesyncim/libgoscrap/pkg/frame"
)

var (
	defaultOnce sync.Once
	defaultLib  *Library
	defaultErr  error
)

func envBackend() string { return os.Getenv(backend.EnvBackend) }

// Default returns the process-wide Library, opened from the environment on
// first use.
func Default() (*Library, error) {
	defaultOnce.Do(func() {
		defaultLib, defaultErr = Open()
	})
	return defaultLib, defaultErr
}

// Displays returns every known display of the default Library.
func Displays() ([]*Display, error) {
	l, err := Default()
	if err != nil {
		return nil, err
	}
	return l.Displays()
}

// PrimaryDisplay returns the primary display of the default Library.
func PrimaryDisplay() (*Display, error) {
	l, err := Default()
	if err != nil {
		return nil, err
	}
	return l.PrimaryDisplay()
}

// DisplayAt returns the display at index of the default Library.
func DisplayAt(index int) (*Display, error) {
	l, err := Default()
	if err != nil {
		return nil, err
	}
	return l.DisplayAt(index)
}

// NewCapturer starts capturing display on the Library it came from.
func NewCapturer(display *Display) (*Capturer, error) {
	return display.lib.NewCapturer(display)
}

// Screenshot captures one frame of the primary display, polling every
// interval until a frame is ready or ctx is done, and returns a detached copy.
func (l *Library) Screenshot(ctx context.Context, interval time.Duration) (*frame.Image, error) {
	d, err := l.PrimaryDisplay()
	if err != nil {
		return nil, err
	}
	return l.ScreenshotDisplay(ctx, d, interval)
}

// ScreenshotDisplay is Screenshot for a given display. The display is
// consumed.
func (l *Library) ScreenshotDisplay(ctx context.Context, d *Display, interval time.Duration) (*frame.Image, error) {
	c, err := l.NewCapturer(d)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		img, wouldBlock, err := c.FrameImage()
		if err != nil {
			return nil, err
		}
		if !wouldBlock {
			return img.Detach(), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
