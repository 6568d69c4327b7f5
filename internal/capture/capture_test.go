package capture

import (
	"errors"
	"testing"
)

func TestPixelFormatString(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatBGRA, "BGRA"},
		{PixelFormatRGBA, "RGBA"},
		{PixelFormat(99), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.format.String(); got != tc.want {
			t.Errorf("PixelFormat(%d).String() = %q, want %q", tc.format, got, tc.want)
		}
	}
}

func TestFrameSize(t *testing.T) {
	if got := FrameSize(1920, 1080, PixelFormatBGRA); got != 1920*1080*4 {
		t.Errorf("FrameSize = %d, want %d", got, 1920*1080*4)
	}
}

type closingDisplay struct{ closed int }

func (d *closingDisplay) Width() int   { return 1 }
func (d *closingDisplay) Height() int  { return 1 }
func (d *closingDisplay) Close() error { d.closed++; return nil }

type plainDisplay struct{}

func (plainDisplay) Width() int  { return 1 }
func (plainDisplay) Height() int { return 1 }

func TestReleaseDisplay(t *testing.T) {
	d := &closingDisplay{}
	ReleaseDisplay(d)
	if d.closed != 1 {
		t.Errorf("closed = %d, want 1", d.closed)
	}

	// Must not panic for displays without resources.
	ReleaseDisplay(plainDisplay{})
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("no display subsystem")
	b := Unavailable(cause)

	if _, err := b.Displays(); !errors.Is(err, cause) {
		t.Errorf("Displays err = %v, want %v", err, cause)
	}
	if _, err := b.Primary(); !errors.Is(err, cause) {
		t.Errorf("Primary err = %v, want %v", err, cause)
	}
	if _, err := b.NewCapturer(plainDisplay{}); !errors.Is(err, cause) {
		t.Errorf("NewCapturer err = %v, want %v", err, cause)
	}
}
