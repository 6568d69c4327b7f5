// Package frame provides an image.Image view over captured screen frames.
package frame

import (
	"image"
	"image/color"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

// PixelFormat is the packed layout of a frame's pixels.
type PixelFormat = capture.PixelFormat

const (
	// PixelFormatBGRA is 32-bit packed blue, green, red, alpha.
	PixelFormatBGRA = capture.PixelFormatBGRA

	// PixelFormatRGBA is 32-bit packed red, green, blue, alpha.
	PixelFormatRGBA = capture.PixelFormatRGBA
)

// Image is a captured frame of packed 4-byte pixels.
//
// An Image built by New borrows Pix from the capturer and carries the same
// validity window as the frame it wraps. Detach returns an owned copy.
type Image struct {
	// Pix holds the pixels, top row first.
	Pix []byte

	// Stride is the number of bytes per row: len(Pix) / Height. Backends may
	// pad rows, so it can exceed 4*Width.
	Stride int

	// Width of the frame in pixels.
	Width int

	// Height of the frame in pixels.
	Height int

	// Format is the channel order of Pix.
	Format PixelFormat

	// Seq is the capturer's frame counter, starting at 1.
	Seq uint64

	// pool is the pool this image belongs to (for recycling).
	pool *Pool
}

var _ image.Image = (*Image)(nil)

// New wraps pix without copying.
func New(pix []byte, width, height int, format PixelFormat) *Image {
	stride := 0
	if height > 0 {
		stride = len(pix) / height
	}
	return &Image{Pix: pix, Stride: stride, Width: width, Height: height, Format: format}
}

// ColorModel implements image.Image.
func (m *Image) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

// At implements image.Image.
func (m *Image) At(x, y int) color.Color { return m.RGBAAt(x, y) }

// RGBAAt returns the color at (x, y), or transparent black outside the frame.
func (m *Image) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(m.Bounds())) {
		return color.RGBA{}
	}
	i := m.PixOffset(x, y)
	p := m.Pix[i : i+4 : i+4]
	if m.Format == PixelFormatRGBA {
		return color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
	return color.RGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (m *Image) PixOffset(x, y int) int {
	return y*m.Stride + x*4
}

// Opaque reports true: screen captures carry no transparency. It lets
// encoders such as image/png skip the alpha channel.
func (m *Image) Opaque() bool { return true }

// Detach copies the pixels out of the capturer's buffer. The result stays
// valid after the next poll.
func (m *Image) Detach() *Image {
	pix := make([]byte, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{
		Pix:    pix,
		Stride: m.Stride,
		Width:  m.Width,
		Height: m.Height,
		Format: m.Format,
		Seq:    m.Seq,
	}
}

// Release returns a pooled image to its pool. After calling Release, the
// image must not be used. Images not obtained from a Pool are left alone.
func (m *Image) Release() {
	if m.pool != nil {
		m.pool.Put(m)
	}
}

// ToRGBA converts the frame into an owned *image.RGBA, which image/draw and
// image/png handle on their fast paths.
func (m *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(m.Bounds())
	row := m.Width * 4
	for y := 0; y < m.Height; y++ {
		src := m.Pix[y*m.Stride : y*m.Stride+row]
		dst := out.Pix[y*out.Stride : y*out.Stride+row]
		if m.Format == PixelFormatRGBA {
			copy(dst, src)
			continue
		}
		for i := 0; i < row; i += 4 {
			dst[i] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i]
			dst[i+3] = src[i+3]
		}
	}
	return out
}
