package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/thesyncim/libgoscrap/internal/testutil"
)

func TestNew_Stride(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		pixLen     int
		wantStride int
	}{
		{"packed", 4, 2, 4 * 2 * 4, 16},
		{"padded rows", 3, 2, 16 * 2, 16},
		{"1080p", 1920, 1080, 1920 * 1080 * 4, 7680},
		{"zero height", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(make([]byte, tt.pixLen), tt.width, tt.height, PixelFormatBGRA)
			if m.Stride != tt.wantStride {
				t.Errorf("Stride = %d, want %d", m.Stride, tt.wantStride)
			}
			if m.Bounds() != image.Rect(0, 0, tt.width, tt.height) {
				t.Errorf("Bounds = %v", m.Bounds())
			}
		})
	}
}

func TestImage_RGBAAt(t *testing.T) {
	pix := []byte{
		10, 20, 30, 255, 40, 50, 60, 255,
		70, 80, 90, 255, 1, 2, 3, 4,
	}

	bgra := New(pix, 2, 2, PixelFormatBGRA)
	if got, want := bgra.RGBAAt(0, 0), (color.RGBA{R: 30, G: 20, B: 10, A: 255}); got != want {
		t.Errorf("BGRA (0,0) = %v, want %v", got, want)
	}
	if got, want := bgra.RGBAAt(1, 1), (color.RGBA{R: 3, G: 2, B: 1, A: 4}); got != want {
		t.Errorf("BGRA (1,1) = %v, want %v", got, want)
	}

	rgba := New(pix, 2, 2, PixelFormatRGBA)
	if got, want := rgba.RGBAAt(1, 0), (color.RGBA{R: 40, G: 50, B: 60, A: 255}); got != want {
		t.Errorf("RGBA (1,0) = %v, want %v", got, want)
	}

	for _, p := range []image.Point{{-1, 0}, {2, 0}, {0, 2}} {
		if got := bgra.RGBAAt(p.X, p.Y); got != (color.RGBA{}) {
			t.Errorf("out of bounds %v = %v, want zero", p, got)
		}
	}
}

func TestImage_ToRGBA(t *testing.T) {
	const w, h = 7, 5
	src := New(testutil.GradientBGRA(w, h), w, h, PixelFormatBGRA)

	rgba := src.ToRGBA()
	if rgba.Bounds() != src.Bounds() {
		t.Fatalf("bounds mismatch: %v vs %v", rgba.Bounds(), src.Bounds())
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src.At(x, y) != rgba.At(x, y) {
				t.Fatalf("pixel (%d,%d) mismatch: %v vs %v", x, y, src.At(x, y), rgba.At(x, y))
			}
		}
	}
}

func TestImage_ToRGBA_PaddedRows(t *testing.T) {
	// 2x2 frame with 12-byte rows.
	pix := []byte{
		1, 2, 3, 255, 4, 5, 6, 255, 0, 0, 0, 0,
		7, 8, 9, 255, 10, 11, 12, 255, 0, 0, 0, 0,
	}
	rgba := New(pix, 2, 2, PixelFormatRGBA).ToRGBA()
	want := []byte{1, 2, 3, 255, 4, 5, 6, 255, 7, 8, 9, 255, 10, 11, 12, 255}
	if !bytes.Equal(rgba.Pix, want) {
		t.Errorf("Pix = %v, want %v", rgba.Pix, want)
	}
}

func TestImage_Detach(t *testing.T) {
	pix := testutil.GradientBGRA(4, 4)
	m := New(pix, 4, 4, PixelFormatBGRA)
	m.Seq = 9

	d := m.Detach()
	pix[0] = 0xaa
	if d.Pix[0] == 0xaa {
		t.Error("detached image should not alias the source")
	}
	if d.Seq != 9 || d.Format != PixelFormatBGRA || d.Stride != m.Stride {
		t.Errorf("detached metadata = %+v", d)
	}
	d.Release()
}

func TestImage_EncodesAsPNG(t *testing.T) {
	m := New(testutil.GradientBGRA(16, 8), 16, 8, PixelFormatBGRA)
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	r, g, b, _ := decoded.At(3, 2).RGBA()
	want := m.RGBAAt(3, 2)
	if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
		t.Errorf("decoded (3,2) = %d,%d,%d, want %v", r>>8, g>>8, b>>8, want)
	}
}

func TestPool_GetPut(t *testing.T) {
	pool := NewPool(64, 32, PixelFormatBGRA, 2)

	a := pool.Get()
	b := pool.Get()
	c := pool.Get() // pool exhausted, allocates
	for _, m := range []*Image{a, b, c} {
		if len(m.Pix) != 64*32*4 || m.Stride != 256 {
			t.Errorf("pooled image: len %d stride %d", len(m.Pix), m.Stride)
		}
	}

	a.Release()
	if got := pool.Get(); got != a {
		t.Error("released image should be reused")
	}

	// Images from elsewhere are ignored.
	pool.Put(New(make([]byte, 64*32*4), 64, 32, PixelFormatBGRA))
	pool.Put(nil)
}

func TestPool_Copy(t *testing.T) {
	pool := NewPool(4, 4, PixelFormatBGRA, 1)
	src := New(testutil.GradientBGRA(4, 4), 4, 4, PixelFormatBGRA)
	src.Seq = 3

	m := pool.Copy(src)
	if !bytes.Equal(m.Pix, src.Pix) || m.Seq != 3 {
		t.Error("pooled copy differs from source")
	}
	if &m.Pix[0] == &src.Pix[0] {
		t.Error("pooled copy aliases the source")
	}
	m.Release()

	other := New(testutil.GradientBGRA(2, 2), 2, 2, PixelFormatBGRA)
	if d := pool.Copy(other); d.Width != 2 || d.pool != nil {
		t.Errorf("mismatched size should detach without the pool, got %+v", d)
	}
}
