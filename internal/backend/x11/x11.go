// Package x11 captures X11 screens over the wire protocol. Outputs are
// discovered with RandR, or Xinerama on servers without it, and captured
// with GetImage on the root window.
package x11

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	xinext "github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xinerama"

	"github.com/thesyncim/libgoscrap/internal/capture"
)

// ErrUnsupportedVisual is returned when the root window does not use a
// 32-bit pixel layout.
var ErrUnsupportedVisual = errors.New("x11: root visual is not 32 bits per pixel")

// Options configures the X11 backend.
type Options struct {
	// Display is the X display name, for example ":0". Empty uses $DISPLAY.
	Display string

	// FrameInterval is the minimum time between two frames of a capturer.
	// Polls inside the interval report would-block. Zero captures on every
	// poll.
	FrameInterval time.Duration
}

// Backend is a capture.Backend for one X server connection.
type Backend struct {
	xu       *xgbutil.XUtil
	conn     *xgb.Conn
	root     xproto.Window
	rootSize [2]int
	randr    bool
	xinerama bool
	interval time.Duration
	logger   *slog.Logger
}

// Open connects to the X server.
func Open(opts Options) (*Backend, error) {
	xu, err := xgbutil.NewConnDisplay(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("x11 connect: %w", err)
	}

	conn := xu.Conn()
	screen := xu.Screen()
	b := &Backend{
		xu:       xu,
		conn:     conn,
		root:     xu.RootWin(),
		rootSize: [2]int{int(screen.WidthInPixels), int(screen.HeightInPixels)},
		interval: opts.FrameInterval,
		logger:   slog.Default().With("component", "x11"),
	}
	if err := randr.Init(conn); err != nil {
		b.logger.Debug("randr unavailable", "error", err)
	} else {
		b.randr = true
	}
	if !b.randr {
		if err := xinext.Init(conn); err != nil {
			b.logger.Debug("xinerama unavailable, using the root screen", "error", err)
		} else {
			b.xinerama = true
		}
	}
	return b, nil
}

func (b *Backend) Name() string { return "x11" }

// Close drops the server connection. Capturers stop working.
func (b *Backend) Close() error {
	b.conn.Close()
	return nil
}

// Displays returns every active RandR output, in CRTC order. Without RandR
// the root screen is the only display.
func (b *Backend) Displays() ([]capture.Display, error) {
	monitors, _, err := b.monitors()
	if err != nil {
		return nil, err
	}
	out := make([]capture.Display, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m)
	}
	return out, nil
}

// Primary returns the RandR primary output, or the first output when none
// is marked primary.
func (b *Backend) Primary() (capture.Display, error) {
	monitors, primary, err := b.monitors()
	if err != nil {
		return nil, err
	}
	m := pickPrimary(monitors, primary)
	if m == nil {
		return nil, capture.ErrNoDisplays
	}
	return m, nil
}

// NewCapturer starts capturing the area of d.
func (b *Backend) NewCapturer(d capture.Display) (capture.Capturer, error) {
	m, ok := d.(*monitor)
	if !ok {
		capture.ReleaseDisplay(d)
		return nil, fmt.Errorf("x11: display %T does not belong to this backend", d)
	}
	return newCapturer(b.conn, b.root, m, b.interval), nil
}

func (b *Backend) monitors() ([]*monitor, randr.Output, error) {
	root := &monitor{Name: "root", W: b.rootSize[0], H: b.rootSize[1]}
	if !b.randr {
		if b.xinerama {
			if heads := b.heads(); len(heads) > 0 {
				return heads, 0, nil
			}
		}
		return []*monitor{root}, 0, nil
	}

	resources, err := randr.GetScreenResources(b.conn, b.root).Reply()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []*monitor
	for i, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(b.conn, crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		// Skip disabled CRTCs
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}

		name := fmt.Sprintf("Monitor%d", i)
		if out, err := randr.GetOutputInfo(b.conn, info.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		monitors = append(monitors, &monitor{
			Name:    name,
			X:       int(info.X),
			Y:       int(info.Y),
			W:       int(info.Width),
			H:       int(info.Height),
			Outputs: info.Outputs,
		})
	}
	if len(monitors) == 0 {
		return []*monitor{root}, 0, nil
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(b.conn, b.root).Reply(); err == nil {
		primary = reply.Output
	}
	return monitors, primary, nil
}

// heads lists the Xinerama screens in server order.
func (b *Backend) heads() []*monitor {
	heads, err := xinerama.PhysicalHeads(b.xu)
	if err != nil {
		b.logger.Debug("xinerama query failed", "error", err)
		return nil
	}
	out := make([]*monitor, 0, len(heads))
	for i, h := range heads {
		out = append(out, &monitor{
			Name: fmt.Sprintf("Head%d", i),
			X:    h.X(),
			Y:    h.Y(),
			W:    h.Width(),
			H:    h.Height(),
		})
	}
	return out
}

// monitor is one screen area. It holds no server resources.
type monitor struct {
	Name    string
	X, Y    int
	W, H    int
	Outputs []randr.Output
}

func (m *monitor) Width() int  { return m.W }
func (m *monitor) Height() int { return m.H }

func pickPrimary(monitors []*monitor, primary randr.Output) *monitor {
	if primary != 0 {
		for _, m := range monitors {
			for _, o := range m.Outputs {
				if o == primary {
					return m
				}
			}
		}
	}
	if len(monitors) == 0 {
		return nil
	}
	return monitors[0]
}

// capturer grabs the monitor area with GetImage into one of two buffers, so
// the previous frame stays intact until the poll after next.
type capturer struct {
	conn     *xgb.Conn
	root     xproto.Window
	area     monitor
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buffers [2][]byte
	seq     int
	last    time.Time
	closed  bool
}

func newCapturer(conn *xgb.Conn, root xproto.Window, m *monitor, interval time.Duration) *capturer {
	return &capturer{
		conn:     conn,
		root:     root,
		area:     *m,
		interval: interval,
		now:      time.Now,
	}
}

func (c *capturer) Width() int                  { return c.area.W }
func (c *capturer) Height() int                 { return c.area.H }
func (c *capturer) Format() capture.PixelFormat { return capture.PixelFormatBGRA }

func (c *capturer) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("x11: capturer closed")
	}
	if !c.due() {
		return nil, capture.ErrWouldBlock
	}

	reply, err := xproto.GetImage(c.conn, xproto.ImageFormatZPixmap, xproto.Drawable(c.root),
		int16(c.area.X), int16(c.area.Y), uint16(c.area.W), uint16(c.area.H), 0xffffffff).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11 GetImage: %w", err)
	}

	size := capture.FrameSize(c.area.W, c.area.H, capture.PixelFormatBGRA)
	if len(reply.Data) != size {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrUnsupportedVisual, len(reply.Data), c.area.W, c.area.H)
	}

	c.seq++
	buf := c.buffers[c.seq%2]
	if len(buf) != size {
		buf = make([]byte, size)
		c.buffers[c.seq%2] = buf
	}
	bgrxToBGRA(buf, reply.Data)
	c.last = c.now()
	return buf, nil
}

// due reports whether the frame interval has elapsed since the last frame.
func (c *capturer) due() bool {
	if c.interval <= 0 || c.last.IsZero() {
		return true
	}
	return c.now().Sub(c.last) >= c.interval
}

func (c *capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.buffers = [2][]byte{}
	return nil
}

// bgrxToBGRA copies ZPixmap pixels, whose fourth byte is padding on
// 24-bit depth visuals, and makes every pixel opaque.
func bgrxToBGRA(dst, src []byte) {
	copy(dst, src)
	for i := 3; i < len(dst); i += 4 {
		dst[i] = 0xff
	}
}
