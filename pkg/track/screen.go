// Package track provides a Pion TrackLocal that streams raw captured frames.
//
// Frames are sent uncompressed using the raw frame payload of package
// packetizer. Both peers must register the codec with RegisterCodec.
package track

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/libgoscrap/pkg/packetizer"
)

// MimeTypeRaw identifies the raw frame payload in SDP.
const MimeTypeRaw = "video/x-scrap-raw"

// ClockRate is the RTP clock of the raw frame payload.
const ClockRate = 90000

// Errors
var (
	ErrTrackClosed        = errors.New("track is closed")
	ErrNotBound           = errors.New("track not bound")
	ErrAlreadyBound       = errors.New("track already bound")
	ErrInvalidConfig      = errors.New("invalid config")
	ErrCodecNotNegotiated = errors.New("raw frame codec not negotiated")
)

// RegisterCodec adds the raw frame codec to m under payload type pt.
func RegisterCodec(m *webrtc.MediaEngine, pt webrtc.PayloadType) error {
	return m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  MimeTypeRaw,
			ClockRate: ClockRate,
		},
		PayloadType: pt,
	}, webrtc.RTPCodecTypeVideo)
}

// ScreenTrackConfig configures a screen track.
type ScreenTrackConfig struct {
	ID       string
	StreamID string
	MTU      uint16 // RTP MTU (default 1200)
}

// ScreenTrack implements webrtc.TrackLocal for raw frames.
// Call WriteFrame, or Pump a capturer, to send RTP packets.
type ScreenTrack struct {
	id       string
	streamID string
	config   ScreenTrackConfig

	// Bound state
	writer      webrtc.TrackLocalWriter
	codecParams webrtc.RTPCodecParameters
	pkt         packetizer.Packetizer

	// Reused across frames
	packetBuf  []byte
	packetInfo []packetizer.PacketInfo

	mu     sync.Mutex
	closed atomic.Bool
	bound  atomic.Bool
}

// NewScreenTrack creates an unbound screen track.
func NewScreenTrack(cfg ScreenTrackConfig) (*ScreenTrack, error) {
	if cfg.ID == "" {
		return nil, ErrInvalidConfig
	}
	if cfg.StreamID == "" {
		cfg.StreamID = cfg.ID
	}
	if cfg.MTU == 0 {
		cfg.MTU = packetizer.DefaultMTU
	}
	return &ScreenTrack{id: cfg.ID, streamID: cfg.StreamID, config: cfg}, nil
}

// ID returns the track ID.
func (t *ScreenTrack) ID() string { return t.id }

// RID returns the RTP stream ID (empty for non-simulcast).
func (t *ScreenTrack) RID() string { return "" }

// StreamID returns the stream ID.
func (t *ScreenTrack) StreamID() string { return t.streamID }

// Kind returns webrtc.RTPCodecTypeVideo.
func (t *ScreenTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }

// Bind is called by Pion when the track starts sending on a PeerConnection.
func (t *ScreenTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	if t.closed.Load() {
		return webrtc.RTPCodecParameters{}, ErrTrackClosed
	}
	if t.bound.Load() {
		return webrtc.RTPCodecParameters{}, ErrAlreadyBound
	}

	selected, ok := selectCodec(ctx.CodecParameters())
	if !ok {
		return webrtc.RTPCodecParameters{}, ErrCodecNotNegotiated
	}

	pkt, err := packetizer.New(packetizer.Config{
		SSRC:        uint32(ctx.SSRC()),
		PayloadType: uint8(selected.PayloadType),
		MTU:         t.config.MTU,
		ClockRate:   ClockRate,
	})
	if err != nil {
		return webrtc.RTPCodecParameters{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pkt = pkt
	t.writer = ctx.WriteStream()
	t.codecParams = selected
	t.bound.Store(true)

	return selected, nil
}

func selectCodec(codecs []webrtc.RTPCodecParameters) (webrtc.RTPCodecParameters, bool) {
	for _, c := range codecs {
		if strings.EqualFold(c.MimeType, MimeTypeRaw) {
			return c, true
		}
	}
	return webrtc.RTPCodecParameters{}, false
}

// Unbind is called when the track is removed from the PeerConnection.
func (t *ScreenTrack) Unbind(webrtc.TrackLocalContext) error {
	if !t.bound.CompareAndSwap(true, false) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pkt != nil {
		t.pkt.Close()
		t.pkt = nil
	}
	t.writer = nil
	return nil
}

// WriteFrame packetizes one raw frame and writes it to the bound peer
// connection.
func (t *ScreenTrack) WriteFrame(pix []byte, timestamp uint32) error {
	if t.closed.Load() {
		return ErrTrackClosed
	}
	if !t.bound.Load() {
		return ErrNotBound
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pkt == nil || t.writer == nil {
		return ErrNotBound
	}

	n := t.pkt.MaxPackets(len(pix))
	if size := n * t.pkt.MaxPacketSize(); len(t.packetBuf) < size {
		t.packetBuf = make([]byte, size)
		t.packetInfo = make([]packetizer.PacketInfo, n)
	}

	count, err := t.pkt.PacketizeInto(pix, timestamp, t.packetBuf, t.packetInfo)
	if err != nil {
		return fmt.Errorf("packetize: %w", err)
	}
	for _, info := range t.packetInfo[:count] {
		if _, err := t.writer.Write(t.packetBuf[info.Offset : info.Offset+info.Size]); err != nil {
			return err
		}
	}
	return nil
}

// FrameSource is a capturer as seen by Pump.
type FrameSource interface {
	Frame() (pix []byte, wouldBlock bool, err error)
	ReleaseFrame()
}

// Pump polls src every interval and writes each frame until ctx is done or
// src fails. Frames polled before the track is bound are dropped.
func (t *ScreenTrack) Pump(ctx context.Context, src FrameSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			pix, wouldBlock, err := src.Frame()
			if err != nil {
				return err
			}
			if wouldBlock {
				continue
			}
			ts := packetizer.Timestamp(now.Sub(start), ClockRate)
			err = t.WriteFrame(pix, ts)
			src.ReleaseFrame()
			if err != nil && !errors.Is(err, ErrNotBound) {
				return err
			}
		}
	}
}

// Close releases all resources.
func (t *ScreenTrack) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pkt != nil {
		t.pkt.Close()
		t.pkt = nil
	}
	t.writer = nil
	return nil
}
