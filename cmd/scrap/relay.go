package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/libgoscrap/pkg/packetizer"
	"github.com/thesyncim/libgoscrap/pkg/scrap"
)

func newRelayCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "relay <host:port>",
		Short: "Stream raw frames of a display over RTP",
		Long: `Captures a display and sends every frame uncompressed as RTP over UDP.
Each payload carries the chunk offset and frame length, so "scrap receive"
can rebuild frames from packets arriving out of order.

Raw frames are large: a 1920x1080 BGRA frame is about 8 MB. Keep --fps low
outside of a local network.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runRelay(cmd.Context(), v, args[0]) },
	}

	f := cmd.Flags()
	f.Int("display", -1, "display index (default: primary display)")
	f.Float64("fps", 5, "frames sent per second")
	f.Int("mtu", packetizer.DefaultMTU, "maximum RTP packet size")
	f.Uint8("payload-type", 96, "RTP payload type")
	f.Uint32("ssrc", 0, "RTP SSRC (default: random)")
	f.Duration("duration", 0, "stop after this long (default: until interrupted)")
	addCommonFlags(cmd)

	return cmd
}

func runRelay(ctx context.Context, v *viper.Viper, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := v.GetDuration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	fps := v.GetFloat64("fps")
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %v", fps)
	}

	cfg, err := packetizerConfig(v)
	if err != nil {
		return err
	}
	p, err := packetizer.New(cfg)
	if err != nil {
		return fmt.Errorf("packetizer: %w", err)
	}
	defer p.Close()

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	lib, err := openLibrary(v)
	if err != nil {
		return err
	}
	defer lib.Close()

	var d *scrap.Display
	if index := v.GetInt("display"); index >= 0 {
		d, err = lib.DisplayAt(index)
	} else {
		d, err = lib.PrimaryDisplay()
	}
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	c, err := lib.NewCapturer(d)
	if err != nil {
		return err
	}
	defer c.Close()

	slog.Info("relaying",
		"backend", lib.Backend(),
		"to", addr,
		"width", c.Width(),
		"height", c.Height(),
		"format", c.Format(),
		"ssrc", ssrc,
	)

	s := newSender(p, conn, time.Now())
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	var frames, packets int
	for {
		select {
		case <-ctx.Done():
			slog.Info("relay stopped", "frames", frames, "packets", packets)
			return nil
		case now := <-ticker.C:
			n, err := s.poll(c, now)
			if err != nil {
				return err
			}
			if n > 0 {
				frames++
				packets += n
				slog.Debug("frame sent", "packets", n, "seq", p.SequenceNumber())
			}
		}
	}
}

// frameSource is a capturer as seen by the relay.
type frameSource interface {
	Frame() (pix []byte, wouldBlock bool, err error)
	ReleaseFrame()
}

// sender packetizes frames into one reusable buffer and writes every packet
// as its own datagram.
type sender struct {
	p     packetizer.Packetizer
	conn  net.Conn
	start time.Time
	buf   []byte
	infos []packetizer.PacketInfo
}

func newSender(p packetizer.Packetizer, conn net.Conn, start time.Time) *sender {
	return &sender{p: p, conn: conn, start: start}
}

// poll takes at most one frame from src and sends it. It returns the number
// of packets written, zero when src had nothing ready.
func (s *sender) poll(src frameSource, now time.Time) (int, error) {
	pix, wouldBlock, err := src.Frame()
	if err != nil {
		return 0, fmt.Errorf("capture: %w", err)
	}
	if wouldBlock {
		return 0, nil
	}
	defer src.ReleaseFrame()
	return s.send(pix, now)
}

func (s *sender) send(pix []byte, now time.Time) (int, error) {
	n := s.p.MaxPackets(len(pix))
	if size := n * s.p.MaxPacketSize(); len(s.buf) < size {
		s.buf = make([]byte, size)
		s.infos = make([]packetizer.PacketInfo, n)
	}

	count, err := s.p.PacketizeInto(pix, rtpTimestamp(now.Sub(s.start)), s.buf, s.infos)
	if err != nil {
		return 0, fmt.Errorf("packetize: %w", err)
	}
	for _, info := range s.infos[:count] {
		if _, err := s.conn.Write(s.buf[info.Offset : info.Offset+info.Size]); err != nil {
			return 0, fmt.Errorf("send: %w", err)
		}
	}
	return count, nil
}

// packetizerConfig reads the RTP flags, rejecting values that do not fit the
// header fields.
func packetizerConfig(v *viper.Viper) (packetizer.Config, error) {
	mtu := v.GetInt("mtu")
	if mtu <= 0 || mtu > math.MaxUint16 {
		return packetizer.Config{}, fmt.Errorf("mtu must be in 1..%d, got %d", math.MaxUint16, mtu)
	}
	pt := v.GetInt("payload-type")
	if pt < 0 || pt > 127 {
		return packetizer.Config{}, fmt.Errorf("payload-type must be in 0..127, got %d", pt)
	}
	ssrc := v.GetUint32("ssrc")
	if ssrc == 0 {
		ssrc = rand.Uint32()
	}
	return packetizer.Config{
		SSRC:        ssrc,
		PayloadType: uint8(pt),
		MTU:         uint16(mtu),
	}, nil
}

// rtpTimestamp converts elapsed time to the 90 kHz video clock.
func rtpTimestamp(elapsed time.Duration) uint32 {
	return packetizer.Timestamp(elapsed, 90000)
}
