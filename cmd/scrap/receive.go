package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/libgoscrap/pkg/depacketizer"
	"github.com/thesyncim/libgoscrap/pkg/frame"
)

func newReceiveCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "receive <listen-addr>",
		Short: "Receive raw frames sent by scrap relay",
		Long: `Listens for RTP packets from "scrap relay", rebuilds frames and logs each
completed one. With --out and the frame size given, the last frame received
is written as PNG on exit.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runReceive(cmd.Context(), v, args[0]) },
	}

	f := cmd.Flags()
	f.String("out", "", "write the last frame to this PNG file")
	f.Int("width", 0, "frame width, needed for --out")
	f.Int("height", 0, "frame height, needed for --out")
	f.String("format", "bgra", "pixel format of the frames: bgra|rgba")
	f.Int("max-frame", 64<<20, "largest frame accepted, in bytes")
	addCommonFlags(cmd)

	return cmd
}

func runReceive(ctx context.Context, v *viper.Viper, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	format, err := parsePixelFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer conn.Close()

	d := depacketizer.New(v.GetInt("max-frame"))
	defer d.Close()

	slog.Info("receiving", "addr", conn.LocalAddr())

	var last []byte
	err = receiveFrames(ctx, conn, d, func(pix []byte, info depacketizer.FrameInfo) {
		last = append(last[:0], pix...)
		slog.Debug("frame received", "size", info.Size, "timestamp", info.Timestamp)
	})
	s := d.Stats()
	slog.Info("receive stopped", "completed", s.Completed, "dropped", s.Dropped)
	if err != nil {
		return err
	}

	out := v.GetString("out")
	if out == "" || last == nil {
		return nil
	}
	return writePNG(out, last, v.GetInt("width"), v.GetInt("height"), format)
}

// receiveFrames pushes datagrams from conn into d until ctx is done, calling
// onFrame for every frame completed. pix is only valid during the call.
func receiveFrames(ctx context.Context, conn net.PacketConn, d depacketizer.Depacketizer, onFrame func(pix []byte, info depacketizer.FrameInfo)) error {
	packet := make([]byte, 64<<10)
	var pix []byte

	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFrom(packet)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		if err := d.Push(packet[:n]); err != nil {
			slog.Debug("packet dropped", "error", err)
			continue
		}

		for {
			info, err := d.PopInto(pix)
			if errors.Is(err, depacketizer.ErrBufferTooSmall) {
				pix = make([]byte, 2*len(pix)+len(packet))
				continue
			}
			if err == nil {
				onFrame(pix[:info.Size], info)
			}
			break
		}
	}
	return nil
}

func parsePixelFormat(s string) (frame.PixelFormat, error) {
	switch s {
	case "bgra", "BGRA":
		return frame.PixelFormatBGRA, nil
	case "rgba", "RGBA":
		return frame.PixelFormatRGBA, nil
	default:
		return 0, fmt.Errorf("unknown pixel format %q", s)
	}
}

func writePNG(path string, pix []byte, width, height int, format frame.PixelFormat) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("--width and --height are needed to write %s", path)
	}
	if len(pix) < width*height*4 {
		return fmt.Errorf("frame of %d bytes is smaller than %dx%d", len(pix), width, height)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, frame.New(pix, width, height, format).ToRGBA()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
