package main

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/libgoscrap/pkg/frame"
	"github.com/thesyncim/libgoscrap/pkg/scrap"
)

func newScreenshotCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "screenshot [file.png]",
		Short: "Capture one frame to a PNG file",
		Long: `Captures a single frame of a display and writes it as PNG. Without a file
argument the image is written to stdout.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runScreenshot(cmd.Context(), v, args) },
	}

	f := cmd.Flags()
	f.Int("display", -1, "display index (default: primary display)")
	f.Duration("timeout", 5*time.Second, "give up when no frame arrives in time")
	f.Duration("poll", 10*time.Millisecond, "interval between polls of a blocking capturer")
	addCommonFlags(cmd)

	return cmd
}

func runScreenshot(ctx context.Context, v *viper.Viper, args []string) error {
	lib, err := openLibrary(v)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	img, err := captureOne(ctx, lib, v.GetInt("display"), pollInterval(v))
	if err != nil {
		return err
	}

	out := os.Stdout
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := png.Encode(out, img.ToRGBA()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	slog.Info("screenshot written", "backend", lib.Backend(), "width", img.Width, "height", img.Height)
	return nil
}

// captureOne grabs a detached frame of display index, or of the primary
// display when index is negative.
func captureOne(ctx context.Context, lib *scrap.Library, index int, poll time.Duration) (*frame.Image, error) {
	if index < 0 {
		return lib.Screenshot(ctx, poll)
	}

	d, err := lib.DisplayAt(index)
	if err != nil {
		return nil, fmt.Errorf("display %d: %w", index, err)
	}
	return lib.ScreenshotDisplay(ctx, d, poll)
}
