// Package backend opens a capture backend by name.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/thesyncim/libgoscrap/internal/backend/native"
	"github.com/thesyncim/libgoscrap/internal/backend/screenshot"
	"github.com/thesyncim/libgoscrap/internal/backend/x11"
	"github.com/thesyncim/libgoscrap/internal/capture"
)

// Backend names accepted by Open.
const (
	NameAuto       = "auto"
	NameX11        = "x11"
	NameScreenshot = "screenshot"
	NameNative     = "native"
)

// Environment variables read by OpenFromEnv.
const (
	EnvBackend       = "SCRAP_BACKEND"
	EnvFrameInterval = "SCRAP_FRAME_INTERVAL"
	EnvX11Display    = "DISPLAY"
)

// ErrUnknownBackend is returned for names Open does not know.
var ErrUnknownBackend = errors.New("unknown capture backend")

// Options configures the backend Open creates.
type Options struct {
	// NativePath is the scrap-sys library for the native backend.
	NativePath string

	// X11Display is the X display name for the x11 backend.
	X11Display string

	// FrameInterval is the target time between frames. Backends that
	// capture on demand report would-block when polled faster.
	FrameInterval time.Duration
}

// Names lists the accepted backend names.
func Names() []string {
	return []string{NameAuto, NameX11, NameScreenshot, NameNative}
}

// Open returns the named backend. "auto" (or an empty name) prefers a native
// library when one is installed, then X11 when a display server is
// advertised, then the screenshot backend.
func Open(name string, opts Options) (capture.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameAuto:
		return openAuto(opts)
	case NameX11:
		return openX11(opts)
	case NameScreenshot:
		return screenshot.New(screenshot.Options{FrameInterval: opts.FrameInterval}), nil
	case NameNative:
		return openNative(opts)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownBackend, name, strings.Join(Names(), ", "))
	}
}

func openAuto(opts Options) (capture.Backend, error) {
	if _, found := native.FindLibrary(opts.NativePath); found {
		b, err := openNative(opts)
		if err == nil {
			return b, nil
		}
		slog.Debug("native backend unavailable", "error", err)
	}

	if usesX11(runtime.GOOS) && (opts.X11Display != "" || os.Getenv(EnvX11Display) != "") {
		b, err := openX11(opts)
		if err == nil {
			return b, nil
		}
		slog.Debug("x11 backend unavailable", "error", err)
	}

	return screenshot.New(screenshot.Options{FrameInterval: opts.FrameInterval}), nil
}

func openX11(opts Options) (capture.Backend, error) {
	b, err := x11.Open(x11.Options{Display: opts.X11Display, FrameInterval: opts.FrameInterval})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openNative(opts Options) (capture.Backend, error) {
	b, err := native.Open(opts.NativePath)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func usesX11(goos string) bool {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return true
	default:
		return false
	}
}

// OptionsFromEnv reads SCRAP_SYS_PATH, SCRAP_FRAME_INTERVAL and DISPLAY.
func OptionsFromEnv() (Options, error) {
	opts := Options{
		NativePath: os.Getenv(native.EnvLibraryPath),
		X11Display: os.Getenv(EnvX11Display),
	}
	if v := strings.TrimSpace(os.Getenv(EnvFrameInterval)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return opts, fmt.Errorf("%s: %w", EnvFrameInterval, err)
		}
		opts.FrameInterval = d
	}
	return opts, nil
}

// OpenFromEnv opens the backend named by SCRAP_BACKEND.
func OpenFromEnv() (capture.Backend, error) {
	opts, err := OptionsFromEnv()
	if err != nil {
		return nil, err
	}
	return Open(os.Getenv(EnvBackend), opts)
}
