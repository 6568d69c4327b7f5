// Command libscrap is the C ABI of libgoscrap. Build it as a shared library:
//
//	go build -buildmode=c-shared -o libscrap.so ./cmd/libscrap
//
// and include scrap.h from the calling side. The capture backend is picked on
// first use from SCRAP_BACKEND (auto, x11, screenshot, native) and, for the
// native backend, SCRAP_SYS_PATH. Logging goes to stderr, tuned with
// SCRAP_LOG_LEVEL and SCRAP_LOG_FORMAT.
package main

import (
	"log/slog"
	"os"
	"sync"

	"github.com/thesyncim/libgoscrap/internal/backend"
	"github.com/thesyncim/libgoscrap/internal/boundary"
	"github.com/thesyncim/libgoscrap/internal/capture"
	"github.com/thesyncim/libgoscrap/internal/logging"
)

func main() {}

var (
	libMu sync.Mutex
	lib   *boundary.Boundary
)

// current returns the process-wide boundary, opening the backend on first use.
// A backend that cannot be opened is replaced by one that reports the failure
// on every call, so callers see it through the error channel.
func current() *boundary.Boundary {
	libMu.Lock()
	defer libMu.Unlock()

	if lib == nil {
		logging.Setup(
			logging.ParseFormat(os.Getenv("SCRAP_LOG_FORMAT")),
			logging.ParseLevel(os.Getenv("SCRAP_LOG_LEVEL")),
		)
		lib = boundary.New(openBackend())
	}
	return lib
}

func openBackend() capture.Backend {
	b, err := backend.OpenFromEnv()
	if err != nil {
		slog.Warn("libscrap: no capture backend", "error", err)
		return capture.Unavailable(err)
	}
	slog.Debug("libscrap: opened capture backend", "backend", b.Name())
	return b
}

// install swaps the process-wide boundary for one over b, releasing
// everything the previous one owned.
func install(b capture.Backend) *boundary.Boundary {
	libMu.Lock()
	defer libMu.Unlock()

	if lib != nil {
		_ = lib.Close()
	}
	dropAllStages()
	lib = boundary.New(b)
	return lib
}
