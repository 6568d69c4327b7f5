// scrap: screen capture from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thesyncim/libgoscrap/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "scrap",
		Short: "Screen capture over the libscrap backends",
		Long: `scrap enumerates displays, takes screenshots and streams raw frames over
RTP using the same capture backends as the libscrap shared library.

Config file search order (first found wins):
  /etc/scrap/scrap.toml
  $HOME/.config/scrap/scrap.toml
  path supplied via --config

All flags can be set via SCRAP_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDisplaysCmd(),
		newScreenshotCmd(),
		newRelayCmd(),
		newReceiveCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("scrap %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(formatStr, levelStr string) {
	logging.Setup(logging.ParseFormat(formatStr), logging.ParseLevel(levelStr))
}
