package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesyncim/libgoscrap/pkg/scrap"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and SCRAP_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → SCRAP_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("scrap")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/scrap/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/scrap", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("SCRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	setupLogging(v)
	return nil
}

// addCommonFlags adds the config, logging and backend flags to a command.
func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "path to config file (overrides auto-discovery)")
	f.String("log-format", "auto", "log format: auto|text|json")
	f.String("log-level", "info", "log level: debug|info|warn|error")
	f.String("backend", "auto", "capture backend: auto|x11|screenshot|native")
	f.String("native-lib", "", "path to the native capture library (native backend)")
	f.Duration("frame-interval", 0, "minimum time between captured frames")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	resolveLogging(v.GetString("log-format"), v.GetString("log-level"))
}

// openLibrary opens a capture library from the backend flags.
func openLibrary(v *viper.Viper) (*scrap.Library, error) {
	opts := []scrap.Option{scrap.WithBackend(v.GetString("backend"))}
	if path := v.GetString("native-lib"); path != "" {
		opts = append(opts, scrap.WithNativeLibrary(path))
	}
	if d := v.GetDuration("frame-interval"); d > 0 {
		opts = append(opts, scrap.WithFrameInterval(d))
	}
	lib, err := scrap.Open(opts...)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return lib, nil
}

// pollInterval is how often a blocking capturer is polled again.
func pollInterval(v *viper.Viper) time.Duration {
	if d := v.GetDuration("poll"); d > 0 {
		return d
	}
	return 10 * time.Millisecond
}
