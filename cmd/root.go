package main

import (
	"io"
	"log/slog"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/scatter/config"
)

var (
	cfgFile string
	debug   bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "scatter",
	Short: "Scatter the rows of a random matrix over a group of processes",
	Long: `scatter fills an N×N matrix with random values on a root process and
distributes it by rows over a group of N processes: rank r receives row r
and prints it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			pterm.DisableColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig returns the defaults, overridden by the configuration file and
// then by the persistent flags.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return config.Config{}, err
		}
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if noColor {
		cfg.Log.NoColor = true
	}
	return cfg, nil
}

// newLogger returns a slog logger printing through pterm.
func newLogger(level string, w io.Writer) *slog.Logger {
	logger := pterm.DefaultLogger.WithLevel(ptermLevel(level)).WithWriter(w)
	return slog.New(pterm.NewSlogHandler(logger))
}

func ptermLevel(level string) pterm.LogLevel {
	switch level {
	case "debug":
		return pterm.LogLevelDebug
	case "warn":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	default:
		return pterm.LogLevelInfo
	}
}
