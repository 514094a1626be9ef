package main

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/luca-patrignani/scatter/launcher"
)

var launchFlags struct {
	size    int
	root    int
	seed    string
	timeout time.Duration
	verify  bool
	tls     bool
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Run every rank of the group as a local process",
	Long: `Start N copies of scatter on free local ports, each running one rank of
the same group, and wait for all of them.`,
	Example: `  scatter launch -n 4
  scatter launch -n 4 --seed demo --verify --tls`,
	Args: cobra.NoArgs,
	RunE: runLaunch,
}

func init() {
	f := launchCmd.Flags()
	f.IntVarP(&launchFlags.size, "np", "n", 4, "number of ranks")
	f.IntVar(&launchFlags.root, "root", 0, "rank owning the source matrix")
	f.StringVar(&launchFlags.seed, "seed", "", "seed of the random matrix (default: random)")
	f.DurationVar(&launchFlags.timeout, "timeout", 0, "timeout of the collectives, 0 waits forever")
	f.BoolVar(&launchFlags.verify, "verify", false, "gather the rows back on root and compare them")
	f.BoolVar(&launchFlags.tls, "tls", false, "use mutual TLS between ranks")
	rootCmd.AddCommand(launchCmd)
}

// launchArgs returns the flags forwarded to the run command of every rank.
func launchArgs() []string {
	args := []string{
		"--root", strconv.Itoa(launchFlags.root),
		"--timeout", launchFlags.timeout.String(),
	}
	if launchFlags.seed != "" {
		args = append(args, "--seed", launchFlags.seed)
	}
	if launchFlags.verify {
		args = append(args, "--verify")
	}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if debug {
		args = append(args, "--debug")
	}
	if noColor {
		args = append(args, "--no-color")
	}
	return args
}

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, os.Stderr)
	return launcher.Launch(cmd.Context(), launcher.Options{
		Size:   launchFlags.size,
		Args:   launchArgs(),
		TLS:    launchFlags.tls,
		Logger: logger,
	})
}
