// Package config holds the settings of one rank of a scatter run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the configuration of a single rank.
type Config struct {
	// Rank of this process. Ignored when the group is formed by discovery.
	Rank int `yaml:"rank"`
	// Peers lists the address of every rank, Peers[i] being rank i.
	Peers []string `yaml:"peers"`
	// Listen overrides the address this rank listens on, Peers[Rank] by default.
	Listen string `yaml:"listen"`
	// Root is the rank owning the source matrix.
	Root int `yaml:"root"`
	// Seed of the random fill. Empty draws a fresh seed.
	Seed string `yaml:"seed"`
	// Timeout of every collective. Zero waits forever.
	Timeout time.Duration `yaml:"timeout"`
	// Group identifies the run; peers of another group are ignored.
	Group string `yaml:"group"`
	// Verify gathers the rows back on root and compares them with the source.
	Verify bool `yaml:"verify"`

	TLS       TLSConfig       `yaml:"tls"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// TLSConfig points to the certificate authority shared by the group.
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	CACert  string `yaml:"ca_cert"`
	CAKey   string `yaml:"ca_key"`
}

// DiscoveryConfig forms the group without a peer list.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Size      int    `yaml:"size"`
	Host      string `yaml:"host"`
	StartPort uint16 `yaml:"start_port"`
	EndPort   uint16 `yaml:"end_port"`
	// Wait bounds the search for the other ranks.
	Wait time.Duration `yaml:"wait"`
}

type LogConfig struct {
	Level   string `yaml:"level"` // debug, info, warn, error
	NoColor bool   `yaml:"no_color"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Root: 0,
		Discovery: DiscoveryConfig{
			Host:      "localhost",
			StartPort: 9000,
			EndPort:   9010,
			Wait:      time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Size is the number of ranks of the group.
func (c Config) Size() int {
	if c.Discovery.Enabled {
		return c.Discovery.Size
	}
	return len(c.Peers)
}

// Validate checks that the configuration describes a usable group.
func (c Config) Validate() error {
	var errs []error
	if c.Discovery.Enabled {
		if c.Discovery.Size < 1 {
			errs = append(errs, fmt.Errorf("discovery size must be at least 1, got %d", c.Discovery.Size))
		}
		if c.Discovery.StartPort > c.Discovery.EndPort {
			errs = append(errs, fmt.Errorf("discovery port range %d-%d is empty", c.Discovery.StartPort, c.Discovery.EndPort))
		}
	} else {
		if len(c.Peers) == 0 {
			errs = append(errs, errors.New("no peers given"))
		}
		if c.Rank < 0 || c.Rank >= len(c.Peers) {
			errs = append(errs, fmt.Errorf("rank %d not in [0, %d)", c.Rank, len(c.Peers)))
		}
	}
	if size := c.Size(); size > 0 && (c.Root < 0 || c.Root >= size) {
		errs = append(errs, fmt.Errorf("root %d not in [0, %d)", c.Root, size))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative timeout %v", c.Timeout))
	}
	if c.TLS.Enabled && (c.TLS.CACert == "" || c.TLS.CAKey == "") {
		errs = append(errs, errors.New("tls needs both ca_cert and ca_key"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
