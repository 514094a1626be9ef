package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scatter.yaml")
	err := os.WriteFile(path, []byte(`
rank: 1
peers:
  - 127.0.0.1:7000
  - 127.0.0.1:7001
seed: fixed
timeout: 30s
tls:
  enabled: true
  ca_cert: ca.pem
  ca_key: ca.key
log:
  level: debug
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Rank)
	require.Equal(t, []string{"127.0.0.1:7000", "127.0.0.1:7001"}, cfg.Peers)
	require.Equal(t, "fixed", cfg.Seed)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.True(t, cfg.TLS.Enabled)
	require.Equal(t, "debug", cfg.Log.Level)
	// untouched sections keep their defaults
	require.Equal(t, uint16(9000), cfg.Discovery.StartPort)
	require.Equal(t, 2, cfg.Size())
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Peers = []string{"a:1", "b:2", "c:3"}
	valid.Rank = 2
	valid.Root = 1

	cases := map[string]func(c *Config){
		"no peers":        func(c *Config) { c.Peers = nil; c.Rank = 0 },
		"rank too large":  func(c *Config) { c.Rank = 3 },
		"root too large":  func(c *Config) { c.Root = 3 },
		"negative root":   func(c *Config) { c.Root = -1 },
		"negative time":   func(c *Config) { c.Timeout = -time.Second },
		"tls without ca":  func(c *Config) { c.TLS.Enabled = true },
		"bad level":       func(c *Config) { c.Log.Level = "loud" },
		"discovery empty": func(c *Config) { c.Discovery.Enabled = true },
	}
	require.NoError(t, valid.Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			c.Peers = append([]string(nil), valid.Peers...)
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestDiscoverySize(t *testing.T) {
	c := Default()
	c.Discovery.Enabled = true
	c.Discovery.Size = 4
	c.Root = 3
	require.Equal(t, 4, c.Size())
	require.NoError(t, c.Validate())
}
