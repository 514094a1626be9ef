package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/scatter/config"
	"github.com/luca-patrignani/scatter/discovery"
)

var runFlags struct {
	rank           int
	peers          []string
	listen         string
	root           int
	seed           string
	timeout        time.Duration
	group          string
	verify         bool
	tls            bool
	caCert         string
	caKey          string
	discover       bool
	size           int
	discoveryHost  string
	discoveryStart uint16
	discoveryEnd   uint16
	discoveryWait  time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one rank of the group",
	Long: `Run one rank of the group. Every rank must be started with the same
peer list, root and group, or with --discover and the same --size.`,
	Example: `  # two ranks on one host
  scatter run --rank 0 --peers 127.0.0.1:7000,127.0.0.1:7001 &
  scatter run --rank 1 --peers 127.0.0.1:7000,127.0.0.1:7001

  # partial addresses are completed with the listen address
  scatter run --rank 1 --peers 10:7000,11:7000

  # four ranks finding each other on localhost
  scatter run --discover --size 4 --seed demo`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.rank, "rank", 0, "rank of this process")
	f.StringSliceVar(&runFlags.peers, "peers", nil, "address of every rank, in rank order")
	f.StringVar(&runFlags.listen, "listen", "", "address to listen on (default: own entry of --peers)")
	f.IntVar(&runFlags.root, "root", 0, "rank owning the source matrix")
	f.StringVar(&runFlags.seed, "seed", "", "seed of the random matrix (default: random)")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "timeout of the collectives, 0 waits forever")
	f.StringVar(&runFlags.group, "group", "", "identifier shared by the ranks of one run")
	f.BoolVar(&runFlags.verify, "verify", false, "gather the rows back on root and compare them")
	f.BoolVar(&runFlags.tls, "tls", false, "use mutual TLS between ranks")
	f.StringVar(&runFlags.caCert, "ca-cert", "", "PEM certificate of the group authority")
	f.StringVar(&runFlags.caKey, "ca-key", "", "PEM key of the group authority")
	f.BoolVar(&runFlags.discover, "discover", false, "find the other ranks instead of using --peers")
	f.IntVar(&runFlags.size, "size", 0, "number of ranks to discover")
	f.StringVar(&runFlags.discoveryHost, "discovery-host", "localhost", "host probed by discovery")
	f.Uint16Var(&runFlags.discoveryStart, "discovery-start", 9000, "first port of the discovery range")
	f.Uint16Var(&runFlags.discoveryEnd, "discovery-end", 9010, "last port of the discovery range")
	f.DurationVar(&runFlags.discoveryWait, "discovery-wait", time.Minute, "how long to look for the other ranks")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides cfg with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("rank") {
		cfg.Rank = runFlags.rank
	}
	if changed("peers") {
		cfg.Peers = runFlags.peers
	}
	if changed("listen") {
		cfg.Listen = runFlags.listen
	}
	if changed("root") {
		cfg.Root = runFlags.root
	}
	if changed("seed") {
		cfg.Seed = runFlags.seed
	}
	if changed("timeout") {
		cfg.Timeout = runFlags.timeout
	}
	if changed("group") {
		cfg.Group = runFlags.group
	}
	if changed("verify") {
		cfg.Verify = runFlags.verify
	}
	if changed("tls") {
		cfg.TLS.Enabled = runFlags.tls
	}
	if changed("ca-cert") {
		cfg.TLS.CACert = runFlags.caCert
	}
	if changed("ca-key") {
		cfg.TLS.CAKey = runFlags.caKey
	}
	if changed("discover") {
		cfg.Discovery.Enabled = runFlags.discover
	}
	if changed("size") {
		cfg.Discovery.Size = runFlags.size
	}
	if changed("discovery-host") {
		cfg.Discovery.Host = runFlags.discoveryHost
	}
	if changed("discovery-start") {
		cfg.Discovery.StartPort = runFlags.discoveryStart
	}
	if changed("discovery-end") {
		cfg.Discovery.EndPort = runFlags.discoveryEnd
	}
	if changed("discovery-wait") {
		cfg.Discovery.Wait = runFlags.discoveryWait
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if cfg.Log.NoColor {
		pterm.DisableColor()
	}
	logger := newLogger(cfg.Log.Level, os.Stderr)
	if err := cfg.Validate(); err != nil {
		return err
	}

	var l net.Listener
	if cfg.Discovery.Enabled {
		var d *discovery.Discover
		l, d, err = discoverGroup(&cfg, logger)
		if err != nil {
			return err
		}
		// keep answering until the slowest rank found us, i.e. after the scatter
		defer d.Close()
	} else {
		l, err = listenAndResolve(&cfg, logger)
		if err != nil {
			return err
		}
	}
	if err := runRank(cfg, l, os.Stdout, logger); err != nil {
		logger.Error("rank failed", "rank", cfg.Rank, "error", err)
		return err
	}
	return nil
}

// listenAndResolve opens the listener of cfg.Rank and completes partial peer
// addresses with the listener's IP.
func listenAndResolve(cfg *config.Config, logger *slog.Logger) (net.Listener, error) {
	addr := cfg.Listen
	if addr == "" {
		addr = cfg.Peers[cfg.Rank]
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	tcpAddr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		l.Close()
		return nil, fmt.Errorf("listener is not TCP")
	}
	localIP := tcpAddr.IP
	if ip4 := localIP.To4(); ip4 != nil {
		localIP = ip4
	}
	peers := make([]string, len(cfg.Peers))
	for i, peer := range cfg.Peers {
		peers[i], err = resolvePeer(localIP, peer, tcpAddr.Port)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
	}
	cfg.Peers = peers
	logger.Debug("listening", "rank", cfg.Rank, "address", l.Addr().String())
	if tcpListener, ok := l.(*net.TCPListener); ok {
		if subnet, err := subnetOfListener(tcpListener); err == nil {
			for i, peer := range peers {
				host, _, _ := net.SplitHostPort(peer)
				if ip := net.ParseIP(host); ip != nil && !subnet.Contains(ip) {
					logger.Warn("peer outside the local subnet", "peer", i, "address", peer, "subnet", subnet.String())
				}
			}
		}
	}
	return l, nil
}

// discoverGroup forms the group through discovery and sets cfg.Peers and
// cfg.Rank accordingly.
func discoverGroup(cfg *config.Config, logger *slog.Logger) (net.Listener, *discovery.Discover, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(cfg.Discovery.Host, "0"))
	if err != nil {
		return nil, nil, err
	}
	self := discovery.Announcement{Group: cfg.Group, Address: l.Addr().String()}
	info, err := self.Encode()
	if err != nil {
		l.Close()
		return nil, nil, err
	}
	d, err := discovery.New(info,
		discovery.WithHost(cfg.Discovery.Host),
		discovery.WithPortRange(cfg.Discovery.StartPort, cfg.Discovery.EndPort),
		discovery.WithAttempts(0),
		discovery.WithInterval(200*time.Millisecond),
	)
	if err != nil {
		l.Close()
		return nil, nil, err
	}
	logger.Debug("announcing", "address", self.Address, "discovery port", d.Port())
	spinner, _ := pterm.DefaultSpinner.WithWriter(os.Stderr).Start("Looking for " + strconv.Itoa(cfg.Discovery.Size-1) + " other processes...")
	addresses, rank, err := discovery.FormGroup(d, self, cfg.Discovery.Size, cfg.Discovery.Wait)
	if err != nil {
		spinner.Fail(err.Error())
		d.Close()
		l.Close()
		return nil, nil, err
	}
	spinner.Success("Group formed, my rank is " + strconv.Itoa(rank))
	cfg.Peers = addresses
	cfg.Rank = rank
	return l, d, nil
}
