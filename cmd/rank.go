package main

import (
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/pterm/pterm"
	"github.com/unixpickle/essentials"

	"github.com/luca-patrignani/scatter/collective"
	"github.com/luca-patrignani/scatter/config"
	"github.com/luca-patrignani/scatter/matrix"
	"github.com/luca-patrignani/scatter/network"
)

// runRank runs the scatter as rank cfg.Rank of the group cfg.Peers, serving
// on l. The root fills and prints the source matrix, then every rank prints
// the row it received.
func runRank(cfg config.Config, l net.Listener, out io.Writer, logger *slog.Logger) error {
	size := len(cfg.Peers)
	addresses := make(map[int]string, size)
	for i, addr := range cfg.Peers {
		addresses[i] = addr
	}
	opts := []network.PeerOption{
		network.WithTimeout(cfg.Timeout),
		network.WithGroup(cfg.Group),
		network.WithLogger(logger),
	}
	if cfg.TLS.Enabled {
		tlsOpts, err := tlsOptions(cfg)
		if err != nil {
			l.Close()
			return err
		}
		opts = append(opts, tlsOpts...)
	}
	peer := network.NewPeerWithOptions(cfg.Rank, addresses, opts...)
	peer.Start(l)
	comm := network.NewP2P(peer)
	defer comm.Close()

	printer := rankPrinter(out, cfg.Rank)
	var send *matrix.Dense
	if cfg.Rank == cfg.Root {
		src := sourceOf(cfg.Seed)
		send = matrix.RandN(size, size, src)
		logger.Debug("filled source matrix", "rank", cfg.Rank, "size", size, "seed", hex.EncodeToString(src.Seed()))
		printer.Println("Original array on root process\n" + send.String())
	}

	recv := make([]float64, size)
	if err := collective.ScatterRows(comm, send, recv, cfg.Root); err != nil {
		return err
	}
	printer.Printfln("Process %d received %s", cfg.Rank, matrix.FormatRow(recv))

	if cfg.Verify {
		return verify(comm, send, recv, cfg.Root, printer)
	}
	return nil
}

// verify gathers the scattered rows back on root and compares them with the
// source matrix.
func verify(comm collective.Communicator, send *matrix.Dense, recv []float64, root int, printer *pterm.PrefixPrinter) error {
	var gathered *matrix.Dense
	if comm.GetRank() == root {
		rows, cols := send.Dims()
		gathered = matrix.New(rows, cols)
	}
	if err := collective.GatherRows(comm, recv, gathered, root); err != nil {
		return essentials.AddCtx("verify", err)
	}
	if comm.GetRank() != root {
		return nil
	}
	if !gathered.Equal(send) {
		printer.Println("Gathered rows differ from the original array")
		return errors.New("verify: gathered rows differ from the original array")
	}
	printer.Println("Gathered rows match the original array")
	return nil
}

func sourceOf(seed string) *matrix.Source {
	if seed == "" {
		return matrix.NewRandomSource()
	}
	return matrix.NewSource([]byte(seed))
}

func tlsOptions(cfg config.Config) ([]network.PeerOption, error) {
	authority, err := network.LoadAuthority(cfg.TLS.CACert, cfg.TLS.CAKey)
	if err != nil {
		return nil, essentials.AddCtx("loading tls authority", err)
	}
	cert, err := authority.Issue(cfg.Peers[cfg.Rank])
	if err != nil {
		return nil, err
	}
	return []network.PeerOption{
		network.WithCertificate(cert),
		network.WithLimitedCAs(authority.Pool()),
	}, nil
}
