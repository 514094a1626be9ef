// Package launcher starts every rank of a group as a child process of the
// caller, the way mpirun does for MPI programs.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/unixpickle/essentials"

	"github.com/luca-patrignani/scatter/network"
)

// Options describes the group to launch.
type Options struct {
	// Executable is started once per rank. Defaults to the running binary.
	Executable string
	// Size is the number of ranks.
	Size int
	// Args are appended to the arguments of every rank.
	Args []string
	// Env is appended to the environment of every rank.
	Env []string
	// TLS makes the ranks talk over mutual TLS with a fresh authority.
	TLS bool

	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// RankArgs returns the arguments of the run command of rank in a group
// listening on peers.
func RankArgs(rank int, peers []string, group string) []string {
	return []string{
		"run",
		"--rank", strconv.Itoa(rank),
		"--peers", strings.Join(peers, ","),
		"--group", group,
	}
}

// Launch starts opts.Size ranks and waits for all of them. When a rank
// fails the others are killed, since they would wait for it forever.
func Launch(ctx context.Context, opts Options) error {
	if opts.Size < 1 {
		return fmt.Errorf("cannot launch %d ranks", opts.Size)
	}
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		opts.Executable = exe
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	addresses := network.CreateAddresses(opts.Size)
	peers := make([]string, opts.Size)
	for i := range peers {
		peers[i] = addresses[i]
	}
	group := uuid.NewString()
	extra := opts.Args
	if opts.TLS {
		dir, err := os.MkdirTemp("", "scatter-"+group)
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		tlsArgs, err := writeAuthority(dir)
		if err != nil {
			return essentials.AddCtx("tls authority", err)
		}
		extra = append(append([]string(nil), extra...), tlsArgs...)
	}
	opts.Logger.Info("launching group", "group", group, "size", opts.Size, "peers", strings.Join(peers, ","))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stdout := &lockedWriter{w: opts.Stdout}
	stderr := &lockedWriter{w: opts.Stderr}
	errs := make([]error, opts.Size)
	var wg sync.WaitGroup
	for rank := 0; rank < opts.Size; rank++ {
		args := append(RankArgs(rank, peers, group), extra...)
		cmd := exec.CommandContext(ctx, opts.Executable, args...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.Env = append(os.Environ(), opts.Env...)
		if err := cmd.Start(); err != nil {
			cancel()
			wg.Wait()
			return errors.Join(append(errs, essentials.AddCtx(fmt.Sprintf("starting rank %d", rank), err))...)
		}
		opts.Logger.Debug("started rank", "rank", rank, "pid", cmd.Process.Pid)
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := cmd.Wait(); err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
				cancel()
			}
		}(rank)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func writeAuthority(dir string) ([]string, error) {
	authority, err := network.NewAuthority()
	if err != nil {
		return nil, err
	}
	certPath := filepath.Join(dir, "ca.pem")
	keyPath := filepath.Join(dir, "ca.key")
	if err := authority.WriteFiles(certPath, keyPath); err != nil {
		return nil, err
	}
	return []string{"--tls", "--ca-cert", certPath, "--ca-key", keyPath}, nil
}

// lockedWriter serializes the writes of the ranks sharing one output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
