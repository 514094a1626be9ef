// Package collective implements row-wise collectives of dense matrices on
// top of a group of ranked processes.
//
// Every rank of the group must call the same collective with the same root.
// Before moving any row the ranks exchange the shapes of their buffers, so a
// shape mismatch makes every rank fail with ErrShapeMismatch instead of
// leaving part of the group blocked.
package collective

import (
	"errors"
	"fmt"

	"github.com/unixpickle/essentials"
	"go.dedis.ch/protobuf"

	"github.com/luca-patrignani/scatter/matrix"
)

var (
	// ErrShapeMismatch is returned by every rank when the buffers passed to a
	// collective do not agree with the root's matrix.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidRoot is returned when the root is not a rank of the group.
	ErrInvalidRoot = errors.New("invalid root")
)

// Communicator is the group of processes a collective runs on.
// network.P2P implements it.
type Communicator interface {
	// Broadcast sends data from root to every rank.
	Broadcast(data []byte, root int) ([]byte, error)

	// AllToAll sends data from every rank to every rank.
	AllToAll(data []byte) ([][]byte, error)

	// Scatter sends chunks[i] from root to rank i.
	Scatter(chunks [][]byte, root int) ([]byte, error)

	// Gather collects the data of every rank on root.
	Gather(data []byte, root int) ([][]byte, error)

	GetRank() int

	GetPeerCount() int
}

// shape is what a rank contributes to the shape agreement of a collective.
type shape struct {
	HasMatrix bool
	Rows      int64
	Cols      int64
	Buffer    int64
}

func shapeOf(m *matrix.Dense, buffer int) shape {
	s := shape{Buffer: int64(buffer)}
	if m != nil {
		rows, cols := m.Dims()
		s.HasMatrix = true
		s.Rows = int64(rows)
		s.Cols = int64(cols)
	}
	return s
}

// exchangeShapes sends local to every rank and returns the shapes of all
// ranks indexed by rank.
func exchangeShapes(comm Communicator, local shape) ([]shape, error) {
	buf, err := protobuf.Encode(&local)
	if err != nil {
		return nil, err
	}
	recv, err := comm.AllToAll(buf)
	if err != nil {
		return nil, essentials.AddCtx("exchange shapes", err)
	}
	shapes := make([]shape, len(recv))
	for i, b := range recv {
		if err := protobuf.Decode(b, &shapes[i]); err != nil {
			return nil, fmt.Errorf("exchange shapes: decoding shape of rank %d: %w", i, err)
		}
	}
	return shapes, nil
}

// checkShapes verifies that the root holds a size×cols matrix, that every
// rank's buffer has cols values and that every placeholder matrix has the
// dims of the root's. Every rank runs it on the same shapes, so every rank
// reaches the same verdict.
func checkShapes(shapes []shape, root int) error {
	size := int64(len(shapes))
	r := shapes[root]
	if !r.HasMatrix {
		return fmt.Errorf("%w: root %d has no matrix", ErrShapeMismatch, root)
	}
	if r.Rows != size {
		return fmt.Errorf("%w: root matrix has %d rows for %d ranks", ErrShapeMismatch, r.Rows, size)
	}
	for i, s := range shapes {
		if s.Buffer != r.Cols {
			return fmt.Errorf("%w: rank %d buffer has length %d, root matrix has %d columns", ErrShapeMismatch, i, s.Buffer, r.Cols)
		}
		if s.HasMatrix && (s.Rows != r.Rows || s.Cols != r.Cols) {
			return fmt.Errorf("%w: rank %d placeholder is %d×%d, root matrix is %d×%d", ErrShapeMismatch, i, s.Rows, s.Cols, r.Rows, r.Cols)
		}
	}
	return nil
}

func checkRoot(comm Communicator, root int) error {
	if size := comm.GetPeerCount(); root < 0 || root >= size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRoot, root, size)
	}
	return nil
}
