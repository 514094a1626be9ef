package collective

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/scatter/matrix"
	"github.com/luca-patrignani/scatter/network"
)

func TestScatterThenGather(t *testing.T) {
	n := 4
	root := 1
	source := matrix.RandN(n, n, matrix.NewSource([]byte("round trip")))
	gathered := matrix.New(n, n)
	errs := runGroup(n, func(comm *network.P2P) error {
		var send, recv *matrix.Dense
		if comm.GetRank() == root {
			send, recv = source, gathered
		}
		row := make([]float64, n)
		if err := ScatterRows(comm, send, row, root); err != nil {
			return err
		}
		return GatherRows(comm, row, recv, root)
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.True(t, source.Equal(gathered))
}

func TestGatherRowsShapeMismatch(t *testing.T) {
	n := 2
	errs := runGroup(n, func(comm *network.P2P) error {
		var recv *matrix.Dense
		if comm.GetRank() == 0 {
			recv = matrix.New(n, n)
		}
		return GatherRows(comm, make([]float64, n+comm.GetRank()), recv, 0)
	})
	for _, err := range errs {
		require.ErrorIs(t, err, ErrShapeMismatch)
	}
}
