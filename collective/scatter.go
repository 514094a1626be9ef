package collective

import (
	"fmt"

	"github.com/unixpickle/essentials"

	"github.com/luca-patrignani/scatter/matrix"
)

// ScatterRows delivers row r of the root's send matrix into recv of rank r.
//
// send is only read on root; the other ranks may pass nil or a placeholder
// with the dims of the root's matrix. recv must have one value per column
// of the root's matrix on every rank. The call returns once every rank
// holds its row.
func ScatterRows(comm Communicator, send *matrix.Dense, recv []float64, root int) error {
	if err := checkRoot(comm, root); err != nil {
		return err
	}
	shapes, err := exchangeShapes(comm, shapeOf(send, len(recv)))
	if err != nil {
		return err
	}
	if err := checkShapes(shapes, root); err != nil {
		return err
	}

	var chunks [][]byte
	if comm.GetRank() == root {
		rows, _ := send.Dims()
		chunks = make([][]byte, rows)
		for i := range chunks {
			chunks[i], err = matrix.EncodeRow(i, send.RawRow(i))
			if err != nil {
				return err
			}
		}
	}
	chunk, err := comm.Scatter(chunks, root)
	if err != nil {
		return essentials.AddCtx("scatter rows", err)
	}
	index, values, err := matrix.DecodeRow(chunk)
	if err != nil {
		return err
	}
	if index != comm.GetRank() {
		return fmt.Errorf("scatter rows: rank %d received row %d", comm.GetRank(), index)
	}
	if len(values) != len(recv) {
		return fmt.Errorf("%w: received %d values for a buffer of %d", ErrShapeMismatch, len(values), len(recv))
	}
	copy(recv, values)
	return nil
}
