package collective

import (
	"fmt"

	"github.com/unixpickle/essentials"

	"github.com/luca-patrignani/scatter/matrix"
)

// GatherRows is the inverse of ScatterRows: send of rank r becomes row r of
// the root's recv matrix. recv is only written on root, where it must have
// one row per rank and one column per value of send.
func GatherRows(comm Communicator, send []float64, recv *matrix.Dense, root int) error {
	if err := checkRoot(comm, root); err != nil {
		return err
	}
	shapes, err := exchangeShapes(comm, shapeOf(recv, len(send)))
	if err != nil {
		return err
	}
	if err := checkShapes(shapes, root); err != nil {
		return err
	}

	buf, err := matrix.EncodeRow(comm.GetRank(), send)
	if err != nil {
		return err
	}
	gathered, err := comm.Gather(buf, root)
	if err != nil {
		return essentials.AddCtx("gather rows", err)
	}
	if comm.GetRank() != root {
		return nil
	}
	for i, b := range gathered {
		index, values, err := matrix.DecodeRow(b)
		if err != nil {
			return err
		}
		if index != i {
			return fmt.Errorf("gather rows: row %d arrived from rank %d", index, i)
		}
		if err := recv.SetRow(i, values); err != nil {
			return fmt.Errorf("%w: rank %d sent %d values", ErrShapeMismatch, i, len(values))
		}
	}
	return nil
}
