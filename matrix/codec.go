package matrix

import (
	"fmt"

	"go.dedis.ch/protobuf"
)

type rowMessage struct {
	Index  int64
	Values []float64
}

// EncodeRow serializes row index of a matrix for the wire.
func EncodeRow(index int, values []float64) ([]byte, error) {
	return protobuf.Encode(&rowMessage{Index: int64(index), Values: values})
}

// DecodeRow parses a row written by EncodeRow.
func DecodeRow(buf []byte) (index int, values []float64, err error) {
	var msg rowMessage
	if err := protobuf.Decode(buf, &msg); err != nil {
		return 0, nil, fmt.Errorf("decoding row: %w", err)
	}
	return int(msg.Index), msg.Values, nil
}
