// Package matrix implements the dense float64 matrices distributed by the
// row collectives, together with their random fill and wire encoding.
package matrix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRagged is returned when rows of different lengths are combined into
// a matrix.
var ErrRagged = errors.New("matrix: ragged rows")

// Dense is a row-major matrix of float64.
type Dense struct {
	rows, cols int
	data       []float64
}

// New returns a rows×cols zero matrix. It panics on negative dimensions.
func New(rows, cols int) *Dense {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: negative dimension %d×%d", rows, cols))
	}
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// NewFromRows copies rows into a new matrix.
func NewFromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	m := New(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			return nil, fmt.Errorf("%w: row %d has %d values, row 0 has %d", ErrRagged, i, len(row), m.cols)
		}
		copy(m.RawRow(i), row)
	}
	return m, nil
}

// Dims returns the number of rows and columns.
func (m *Dense) Dims() (rows, cols int) {
	return m.rows, m.cols
}

func (m *Dense) At(i, j int) float64 {
	m.check(i, j)
	return m.data[i*m.cols+j]
}

func (m *Dense) Set(i, j int, v float64) {
	m.check(i, j)
	m.data[i*m.cols+j] = v
}

// Row returns a copy of row i.
func (m *Dense) Row(i int) []float64 {
	row := make([]float64, m.cols)
	copy(row, m.RawRow(i))
	return row
}

// RawRow returns row i backed by the matrix storage.
func (m *Dense) RawRow(i int) []float64 {
	if i < 0 || i >= m.rows {
		panic(fmt.Sprintf("matrix: row %d out of range [0, %d)", i, m.rows))
	}
	return m.data[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
}

// SetRow copies v into row i. v must have one value per column.
func (m *Dense) SetRow(i int, v []float64) error {
	if len(v) != m.cols {
		return fmt.Errorf("%w: row of %d values for a matrix of %d columns", ErrRagged, len(v), m.cols)
	}
	copy(m.RawRow(i), v)
	return nil
}

// Equal reports whether m and o have the same dims and values.
func (m *Dense) Equal(o *Dense) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i, v := range m.data {
		if v != o.data[i] {
			return false
		}
	}
	return true
}

// String renders the matrix one bracketed row per line.
func (m *Dense) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			sb.WriteString("\n ")
		}
		sb.WriteString(FormatRow(m.RawRow(i)))
	}
	sb.WriteByte(']')
	return sb.String()
}

// FormatRow renders values with eight decimals, leaving room for the sign
// so that columns line up.
func FormatRow(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		s := strconv.FormatFloat(v, 'f', 8, 64)
		if v >= 0 {
			s = " " + s
		}
		parts[i] = s
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (m *Dense) check(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("matrix: index (%d, %d) out of range %d×%d", i, j, m.rows, m.cols))
	}
}
