package design

import (
	"fmt"
	"strconv"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/FirstLevel/internal/io"
)

// Matrix is an ordered set of named regressors sharing one row per scan.
type Matrix struct {
	rows  int
	names []string
	index map[string]int
	cols  [][]float64
}

// NewMatrix returns an empty design with the given number of scans.
func NewMatrix(rows int) *Matrix {
	return &Matrix{rows: rows, index: map[string]int{}}
}

// Append adds a column. The name must be new and the length must match.
func (m *Matrix) Append(name string, values []float64) error {
	if _, ok := m.index[name]; ok {
		return fmt.Errorf("[Append] duplicate column %q", name)
	}
	if len(values) != m.rows {
		return fmt.Errorf("[Append] column %q has %d rows, design has %d", name, len(values), m.rows)
	}
	m.index[name] = len(m.names)
	m.names = append(m.names, name)
	m.cols = append(m.cols, values)
	return nil
}

// Dims returns scans and columns.
func (m *Matrix) Dims() (int, int) { return m.rows, len(m.names) }

// Names returns the column names in order.
func (m *Matrix) Names() []string { return append([]string(nil), m.names...) }

// Column returns the values of a named column.
func (m *Matrix) Column(name string) ([]float64, bool) {
	j, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.cols[j], true
}

// Has reports whether the design carries the named column.
func (m *Matrix) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// AllZero reports whether a named column is zero at every scan.
func (m *Matrix) AllZero(name string) bool {
	col, ok := m.Column(name)
	if !ok {
		return false
	}
	for _, v := range col {
		if v != 0 {
			return false
		}
	}
	return true
}

// Dense copies the design into a scans by columns matrix.
func (m *Matrix) Dense() *mat64.Dense {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return &mat64.Dense{}
	}
	d := mat64.NewDense(rows, cols, nil)
	for j, col := range m.cols {
		d.SetCol(j, col)
	}
	return d
}

// Select returns a design holding only the named columns, in the given order.
func (m *Matrix) Select(names []string) (*Matrix, error) {
	out := NewMatrix(m.rows)
	for _, n := range names {
		col, ok := m.Column(n)
		if !ok {
			return nil, fmt.Errorf("[Select] no column %q", n)
		}
		if err := out.Append(n, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Table renders the design as a text table with a header line.
func (m *Matrix) Table() *io.Table {
	t := &io.Table{Header: m.Names()}
	for i := 0; i < m.rows; i++ {
		row := make([]string, len(m.cols))
		for j, col := range m.cols {
			row[j] = strconv.FormatFloat(col[i], 'g', -1, 64)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// FromDense rebuilds a design from a matrix and its column names.
func FromDense(names []string, d *mat64.Dense) (*Matrix, error) {
	rows, cols := d.Dims()
	if cols != len(names) {
		return nil, fmt.Errorf("[FromDense] %d names for %d columns", len(names), cols)
	}
	m := NewMatrix(rows)
	for j, n := range names {
		if err := m.Append(n, mat64.Col(nil, j, d)); err != nil {
			return nil, err
		}
	}
	return m, nil
}
