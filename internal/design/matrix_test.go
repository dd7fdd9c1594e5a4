package design

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixAppend(t *testing.T) {
	m := NewMatrix(3)
	require.NoError(t, m.Append("a", []float64{1, 2, 3}))
	require.NoError(t, m.Append("b", []float64{0, 0, 0}))

	assert.Error(t, m.Append("a", []float64{1, 1, 1}))
	assert.Error(t, m.Append("c", []float64{1, 1}))

	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
	assert.True(t, m.AllZero("b"))
	assert.False(t, m.AllZero("a"))
	assert.False(t, m.AllZero("missing"))
}

func TestMatrixDenseRoundTrip(t *testing.T) {
	m := NewMatrix(2)
	require.NoError(t, m.Append("x", []float64{1, 2}))
	require.NoError(t, m.Append("y", []float64{3, 4}))

	d := m.Dense()
	assert.Equal(t, 2.0, d.At(1, 0))
	assert.Equal(t, 3.0, d.At(0, 1))

	back, err := FromDense(m.Names(), d)
	require.NoError(t, err)
	col, ok := back.Column("y")
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4}, col)

	_, err = FromDense([]string{"x"}, d)
	assert.Error(t, err)
}

func TestMatrixSelectAndTable(t *testing.T) {
	m := NewMatrix(2)
	require.NoError(t, m.Append("x", []float64{1, 2.5}))
	require.NoError(t, m.Append("y", []float64{3, 4}))

	s, err := m.Select([]string{"y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, s.Names())

	_, err = m.Select([]string{"z"})
	assert.Error(t, err)

	tbl := m.Table()
	assert.Equal(t, []string{"x", "y"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "3"}, {"2.5", "4"}}, tbl.Rows)
}
