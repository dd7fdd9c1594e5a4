package calc

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEachVisitsEveryIndexOnce(t *testing.T) {
	p := Init(3)
	assert.Equal(t, 3, p.Workers())

	hits := make([]int32, 100)
	p.Each(len(hits), func(i int) { atomic.AddInt32(&hits[i], 1) })
	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}

	p.Each(0, func(int) { t.Fatal("no jobs expected") })
}

func TestInitDefaultsToCPUs(t *testing.T) {
	assert.Greater(t, Init(0).Workers(), 0)
}

func TestStats(t *testing.T) {
	mean, std, err := Init(2).Stats([][]float64{{1, 2, 3, 4}, {5, 5, 5, 5}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.5, 5}, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), std[0], 1e-12)
	assert.Zero(t, std[1])
}

func TestCorrelation(t *testing.T) {
	series := [][]float64{
		{1, 2, 3, 4, 5},
		{2, 4, 6, 8, 10},
		{5, 4, 3, 2, 1},
		{1, 1, 1, 1, 1},
	}
	c, err := Init(2).Correlation(series)
	require.NoError(t, err)

	r, cols := c.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 4, cols)

	assert.Equal(t, 1.0, c.At(0, 0))
	assert.InDelta(t, 1, c.At(0, 1), 1e-12)
	assert.InDelta(t, -1, c.At(0, 2), 1e-12)
	assert.InDelta(t, -1, c.At(2, 1), 1e-12)
	assert.True(t, math.IsNaN(c.At(3, 0)))
	assert.True(t, math.IsNaN(c.At(3, 3)))
}

func TestCorrelationRejectsRaggedInput(t *testing.T) {
	_, err := Init(1).Correlation([][]float64{{1, 2}, {1}})
	assert.Error(t, err)
	_, err = Init(1).Correlation(nil)
	assert.Error(t, err)
}
