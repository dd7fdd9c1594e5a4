package hrf

import (
	"testing"

	"github.com/gonum/floats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

func TestKernelIsNormalized(t *testing.T) {
	for _, tr := range []float64{0.68, 1, 2} {
		k := Kernels(SPM, tr, Oversampling)
		require.Len(t, k, 1)
		assert.InDelta(t, 1, floats.Sum(k[0]), 1e-9, "tr=%v", tr)
	}
}

func TestKernelPeaksNearFiveSeconds(t *testing.T) {
	tr := 1.0
	dt := tr / Oversampling
	k := Kernels(SPM, tr, Oversampling)[0]

	peak := float64(argmax(k)) * dt
	assert.InDelta(t, 5, peak, 0.5)
}

func TestDerivativeKernel(t *testing.T) {
	k := Kernels(SPMDerivative, 1, Oversampling)
	require.Len(t, k, 2)
	assert.Equal(t, len(k[0]), len(k[1]))
	assert.InDelta(t, 0, floats.Sum(k[1]), 1e-6)
}

func TestFrameTimes(t *testing.T) {
	ft, err := FrameTimes(3, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5}, ft)

	_, err = FrameTimes(1, 2)
	assert.ErrorIs(t, err, ErrScans)

	_, err = FrameTimes(10, 0)
	assert.ErrorIs(t, err, ErrTR)
}

func TestComputeEmptyConditionIsZero(t *testing.T) {
	ft, err := FrameTimes(40, 1)
	require.NoError(t, err)

	cols, err := Compute(Condition{}, SPMDerivative, ft)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	for _, c := range cols {
		assert.Len(t, c, 40)
		for _, v := range c {
			assert.Zero(t, v)
		}
	}
}

func TestComputeSingleEvent(t *testing.T) {
	ft, err := FrameTimes(60, 1)
	require.NoError(t, err)

	c := Condition{Onsets: []float64{10}, Durations: []float64{1}, Amplitudes: []float64{1}}
	cols, err := Compute(c, SPMDerivative, ft)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Len(t, cols[0], 60)

	peak := ft[argmax(cols[0])]
	assert.True(t, peak > 13 && peak < 18, "peak at %v", peak)
	assert.InDelta(t, 0, cols[0][0], 1e-12)

	// derivative is orthogonal to the main regressor
	dot := floats.Dot(cols[0], cols[1])
	assert.InDelta(t, 0, dot/floats.Norm(cols[0], 2), 1e-9)
}

func TestComputeIsLinearInAmplitude(t *testing.T) {
	ft, err := FrameTimes(50, 2)
	require.NoError(t, err)

	one, err := Compute(Condition{Onsets: []float64{4, 30}, Durations: []float64{2, 2}, Amplitudes: []float64{1, 1}}, SPM, ft)
	require.NoError(t, err)
	two, err := Compute(Condition{Onsets: []float64{4, 30}, Durations: []float64{2, 2}, Amplitudes: []float64{2, 2}}, SPM, ft)
	require.NoError(t, err)

	for i := range one[0] {
		assert.InDelta(t, 2*one[0][i], two[0][i], 1e-9)
	}
}

func TestComputeZeroDurationStillResponds(t *testing.T) {
	ft, err := FrameTimes(30, 1)
	require.NoError(t, err)

	cols, err := Compute(Condition{Onsets: []float64{5}, Durations: []float64{0}, Amplitudes: []float64{1}}, SPM, ft)
	require.NoError(t, err)
	assert.Greater(t, floats.Max(cols[0]), 0.0)
}

func TestComputeRejectsRaggedCondition(t *testing.T) {
	ft, err := FrameTimes(10, 1)
	require.NoError(t, err)

	_, err = Compute(Condition{Onsets: []float64{1, 2}, Durations: []float64{1}, Amplitudes: []float64{1, 1}}, SPM, ft)
	assert.Error(t, err)

	_, err = Compute(Condition{}, SPM, []float64{0.5})
	assert.ErrorIs(t, err, ErrScans)
}
