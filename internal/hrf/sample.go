package hrf

import (
	"fmt"
	"math"
	"sort"
)

// Condition is an event list of onsets, durations and amplitudes in seconds.
type Condition struct {
	Onsets     []float64
	Durations  []float64
	Amplitudes []float64
}

// Len returns the number of events in the condition.
func (c Condition) Len() int { return len(c.Onsets) }

func (c Condition) validate() error {
	if len(c.Durations) != len(c.Onsets) || len(c.Amplitudes) != len(c.Onsets) {
		return fmt.Errorf("[Condition] onsets, durations and amplitudes differ in length: %d, %d, %d",
			len(c.Onsets), len(c.Durations), len(c.Amplitudes))
	}
	return nil
}

// highResolution places boxcar edges of the condition on an oversampled time
// grid. It returns the signed edge impulses and the grid.
func highResolution(c Condition, frameTimes []float64, oversampling int) ([]float64, []float64) {
	n := len(frameTimes)
	first, last := frameTimes[0], frameTimes[n-1]
	stop := last * (1 + 1/float64(n-1))

	nHR := float64(n-1)/(last-first)*(stop-first-MinOnset)*float64(oversampling) + 1
	grid := linspace(first+MinOnset, stop, int(math.Round(nHR)))

	tmax := len(grid)
	impulses := make([]float64, tmax)
	for i, onset := range c.Onsets {
		on := sort.SearchFloat64s(grid, onset)
		if on > tmax-1 {
			on = tmax - 1
		}
		impulses[on] += c.Amplitudes[i]

		off := sort.SearchFloat64s(grid, onset+c.Durations[i])
		if off > tmax-1 {
			off = tmax - 1
		}
		if off < tmax-1 && off == on {
			off++
		}
		impulses[off] -= c.Amplitudes[i]
	}
	return impulses, grid
}

// convolveEdges convolves the cumulative sum of impulses with kernel,
// truncated to the length of impulses.
func convolveEdges(impulses, kernel []float64) []float64 {
	step := make([]float64, len(kernel))
	var acc float64
	for k, v := range kernel {
		acc += v
		step[k] = acc
	}

	out := make([]float64, len(impulses))
	for j, a := range impulses {
		if a == 0 {
			continue
		}
		for t := j; t < len(out); t++ {
			m := t - j
			if m >= len(step) {
				m = len(step) - 1
			}
			out[t] += a * step[m]
		}
	}
	return out
}

// interpolate linearly resamples y, defined on grid xs, at points at.
func interpolate(xs, y, at []float64) []float64 {
	out := make([]float64, len(at))
	last := len(xs) - 1
	for i, x := range at {
		j := sort.SearchFloat64s(xs, x)
		switch {
		case j <= 0:
			out[i] = y[0]
		case j > last:
			out[i] = y[last]
		default:
			w := (x - xs[j-1]) / (xs[j] - xs[j-1])
			out[i] = y[j-1] + w*(y[j]-y[j-1])
		}
	}
	return out
}

// orthogonalize removes from every column its projection on the columns
// before it.
func orthogonalize(cols [][]float64) {
	for i := 1; i < len(cols); i++ {
		for j := 0; j < i; j++ {
			var dot, norm float64
			for k := range cols[j] {
				dot += cols[i][k] * cols[j][k]
				norm += cols[j][k] * cols[j][k]
			}
			if norm == 0 {
				continue
			}
			f := dot / norm
			for k := range cols[i] {
				cols[i][k] -= f * cols[j][k]
			}
		}
	}
}

// Compute convolves condition c with the kernels of model and samples the
// result at frameTimes. It returns one column per kernel; the derivative
// column is orthogonal to the main one. An empty condition yields zeros.
func Compute(c Condition, model Model, frameTimes []float64) ([][]float64, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if len(frameTimes) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrScans, len(frameTimes))
	}
	// average spacing over the run, as used for the kernel resolution
	tr := frameTimes[len(frameTimes)-1] / float64(len(frameTimes)-1)
	if tr <= 0 || frameTimes[len(frameTimes)-1] <= frameTimes[0] {
		return nil, fmt.Errorf("%w: got %v", ErrTR, tr)
	}

	impulses, grid := highResolution(c, frameTimes, Oversampling)
	kernels := Kernels(model, tr, Oversampling)

	cols := make([][]float64, len(kernels))
	for i, h := range kernels {
		cols[i] = interpolate(grid, convolveEdges(impulses, h), frameTimes)
	}
	orthogonalize(cols)
	return cols, nil
}
