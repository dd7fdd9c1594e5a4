// Package hrf convolves event lists with the canonical SPM hemodynamic
// response and samples the result at scan times.
package hrf

import (
	"errors"
	"fmt"
	"math"

	"github.com/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model selects the response kernels convolved with a condition.
type Model int

const (
	// SPM is the canonical double-gamma response.
	SPM Model = iota
	// SPMDerivative adds the temporal derivative of the canonical response.
	SPMDerivative
)

// Canonical response parameters.
const (
	Oversampling = 50
	TimeLength   = 32.0
	MinOnset     = -24.0

	delay       = 6.0
	undershoot  = 16.0
	dispersion  = 1.0
	uDispersion = 1.0
	ratio       = 0.167
	derivDelta  = 0.1
)

var (
	// ErrScans is returned when fewer than two scans are requested.
	ErrScans = errors.New("hrf: need at least two scans")
	// ErrTR is returned for a non-positive repetition time.
	ErrTR = errors.New("hrf: repetition time must be positive")
)

// gammaDifference is the SPM double-gamma kernel on a grid of step tr/oversampling.
func gammaDifference(tr float64, oversampling int, timeLength, onset float64) []float64 {
	dt := tr / float64(oversampling)
	n := int(math.Round(timeLength / dt))
	stamps := linspace(0, timeLength, n)

	peak := distuv.Gamma{Alpha: delay / dispersion, Beta: 1 / dispersion}
	under := distuv.Gamma{Alpha: undershoot / uDispersion, Beta: 1 / uDispersion}

	h := make([]float64, n)
	for i, t := range stamps {
		x := t - onset - dt
		if x <= 0 {
			continue
		}
		h[i] = peak.Prob(x) - ratio*under.Prob(x)
	}

	if sum := floats.Sum(h); sum != 0 {
		floats.Scale(1/sum, h)
	}
	return h
}

// Kernels returns the response kernels of a model at resolution tr/oversampling.
func Kernels(model Model, tr float64, oversampling int) [][]float64 {
	h := gammaDifference(tr, oversampling, TimeLength, 0)
	if model != SPMDerivative {
		return [][]float64{h}
	}

	shifted := gammaDifference(tr, oversampling, TimeLength, derivDelta)
	d := make([]float64, len(h))
	for i := range d {
		d[i] = (h[i] - shifted[i]) / derivDelta
	}
	return [][]float64{h, d}
}

// FrameTimes returns scan acquisition times at the middle of each TR.
func FrameTimes(nScans int, tr float64) ([]float64, error) {
	if nScans < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrScans, nScans)
	}
	if tr <= 0 || math.IsNaN(tr) {
		return nil, fmt.Errorf("%w: got %v", ErrTR, tr)
	}

	ft := make([]float64, nScans)
	for k := range ft {
		ft[k] = float64(k)*tr + tr/2
	}
	return ft, nil
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
