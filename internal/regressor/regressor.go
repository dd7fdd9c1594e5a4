// Package regressor turns a selected subset of behavioral events into
// hemodynamic regressors sampled once per scan.
package regressor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/FirstLevel/internal/events"
	"github.com/KyungWonPark/FirstLevel/internal/hrf"
)

// DerivativeSuffix is appended to the name of a temporal derivative column.
const DerivativeSuffix = "_derivative"

// ErrMissingColumn is returned when an amplitude or duration source names a
// column that neither the events nor the attached label columns provide.
var ErrMissingColumn = errors.New("regressor: missing column")

// Source yields one value per event: a constant, or a named column.
type Source struct {
	Column string
	Value  float64
}

// Constant returns a source yielding v for every event.
func Constant(v float64) Source { return Source{Value: v} }

// Column returns a source reading the named column.
func Column(name string) Source { return Source{Column: name} }

func (s Source) String() string {
	if s.Column == "" {
		return fmt.Sprintf("constant(%g)", s.Value)
	}
	return s.Column
}

// Selector reports whether event i takes part in a regressor.
type Selector func(i int, e events.Event) bool

// All selects every event.
func All(int, events.Event) bool { return true }

// Spec describes one regressor.
type Spec struct {
	Name       string
	Select     Selector
	Amplitude  Source
	Duration   Source
	Demean     bool
	Derivative bool
}

// Frame is the scan sampling grid of one run.
type Frame struct {
	NScans int
	TR     float64
}

// Times returns the scan-center sampling times.
func (f Frame) Times() ([]float64, error) {
	return hrf.FrameTimes(f.NScans, f.TR)
}

// Built is a named regressor time course of length NScans.
type Built struct {
	Name   string
	Values []float64
}

// Columns resolves named per-event columns: label columns attached by the
// caller first, then numeric columns of the events themselves.
type Columns struct {
	Events *events.Events
	Extra  map[string][]float64
}

func (c Columns) lookup(s Source) ([]float64, error) {
	n := c.Events.Len()
	if s.Column == "" {
		out := make([]float64, n)
		for i := range out {
			out[i] = s.Value
		}
		return out, nil
	}
	if v, ok := c.Extra[s.Column]; ok {
		if len(v) != n {
			return nil, fmt.Errorf("regressor: column %q has %d values for %d events", s.Column, len(v), n)
		}
		return v, nil
	}
	v, err := c.Events.Float(s.Column)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, s.Column)
	}
	return v, nil
}

// Condition collects the onset/duration/amplitude triples of the events s
// selects. Events whose amplitude or duration is missing are left out.
func (c Columns) Condition(s Spec) (hrf.Condition, error) {
	amp, err := c.lookup(s.Amplitude)
	if err != nil {
		return hrf.Condition{}, fmt.Errorf("[%s] amplitude: %w", s.Name, err)
	}
	dur, err := c.lookup(s.Duration)
	if err != nil {
		return hrf.Condition{}, fmt.Errorf("[%s] duration: %w", s.Name, err)
	}

	sel := s.Select
	if sel == nil {
		sel = All
	}

	var cond hrf.Condition
	for i, e := range c.Events.Rows {
		if !sel(i, e) || math.IsNaN(amp[i]) || math.IsNaN(dur[i]) {
			continue
		}
		cond.Onsets = append(cond.Onsets, e.Onset)
		cond.Durations = append(cond.Durations, dur[i])
		cond.Amplitudes = append(cond.Amplitudes, amp[i])
	}

	if s.Demean && cond.Len() > 0 {
		mean := stat.Mean(cond.Amplitudes, nil)
		for i := range cond.Amplitudes {
			cond.Amplitudes[i] -= mean
		}
	}
	return cond, nil
}

// Build produces the regressor of s, followed by its derivative when
// requested. An empty selection yields all-zero columns.
func Build(c Columns, s Spec, f Frame) ([]Built, error) {
	frameTimes, err := f.Times()
	if err != nil {
		return nil, err
	}
	cond, err := c.Condition(s)
	if err != nil {
		return nil, err
	}

	model := hrf.SPM
	if s.Derivative {
		model = hrf.SPMDerivative
	}
	values, err := hrf.Compute(cond, model, frameTimes)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", s.Name, err)
	}

	out := []Built{{Name: s.Name, Values: values[0]}}
	if s.Derivative {
		out = append(out, Built{Name: s.Name + DerivativeSuffix, Values: values[1]})
	}
	return out, nil
}
