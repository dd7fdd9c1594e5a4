// Package design assembles first-level GLM design matrices and contrasts
// from behavioral events and confounds, driven by a per-task table.
package design

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/FirstLevel/internal/confounds"
	"github.com/KyungWonPark/FirstLevel/internal/contrast"
	"github.com/KyungWonPark/FirstLevel/internal/events"
	"github.com/KyungWonPark/FirstLevel/internal/io"
	"github.com/KyungWonPark/FirstLevel/internal/nuisance"
	"github.com/KyungWonPark/FirstLevel/internal/regressor"
)

// ErrNoMeanRT is returned when centering response times for a task missing
// from the mean-RT table.
var ErrNoMeanRT = errors.New("design: no mean response time for task")

// DurationPolicy selects the duration of condition events.
type DurationPolicy int

const (
	// ConstantDuration models every condition event as one second long.
	ConstantDuration DurationPolicy = iota
	// MeanRTDuration uses the mean of the run's valid response times.
	MeanRTDuration
)

// ParseDurationPolicy accepts "constant" and "mean_rt".
func ParseDurationPolicy(s string) (DurationPolicy, error) {
	switch s {
	case "constant", "constant_1":
		return ConstantDuration, nil
	case "mean_rt":
		return MeanRTDuration, nil
	}
	return 0, fmt.Errorf("design: unknown duration policy %q", s)
}

func (p DurationPolicy) String() string {
	if p == MeanRTDuration {
		return "mean_rt"
	}
	return "constant"
}

// RTPolicy selects whether and how a response-time regressor is added.
type RTPolicy int

const (
	// NoRT adds no response-time regressor.
	NoRT RTPolicy = iota
	// RTCentered subtracts the task's grand mean response time.
	RTCentered
	// RTUncentered uses raw response times.
	RTUncentered
)

// ParseRTPolicy accepts "no_rt", "rt_centered" and "rt_uncentered".
func ParseRTPolicy(s string) (RTPolicy, error) {
	switch s {
	case "no_rt":
		return NoRT, nil
	case "rt_centered":
		return RTCentered, nil
	case "rt_uncentered":
		return RTUncentered, nil
	}
	return 0, fmt.Errorf("design: unknown response time policy %q", s)
}

func (p RTPolicy) String() string {
	switch p {
	case RTCentered:
		return "rt_centered"
	case RTUncentered:
		return "rt_uncentered"
	}
	return "no_rt"
}

// ColCenteredRT is the event column holding response times minus the task mean.
const ColCenteredRT = "response_time_centered"

// Options configure one assembly.
type Options struct {
	Frame      regressor.Frame
	Duration   DurationPolicy
	Derivative bool
	RT         RTPolicy
	// MeanRT maps task names to grand mean response times, used by RTCentered.
	MeanRT map[string]float64
}

// Result is an assembled design.
type Result struct {
	Task        string
	Matrix      *Matrix
	Contrasts   contrast.Set
	PercentJunk float64
	Labels      nuisance.Labels
	// ConditionDuration is the duration given to condition events.
	ConditionDuration float64
	// Events is the event table with nuisance label columns attached.
	Events *io.Table
}

type assembler struct {
	task   Task
	opt    Options
	ev     *events.Events
	labels nuisance.Labels
	cols   regressor.Columns
	m      *Matrix
}

func (a *assembler) add(s regressor.Spec) error {
	s.Derivative = a.opt.Derivative
	built, err := regressor.Build(a.cols, s, a.opt.Frame)
	if err != nil {
		return err
	}
	for _, c := range built {
		if err := a.m.Append(c.Name, c.Values); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) junkOK(e events.Event) bool {
	return !a.task.HonorJunk || e.Junk == 0
}

func validResponse(e events.Event) bool {
	return e.Responded() && e.Correct() && !math.IsNaN(e.ResponseTime) && e.ResponseTime >= nuisance.MinRT
}

// validRT selects correct, applicable responses no faster than the minimum RT.
func (a *assembler) validRT(i int, e events.Event) bool {
	return a.task.Rules.Eligible(e, a.labels.NA[i]) && validResponse(e) && a.junkOK(e)
}

func (a *assembler) conditionSelector(c Condition) (regressor.Selector, error) {
	where := make(map[string][]float64, len(c.Where))
	for name := range c.Where {
		v, err := a.ev.Float(name)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w %q", c.Name, regressor.ErrMissingColumn, name)
		}
		where[name] = v
	}

	return func(i int, e events.Event) bool {
		if e.TrialType != c.TrialType || !a.junkOK(e) {
			return false
		}
		if c.Correct && !validResponse(e) {
			return false
		}
		for name, want := range c.Where {
			if where[name][i] != want {
				return false
			}
		}
		return true
	}, nil
}

func (a *assembler) condition(c Condition, duration float64) error {
	sel, err := a.conditionSelector(c)
	if err != nil {
		return err
	}

	d := regressor.Constant(duration)
	switch c.Duration {
	case UnitDuration:
		d = regressor.Constant(1)
	case EventDuration:
		d = regressor.Column(events.ColDuration)
	}
	return a.add(regressor.Spec{Name: c.Name, Select: sel, Amplitude: regressor.Constant(1), Duration: d})
}

func (a *assembler) flagged(name string, flags []bool) error {
	return a.add(regressor.Spec{
		Name:      name,
		Select:    func(i int, e events.Event) bool { return flags[i] && a.junkOK(e) },
		Amplitude: regressor.Constant(1),
		Duration:  regressor.Constant(1),
	})
}

// meanValidRT is the mean response time over the valid subset, 1 when empty.
func (a *assembler) meanValidRT() float64 {
	var rts []float64
	for i, e := range a.ev.Rows {
		if a.validRT(i, e) {
			rts = append(rts, e.ResponseTime)
		}
	}
	if len(rts) == 0 {
		return 1
	}
	return stat.Mean(rts, nil)
}

// Assemble builds the design matrix, contrasts and percent junk of one run.
// conf may be nil.
func Assemble(task string, ev *events.Events, conf *confounds.Set, opt Options) (*Result, error) {
	t, err := Lookup(task)
	if err != nil {
		return nil, err
	}
	if _, err := opt.Frame.Times(); err != nil {
		return nil, err
	}
	if conf.Len() > 0 && conf.Rows() != opt.Frame.NScans {
		return nil, fmt.Errorf("design: confounds have %d rows, run has %d scans", conf.Rows(), opt.Frame.NScans)
	}

	labels := nuisance.Classify(ev, t.Rules)
	extra := labels.Columns()
	a := &assembler{
		task:   t,
		opt:    opt,
		ev:     ev,
		labels: labels,
		cols:   regressor.Columns{Events: ev, Extra: extra},
		m:      NewMatrix(opt.Frame.NScans),
	}

	duration := 1.0
	if opt.Duration == MeanRTDuration {
		duration = a.meanValidRT()
	}

	rtAmplitude := regressor.Column(events.ColResponseTime)
	if opt.RT == RTCentered {
		mean, ok := opt.MeanRT[task]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrNoMeanRT, task)
		}
		centered := make([]float64, ev.Len())
		for i, e := range ev.Rows {
			centered[i] = e.ResponseTime - mean
		}
		extra[ColCenteredRT] = centered
		rtAmplitude = regressor.Column(ColCenteredRT)
	}

	for _, c := range t.Conditions {
		if c.Trailing {
			continue
		}
		if err := a.condition(c, duration); err != nil {
			return nil, err
		}
	}

	omission, commission, rtFast := t.NuisanceNames()
	if err := a.flagged(omission, labels.Omission); err != nil {
		return nil, err
	}
	if err := a.flagged(commission, labels.Commission); err != nil {
		return nil, err
	}
	if err := a.flagged(rtFast, labels.RTFast); err != nil {
		return nil, err
	}
	if t.NARegressor {
		err := a.add(regressor.Spec{
			Name:      events.ColNATrials,
			Select:    func(i int, _ events.Event) bool { return labels.NA[i] },
			Amplitude: regressor.Constant(1),
			Duration:  regressor.Constant(1),
		})
		if err != nil {
			return nil, err
		}
	}

	for j := 0; j < conf.Len(); j++ {
		if err := a.m.Append(conf.Names[j], conf.Columns[j]); err != nil {
			return nil, err
		}
	}

	for _, c := range t.Conditions {
		if !c.Trailing {
			continue
		}
		if err := a.condition(c, duration); err != nil {
			return nil, err
		}
	}
	if t.HonorJunk {
		err := a.add(regressor.Spec{
			Name:      events.ColJunk,
			Select:    func(i int, e events.Event) bool { return e.Junk != 0 && (t.JunkNA || !labels.NA[i]) },
			Amplitude: regressor.Column(events.ColJunk),
			Duration:  regressor.Constant(1),
		})
		if err != nil {
			return nil, err
		}
	}

	if opt.RT != NoRT {
		err := a.add(regressor.Spec{
			Name:      ResponseTimeColumn,
			Select:    a.validRT,
			Amplitude: rtAmplitude,
			Duration:  regressor.Constant(duration),
		})
		if err != nil {
			return nil, err
		}
	}

	cs := t.AllContrasts(opt.RT != NoRT)
	if _, err := cs.Matrix(a.m.Names()); err != nil {
		return nil, err
	}

	order := append([]string(nil), nuisance.ColumnOrder...)
	if !ev.Has(events.ColNATrials) {
		order = append(order, events.ColNATrials)
	}
	if _, ok := extra[ColCenteredRT]; ok {
		order = append(order, ColCenteredRT)
	}

	return &Result{
		Task:              task,
		Matrix:            a.m,
		Contrasts:         cs,
		PercentJunk:       labels.PercentJunk(),
		Labels:            labels,
		ConditionDuration: duration,
		Events:            ev.Table(extra, order),
	}, nil
}
