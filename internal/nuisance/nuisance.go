// Package nuisance labels behavioral trials as omission, commission,
// too-fast or not-applicable.
package nuisance

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/FirstLevel/internal/events"
)

// MinRT is the fastest plausible response latency in seconds.
const MinRT = 0.2

// Family selects which trials are eligible for error classification.
type Family int

const (
	// SingleResponse tasks classify every applicable trial.
	SingleResponse Family = iota
	// TwoPhase tasks skip the cue phase, which has no response.
	TwoPhase
	// GoNoGo tasks only classify go trials; withholding is correct elsewhere.
	GoNoGo
)

func (f Family) String() string {
	switch f {
	case SingleResponse:
		return "single-response"
	case TwoPhase:
		return "two-phase"
	case GoNoGo:
		return "go-nogo"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// CueTrialType is the cue phase of directed forgetting tasks.
const CueTrialType = "memory_cue"

// Rules is the classification rule set of one task.
type Rules struct {
	Family   Family
	GoLabels []string
	CueLabel string
}

var taskRules = map[string]Rules{
	"cuedTS":                        {Family: SingleResponse},
	"nBack":                         {Family: SingleResponse},
	"spatialTS":                     {Family: SingleResponse},
	"flanker":                       {Family: SingleResponse},
	"shapeMatching":                 {Family: SingleResponse},
	"directedForgetting":            {Family: TwoPhase, CueLabel: CueTrialType},
	"directedForgettingWFlanker":    {Family: TwoPhase, CueLabel: CueTrialType},
	"goNogo":                        {Family: GoNoGo, GoLabels: []string{"go"}},
	"stopSignal":                    {Family: GoNoGo, GoLabels: []string{"go"}},
	"stopSignalWDirectedForgetting": {Family: GoNoGo, GoLabels: []string{"go_pos", "go_neg", "go_con"}, CueLabel: CueTrialType},
	"stopSignalWFlanker":            {Family: GoNoGo, GoLabels: []string{"go_incongruent", "go_congruent"}},
}

// RulesFor returns the rule set of a task.
func RulesFor(task string) (Rules, error) {
	r, ok := taskRules[task]
	if !ok {
		return Rules{}, fmt.Errorf("nuisance: no classification rules for task %q", task)
	}
	return r, nil
}

// IsGo reports whether a trial type is one of the task's go labels.
func (r Rules) IsGo(trialType string) bool {
	for _, g := range r.GoLabels {
		if g == trialType {
			return true
		}
	}
	return false
}

// Eligible reports whether omission/commission/too-fast checks apply to e.
func (r Rules) Eligible(e events.Event, na bool) bool {
	if na {
		return false
	}
	switch r.Family {
	case TwoPhase:
		return e.TrialType != r.CueLabel
	case GoNoGo:
		return r.IsGo(e.TrialType)
	}
	return true
}

// Labels are per-event nuisance flags aligned with the event sequence.
type Labels struct {
	Omission   []bool
	Commission []bool
	RTFast     []bool
	NA         []bool
	Bad        []bool
}

// Names of the label columns as attached to an augmented event table.
const (
	ColOmission   = "omission"
	ColCommission = "commission"
	ColRTFast     = "rt_fast"
	ColJunkTrials = "junk_trials"
)

// NotApplicable reports the not-applicable flag of each event: a na_trials
// column when the file has one, else the "na" trial type.
func NotApplicable(ev *events.Events) []bool {
	na := make([]bool, ev.Len())
	col, err := ev.Float(events.ColNATrials)
	for i, e := range ev.Rows {
		if err == nil {
			na[i] = col[i] == 1
			continue
		}
		na[i] = e.TrialType == events.NATrialType
	}
	return na
}

// Classify labels every event of ev under rules r.
func Classify(ev *events.Events, r Rules) Labels {
	n := ev.Len()
	l := Labels{
		Omission:   make([]bool, n),
		Commission: make([]bool, n),
		RTFast:     make([]bool, n),
		NA:         NotApplicable(ev),
		Bad:        make([]bool, n),
	}

	for i, e := range ev.Rows {
		if !r.Eligible(e, l.NA[i]) {
			continue
		}
		rt := e.ResponseTime
		hasRT := !math.IsNaN(rt)

		l.Omission[i] = !e.Responded()
		l.Commission[i] = e.Responded() && !e.Correct() && hasRT && rt >= MinRT
		l.RTFast[i] = hasRT && rt < MinRT
		l.Bad[i] = l.Omission[i] || l.Commission[i] || l.RTFast[i]
	}
	return l
}

// PercentJunk is the fraction of all events flagged as any nuisance type.
func (l Labels) PercentJunk() float64 {
	if len(l.Bad) == 0 {
		return 0
	}
	var bad int
	for _, b := range l.Bad {
		if b {
			bad++
		}
	}
	return float64(bad) / float64(len(l.Bad))
}

// Columns returns the labels as 0/1 float columns keyed by column name.
func (l Labels) Columns() map[string][]float64 {
	return map[string][]float64{
		ColOmission:        indicator(l.Omission),
		ColCommission:      indicator(l.Commission),
		ColRTFast:          indicator(l.RTFast),
		ColJunkTrials:      indicator(l.Bad),
		events.ColNATrials: indicator(l.NA),
	}
}

// ColumnOrder is the order label columns are attached to an event table.
var ColumnOrder = []string{ColJunkTrials, ColOmission, ColCommission, ColRTFast}

func indicator(b []bool) []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		if v {
			out[i] = 1
		}
	}
	return out
}
