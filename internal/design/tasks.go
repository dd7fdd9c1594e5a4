package design

import (
	"errors"
	"fmt"
	"sort"

	"github.com/KyungWonPark/FirstLevel/internal/contrast"
	"github.com/KyungWonPark/FirstLevel/internal/nuisance"
)

// ErrUnknownTask is returned for a task without a design definition.
var ErrUnknownTask = errors.New("design: unknown task")

// DurationKind selects the duration of a condition's events.
type DurationKind int

const (
	// PolicyDuration follows the design's duration policy.
	PolicyDuration DurationKind = iota
	// UnitDuration is always one second.
	UnitDuration
	// EventDuration uses the duration column of the events file.
	EventDuration
)

// Condition defines one condition regressor.
type Condition struct {
	Name      string
	TrialType string
	// Where adds numeric equality filters on auxiliary event columns.
	Where map[string]float64
	// Correct requires a correct response no faster than the minimum RT.
	Correct  bool
	Duration DurationKind
	// Trailing places the column after the confounds.
	Trailing bool
	// NoBaseline leaves the condition out of the task-baseline contrast.
	NoBaseline bool
}

// Task is the declarative design of one task.
type Task struct {
	Name  string
	Rules nuisance.Rules
	// NuisancePrefix is prepended to the omission, commission and rt_fast names.
	NuisancePrefix string
	// HonorJunk drops events flagged junk upstream from condition and
	// nuisance regressors and adds a junk regressor.
	HonorJunk bool
	// JunkNA keeps not-applicable trials in the junk regressor.
	JunkNA bool
	// NARegressor adds a regressor of not-applicable trials.
	NARegressor bool
	Conditions  []Condition
	Contrasts   contrast.Set
}

func correct(name string) Condition {
	return Condition{Name: name, TrialType: name, Correct: true}
}

func trialOnly(name string) Condition {
	return Condition{Name: name, TrialType: name}
}

var memoryAndCue = Condition{Name: "memory_and_cue", TrialType: nuisance.CueTrialType, Duration: EventDuration, Trailing: true}

func contrasts(pairs ...string) contrast.Set {
	s := make(contrast.Set, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		s = append(s, contrast.MustParse(pairs[i], pairs[i+1]))
	}
	return s
}

func rules(task string) nuisance.Rules {
	r, err := nuisance.RulesFor(task)
	if err != nil {
		panic(err)
	}
	return r
}

var cueSwitchConditions = []Condition{
	{Name: "task_stay_cue_switch", TrialType: "tstay_cswitch", Correct: true},
	{Name: "task_stay_cue_stay", TrialType: "tstay_cstay", Correct: true},
	{Name: "task_switch_cue_switch", TrialType: "tswitch_cswitch", Correct: true},
}

var cueSwitchContrasts = contrasts(
	"task_switch_cost", "task_switch_cue_switch-task_stay_cue_switch",
	"cue_switch_cost", "task_stay_cue_switch-task_stay_cue_stay",
)

var tasks = map[string]Task{
	"cuedTS": {
		Rules:       rules("cuedTS"),
		HonorJunk:   true,
		NARegressor: true,
		Conditions:  cueSwitchConditions,
		Contrasts:   cueSwitchContrasts,
	},
	"spatialTS": {
		Rules:       rules("spatialTS"),
		NARegressor: true,
		Conditions:  cueSwitchConditions,
		Contrasts:   cueSwitchContrasts,
	},
	"directedForgetting": {
		Rules:      rules("directedForgetting"),
		Conditions: []Condition{correct("con"), correct("pos"), correct("neg"), memoryAndCue},
		Contrasts:  contrasts("neg-con", "neg-con"),
	},
	"flanker": {
		Rules:      rules("flanker"),
		Conditions: []Condition{correct("congruent"), correct("incongruent")},
		Contrasts:  contrasts("incongruent - congruent", "incongruent - congruent"),
	},
	"goNogo": {
		Rules:          rules("goNogo"),
		NuisancePrefix: "go_",
		HonorJunk:      true,
		JunkNA:         true,
		Conditions: []Condition{
			correct("go"),
			trialOnly("nogo_success"),
			{Name: "nogo_failure", TrialType: "nogo_failure", Duration: UnitDuration, NoBaseline: true},
		},
		Contrasts: contrasts(
			"go", "go",
			"nogo_success", "nogo_success",
			"nogo_success-go", "nogo_success-go",
		),
	},
	"nBack": {
		Rules:       rules("nBack"),
		NARegressor: true,
		Conditions: []Condition{
			{Name: "mismatch_1back", TrialType: "mismatch", Where: map[string]float64{"delay": 1}, Correct: true},
			{Name: "match_1back", TrialType: "match", Where: map[string]float64{"delay": 1}, Correct: true},
			{Name: "mismatch_2back", TrialType: "mismatch", Where: map[string]float64{"delay": 2}, Correct: true},
			{Name: "match_2back", TrialType: "match", Where: map[string]float64{"delay": 2}, Correct: true},
		},
		Contrasts: contrasts(
			"twoBack-oneBack", "mismatch_2back + match_2back - mismatch_1back - match_1back",
			"match - mismatch", "match_2back + match_1back - mismatch_2back - mismatch_1back",
		),
	},
	"shapeMatching": {
		Rules: rules("shapeMatching"),
		Conditions: []Condition{
			correct("SSS"), correct("SDD"), correct("SNN"), correct("DSD"),
			correct("DDD"), correct("DDS"), correct("DNN"),
		},
		Contrasts: contrasts(
			"main_vars", "1/3*(SDD+DDD+DDS)-1/2*(SNN+DNN)",
			"SSS", "SSS",
			"SDD", "SDD",
			"SNN", "SNN",
			"DSD", "DSD",
			"DDD", "DDD",
			"DDS", "DDS",
			"DNN", "DNN",
		),
	},
	"stopSignal": {
		Rules:          rules("stopSignal"),
		NuisancePrefix: "go_",
		Conditions:     []Condition{correct("go"), trialOnly("stop_success"), trialOnly("stop_failure")},
		Contrasts: contrasts(
			"go", "go",
			"stop_success", "stop_success",
			"stop_failure", "stop_failure",
			"stop_success-go", "stop_success-go",
			"stop_failure-go", "stop_failure-go",
			"stop_success-stop_failure", "stop_success-stop_failure",
			"stop_failure-stop_success", "stop_failure-stop_success",
		),
	},
	"directedForgettingWFlanker": {
		Rules: rules("directedForgettingWFlanker"),
		Conditions: []Condition{
			correct("incongruent_con"), correct("incongruent_pos"), correct("incongruent_neg"),
			correct("congruent_con"), correct("congruent_pos"), correct("congruent_neg"),
			memoryAndCue,
		},
		Contrasts: contrasts(
			"congruent_neg-congruent_con", "congruent_neg-congruent_con",
			"incongruent_con-congruent_con", "incongruent_con-congruent_con",
			"(incongruent_neg-incongruent_con)-(congruent_neg-congruent_con)", "(incongruent_neg+congruent_con) -(incongruent_con+congruent_neg)",
			"congruent_pos", "congruent_pos",
			"congruent_neg", "congruent_neg",
			"congruent_con", "congruent_con",
			"incongruent_pos", "incongruent_pos",
			"incongruent_neg", "incongruent_neg",
			"incongruent_con", "incongruent_con",
		),
	},
	"stopSignalWDirectedForgetting": {
		Rules:          rules("stopSignalWDirectedForgetting"),
		NuisancePrefix: "go_",
		Conditions: []Condition{
			correct("go_pos"), correct("go_neg"), correct("go_con"),
			trialOnly("stop_success_pos"), trialOnly("stop_success_neg"), trialOnly("stop_success_con"),
			trialOnly("stop_failure_pos"), trialOnly("stop_failure_neg"), trialOnly("stop_failure_con"),
			memoryAndCue,
		},
		Contrasts: contrasts(
			"(stop_success_con+stop_success_pos+stop_success_neg)-(go_con+go_pos+go_neg)", "(stop_success_con+stop_success_pos+stop_success_neg) - (go_con+go_pos+go_neg)",
			"(stop_failure_con+stop_failure_pos+stop_failure_neg)-(go_con+go_pos+go_neg)", "(stop_failure_con+stop_failure_pos+stop_failure_neg) - (go_con+go_pos+go_neg)",
			"(stop_success_neg-go_neg)-(stop_success_con-go_con)", "(stop_success_neg-go_neg)-(stop_success_con-go_con)",
			"(stop_failure_neg-go_neg)-(stop_failure_con-go_con)", "(stop_failure_neg-go_neg)-(stop_failure_con-go_con)",
			"go_neg-go_con", "go_neg-go_con",
			"go_pos", "go_pos",
			"go_neg", "go_neg",
			"go_con", "go_con",
			"stop_success_pos", "stop_success_pos",
			"stop_success_neg", "stop_success_neg",
			"stop_success_con", "stop_success_con",
			"stop_failure_pos", "stop_failure_pos",
			"stop_failure_neg", "stop_failure_neg",
			"stop_failure_con", "stop_failure_con",
		),
	},
	"stopSignalWFlanker": {
		Rules:          rules("stopSignalWFlanker"),
		NuisancePrefix: "go_",
		Conditions: []Condition{
			correct("go_incongruent"), correct("go_congruent"),
			trialOnly("stop_success_incongruent"), trialOnly("stop_success_congruent"),
			trialOnly("stop_failure_incongruent"), trialOnly("stop_failure_congruent"),
		},
		Contrasts: contrasts(
			"(stop_success_congruent+stop_success_incongruent)-(go_congruent+go_incongruent)", "(stop_success_congruent+stop_success_incongruent)-(go_congruent+go_incongruent)",
			"(stop_failure_congruent+stop_failure_incongruent)-(go_congruent+go_incongruent)", "(stop_failure_congruent+stop_failure_incongruent)-(go_congruent+go_incongruent)",
			"(stop_success_incongruent-go_incongruent)-(stop_success_congruent-go_congruent)", "(stop_success_incongruent-go_incongruent)-(stop_success_congruent-go_congruent)",
			"(stop_failure_incongruent-go_incongruent)-(stop_failure_congruent-go_congruent)", "(stop_failure_incongruent-go_incongruent)-(stop_failure_congruent-go_congruent)",
			"go_incongruent-go_congruent", "go_incongruent-go_congruent",
			"go_congruent", "go_congruent",
			"go_incongruent", "go_incongruent",
			"stop_success_congruent", "stop_success_congruent",
			"stop_success_incongruent", "stop_success_incongruent",
			"stop_failure_congruent", "stop_failure_congruent",
			"stop_failure_incongruent", "stop_failure_incongruent",
		),
	},
}

// BaselineContrast is the name of the equal-weight average of all conditions.
const BaselineContrast = "task-baseline"

// ResponseTimeColumn names the response-time regressor and its contrast.
const ResponseTimeColumn = "response_time"

// Lookup returns the design definition of a task.
func Lookup(task string) (Task, error) {
	t, ok := tasks[task]
	if !ok {
		return Task{}, fmt.Errorf("%w %q", ErrUnknownTask, task)
	}
	t.Name = task
	return t, nil
}

// Tasks returns every task with a design definition, sorted.
func Tasks() []string {
	out := make([]string, 0, len(tasks))
	for name := range tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Baseline returns the task-baseline contrast: the equal-weight average of
// every condition not marked NoBaseline.
func (t Task) Baseline() contrast.Contrast {
	var in []string
	for _, c := range t.Conditions {
		if !c.NoBaseline {
			in = append(in, c.Name)
		}
	}
	terms := make([]contrast.Term, len(in))
	expr := fmt.Sprintf("1/%d*(", len(in))
	for i, name := range in {
		terms[i] = contrast.Term{Column: name, Weight: 1 / float64(len(in))}
		if i > 0 {
			expr += "+"
		}
		expr += name
	}
	return contrast.Contrast{Name: BaselineContrast, Expr: expr + ")", Terms: terms}
}

// AllContrasts returns the task contrasts followed by task-baseline and,
// when rt is set, the response-time contrast.
func (t Task) AllContrasts(rt bool) contrast.Set {
	out := append(contrast.Set(nil), t.Contrasts...)
	out = append(out, t.Baseline())
	if rt {
		out = append(out, contrast.MustParse(ResponseTimeColumn, ResponseTimeColumn))
	}
	return out
}

// NuisanceNames returns the omission, commission and rt_fast column names.
func (t Task) NuisanceNames() (string, string, string) {
	return t.NuisancePrefix + nuisance.ColOmission, t.NuisancePrefix + nuisance.ColCommission, t.NuisancePrefix + nuisance.ColRTFast
}
