// Package qa checks assembled designs before model fitting and reports
// multicollinearity diagnostics.
package qa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/KyungWonPark/FirstLevel/internal/contrast"
	"github.com/KyungWonPark/FirstLevel/internal/design"
	"github.com/KyungWonPark/FirstLevel/internal/exclusion"
)

// Failure thresholds.
const (
	// MaxPercentJunk is the largest accepted fraction of nuisance trials.
	MaxPercentJunk = 0.30
	// MinScanFraction is the smallest accepted run length relative to the
	// task's reference scan count.
	MinScanFraction = 0.5
)

// Indicator names written to the exclusion table.
const (
	ColPercentJunk = "percent_junk_gt_30"
	ColDeadColumns = "task_related_regressor_all_zeros"
)

// ErrNoScanCount is returned when the reference table lacks the task.
var ErrNoScanCount = errors.New("qa: no reference scan count for task")

// ScanColumn names the low scan count indicator for a reference count. The
// count keeps a decimal point so that whole averages read "300.0".
func ScanColumn(reference float64) string {
	s := strconv.FormatFloat(reference, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return "num_trs_lt_" + s
}

// Check is the outcome of one indicator. Value is "0" when it passed.
type Check struct {
	Name   string
	Value  string
	Failed bool
}

// Result is the outcome of a QA evaluation.
type Result struct {
	Key        string
	Checks     []Check
	AnyFail    bool
	BadColumns []string
}

// Record converts the result into an exclusion table row.
func (r Result) Record() exclusion.Record {
	rec := exclusion.Record{Key: r.Key, Values: map[string]string{}}
	for _, c := range r.Checks {
		rec.Columns = append(rec.Columns, c.Name)
		rec.Values[c.Name] = c.Value
	}
	return rec
}

// Failures returns the names of the failed checks.
func (r Result) Failures() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Failed {
			out = append(out, c.Name)
		}
	}
	return out
}

// Store persists failing results.
type Store interface {
	Append(exclusion.Record) error
}

// Gate evaluates designs against the reference scan counts and records
// failures in Store. A nil Store records nothing.
type Gate struct {
	ScanCounts map[string]float64
	Store      Store
	Log        *zap.Logger
}

// Input is one assembled run.
type Input struct {
	Subject     string
	Task        string
	Session     string
	Matrix      *design.Matrix
	Contrasts   contrast.Set
	PercentJunk float64
}

// DeadColumns returns the columns weighted by any contrast that are zero at
// every scan.
func DeadColumns(m *design.Matrix, cs contrast.Set) []string {
	var out []string
	for _, name := range cs.Referenced() {
		if m.AllZero(name) {
			out = append(out, name)
		}
	}
	return out
}

// Evaluate runs the junk rate, scan count and dead column checks.
func (g *Gate) Evaluate(in Input) (Result, error) {
	ref, ok := g.ScanCounts[in.Task]
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrNoScanCount, in.Task)
	}
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}

	res := Result{Key: exclusion.Key(in.Subject, in.Task, in.Session)}

	junk := Check{Name: ColPercentJunk, Value: exclusion.Pass}
	if in.PercentJunk > MaxPercentJunk {
		junk.Value = strconv.FormatFloat(in.PercentJunk, 'g', -1, 64)
		junk.Failed = true
	}

	scans, _ := in.Matrix.Dims()
	short := Check{Name: ScanColumn(ref), Value: exclusion.Pass}
	if float64(scans) < MinScanFraction*ref {
		short.Value = strconv.Itoa(scans)
		short.Failed = true
	}

	res.BadColumns = DeadColumns(in.Matrix, in.Contrasts)
	dead := Check{Name: ColDeadColumns, Value: exclusion.Pass}
	if len(res.BadColumns) > 0 {
		dead.Value = strings.Join(res.BadColumns, "_and_")
		dead.Failed = true
	}

	res.Checks = []Check{junk, short, dead}
	res.AnyFail = junk.Failed || short.Failed || dead.Failed

	fields := []zap.Field{
		zap.String("subject", in.Subject),
		zap.String("task", in.Task),
		zap.String("session", in.Session),
		zap.Float64("percent_junk", in.PercentJunk),
		zap.Int("scans", scans),
		zap.Strings("failures", res.Failures()),
	}
	if !res.AnyFail {
		log.Info("design passed QA", fields...)
		return res, nil
	}

	log.Warn("design failed QA", fields...)
	if g.Store != nil {
		if err := g.Store.Append(res.Record()); err != nil {
			return res, fmt.Errorf("[Evaluate] failed to record exclusion: %w", err)
		}
	}
	return res, nil
}
