package reference

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/FirstLevel/internal/calc"
	"github.com/KyungWonPark/FirstLevel/internal/events"
	"github.com/KyungWonPark/FirstLevel/internal/nuisance"
)

// stopFamily reports whether a task contains stop trials, whose failed
// stops count toward the grand mean response time.
func stopFamily(task string) bool {
	return strings.Contains(task, "stopSignal")
}

// counted reports whether an event enters the grand mean response time.
func counted(task string, e events.Event) bool {
	rt := e.ResponseTime
	if math.IsNaN(rt) || rt < nuisance.MinRT || e.Junk != 0 {
		return false
	}
	if stopFamily(task) {
		if strings.Contains(e.TrialType, "stop_failure") {
			return true
		}
		return strings.Contains(e.TrialType, "go") && e.Correct()
	}
	return e.Correct() && e.TrialType != events.NATrialType
}

// RunMeanRT is the mean response time of one run's counted events. It
// reports false when no event counts.
func RunMeanRT(task string, ev *events.Events) (float64, bool) {
	var rts []float64
	for _, e := range ev.Rows {
		if counted(task, e) {
			rts = append(rts, e.ResponseTime)
		}
	}
	if len(rts) == 0 {
		return 0, false
	}
	return stat.Mean(rts, nil), true
}

// MeanRT is the mean of per-run mean response times over the event files
// of a task. Runs without a counted event are left out.
func MeanRT(task string, paths []string, p *calc.PipeLine) (float64, error) {
	means := make([]float64, len(paths))
	ok := make([]bool, len(paths))
	errs := make([]error, len(paths))

	p.Each(len(paths), func(i int) {
		ev, err := events.Read(paths[i])
		if err != nil {
			errs[i] = err
			return
		}
		means[i], ok[i] = RunMeanRT(task, ev)
	})

	var kept []float64
	for i := range paths {
		if errs[i] != nil {
			return 0, fmt.Errorf("[MeanRT] %w", errs[i])
		}
		if ok[i] {
			kept = append(kept, means[i])
		}
	}
	if len(kept) == 0 {
		return 0, fmt.Errorf("%w: no response times for task %q in %d files", ErrNoData, task, len(paths))
	}
	return stat.Mean(kept, nil), nil
}

// AverageScans is the mean of per-run scan counts.
func AverageScans(counts []int) (float64, error) {
	if len(counts) == 0 {
		return 0, fmt.Errorf("%w: no runs", ErrNoData)
	}
	xs := make([]float64, len(counts))
	for i, c := range counts {
		xs[i] = float64(c)
	}
	return stat.Mean(xs, nil), nil
}
