// Package events holds the behavioral event model read from BIDS events.tsv
// files.
package events

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KyungWonPark/FirstLevel/internal/io"
)

// NoResponse is the key_press code written for trials without a response.
const NoResponse = -1

// Core column names of an events.tsv file.
const (
	ColOnset           = "onset"
	ColDuration        = "duration"
	ColTrialType       = "trial_type"
	ColKeyPress        = "key_press"
	ColCorrectResponse = "correct_response"
	ColResponseTime    = "response_time"
	ColJunk            = "junk"
	ColNATrials        = "na_trials"
)

// NATrialType marks a trial_type with no task-relevant classification.
const NATrialType = "na"

// Event is one row of behavioral data. Missing numeric values are NaN.
type Event struct {
	Onset           float64
	Duration        float64
	TrialType       string
	KeyPress        float64
	CorrectResponse float64
	ResponseTime    float64
	Junk            float64
	Extra           map[string]string
}

// Responded reports whether a key press was recorded.
func (e Event) Responded() bool {
	return !math.IsNaN(e.KeyPress) && e.KeyPress != NoResponse
}

// Correct reports whether the key press equals the expected response.
func (e Event) Correct() bool {
	return e.KeyPress == e.CorrectResponse
}

// Field returns a core or auxiliary column as a string.
func (e Event) Field(name string) (string, bool) {
	switch name {
	case ColTrialType:
		return e.TrialType, true
	case ColOnset:
		return formatFloat(e.Onset), true
	case ColDuration:
		return formatFloat(e.Duration), true
	case ColKeyPress:
		return formatFloat(e.KeyPress), true
	case ColCorrectResponse:
		return formatFloat(e.CorrectResponse), true
	case ColResponseTime:
		return formatFloat(e.ResponseTime), true
	case ColJunk:
		return formatFloat(e.Junk), true
	}
	v, ok := e.Extra[name]
	return v, ok
}

// Events is an ordered event sequence for one task/session.
type Events struct {
	Columns []string
	Rows    []Event
}

// Len returns the number of events.
func (ev *Events) Len() int { return len(ev.Rows) }

// Has reports whether the source file carried the named column.
func (ev *Events) Has(name string) bool {
	for _, c := range ev.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Float returns a numeric column. Unparseable and "n/a" cells are NaN.
func (ev *Events) Float(name string) ([]float64, error) {
	if !ev.Has(name) {
		return nil, fmt.Errorf("events: no column %q", name)
	}

	out := make([]float64, len(ev.Rows))
	for i, e := range ev.Rows {
		switch name {
		case ColOnset:
			out[i] = e.Onset
		case ColDuration:
			out[i] = e.Duration
		case ColKeyPress:
			out[i] = e.KeyPress
		case ColCorrectResponse:
			out[i] = e.CorrectResponse
		case ColResponseTime:
			out[i] = e.ResponseTime
		case ColJunk:
			out[i] = e.Junk
		default:
			out[i] = parseFloat(e.Extra[name])
		}
	}
	return out, nil
}

var required = []string{ColOnset, ColDuration, ColTrialType, ColKeyPress, ColCorrectResponse, ColResponseTime}

// Read loads a tab separated events file.
func Read(path string) (*Events, error) {
	t, err := io.ReadTable(path, '\t')
	if err != nil {
		return nil, err
	}
	ev, err := FromTable(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ev, nil
}

// FromTable converts a parsed table into events.
//
// A negative response_time on a trial without a key press is the
// no-response sentinel and is stored as NaN. A missing junk column reads as 0.
func FromTable(t *io.Table) (*Events, error) {
	for _, c := range required {
		if t.Index(c) < 0 {
			return nil, fmt.Errorf("events: missing required column %q", c)
		}
	}

	ev := &Events{Columns: append([]string(nil), t.Header...)}
	if t.Index(ColJunk) < 0 {
		ev.Columns = append(ev.Columns, ColJunk)
	}

	for _, row := range t.Rows {
		cell := func(name string) string {
			idx := t.Index(name)
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return row[idx]
		}

		e := Event{
			Onset:           parseFloat(cell(ColOnset)),
			Duration:        parseFloat(cell(ColDuration)),
			TrialType:       cell(ColTrialType),
			KeyPress:        parseFloat(cell(ColKeyPress)),
			CorrectResponse: parseFloat(cell(ColCorrectResponse)),
			ResponseTime:    parseFloat(cell(ColResponseTime)),
			Junk:            parseFloat(cell(ColJunk)),
			Extra:           map[string]string{},
		}
		if math.IsNaN(e.Onset) {
			return nil, fmt.Errorf("events: onset %q is not a number", cell(ColOnset))
		}
		if math.IsNaN(e.Junk) {
			e.Junk = 0
		}
		if isMissing(e.TrialType) {
			e.TrialType = NATrialType
		}
		if !e.Responded() && e.ResponseTime < 0 {
			e.ResponseTime = math.NaN()
		}

		for i, h := range t.Header {
			if isCore(h) || i >= len(row) {
				continue
			}
			e.Extra[h] = row[i]
		}
		ev.Rows = append(ev.Rows, e)
	}
	return ev, nil
}

// Table renders the events back to a table, with extra float columns
// appended after the source columns.
func (ev *Events) Table(extra map[string][]float64, order []string) *io.Table {
	t := &io.Table{Header: append(append([]string(nil), ev.Columns...), order...)}
	for i, e := range ev.Rows {
		row := make([]string, 0, len(t.Header))
		for _, c := range ev.Columns {
			v, _ := e.Field(c)
			row = append(row, v)
		}
		for _, name := range order {
			row = append(row, formatFloat(extra[name][i]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isCore(name string) bool {
	switch name {
	case ColOnset, ColDuration, ColTrialType, ColKeyPress, ColCorrectResponse, ColResponseTime, ColJunk:
		return true
	}
	return false
}

func isMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "nan", "na":
		return true
	}
	return false
}

func parseFloat(s string) float64 {
	if isMissing(s) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
