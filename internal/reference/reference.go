// Package reference holds the per-task lookup tables computed once over a
// whole sample: grand mean response times and average scan counts.
package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultRepetitionTime is used when neither a flag nor a sidecar gives one.
const DefaultRepetitionTime = 1.49

// ErrNoData is returned when a table entry cannot be computed from the inputs.
var ErrNoData = errors.New("reference: no usable data")

// Tables is the reference.yaml configuration.
type Tables struct {
	RepetitionTime float64            `yaml:"repetition_time"`
	MeanRT         map[string]float64 `yaml:"mean_rt,omitempty"`
	ScanCounts     map[string]float64 `yaml:"scan_counts,omitempty"`
}

// Default returns empty tables with the default repetition time.
func Default() *Tables {
	return &Tables{
		RepetitionTime: DefaultRepetitionTime,
		MeanRT:         map[string]float64{},
		ScanCounts:     map[string]float64{},
	}
}

// Load reads tables from a YAML file. Absent fields keep their defaults.
func Load(path string) (*Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[Load] failed to read %s: %w", path, err)
	}

	t := Default()
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("[Load] failed to parse %s: %w", path, err)
	}
	if t.RepetitionTime <= 0 {
		t.RepetitionTime = DefaultRepetitionTime
	}
	if t.MeanRT == nil {
		t.MeanRT = map[string]float64{}
	}
	if t.ScanCounts == nil {
		t.ScanCounts = map[string]float64{}
	}
	return t, nil
}

// LoadOrDefault is Load, returning Default when path does not exist.
func LoadOrDefault(path string) (*Tables, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the tables to path, replacing the file atomically.
func (t *Tables) Save(path string) error {
	raw, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("[Save] %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("[Save] %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("[Save] failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[Save] %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Tasks returns the tasks present in either table, sorted.
func (t *Tables) Tasks() []string {
	seen := map[string]bool{}
	for k := range t.MeanRT {
		seen[k] = true
	}
	for k := range t.ScanCounts {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
