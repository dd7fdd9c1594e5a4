package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/FirstLevel/internal/calc"
	"github.com/KyungWonPark/FirstLevel/internal/design"
	"github.com/KyungWonPark/FirstLevel/internal/io"
	"github.com/KyungWonPark/FirstLevel/internal/qa"
)

type writer struct {
	dir     string
	prefix  string
	workers int
	log     *zap.Logger
}

type contrastEntry struct {
	Name       string    `yaml:"name"`
	Expression string    `yaml:"expression"`
	Weights    []float64 `yaml:"weights,flow"`
}

func (w writer) path(sub, suffix string) (string, error) {
	dir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("[path] %w", err)
	}
	return filepath.Join(dir, w.prefix+suffix), nil
}

// design writes the matrix, contrasts and diagnostics of one run.
func (w writer) design(res *design.Result) error {
	names := res.Matrix.Names()
	dense := res.Matrix.Dense()

	tsv, err := w.path("design", "_design.tsv")
	if err != nil {
		return err
	}
	if err := io.Mat64toCSV(tsv, '\t', names, dense); err != nil {
		return err
	}
	npy, err := w.path("design", "_design.npy")
	if err != nil {
		return err
	}
	if err := io.Mat64toNpy(npy, dense); err != nil {
		return err
	}

	if err := w.contrasts(res, names); err != nil {
		return err
	}
	if err := w.vif(res); err != nil {
		return err
	}
	if err := w.correlation(res); err != nil {
		return err
	}

	w.log.Info("design written", zap.String("path", tsv), zap.Int("columns", len(names)))
	return nil
}

func (w writer) contrasts(res *design.Result, names []string) error {
	rows, err := res.Contrasts.Matrix(names)
	if err != nil {
		return err
	}
	entries := make([]contrastEntry, len(res.Contrasts))
	for i, c := range res.Contrasts {
		entries[i] = contrastEntry{Name: c.Name, Expression: c.Expr, Weights: rows[i]}
	}

	raw, err := yaml.Marshal(map[string]interface{}{"columns": names, "contrasts": entries})
	if err != nil {
		return fmt.Errorf("[contrasts] %w", err)
	}
	path, err := w.path("design", "_contrasts.yaml")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// vif writes regressor VIFs, confounds filtered out, followed by contrast VIFs.
func (w writer) vif(res *design.Result) error {
	regs, err := qa.VIF(res.Matrix, w.workers)
	if err != nil {
		return err
	}
	cons, err := qa.ContrastVIFs(res.Matrix, res.Contrasts)
	if err != nil {
		return err
	}

	t := &io.Table{Header: []string{"kind", "name", "VIF"}}
	for _, f := range qa.Reported(regs) {
		t.Rows = append(t.Rows, []string{"regressor", f.Name, strconv.FormatFloat(f.Value, 'g', 6, 64)})
	}
	for _, f := range cons {
		t.Rows = append(t.Rows, []string{"contrast", f.Name, strconv.FormatFloat(f.Value, 'g', 6, 64)})
	}

	path, err := w.path("design", "_vif.tsv")
	if err != nil {
		return err
	}
	return io.WriteTable(path, '\t', t)
}

func (w writer) correlation(res *design.Result) error {
	names := res.Matrix.Names()
	series := make([][]float64, len(names))
	for j, name := range names {
		series[j], _ = res.Matrix.Column(name)
	}

	corr, err := calc.Init(w.workers).Correlation(series)
	if err != nil {
		return err
	}
	path, err := w.path("design", "_corr.npy")
	if err != nil {
		return err
	}
	return io.Mat64toNpy(path, corr)
}

// events writes the event table with nuisance labels attached.
func (w writer) events(res *design.Result) error {
	path, err := w.path("simplified_events", "_simplified-events.csv")
	if err != nil {
		return err
	}
	return io.WriteTable(path, ',', res.Events)
}
