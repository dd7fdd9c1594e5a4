package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/KyungWonPark/FirstLevel/internal/bids"
	"github.com/KyungWonPark/FirstLevel/internal/confounds"
	"github.com/KyungWonPark/FirstLevel/internal/design"
	"github.com/KyungWonPark/FirstLevel/internal/events"
	"github.com/KyungWonPark/FirstLevel/internal/exclusion"
	"github.com/KyungWonPark/FirstLevel/internal/qa"
	"github.com/KyungWonPark/FirstLevel/internal/reference"
	"github.com/KyungWonPark/FirstLevel/internal/regressor"
)

type config struct {
	Task    string
	Subject string
	RT      design.RTPolicy

	Root     string
	OutDir   string
	TR       float64
	Duration design.DurationPolicy

	Derivative       bool
	QAOnly           bool
	SimplifiedEvents bool
	NScans           int
	Workers          int

	Tables *reference.Tables
}

// contrastDir is <outdir>/<task>_lev1_output/task_<task>_rtmodel_<rt>.
func (cfg config) contrastDir() string {
	return filepath.Join(cfg.OutDir, cfg.Task+"_lev1_output", "task_"+cfg.Task+"_rtmodel_"+cfg.RT.String())
}

func (cfg config) prefix(session string) string {
	return fmt.Sprintf("sub-%s_%s_task-%s", cfg.Subject, session, cfg.Task)
}

// decision is the outcome of one session.
type decision struct {
	Session     string
	PercentJunk float64
	Columns     int
	Failures    []string
	Skip        bool
}

func (d decision) String() string {
	verdict := "fit"
	if d.Skip {
		verdict = "skip"
	}
	return fmt.Sprintf("%s percent_junk=%.3f columns=%d failures=%v %s", d.Session, d.PercentJunk, d.Columns, d.Failures, verdict)
}

// repetitionTime resolves the TR from the flag, the sidecar, then the config.
func repetitionTime(cfg config, log *zap.Logger) float64 {
	if cfg.TR > 0 {
		return cfg.TR
	}
	tr, err := bids.RepetitionTime(cfg.Root, cfg.Task)
	if err != nil {
		log.Warn("using configured repetition time", zap.Error(err), zap.Float64("tr", cfg.Tables.RepetitionTime))
		return cfg.Tables.RepetitionTime
	}
	return tr
}

// scans resolves the run length from the flag, the BOLD header, then the
// confound table.
func scans(cfg config, bold string, conf *confounds.Set, log *zap.Logger) int {
	if cfg.NScans > 0 {
		return cfg.NScans
	}
	n, err := bids.NScans(bold)
	if err != nil {
		log.Warn("using confound rows as scan count", zap.Error(err), zap.Int("scans", conf.Rows()))
		return conf.Rows()
	}
	return n
}

func run(cfg config, log *zap.Logger) ([]decision, error) {
	files, err := bids.Find(cfg.Root, cfg.Subject, cfg.Task)
	if err != nil {
		return nil, err
	}

	dir := cfg.contrastDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("[run] %w", err)
	}
	tr := repetitionTime(cfg, log)

	gate := &qa.Gate{
		ScanCounts: cfg.Tables.ScanCounts,
		Store:      exclusion.NewTable(filepath.Join(dir, exclusion.FileName), log),
		Log:        log,
	}

	var out []decision
	for i := 0; i < files.Runs(); i++ {
		d, err := session(cfg, files, i, tr, gate, log)
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

func session(cfg config, files bids.Files, i int, tr float64, gate *qa.Gate, log *zap.Logger) (decision, error) {
	ses := bids.Session(files.Events[i])
	log = log.With(zap.String("session", ses))

	ev, err := events.Read(files.Events[i])
	if err != nil {
		return decision{}, err
	}
	conf, err := confounds.Read(files.Confounds[i])
	if err != nil {
		return decision{}, err
	}

	opt := design.Options{
		Frame:      regressor.Frame{NScans: scans(cfg, files.Bold[i], conf, log), TR: tr},
		Duration:   cfg.Duration,
		Derivative: cfg.Derivative,
		RT:         cfg.RT,
		MeanRT:     cfg.Tables.MeanRT,
	}
	res, err := design.Assemble(cfg.Task, ev, conf, opt)
	if err != nil {
		return decision{}, fmt.Errorf("%s: %w", files.Events[i], err)
	}
	_, cols := res.Matrix.Dims()
	log.Debug("design assembled",
		zap.Int("scans", opt.Frame.NScans),
		zap.Int("columns", cols),
		zap.Float64("condition_duration", res.ConditionDuration))

	if !cfg.QAOnly {
		w := writer{dir: cfg.contrastDir(), prefix: cfg.prefix(ses), workers: cfg.Workers, log: log}
		if err := w.design(res); err != nil {
			return decision{}, err
		}
		if cfg.SimplifiedEvents {
			if err := w.events(res); err != nil {
				return decision{}, err
			}
		}
	}

	verdict, err := gate.Evaluate(qa.Input{
		Subject:     cfg.Subject,
		Task:        cfg.Task,
		Session:     ses,
		Matrix:      res.Matrix,
		Contrasts:   res.Contrasts,
		PercentJunk: res.PercentJunk,
	})
	if err != nil {
		return decision{}, err
	}

	return decision{
		Session:     ses,
		PercentJunk: res.PercentJunk,
		Columns:     cols,
		Failures:    verdict.Failures(),
		Skip:        verdict.AnyFail,
	}, nil
}
