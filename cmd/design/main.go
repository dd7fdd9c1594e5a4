package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/codegangsta/cli"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KyungWonPark/FirstLevel/internal/bids"
	"github.com/KyungWonPark/FirstLevel/internal/design"
	"github.com/KyungWonPark/FirstLevel/internal/logging"
	"github.com/KyungWonPark/FirstLevel/internal/reference"
)

// exitMissingData lets a batch driver tell missing inputs from failures.
const exitMissingData = 2

func main() {
	app := cli.NewApp()
	app.Name = "design"
	app.Usage = "Build first-level design matrices and contrasts, then run design QA"
	app.ArgsUsage = "<task> <subid> <no_rt|rt_centered|rt_uncentered>"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "root",
			Value: "/oak/stanford/groups/russpold/data/network_grant/discovery_BIDS_21.0.1/derivatives/fitlins_data",
			Usage: "BIDS derivatives root holding sub-*/ses-*/func",
		},
		cli.StringFlag{
			Name:  "outdir",
			Value: ".",
			Usage: "Directory receiving <task>_lev1_output",
		},
		cli.StringFlag{
			Name:  "config",
			Value: "reference.yaml",
			Usage: "Reference tables (mean RT, scan counts, default TR)",
		},
		cli.Float64Flag{
			Name:  "tr",
			Usage: "Repetition time in seconds, overriding the BOLD sidecar",
		},
		cli.StringFlag{
			Name:  "duration",
			Value: "constant",
			Usage: "Condition duration: constant or mean_rt",
		},
		cli.BoolFlag{
			Name:  "omit-deriv",
			Usage: "Do not add temporal derivative regressors",
		},
		cli.BoolFlag{
			Name:  "qa-only",
			Usage: "Only run design QA, writing no design outputs",
		},
		cli.BoolFlag{
			Name:  "simplified-events",
			Usage: "Write event tables with nuisance labels attached",
		},
		cli.IntFlag{
			Name:  "nscans",
			Usage: "Scan count, overriding the BOLD header",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "Diagnostic workers, 0 for one per CPU",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Human readable debug logging",
		},
	}
	app.Action = action

	app.Run(os.Args)
}

func action(c *cli.Context) error {
	if len(c.Args()) != 3 {
		cli.ShowAppHelp(c)
		return cli.NewExitError("expected <task> <subid> <regress_rt>", 1)
	}

	base, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer base.Sync()
	log := logging.WithRun(base, "design", uuid.NewString())

	cfg, err := configure(c)
	if err != nil {
		log.Error("invalid arguments", zap.Error(err))
		return cli.NewExitError(err.Error(), 1)
	}
	log = log.With(zap.String("subject", cfg.Subject), zap.String("task", cfg.Task))

	decisions, err := run(cfg, log)
	if errors.Is(err, bids.ErrMissingFiles) || errors.Is(err, bids.ErrFileCountMismatch) {
		log.Warn("missing data, skipping subject", zap.Error(err))
		return cli.NewExitError(err.Error(), exitMissingData)
	}
	if err != nil {
		log.Error("design failed", zap.Error(err))
		return cli.NewExitError(err.Error(), 1)
	}

	for _, d := range decisions {
		fmt.Println(d)
	}
	return nil
}

func configure(c *cli.Context) (config, error) {
	args := c.Args()
	cfg := config{
		Task:             args.Get(0),
		Subject:          args.Get(1),
		Root:             c.String("root"),
		OutDir:           c.String("outdir"),
		TR:               c.Float64("tr"),
		Derivative:       !c.Bool("omit-deriv"),
		QAOnly:           c.Bool("qa-only"),
		SimplifiedEvents: c.Bool("simplified-events"),
		NScans:           c.Int("nscans"),
		Workers:          c.Int("workers"),
	}

	if _, err := design.Lookup(cfg.Task); err != nil {
		return cfg, err
	}
	var err error
	if cfg.RT, err = design.ParseRTPolicy(args.Get(2)); err != nil {
		return cfg, err
	}
	if cfg.Duration, err = design.ParseDurationPolicy(c.String("duration")); err != nil {
		return cfg, err
	}
	if cfg.Tables, err = reference.LoadOrDefault(c.String("config")); err != nil {
		return cfg, err
	}
	return cfg, nil
}
