package main

import (
	"os"

	"github.com/codegangsta/cli"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KyungWonPark/FirstLevel/internal/bids"
	"github.com/KyungWonPark/FirstLevel/internal/calc"
	"github.com/KyungWonPark/FirstLevel/internal/design"
	"github.com/KyungWonPark/FirstLevel/internal/logging"
	"github.com/KyungWonPark/FirstLevel/internal/reference"
)

func main() {
	newApp().Run(os.Args)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "meanrt"
	app.Usage = "Compute the grand mean response time of every task into the reference tables"
	app.ArgsUsage = "[task...]"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "root",
			Value: "/oak/stanford/groups/russpold/data/network_grant/discovery_BIDS_21.0.1/derivatives/fitlins_data",
			Usage: "BIDS derivatives root holding sub-*/ses-*/func",
		},
		cli.StringFlag{
			Name:  "config",
			Value: "reference.yaml",
			Usage: "Reference tables to update",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "File readers, 0 for one per CPU",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Human readable debug logging",
		},
	}
	app.Action = action
	return app
}

func action(c *cli.Context) error {
	base, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer base.Sync()
	log := logging.WithRun(base, "meanrt", uuid.NewString())

	tasks := []string(c.Args())
	if len(tasks) == 0 {
		tasks = design.Tasks()
	}

	path := c.String("config")
	tables, err := reference.LoadOrDefault(path)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	pl := calc.Init(c.Int("workers"))
	for _, task := range tasks {
		if _, err := design.Lookup(task); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		files, err := bids.EventFiles(c.String("root"), task)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		mean, err := reference.MeanRT(task, files, pl)
		if err != nil {
			log.Warn("no mean response time", zap.String("task", task), zap.Int("files", len(files)), zap.Error(err))
			continue
		}
		tables.MeanRT[task] = mean
		log.Info("mean response time", zap.String("task", task), zap.Int("files", len(files)), zap.Float64("mean_rt", mean))
	}

	if err := tables.Save(path); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("reference tables saved", zap.String("path", path))
	return nil
}
