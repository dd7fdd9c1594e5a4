package main

import (
	"os"
	"sync"

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
	app.Name = "avgscans"
	app.Usage = "Average the BOLD scan count of every task into the reference tables"
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
			Usage: "Header readers, 0 for one per CPU",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Human readable debug logging",
		},
	}
	app.Action = action
	return app
}

// scanCounts reads the 4th dimension of every image, skipping unreadable ones.
func scanCounts(paths []string, pl *calc.PipeLine, log *zap.Logger) []int {
	counts := make([]int, len(paths))
	var mu sync.Mutex
	var bad int

	pl.Each(len(paths), func(i int) {
		n, err := bids.NScans(paths[i])
		if err != nil {
			log.Warn("unreadable image", zap.String("path", paths[i]), zap.Error(err))
			mu.Lock()
			bad++
			mu.Unlock()
			counts[i] = -1
			return
		}
		counts[i] = n
	})

	out := make([]int, 0, len(paths)-bad)
	for _, n := range counts {
		if n >= 0 {
			out = append(out, n)
		}
	}
	return out
}

func action(c *cli.Context) error {
	base, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer base.Sync()
	log := logging.WithRun(base, "avgscans", uuid.NewString())

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
		files, err := bids.BoldFiles(c.String("root"), task)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		avg, err := reference.AverageScans(scanCounts(files, pl, log))
		if err != nil {
			log.Warn("no scan count", zap.String("task", task), zap.Int("files", len(files)), zap.Error(err))
			continue
		}
		tables.ScanCounts[task] = avg
		log.Info("average scan count", zap.String("task", task), zap.Int("files", len(files)), zap.Float64("scans", avg))
	}

	if err := tables.Save(path); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("reference tables saved", zap.String("path", path))
	return nil
}
