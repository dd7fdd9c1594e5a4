package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/codegangsta/cli"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KyungWonPark/FirstLevel/internal/exclusion"
	"github.com/KyungWonPark/FirstLevel/internal/io"
	"github.com/KyungWonPark/FirstLevel/internal/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "aggregate"
	app.Usage = "Merge the exclusion tables of every task output directory"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "outdir",
			Value: ".",
			Usage: "Directory holding <task>_lev1_output",
		},
		cli.StringFlag{
			Name:  "output",
			Value: "excluded_all.csv",
			Usage: "Merged exclusion table",
		},
		cli.StringFlag{
			Name:  "ledger",
			Usage: "SQLite ledger to import every table into",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Human readable debug logging",
		},
	}
	app.Action = action

	app.Run(os.Args)
}

// tables finds the exclusion table of every task and model directory.
func tables(outdir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(outdir, "*_lev1_output", "*", exclusion.FileName))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// aggregate merges the tables at paths into output and, when ledger is
// set, imports each of them as its own batch.
func aggregate(ctx context.Context, paths []string, output string, ledger *exclusion.Ledger, log *zap.Logger) (*io.Table, error) {
	read := make([]*io.Table, 0, len(paths))
	for _, p := range paths {
		t, err := exclusion.ReadFile(p)
		if err != nil {
			return nil, err
		}
		read = append(read, t)

		if ledger == nil {
			continue
		}
		batch, err := ledger.Import(ctx, p, t)
		if err != nil {
			return nil, err
		}
		log.Debug("table imported", zap.String("path", p), zap.String("batch", batch))
	}

	merged := exclusion.Merge(read...)
	if len(merged.Header) == 0 {
		merged.Header = []string{exclusion.KeyColumn}
	}
	if err := io.WriteTable(output, ',', merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func action(c *cli.Context) error {
	base, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer base.Sync()
	log := logging.WithRun(base, "aggregate", uuid.NewString())

	paths, err := tables(c.String("outdir"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	var ledger *exclusion.Ledger
	if c.IsSet("ledger") {
		ledger, err = exclusion.OpenLedger(c.String("ledger"), log)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer ledger.Close()
	}

	merged, err := aggregate(context.Background(), paths, c.String("output"), ledger, log)
	if err != nil {
		log.Error("aggregation failed", zap.Error(err))
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("exclusion tables merged",
		zap.Int("tables", len(paths)),
		zap.Int("rows", len(merged.Rows)),
		zap.String("output", c.String("output")))
	return nil
}
