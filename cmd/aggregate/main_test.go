package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KyungWonPark/FirstLevel/internal/exclusion"
)

func record(t *testing.T, outdir, task, key, column, value string) {
	t.Helper()
	dir := filepath.Join(outdir, task+"_lev1_output", "task_"+task+"_rtmodel_no_rt")
	require.NoError(t, os.MkdirAll(dir, 0755))
	tbl := exclusion.NewTable(filepath.Join(dir, exclusion.FileName), nil)
	require.NoError(t, tbl.Append(exclusion.Record{Key: key, Columns: []string{column}, Values: map[string]string{column: value}}))
}

func TestAggregate(t *testing.T) {
	outdir := t.TempDir()
	record(t, outdir, "flanker", "s01_flanker_ses-01", "percent_junk_gt_30", "0.4")
	record(t, outdir, "nBack", "s02_nBack_ses-02", "num_trs_lt_300", "120")

	paths, err := tables(outdir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	ledger, err := exclusion.OpenLedger(filepath.Join(t.TempDir(), "ledger.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer ledger.Close()

	output := filepath.Join(t.TempDir(), "all.csv")
	merged, err := aggregate(context.Background(), paths, output, ledger, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{exclusion.KeyColumn, "percent_junk_gt_30", "num_trs_lt_300"}, merged.Header)
	assert.Equal(t, [][]string{
		{"s01_flanker_ses-01", "0.4", "0"},
		{"s02_nBack_ses-02", "0", "120"},
	}, merged.Rows)

	written, err := exclusion.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, merged, written)

	keys, err := ledger.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s01_flanker_ses-01", "s02_nBack_ses-02"}, keys)
}

func TestAggregateNothing(t *testing.T) {
	output := filepath.Join(t.TempDir(), "all.csv")
	merged, err := aggregate(context.Background(), nil, output, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{exclusion.KeyColumn}, merged.Header)
	assert.FileExists(t, output)
}
