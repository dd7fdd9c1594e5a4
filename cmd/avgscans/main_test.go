package main

import (
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/nifti"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KyungWonPark/FirstLevel/internal/calc"
	"github.com/KyungWonPark/FirstLevel/internal/reference"
)

func boldPath(t *testing.T, root, subject string) string {
	t.Helper()
	dir := filepath.Join(root, "sub-"+subject, "ses-01", "func")
	require.NoError(t, os.MkdirAll(dir, 0755))
	return filepath.Join(dir, "sub-"+subject+"_ses-01_task-flanker_run-1_space-MNI_desc-preproc_bold.nii.gz")
}

// writeImage writes a gzipped NIfTI-1 header with nt volumes.
func writeImage(t *testing.T, path string, nt int16) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := gzip.NewWriter(f)
	header := nifti.Nifti1Header{
		SizeofHdr: 348,
		Dim:       [8]int16{4, 2, 2, 2, nt, 1, 1, 1},
		Bitpix:    32,
		VoxOffset: 352,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	require.NoError(t, binary.Write(zw, binary.LittleEndian, header))
	require.NoError(t, zw.Close())
}

func TestScanCountsSkipsUnreadable(t *testing.T) {
	root := t.TempDir()
	writeImage(t, boldPath(t, root, "s01"), 150)
	writeImage(t, boldPath(t, root, "s02"), 160)
	require.NoError(t, os.WriteFile(boldPath(t, root, "s03"), []byte("not a gzip stream"), 0644))

	paths, err := filepath.Glob(filepath.Join(root, "*", "*", "func", "*_bold.nii.gz"))
	require.NoError(t, err)
	require.Len(t, paths, 3)

	counts := scanCounts(paths, calc.Init(2), zaptest.NewLogger(t))
	assert.ElementsMatch(t, []int{150, 160}, counts)
}

func TestActionWritesScanCounts(t *testing.T) {
	root := t.TempDir()
	writeImage(t, boldPath(t, root, "s01"), 150)
	writeImage(t, boldPath(t, root, "s02"), 161)
	require.NoError(t, os.WriteFile(boldPath(t, root, "s03"), nil, 0644))

	config := filepath.Join(t.TempDir(), "reference.yaml")
	seed := reference.Default()
	seed.ScanCounts["nBack"] = 300
	require.NoError(t, seed.Save(config))

	err := newApp().Run([]string{"avgscans", "--root", root, "--config", config, "flanker", "nBack"})
	require.NoError(t, err)

	got, err := reference.Load(config)
	require.NoError(t, err)
	assert.Equal(t, 155.5, got.ScanCounts["flanker"])
	assert.Equal(t, 300.0, got.ScanCounts["nBack"], "a task without images keeps its entry")
}
