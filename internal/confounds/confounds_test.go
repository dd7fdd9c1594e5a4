package confounds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KyungWonPark/FirstLevel/internal/io"
)

func TestWhitelist(t *testing.T) {
	keep := []string{
		"cosine00", "cosine12", "a_comp_cor_00", "a_comp_cor_04", "framewise_displacement",
		"trans_x", "trans_x_derivative1", "rot_z", "rot_z_derivative1",
	}
	drop := []string{
		"a_comp_cor_05", "t_comp_cor_00", "trans_x_power2", "trans_x_derivative1_power2",
		"global_signal", "csf", "non_steady_state_outlier00", "dvars",
	}
	for _, n := range keep {
		assert.True(t, Whitelist.MatchString(n), n)
	}
	for _, n := range drop {
		assert.False(t, Whitelist.MatchString(n), n)
	}
}

func TestSelectPreservesOrderAndFillsMissing(t *testing.T) {
	tbl := &io.Table{
		Header: []string{"global_signal", "rot_x", "framewise_displacement", "csf", "cosine00"},
		Rows: [][]string{
			{"1", "0.1", "n/a", "3", "0.5"},
			{"2", "0.2", "0.3", "4", "-0.5"},
		},
	}

	s, err := Select(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"rot_x", "framewise_displacement", "cosine00"}, s.Names)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0, 0.3}, {0.5, -0.5}}, s.Columns)
	assert.Equal(t, 2, s.Rows())
	assert.Equal(t, 3, s.Len())
}

func TestSelectNothingMatches(t *testing.T) {
	s, err := Select(&io.Table{Header: []string{"csf"}, Rows: [][]string{{"1"}}})
	require.NoError(t, err)
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Rows())
}

func TestSelectRejectsGarbage(t *testing.T) {
	_, err := Select(&io.Table{Header: []string{"rot_y"}, Rows: [][]string{{"abc"}}})
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confounds.tsv")
	require.NoError(t, os.WriteFile(path, []byte("csf\ttrans_y\ta_comp_cor_01\n1\tn/a\t2\n3\t0.5\t4\n"), 0644))

	s, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"trans_y", "a_comp_cor_01"}, s.Names)
	assert.Equal(t, []float64{0, 0.5}, s.Columns[0])
}
