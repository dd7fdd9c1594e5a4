package qa

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KyungWonPark/FirstLevel/internal/contrast"
	"github.com/KyungWonPark/FirstLevel/internal/design"
	"github.com/KyungWonPark/FirstLevel/internal/exclusion"
)

func newDesign(t *testing.T, rows int, cols map[string][]float64, order ...string) *design.Matrix {
	t.Helper()
	m := design.NewMatrix(rows)
	for _, name := range order {
		v, ok := cols[name]
		if !ok {
			v = make([]float64, rows)
			for i := range v {
				v[i] = float64(i%3) - 1
			}
		}
		require.NoError(t, m.Append(name, v))
	}
	return m
}

type memStore struct {
	records []exclusion.Record
}

func (s *memStore) Append(r exclusion.Record) error {
	s.records = append(s.records, r)
	return nil
}

func TestDeadColumnOnlyWhenReferenced(t *testing.T) {
	m := newDesign(t, 4, map[string][]float64{
		"congruent":   {0, 0, 0, 0},
		"incongruent": {0, 1, 0, 1},
		"trans_x":     {0, 0, 0, 0},
	}, "congruent", "incongruent", "trans_x")
	cs := contrast.Set{contrast.MustParse("incongruent-congruent", "incongruent-congruent")}

	assert.Equal(t, []string{"congruent"}, DeadColumns(m, cs))

	cs = contrast.Set{contrast.MustParse("incongruent", "incongruent")}
	assert.Empty(t, DeadColumns(m, cs))
}

func TestEvaluate(t *testing.T) {
	cs := contrast.Set{contrast.MustParse("go", "go")}

	tests := []struct {
		name    string
		rows    int
		junk    float64
		goCol   bool
		failing []string
		values  []string
	}{
		{name: "clean", rows: 151, junk: 0.1, goCol: true, values: []string{"0", "0", "0"}},
		{name: "junk at threshold passes", rows: 200, junk: 0.30, goCol: true, values: []string{"0", "0", "0"}},
		{name: "junk", rows: 200, junk: 0.35, goCol: true, failing: []string{ColPercentJunk}, values: []string{"0.35", "0", "0"}},
		{name: "short run", rows: 140, goCol: true, failing: []string{"num_trs_lt_300.0"}, values: []string{"0", "140", "0"}},
		{name: "dead column", rows: 200, failing: []string{ColDeadColumns}, values: []string{"0", "0", "go"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cols := map[string][]float64{}
			if !tc.goCol {
				cols["go"] = make([]float64, tc.rows)
			}
			m := newDesign(t, tc.rows, cols, "go")

			store := &memStore{}
			g := &Gate{ScanCounts: map[string]float64{"goNogo": 300}, Store: store, Log: zaptest.NewLogger(t)}
			res, err := g.Evaluate(Input{Subject: "s01", Task: "goNogo", Session: "ses-01", Matrix: m, Contrasts: cs, PercentJunk: tc.junk})
			require.NoError(t, err)

			assert.Equal(t, "s01_goNogo_ses-01", res.Key)
			assert.Equal(t, tc.failing, res.Failures())
			assert.Equal(t, len(tc.failing) > 0, res.AnyFail)

			var got []string
			for _, c := range res.Checks {
				got = append(got, c.Value)
			}
			assert.Equal(t, tc.values, got)

			if res.AnyFail {
				require.Len(t, store.records, 1)
				assert.Equal(t, []string{ColPercentJunk, "num_trs_lt_300.0", ColDeadColumns}, store.records[0].Columns)
			} else {
				assert.Empty(t, store.records)
			}
		})
	}
}

func TestEvaluateJoinsDeadColumns(t *testing.T) {
	m := newDesign(t, 10, map[string][]float64{
		"go":           make([]float64, 10),
		"nogo_success": make([]float64, 10),
	}, "go", "nogo_success")
	g := &Gate{ScanCounts: map[string]float64{"goNogo": 10}}

	res, err := g.Evaluate(Input{Task: "goNogo", Matrix: m, Contrasts: contrast.Set{contrast.MustParse("b", "1/2*(go+nogo_success)")}})
	require.NoError(t, err)
	assert.Equal(t, "go_and_nogo_success", res.Checks[2].Value)
}

func TestEvaluateUnknownTask(t *testing.T) {
	g := &Gate{ScanCounts: map[string]float64{}}
	_, err := g.Evaluate(Input{Task: "flanker", Matrix: design.NewMatrix(4)})
	assert.ErrorIs(t, err, ErrNoScanCount)
}

func TestScanColumn(t *testing.T) {
	assert.Equal(t, "num_trs_lt_300.0", ScanColumn(300))
	assert.Equal(t, "num_trs_lt_292.5", ScanColumn(292.5))
}

func TestEvaluateAppendsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), exclusion.FileName)
	tbl := exclusion.NewTable(path, zaptest.NewLogger(t))
	g := &Gate{ScanCounts: map[string]float64{"flanker": 100}, Store: tbl, Log: zaptest.NewLogger(t)}

	m := newDesign(t, 20, nil, "congruent")
	in := Input{Subject: "s02", Task: "flanker", Session: "ses-03", Matrix: m, Contrasts: contrast.Set{contrast.MustParse("c", "congruent")}}

	_, err := g.Evaluate(in)
	require.NoError(t, err)
	first, err := tbl.Read()
	require.NoError(t, err)

	_, err = g.Evaluate(in)
	require.NoError(t, err)
	second, err := tbl.Read()
	require.NoError(t, err)

	require.Len(t, second.Rows, 2)
	assert.Equal(t, first.Rows[0], second.Rows[0])
	assert.Equal(t, second.Rows[0], second.Rows[1])
	assert.Equal(t, []string{"s02_flanker_ses-03", "0", "20", "0"}, second.Rows[0])
}

var (
	colA = []float64{1, -1, 1, -1}
	colB = []float64{1, 1, -1, -1}
)

func TestVIFOrthogonal(t *testing.T) {
	m := newDesign(t, 4, map[string][]float64{"a": colA, "b": colB}, "a", "b")

	fs, err := VIF(m, 2)
	require.NoError(t, err)
	require.Len(t, fs, 3)
	assert.Equal(t, Intercept, fs[2].Name)
	for _, f := range fs {
		assert.InDelta(t, 1, f.Value, 1e-9, f.Name)
	}
}

func TestVIFCollinear(t *testing.T) {
	c := []float64{2, -2, 2, -2}
	m := newDesign(t, 4, map[string][]float64{"a": colA, "b": colB, "c": c}, "a", "b", "c")

	fs, err := VIF(m, 0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(fs[0].Value, 1) || fs[0].Value > 1e6, "vif %v", fs[0].Value)
	assert.InDelta(t, 1, fs[1].Value, 1e-9)
}

func TestVIFConstantColumnIsNaN(t *testing.T) {
	m := newDesign(t, 4, map[string][]float64{"a": colA, "dead": make([]float64, 4)}, "a", "dead")

	fs, err := VIF(m, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(fs[1].Value))
}

func TestVIFEmptyDesign(t *testing.T) {
	_, err := VIF(design.NewMatrix(4), 1)
	assert.ErrorIs(t, err, ErrEmptyDesign)
}

func TestReported(t *testing.T) {
	fs := []Factor{{Name: "go"}, {Name: "trans_x"}, {Name: "rot_z_derivative1"}, {Name: "a_comp_cor_00"}, {Name: "non_steady_state_outlier00"}, {Name: Intercept}}
	got := Reported(fs)
	require.Len(t, got, 2)
	assert.Equal(t, "go", got[0].Name)
	assert.Equal(t, Intercept, got[1].Name)
}

func TestContrastVIF(t *testing.T) {
	m := newDesign(t, 4, map[string][]float64{"a": colA, "b": colB}, "a", "b")

	v, err := ContrastVIF(m, contrast.MustParse("a-b", "a-b"))
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-9)

	v, err = ContrastVIF(m, contrast.MustParse("a", "a"))
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-9)

	fs, err := ContrastVIFs(m, contrast.Set{contrast.MustParse("a", "a"), contrast.MustParse("ab", "a+b")})
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, "ab", fs[1].Name)
	assert.InDelta(t, 1, fs[1].Value, 1e-9)
}

func TestContrastVIFUnknownColumn(t *testing.T) {
	m := newDesign(t, 4, map[string][]float64{"a": colA}, "a")
	_, err := ContrastVIF(m, contrast.MustParse("x", "x"))
	assert.ErrorIs(t, err, contrast.ErrUnknownColumn)
}

func TestPinvAndNullSpace(t *testing.T) {
	a := mat64.NewDense(2, 2, []float64{2, 0, 0, 0})
	p, err := pinv(a)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.At(0, 0), 1e-12)
	assert.InDelta(t, 0, p.At(1, 1), 1e-12)

	ns, err := nullSpace(mat64.NewDense(1, 2, []float64{1, -1}))
	require.NoError(t, err)
	r, c := ns.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)
	assert.InDelta(t, ns.At(0, 0), ns.At(1, 0), 1e-12)

	ns, err = nullSpace(mat64.NewDense(1, 1, []float64{3}))
	require.NoError(t, err)
	assert.Nil(t, ns)
}
