package contrast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weights(c Contrast) map[string]float64 {
	out := map[string]float64{}
	for _, t := range c.Terms {
		out[t.Column] = t.Weight
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want map[string]float64
	}{
		{"incongruent - congruent", map[string]float64{"incongruent": 1, "congruent": -1}},
		{".5*go + .5*nogo_success", map[string]float64{"go": 0.5, "nogo_success": 0.5}},
		{"1/4*(mismatch_1back + match_1back + mismatch_2back + match_2back)",
			map[string]float64{"mismatch_1back": 0.25, "match_1back": 0.25, "mismatch_2back": 0.25, "match_2back": 0.25}},
		{"1/3*(SDD+DDD+DDS)-1/2*(SNN+DNN)",
			map[string]float64{"SDD": 1.0 / 3, "DDD": 1.0 / 3, "DDS": 1.0 / 3, "SNN": -0.5, "DNN": -0.5}},
		{"(incongruent_neg+congruent_con) -(incongruent_con+congruent_neg)",
			map[string]float64{"incongruent_neg": 1, "congruent_con": 1, "incongruent_con": -1, "congruent_neg": -1}},
		{"(a-b)-(c-b)", map[string]float64{"a": 1, "b": 0, "c": -1}},
		{"-a + (b)/2", map[string]float64{"a": -1, "b": 0.5}},
		{"2*a*3", map[string]float64{"a": 6}},
		{"response_time", map[string]float64{"response_time": 1}},
		{"1e-1*a", map[string]float64{"a": 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := Parse("x", tt.expr)
			require.NoError(t, err)
			got := weights(c)
			require.Len(t, got, len(tt.want))
			for k, v := range tt.want {
				assert.InDelta(t, v, got[k], 1e-12, k)
			}
		})
	}
}

func TestParseKeepsFirstAppearanceOrder(t *testing.T) {
	c, err := Parse("x", "b - a + c + b")
	require.NoError(t, err)
	require.Len(t, c.Terms, 3)
	assert.Equal(t, "b", c.Terms[0].Column)
	assert.Equal(t, 2.0, c.Terms[0].Weight)
	assert.Equal(t, "a", c.Terms[1].Column)
	assert.Equal(t, "c", c.Terms[2].Column)
}

func TestParseErrors(t *testing.T) {
	syntax := []string{"", "a +", "(a + b", "a b", "a $ b", "1/0*a", "a + )", "1..2*a"}
	for _, expr := range syntax {
		_, err := Parse("x", expr)
		assert.ErrorIs(t, err, ErrSyntax, expr)
	}

	nonLinear := []string{"a*b", "a/b", "a + 1", "(a+b)*(c-d)", "2"}
	for _, expr := range nonLinear {
		_, err := Parse("x", expr)
		assert.ErrorIs(t, err, ErrNonLinear, expr)
	}
}

func TestVector(t *testing.T) {
	c := MustParse("stop_failure-go", "stop_failure-go")
	v, err := c.Vector([]string{"go", "stop_success", "stop_failure", "go_omission"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1, 0}, v)

	_, err = c.Vector([]string{"go", "stop_success"})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestColumnsSkipCancelledTerms(t *testing.T) {
	c := MustParse("x", "(a-b)-(c-b)")
	assert.Equal(t, []string{"a", "c"}, c.Columns())
	assert.Zero(t, c.Weight("b"))
	assert.Equal(t, -1.0, c.Weight("c"))
}

func TestSet(t *testing.T) {
	s := Set{
		MustParse("neg-con", "neg-con"),
		MustParse("task-baseline", "1/4*(con+pos+neg+memory_and_cue)"),
	}

	assert.Equal(t, []string{"neg", "con", "pos", "memory_and_cue"}, s.Referenced())

	c, ok := s.Get("task-baseline")
	require.True(t, ok)
	assert.Equal(t, "1/4*(con+pos+neg+memory_and_cue)", c.String())

	m, err := s.Matrix([]string{"con", "pos", "neg", "omission", "memory_and_cue"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1, 0, 0}, m[0])
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0, 0.25}, m[1])

	assert.Equal(t, map[string]string{"neg-con": "neg-con", "task-baseline": "1/4*(con+pos+neg+memory_and_cue)"}, s.Expressions())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("x", "a*b") })
}
