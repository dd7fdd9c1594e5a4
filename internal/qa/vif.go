package qa

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/gonum/matrix"
	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/stat"

	"github.com/KyungWonPark/FirstLevel/internal/calc"
	"github.com/KyungWonPark/FirstLevel/internal/contrast"
	"github.com/KyungWonPark/FirstLevel/internal/design"
)

// Intercept names the constant column appended before estimating VIFs.
const Intercept = "intercept"

// rcond is the relative cutoff below which singular values are treated as zero.
const rcond = 1e-15

// ErrEmptyDesign is returned for designs without scans or columns.
var ErrEmptyDesign = errors.New("qa: design has no scans or no columns")

// ReportFilter matches confound columns left out of the VIF report.
var ReportFilter = regexp.MustCompile(`(?:reject|trans|rot|comp_cor|non_steady)`)

// Factor is the variance inflation factor of one named regressor.
type Factor struct {
	Name  string
	Value float64
}

// pinv is the Moore-Penrose pseudo-inverse of a by thin SVD.
func pinv(a mat64.Matrix) (*mat64.Dense, error) {
	var svd mat64.SVD
	if ok := svd.Factorize(a, matrix.SVDThin); !ok {
		return nil, fmt.Errorf("[pinv] SVD did not converge")
	}
	s := svd.Values(nil)

	var u, v mat64.Dense
	u.UFromSVD(&svd)
	v.VFromSVD(&svd)

	tol := rcond * s[0]
	rows, _ := v.Dims()
	for j, sv := range s {
		inv := 0.0
		if sv > tol {
			inv = 1 / sv
		}
		for i := 0; i < rows; i++ {
			v.Set(i, j, v.At(i, j)*inv)
		}
	}

	var out mat64.Dense
	out.Mul(&v, u.T())
	return &out, nil
}

// nullSpace returns an orthonormal basis of the null space of a as columns,
// nil when the null space is trivial.
func nullSpace(a mat64.Matrix) (*mat64.Dense, error) {
	r, c := a.Dims()
	var svd mat64.SVD
	if ok := svd.Factorize(a, matrix.SVDFull); !ok {
		return nil, fmt.Errorf("[nullSpace] SVD did not converge")
	}
	s := svd.Values(nil)

	n := r
	if c > n {
		n = c
	}
	tol := math.Nextafter(1, 2) - 1
	tol *= float64(n) * s[0]

	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	if rank == c {
		return nil, nil
	}

	var v mat64.Dense
	v.VFromSVD(&svd)
	out := mat64.NewDense(c, c-rank, nil)
	for j := rank; j < c; j++ {
		out.SetCol(j-rank, mat64.Col(nil, j, &v))
	}
	return out, nil
}

// rSquared regresses y on the columns of x. The total sum of squares is
// taken around the mean when centered, around zero otherwise.
func rSquared(y []float64, x *mat64.Dense, centered bool) (float64, error) {
	p, err := pinv(x)
	if err != nil {
		return 0, err
	}

	n := len(y)
	yv := mat64.NewDense(n, 1, append([]float64(nil), y...))
	var beta, fit mat64.Dense
	beta.Mul(p, yv)
	fit.Mul(x, &beta)

	mean := 0.0
	if centered {
		mean = stat.Mean(y, nil)
	}
	var ssr, sst float64
	for i, v := range y {
		r := v - fit.At(i, 0)
		ssr += r * r
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 {
		return math.NaN(), nil
	}
	return 1 - ssr/sst, nil
}

// factors returns the VIF of every column of cols, where the last column is
// the intercept.
func factors(names []string, cols [][]float64, workers int) ([]Factor, error) {
	k := len(cols)
	n := len(cols[0])
	out := make([]Factor, k)
	errs := make([]error, k)

	calc.Init(workers).Each(k, func(i int) {
		out[i].Name = names[i]
		if k == 1 {
			out[i].Value = math.NaN()
			return
		}

		others := mat64.NewDense(n, k-1, nil)
		j := 0
		for c := range cols {
			if c == i {
				continue
			}
			others.SetCol(j, cols[c])
			j++
		}

		r2, err := rSquared(cols[i], others, i != k-1)
		if err != nil {
			errs[i] = err
			return
		}
		out[i].Value = 1 / (1 - r2)
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func withIntercept(names []string, cols [][]float64) ([]string, [][]float64) {
	ones := make([]float64, len(cols[0]))
	for i := range ones {
		ones[i] = 1
	}
	return append(append([]string(nil), names...), Intercept), append(append([][]float64(nil), cols...), ones)
}

func columns(m *design.Matrix) ([]string, [][]float64, error) {
	rows, n := m.Dims()
	if rows == 0 || n == 0 {
		return nil, nil, ErrEmptyDesign
	}
	names := m.Names()
	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j], _ = m.Column(name)
	}
	return names, cols, nil
}

// VIF returns the variance inflation factor of every design column and of
// an appended intercept, which comes last. A constant column yields NaN and a
// column that is an exact combination of the others yields +Inf.
func VIF(m *design.Matrix, workers int) ([]Factor, error) {
	names, cols, err := columns(m)
	if err != nil {
		return nil, err
	}
	names, cols = withIntercept(names, cols)
	return factors(names, cols, workers)
}

// Reported drops confound columns matched by ReportFilter.
func Reported(fs []Factor) []Factor {
	var out []Factor
	for _, f := range fs {
		if !ReportFilter.MatchString(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// ContrastVIF is the VIF of the effective regressor of c (Smith et al.,
// NeuroImage 2007). The columns weighted by c are reparametrized into the
// effective regressor and regressors spanning the rest of their space; the
// unweighted columns enter unchanged.
func ContrastVIF(m *design.Matrix, c contrast.Contrast) (float64, error) {
	names, cols, err := columns(m)
	if err != nil {
		return 0, err
	}
	w, err := c.Vector(names)
	if err != nil {
		return 0, err
	}

	var weights []float64
	var weighted, nuisance [][]float64
	for j, v := range w {
		if v != 0 {
			weights = append(weights, v)
			weighted = append(weighted, cols[j])
		} else {
			nuisance = append(nuisance, cols[j])
		}
	}
	if len(weights) == 0 {
		return 0, fmt.Errorf("[ContrastVIF] contrast %q has no nonzero weight", c.Name)
	}

	rows := len(cols[0])
	k := len(weights)
	x := mat64.NewDense(rows, k, nil)
	for j, col := range weighted {
		x.SetCol(j, col)
	}
	con := mat64.NewDense(1, k, weights)

	var xtx mat64.Dense
	xtx.Mul(x.T(), x)
	q, err := pinv(&xtx)
	if err != nil {
		return 0, err
	}

	var cq, cqc mat64.Dense
	cq.Mul(con, q)
	cqc.Mul(&cq, con.T())
	f1, err := pinv(&cqc)
	if err != nil {
		return 0, err
	}

	// effective regressor x q c' f1
	var xq, xqc, eff mat64.Dense
	xq.Mul(x, q)
	xqc.Mul(&xq, con.T())
	eff.Mul(&xqc, f1)

	regs := [][]float64{mat64.Col(nil, 0, &eff)}
	regNames := []string{c.Name}

	c2, err := nullSpace(con)
	if err != nil {
		return 0, err
	}
	if c2 != nil {
		// project the null space off the contrast: c3 = c2 - c' f1 c q c2
		var pc, cf, pcc2, c3 mat64.Dense
		cf.Mul(con.T(), f1)
		pc.Mul(&cf, &cq)
		pcc2.Mul(&pc, c2)
		c3.Sub(c2, &pcc2)

		var c3q, c3qc3 mat64.Dense
		c3q.Mul(c3.T(), q)
		c3qc3.Mul(&c3q, &c3)
		f3, err := pinv(&c3qc3)
		if err != nil {
			return 0, err
		}

		var xqc3, other mat64.Dense
		xqc3.Mul(&xq, &c3)
		other.Mul(&xqc3, f3)
		_, no := other.Dims()
		for j := 0; j < no; j++ {
			regs = append(regs, mat64.Col(nil, j, &other))
			regNames = append(regNames, fmt.Sprintf("orth_proj%d", j))
		}
	}

	for j, col := range nuisance {
		regs = append(regs, col)
		regNames = append(regNames, fmt.Sprintf("nuisance%d", j))
	}

	regNames, regs = withIntercept(regNames, regs)
	fs, err := factors(regNames, regs, 1)
	if err != nil {
		return 0, err
	}
	return fs[0].Value, nil
}

// ContrastVIFs returns the effective-regressor VIF of every contrast in s.
func ContrastVIFs(m *design.Matrix, s contrast.Set) ([]Factor, error) {
	out := make([]Factor, 0, len(s))
	for _, c := range s {
		v, err := ContrastVIF(m, c)
		if err != nil {
			return nil, err
		}
		out = append(out, Factor{Name: c.Name, Value: v})
	}
	return out, nil
}
