// Package confounds selects nuisance covariates from an fMRIPrep confound
// table.
package confounds

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/KyungWonPark/FirstLevel/internal/io"
)

// Whitelist matches the confound columns kept in every design: the cosine
// drift basis, the first five anatomical CompCor components, framewise
// displacement and the six rigid-body parameters with their derivatives.
var Whitelist = regexp.MustCompile(`cosine|a_comp_cor_0[0-4]|framewise_displacement` +
	`|trans_x$|trans_x_derivative1$` +
	`|trans_y$|trans_y_derivative1$` +
	`|trans_z$|trans_z_derivative1$` +
	`|rot_x$|rot_x_derivative1$` +
	`|rot_y$|rot_y_derivative1$` +
	`|rot_z$|rot_z_derivative1$`)

// Set is an ordered group of confound columns of equal length.
type Set struct {
	Names   []string
	Columns [][]float64
}

// Rows returns the number of time points, or 0 for an empty set.
func (s *Set) Rows() int {
	if s == nil || len(s.Columns) == 0 {
		return 0
	}
	return len(s.Columns[0])
}

// Len returns the number of columns.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Names)
}

// Read loads a tab separated confound file and selects the whitelisted columns.
func Read(path string) (*Set, error) {
	t, err := io.ReadTable(path, '\t')
	if err != nil {
		return nil, err
	}
	s, err := Select(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Select keeps the whitelisted columns of t in source order. Missing values
// read as 0.
func Select(t *io.Table) (*Set, error) {
	s := &Set{}
	for j, name := range t.Header {
		if !Whitelist.MatchString(name) {
			continue
		}

		col := make([]float64, len(t.Rows))
		for i, row := range t.Rows {
			if j >= len(row) {
				continue
			}
			v, err := parse(row[j])
			if err != nil {
				return nil, fmt.Errorf("confounds: row %d column %q: %w", i+1, name, err)
			}
			col[i] = v
		}
		s.Names = append(s.Names, name)
		s.Columns = append(s.Columns, col)
	}
	return s, nil
}

func parse(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "n/a", "nan":
		return 0, nil
	}
	return strconv.ParseFloat(cell, 64)
}
