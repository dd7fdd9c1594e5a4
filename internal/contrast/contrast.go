// Package contrast parses linear contrasts over design matrix columns.
//
// Grammar:
//
//	expr   := term (('+' | '-') term)*
//	term   := factor (('*' | '/') factor)*
//	factor := number | name | '(' expr ')' | '-' factor | '+' factor
//
// A product needs a constant on one side and a quotient a constant divisor,
// so every accepted expression is a linear combination of columns.
package contrast

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSyntax is returned for malformed expressions.
	ErrSyntax = errors.New("contrast: syntax error")
	// ErrNonLinear is returned for products of columns, division by a
	// column, or a nonzero constant offset.
	ErrNonLinear = errors.New("contrast: expression is not linear in the columns")
	// ErrUnknownColumn is returned when a referenced column is absent from a design.
	ErrUnknownColumn = errors.New("contrast: unknown column")
)

// Term is one weighted column of a contrast.
type Term struct {
	Column string
	Weight float64
}

// Contrast is a named linear combination of design columns.
type Contrast struct {
	Name  string
	Expr  string
	Terms []Term
}

// Parse parses expr into a contrast called name. Repeated columns are
// merged and terms keep the order of first appearance.
func Parse(name, expr string) (Contrast, error) {
	p := &parser{src: expr}
	if err := p.scan(); err != nil {
		return Contrast{}, err
	}
	f, err := p.expr()
	if err != nil {
		return Contrast{}, err
	}
	if p.tok.kind != tokEOF {
		return Contrast{}, p.errorf("unexpected %q", p.tok.text)
	}
	if f.constant != 0 {
		return Contrast{}, fmt.Errorf("%w: %q has constant offset %g", ErrNonLinear, expr, f.constant)
	}

	c := Contrast{Name: name, Expr: strings.TrimSpace(expr)}
	for _, col := range f.order {
		c.Terms = append(c.Terms, Term{Column: col, Weight: f.coef[col]})
	}
	return c, nil
}

// MustParse is like Parse but panics on error. It is meant for contrast
// tables fixed at compile time.
func MustParse(name, expr string) Contrast {
	c, err := Parse(name, expr)
	if err != nil {
		panic(err)
	}
	return c
}

// Columns returns the columns carrying a nonzero weight.
func (c Contrast) Columns() []string {
	var out []string
	for _, t := range c.Terms {
		if t.Weight != 0 {
			out = append(out, t.Column)
		}
	}
	return out
}

// Weight returns the weight of a column, zero when it is not referenced.
func (c Contrast) Weight(column string) float64 {
	var w float64
	for _, t := range c.Terms {
		if t.Column == column {
			w += t.Weight
		}
	}
	return w
}

// Vector resolves the contrast against the ordered design columns.
func (c Contrast) Vector(columns []string) ([]float64, error) {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}

	v := make([]float64, len(columns))
	for _, t := range c.Terms {
		i, ok := index[t.Column]
		if !ok {
			return nil, fmt.Errorf("%w %q in contrast %q", ErrUnknownColumn, t.Column, c.Name)
		}
		v[i] += t.Weight
	}
	return v, nil
}

func (c Contrast) String() string { return c.Expr }

// Set is an ordered collection of contrasts with unique names.
type Set []Contrast

// Get returns the contrast called name.
func (s Set) Get(name string) (Contrast, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Contrast{}, false
}

// Matrix resolves every contrast against columns, one row per contrast.
func (s Set) Matrix(columns []string) ([][]float64, error) {
	out := make([][]float64, len(s))
	for i, c := range s {
		v, err := c.Vector(columns)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Referenced returns every column carrying a nonzero weight in any contrast,
// in order of first reference.
func (s Set) Referenced() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range s {
		for _, col := range c.Columns() {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// Expressions maps contrast names to their expression text.
func (s Set) Expressions() map[string]string {
	out := make(map[string]string, len(s))
	for _, c := range s {
		out[c.Name] = c.Expr
	}
	return out
}
