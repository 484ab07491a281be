package logit

import (
	"fmt"
	"sort"

	apperrors "abtest/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// InterceptName is the column name of the constant term
const InterceptName = "intercept"

// Design is a named design matrix: an optional intercept plus indicator columns
type Design struct {
	names []string
	x     *mat.Dense
}

// Names returns the column names in order
func (d *Design) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Dims returns rows and columns
func (d *Design) Dims() (int, int) {
	return d.x.Dims()
}

// HasIntercept reports whether the first column is the constant term
func (d *Design) HasIntercept() bool {
	return len(d.names) > 0 && d.names[0] == InterceptName
}

// Matrix exposes the underlying matrix read-only
func (d *Design) Matrix() mat.Matrix {
	return d.x
}

// DesignBuilder assembles a Design column by column. The first error sticks
// and is returned from Build.
type DesignBuilder struct {
	rows  int
	names []string
	cols  [][]float64
	err   error
}

// NewDesign starts a design with the given number of rows
func NewDesign(rows int) *DesignBuilder {
	b := &DesignBuilder{rows: rows}
	if rows <= 0 {
		b.err = apperrors.InvalidInput(fmt.Sprintf("design needs at least one row, got %d", rows))
	}
	return b
}

// Intercept adds the constant column
func (b *DesignBuilder) Intercept() *DesignBuilder {
	if b.err != nil {
		return b
	}
	col := make([]float64, b.rows)
	for i := range col {
		col[i] = 1
	}
	return b.add(InterceptName, col)
}

// Indicator adds a 0/1 column computed per row
func (b *DesignBuilder) Indicator(name string, fn func(row int) bool) *DesignBuilder {
	if b.err != nil {
		return b
	}
	col := make([]float64, b.rows)
	for i := range col {
		if fn(i) {
			col[i] = 1
		}
	}
	return b.add(name, col)
}

// Categorical expands a factor into one indicator per level, dropping the
// reference level so the columns stay collinear-free next to an intercept.
// Levels are ordered lexically; an empty reference drops the first level.
func (b *DesignBuilder) Categorical(factor string, level func(row int) string, reference string) *DesignBuilder {
	if b.err != nil {
		return b
	}

	values := make([]string, b.rows)
	seen := map[string]bool{}
	for i := range values {
		values[i] = level(i)
		seen[values[i]] = true
	}

	levels := make([]string, 0, len(seen))
	for l := range seen {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	if reference == "" {
		reference = levels[0]
	}
	if !seen[reference] {
		b.err = apperrors.InvalidInput(fmt.Sprintf("reference level %q not present in factor %q", reference, factor))
		return b
	}

	for _, l := range levels {
		if l == reference {
			continue
		}
		col := make([]float64, b.rows)
		for i, v := range values {
			if v == l {
				col[i] = 1
			}
		}
		b.add(l, col)
	}
	return b
}

func (b *DesignBuilder) add(name string, col []float64) *DesignBuilder {
	for _, existing := range b.names {
		if existing == name {
			b.err = apperrors.InvalidInput(fmt.Sprintf("duplicate design column %q", name))
			return b
		}
	}
	b.names = append(b.names, name)
	b.cols = append(b.cols, col)
	return b
}

// Build materialises the row-major design matrix
func (b *DesignBuilder) Build() (*Design, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.cols) == 0 {
		return nil, apperrors.InvalidInput("design has no columns")
	}

	k := len(b.cols)
	data := make([]float64, b.rows*k)
	for j, col := range b.cols {
		for i, v := range col {
			data[i*k+j] = v
		}
	}
	return &Design{names: append([]string(nil), b.names...), x: mat.NewDense(b.rows, k, data)}, nil
}
