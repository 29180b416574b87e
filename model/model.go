// Package model is the registry of named decision variable sets and
// constraint sets that make up an optimisation problem. Every set occupies a
// contiguous index range assigned in registration order.
package model

import (
	"math"

	"power-system-opf/sparse"
)

// VarSet is a named block of decision variables occupying x[I1:IN+1].
type VarSet struct {
	Name string
	N    int
	I1   int
	IN   int
	V0   []float64
	VL   []float64
	VU   []float64
}

// LinConstraint is a block of rows L ≤ A·[x_v1; x_v2; ...] ≤ U where the
// columns of A follow the referenced variable sets in order.
type LinConstraint struct {
	Name string
	N    int
	I1   int
	IN   int
	A    *sparse.Matrix
	L    []float64
	U    []float64
	Vars []string

	vars []*VarSet
}

// NlnConstraint reserves rows of the nonlinear equality or inequality
// vector for a named block.
type NlnConstraint struct {
	Name string
	N    int
	I1   int
	IN   int
}

// Model keeps the registered sets.
type Model struct {
	vars    []*VarSet
	lin     []*LinConstraint
	nln     []*NlnConstraint
	byName  map[string]*VarSet
	linName map[string]*LinConstraint
	nlnName map[string]*NlnConstraint
	nx      int
	nlin    int
	nnln    int
}

func New() *Model {
	return &Model{
		byName:  make(map[string]*VarSet),
		linName: make(map[string]*LinConstraint),
		nlnName: make(map[string]*NlnConstraint),
	}
}

// AddVar registers n variables. Nil v0, vl and vu default to 0, -Inf and
// +Inf.
func (m *Model) AddVar(name string, n int, v0, vl, vu []float64) (*VarSet, error) {
	if _, ok := m.byName[name]; ok {
		return nil, &DuplicateNameError{Kind: "variable set", Name: name}
	}
	if n < 0 {
		return nil, &DimensionMismatchError{Name: name, Got: n, Want: 0}
	}
	v0, err := fill(name, v0, n, 0)
	if err != nil {
		return nil, err
	}
	vl, err = fill(name, vl, n, math.Inf(-1))
	if err != nil {
		return nil, err
	}
	vu, err = fill(name, vu, n, math.Inf(1))
	if err != nil {
		return nil, err
	}
	v := &VarSet{Name: name, N: n, I1: m.nx, IN: m.nx + n - 1, V0: v0, VL: vl, VU: vu}
	m.vars = append(m.vars, v)
	m.byName[name] = v
	m.nx += n
	return v, nil
}

// AddLinConstraint registers the rows L ≤ A·x[vars] ≤ U. Nil l and u default
// to -Inf and +Inf.
func (m *Model) AddLinConstraint(name string, a *sparse.Matrix, l, u []float64, vars []string) (*LinConstraint, error) {
	if _, ok := m.linName[name]; ok {
		return nil, &DuplicateNameError{Kind: "linear constraint", Name: name}
	}
	refs := make([]*VarSet, len(vars))
	width := 0
	for k, v := range vars {
		vs, ok := m.byName[v]
		if !ok {
			return nil, &UnknownNameError{Constraint: name, Name: v}
		}
		refs[k] = vs
		width += vs.N
	}
	n, cols := a.Dims()
	if cols != width {
		return nil, &DimensionMismatchError{Name: name, Got: cols, Want: width}
	}
	l, err := fill(name, l, n, math.Inf(-1))
	if err != nil {
		return nil, err
	}
	u, err = fill(name, u, n, math.Inf(1))
	if err != nil {
		return nil, err
	}
	for i := range l {
		if l[i] > u[i] {
			return nil, &BoundOrderError{Name: name, Row: i, L: l[i], U: u[i]}
		}
	}
	c := &LinConstraint{
		Name: name,
		N:    n,
		I1:   m.nlin,
		IN:   m.nlin + n - 1,
		A:    a,
		L:    l,
		U:    u,
		Vars: append([]string(nil), vars...),
		vars: refs,
	}
	m.lin = append(m.lin, c)
	m.linName[name] = c
	m.nlin += n
	return c, nil
}

// AddNlnConstraint reserves n rows of nonlinear constraints.
func (m *Model) AddNlnConstraint(name string, n int) (*NlnConstraint, error) {
	if _, ok := m.nlnName[name]; ok {
		return nil, &DuplicateNameError{Kind: "nonlinear constraint", Name: name}
	}
	c := &NlnConstraint{Name: name, N: n, I1: m.nnln, IN: m.nnln + n - 1}
	m.nln = append(m.nln, c)
	m.nlnName[name] = c
	m.nnln += n
	return c, nil
}

// Var looks up a variable set by name.
func (m *Model) Var(name string) (*VarSet, bool) {
	v, ok := m.byName[name]
	return v, ok
}

// Lin looks up a linear constraint set by name.
func (m *Model) Lin(name string) (*LinConstraint, bool) {
	c, ok := m.linName[name]
	return c, ok
}

// Nln looks up a nonlinear constraint set by name.
func (m *Model) Nln(name string) (*NlnConstraint, bool) {
	c, ok := m.nlnName[name]
	return c, ok
}

// NumVars returns the total number of decision variables.
func (m *Model) NumVars() int { return m.nx }

// NumLin returns the total number of linear constraint rows.
func (m *Model) NumLin() int { return m.nlin }

// NumNln returns the total number of nonlinear constraint rows.
func (m *Model) NumNln() int { return m.nnln }

// Vars returns the variable sets in registration order.
func (m *Model) Vars() []*VarSet { return append([]*VarSet(nil), m.vars...) }

// LinearConstraints assembles every linear set into one NumLin×NumVars
// matrix with its bounds, rows in registration order.
func (m *Model) LinearConstraints() (a *sparse.Matrix, l, u []float64) {
	t := sparse.NewTriplet(m.nlin, m.nx)
	l = make([]float64, 0, m.nlin)
	u = make([]float64, 0, m.nlin)
	for _, c := range m.lin {
		// global column of every local column
		cols := make([]int, 0, c.A.NNZ())
		for _, vs := range c.vars {
			for k := 0; k < vs.N; k++ {
				cols = append(cols, vs.I1+k)
			}
		}
		c.A.DoNonZero(func(i, j int, v float64) {
			t.Append(c.I1+i, cols[j], v)
		})
		l = append(l, c.L...)
		u = append(u, c.U...)
	}
	return t.Matrix(), l, u
}

// Bounds returns the initial point and variable bounds in registration order.
func (m *Model) Bounds() (x0, xmin, xmax []float64) {
	x0 = make([]float64, 0, m.nx)
	xmin = make([]float64, 0, m.nx)
	xmax = make([]float64, 0, m.nx)
	for _, v := range m.vars {
		x0 = append(x0, v.V0...)
		xmin = append(xmin, v.VL...)
		xmax = append(xmax, v.VU...)
	}
	return x0, xmin, xmax
}

// Split returns the slice of x belonging to the named variable set. The
// result aliases x.
func (m *Model) Split(name string, x []float64) []float64 {
	v, ok := m.byName[name]
	if !ok {
		return nil
	}
	return x[v.I1 : v.I1+v.N]
}

// Rows returns the slice of a constraint-ordered vector that belongs to the
// named linear set.
func (m *Model) Rows(name string, y []float64) []float64 {
	c, ok := m.linName[name]
	if !ok {
		return nil
	}
	return y[c.I1 : c.I1+c.N]
}

func fill(name string, v []float64, n int, def float64) ([]float64, error) {
	if v == nil {
		v = make([]float64, n)
		for i := range v {
			v[i] = def
		}
		return v, nil
	}
	if len(v) != n {
		return nil, &DimensionMismatchError{Name: name, Got: len(v), Want: n}
	}
	return append([]float64(nil), v...), nil
}
