// Package cost evaluates generator cost curves as a function of the OPF
// decision vector.
package cost

import (
	"math"

	"power-system-opf/network"
	"power-system-opf/sparse"
)

// Polyval evaluates the polynomial p (highest order first) at x.
func Polyval(p []float64, x float64) float64 {
	var y float64
	for _, c := range p {
		y = y*x + c
	}
	return y
}

// Polyder returns the derivative of p (highest order first).
func Polyder(p []float64) []float64 {
	n := len(p) - 1
	if n <= 0 {
		return nil
	}
	d := make([]float64, n)
	for k := 0; k < n; k++ {
		d[k] = p[k] * float64(n-k)
	}
	return d
}

// Check verifies that every cost curve can be handled: polynomials of at
// most second order and piecewise linear curves with increasing breakpoints.
func Check(gens []network.Generator) error {
	for i := range gens {
		c := &gens[i].Cost
		switch c.Model {
		case network.Polynomial:
			if len(c.Coeffs) > 3 {
				return &UnsupportedCostOrderError{Gen: i, Order: len(c.Coeffs) - 1}
			}
		case network.PiecewiseLinear:
			if len(c.Points) < 2 {
				return &BadCostDataError{Gen: i, Reason: "fewer than two breakpoints"}
			}
			for k := 1; k < len(c.Points); k++ {
				if c.Points[k].P <= c.Points[k-1].P {
					return &BadCostDataError{Gen: i, Reason: "breakpoints not strictly increasing"}
				}
			}
		default:
			return &BadCostDataError{Gen: i, Reason: "unknown cost model"}
		}
	}
	return nil
}

// PWL1ToPoly replaces single segment piecewise linear costs with the
// equivalent linear polynomial.
func PWL1ToPoly(gens []network.Generator) {
	for i := range gens {
		c := &gens[i].Cost
		if c.Model != network.PiecewiseLinear || len(c.Points) != 2 {
			continue
		}
		p0, p1 := c.Points[0], c.Points[1]
		m := (p1.C - p0.C) / (p1.P - p0.P)
		c.Model = network.Polynomial
		c.Coeffs = []float64{m, p0.C - m*p0.P}
		c.Points = nil
	}
}

// Evaluator computes the objective Σ poly(Pg·base) + Σ y over the decision
// vector, where Pg is in p.u. and y holds one variable per piecewise linear
// cost. Reactive power is not costed.
type Evaluator struct {
	base  float64
	polys [][]float64
	ipol  []int
	ipwl  []int
	pg, y int
	nx    int
}

// NewEvaluator returns an evaluator for gens whose Pg block starts at pg and
// whose y block starts at y inside a decision vector of length nx.
func NewEvaluator(gens []network.Generator, baseMVA float64, pg, y, nx int) (*Evaluator, error) {
	if err := Check(gens); err != nil {
		return nil, err
	}
	e := &Evaluator{base: baseMVA, pg: pg, y: y, nx: nx, polys: make([][]float64, len(gens))}
	for i, g := range gens {
		if g.Cost.Model == network.PiecewiseLinear {
			e.ipwl = append(e.ipwl, i)
			continue
		}
		e.ipol = append(e.ipol, i)
		e.polys[i] = append([]float64(nil), g.Cost.Coeffs...)
	}
	return e, nil
}

// NumY returns the number of piecewise linear cost variables.
func (e *Evaluator) NumY() int { return len(e.ipwl) }

// Eval returns the objective, its gradient and its (diagonal) Hessian at x.
func (e *Evaluator) Eval(x []float64) (f float64, df []float64, d2f *sparse.Matrix) {
	df = make([]float64, e.nx)
	t := sparse.NewTriplet(e.nx, e.nx)
	for _, i := range e.ipol {
		p := e.polys[i]
		if len(p) == 0 {
			continue
		}
		pg := x[e.pg+i] * e.base
		f += Polyval(p, pg)
		d := Polyder(p)
		df[e.pg+i] = e.base * Polyval(d, pg)
		if dd := Polyder(d); len(dd) > 0 {
			t.Append(e.pg+i, e.pg+i, e.base*e.base*Polyval(dd, pg))
		}
	}
	for k := range e.ipwl {
		f += x[e.y+k]
		df[e.y+k] = 1
	}
	return f, df, t.Matrix()
}

// QP returns H, c and c0 with Eval(x) = ½xᵀHx + cᵀx + c0.
func (e *Evaluator) QP() (h *sparse.Matrix, c []float64, c0 float64) {
	c = make([]float64, e.nx)
	t := sparse.NewTriplet(e.nx, e.nx)
	for _, i := range e.ipol {
		var q [3]float64
		p := e.polys[i]
		copy(q[3-len(p):], p)
		if q[0] != 0 {
			t.Append(e.pg+i, e.pg+i, 2*q[0]*e.base*e.base)
		}
		c[e.pg+i] = q[1] * e.base
		c0 += q[2]
	}
	for k := range e.ipwl {
		c[e.y+k] = 1
	}
	return t.Matrix(), c, c0
}

// IsLinear reports whether no generator has a quadratic term.
func (e *Evaluator) IsLinear() bool {
	for _, i := range e.ipol {
		if p := e.polys[i]; len(p) == 3 && p[0] != 0 {
			return false
		}
	}
	return true
}

// Basin builds the constraints m_k·Pg - y ≤ m_k·p_k - c_k for every segment
// k of every piecewise linear cost. Columns are [Pg (len(gens)), y (NumY)];
// Pg is in p.u.
func Basin(gens []network.Generator, baseMVA float64) (a *sparse.Matrix, l, u []float64, err error) {
	if err := Check(gens); err != nil {
		return nil, nil, nil, err
	}
	var ipwl []int
	rows := 0
	for i, g := range gens {
		if g.Cost.Model == network.PiecewiseLinear {
			ipwl = append(ipwl, i)
			rows += len(g.Cost.Points) - 1
		}
	}
	t := sparse.NewTriplet(rows, len(gens)+len(ipwl))
	row := 0
	for k, i := range ipwl {
		pts := gens[i].Cost.Points
		for s := 0; s+1 < len(pts); s++ {
			p0, p1 := pts[s].P/baseMVA, pts[s+1].P/baseMVA
			m := (pts[s+1].C - pts[s].C) / (p1 - p0)
			t.Append(row, i, m)
			t.Append(row, len(gens)+k, -1)
			l = append(l, math.Inf(-1))
			u = append(u, m*p0-pts[s].C)
			row++
		}
	}
	return t.Matrix(), l, u, nil
}

// MaxPWLCost returns the largest cost among all breakpoints, or 0 when no
// generator has a piecewise linear cost.
func MaxPWLCost(gens []network.Generator) float64 {
	max, found := 0.0, false
	for _, g := range gens {
		if g.Cost.Model != network.PiecewiseLinear {
			continue
		}
		for _, p := range g.Cost.Points {
			if !found || p.C > max {
				max, found = p.C, true
			}
		}
	}
	return max
}

// Total returns the cost in $/h of producing p MW under c. Piecewise linear
// curves are extended beyond their end points along the outer segments.
func Total(c network.Cost, p float64) float64 {
	if c.Model == network.Polynomial {
		return Polyval(c.Coeffs, p)
	}
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}
	if len(pts) == 1 {
		return pts[0].C
	}
	k := 1
	for k < len(pts)-1 && p > pts[k].P {
		k++
	}
	p0, p1 := pts[k-1], pts[k]
	return p0.C + (p-p0.P)*(p1.C-p0.C)/(p1.P-p0.P)
}
