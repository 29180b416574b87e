package powerflow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"power-system-opf/network"
	"power-system-opf/sparse"
)

// FlowLimit selects the quantity bounded by branch ratings.
type FlowLimit int

const (
	// ApparentPower bounds |S| at each branch end.
	ApparentPower FlowLimit = iota
	// RealPower bounds |P| at each branch end.
	RealPower
	// Current bounds |I| at each branch end, in p.u. of the rating at 1 p.u.
	Current
)

func (l FlowLimit) String() string {
	switch l {
	case ApparentPower:
		return "S"
	case RealPower:
		return "P"
	case Current:
		return "I"
	}
	return fmt.Sprintf("FlowLimit(%d)", int(l))
}

func ParseFlowLimit(s string) (FlowLimit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "S":
		return ApparentPower, nil
	case "P":
		return RealPower, nil
	case "I":
		return Current, nil
	}
	return 0, errors.Errorf("powerflow: unknown flow limit %q", s)
}

func (l FlowLimit) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *FlowLimit) UnmarshalText(b []byte) (err error) {
	*l, err = ParseFlowLimit(string(b))
	return err
}

// Index gives the offsets of the voltage and dispatch variable blocks inside
// the decision vector of length NX.
type Index struct {
	Va, Vm, Pg, Qg int
	NX             int
}

// Evaluator computes the nonlinear OPF constraints of a case: bus power
// balance (equalities) and branch flow limits (inequalities).
type Evaluator struct {
	ybus   *sparse.CMatrix
	yf, yt *sparse.CMatrix
	cf, ct *sparse.Matrix
	f, t   []int
	cg     *sparse.Matrix
	sd     []complex128
	limit  FlowLimit
	fmax   []float64
	il     []int
	nb, ng int
	idx    Index
}

// NewEvaluator prepares the network matrices of an internal case. Only
// branches with 0 < RateA < 1e10 get flow limit rows.
func NewEvaluator(c *network.Case, limit FlowLimit, idx Index) *Evaluator {
	ybus, yf, yt := network.MakeYbus(c)
	cf, ct := network.BranchConnection(c)
	e := &Evaluator{
		ybus:  ybus,
		cg:    network.GenConnection(c),
		sd:    network.Demand(c),
		limit: limit,
		nb:    len(c.Buses),
		ng:    len(c.Generators),
		idx:   idx,
	}
	for l, br := range c.Branches {
		if br.RateA > 0 && br.RateA < 1e10 {
			e.il = append(e.il, l)
			r := br.RateA / c.BaseMVA
			e.fmax = append(e.fmax, r*r)
			e.f = append(e.f, br.From-1)
			e.t = append(e.t, br.To-1)
		}
	}
	e.yf, e.yt = yf.SelectRows(e.il), yt.SelectRows(e.il)
	e.cf, e.ct = cf.SelectRows(e.il), ct.SelectRows(e.il)
	return e
}

// Constrained returns the indices of the rate-limited branches.
func (e *Evaluator) Constrained() []int { return append([]int(nil), e.il...) }

// NumEq returns the number of equality rows (2·nb).
func (e *Evaluator) NumEq() int { return 2 * e.nb }

// NumIneq returns the number of flow limit rows (2·len(Constrained())).
func (e *Evaluator) NumIneq() int { return 2 * len(e.il) }

// Voltages returns the complex bus voltages at x.
func (e *Evaluator) Voltages(x []float64) []complex128 {
	return network.Voltages(x[e.idx.Vm:e.idx.Vm+e.nb], x[e.idx.Va:e.idx.Va+e.nb])
}

func (e *Evaluator) sbus(x []float64) []complex128 {
	pg := x[e.idx.Pg : e.idx.Pg+e.ng]
	qg := x[e.idx.Qg : e.idx.Qg+e.ng]
	s := make([]complex128, e.nb)
	for i := range s {
		s[i] = -e.sd[i]
	}
	e.cg.DoNonZero(func(i, k int, v float64) {
		s[i] += complex(v*pg[k], v*qg[k])
	})
	return s
}

// Mismatch returns g = [Re; Im](V⊙conj(Ybus·V) - Sbus) and its Jacobian.
func (e *Evaluator) Mismatch(x []float64) ([]float64, *sparse.Matrix, error) {
	v := e.Voltages(x)
	dVa, dVm, err := DSbusDV(e.ybus, v)
	if err != nil {
		return nil, nil, err
	}
	sbus := e.sbus(x)
	ibus := e.ybus.MulVec(v)
	g := make([]float64, 2*e.nb)
	for i := range v {
		mis := v[i]*complex(real(ibus[i]), -imag(ibus[i])) - sbus[i]
		g[i] = real(mis)
		g[e.nb+i] = imag(mis)
	}

	t := sparse.NewTriplet(2*e.nb, e.idx.NX)
	t.AppendMatrix(dVa.Real(), 0, e.idx.Va)
	t.AppendMatrix(dVm.Real(), 0, e.idx.Vm)
	t.AppendMatrix(dVa.Imag(), e.nb, e.idx.Va)
	t.AppendMatrix(dVm.Imag(), e.nb, e.idx.Vm)
	t.AppendScaled(e.cg, 0, e.idx.Pg, -1)
	t.AppendScaled(e.cg, e.nb, e.idx.Qg, -1)
	return g, t.Matrix(), nil
}

// branchDerivs returns the first derivatives of the limited quantity at both
// branch ends.
func (e *Evaluator) branchDerivs(v []complex128) (from, to *BranchDerivs, err error) {
	if e.limit == Current {
		if from, err = DIbrDV(e.yf, v); err != nil {
			return nil, nil, err
		}
		to, err = DIbrDV(e.yt, v)
		return from, to, err
	}
	if from, err = DSbrDV(e.yf, e.f, v); err != nil {
		return nil, nil, err
	}
	if to, err = DSbrDV(e.yt, e.t, v); err != nil {
		return nil, nil, err
	}
	if e.limit == RealPower {
		from, to = from.RealPart(), to.RealPart()
	}
	return from, to, nil
}

// Flows returns the flow limit rows h = [|Ff|² - Fmax²; |Ft|² - Fmax²] and
// their Jacobian.
func (e *Evaluator) Flows(x []float64) ([]float64, *sparse.Matrix, error) {
	nl2 := len(e.il)
	if nl2 == 0 {
		return nil, sparse.Zeros(0, e.idx.NX), nil
	}
	from, to, err := e.branchDerivs(e.Voltages(x))
	if err != nil {
		return nil, nil, err
	}
	h := make([]float64, 2*nl2)
	for l := 0; l < nl2; l++ {
		sf, st := from.Flow[l], to.Flow[l]
		h[l] = real(sf)*real(sf) + imag(sf)*imag(sf) - e.fmax[l]
		h[nl2+l] = real(st)*real(st) + imag(st)*imag(st) - e.fmax[l]
	}

	fVa, fVm := DAbrDV(from)
	tVa, tVm := DAbrDV(to)
	t := sparse.NewTriplet(2*nl2, e.idx.NX)
	t.AppendMatrix(fVa, 0, e.idx.Va)
	t.AppendMatrix(fVm, 0, e.idx.Vm)
	t.AppendMatrix(tVa, nl2, e.idx.Va)
	t.AppendMatrix(tVm, nl2, e.idx.Vm)
	return h, t.Matrix(), nil
}

// Constraints evaluates the inequality rows h ≤ 0 and equality rows g = 0
// with their Jacobians (rows are constraints, columns variables).
func (e *Evaluator) Constraints(x []float64) (h, g []float64, dh, dg *sparse.Matrix, err error) {
	if g, dg, err = e.Mismatch(x); err != nil {
		return nil, nil, nil, nil, err
	}
	if h, dh, err = e.Flows(x); err != nil {
		return nil, nil, nil, nil, err
	}
	return h, g, dh, dg, nil
}

// Hessian returns Σ lam_i·∇²g_i + Σ mu_j·∇²h_j, with lam ordered as the
// rows of Mismatch and mu as the rows of Flows.
func (e *Evaluator) Hessian(x, lam, mu []float64) (*sparse.Matrix, error) {
	v := e.Voltages(x)
	gp, err := D2SbusDV2(e.ybus, v, lam[:e.nb])
	if err != nil {
		return nil, err
	}
	gq, err := D2SbusDV2(e.ybus, v, lam[e.nb:])
	if err != nil {
		return nil, err
	}
	t := sparse.NewTriplet(e.idx.NX, e.idx.NX)
	e.appendBlocks(t, &Blocks{
		AA: gp.AA.Real().Add(gq.AA.Imag()),
		AV: gp.AV.Real().Add(gq.AV.Imag()),
		VA: gp.VA.Real().Add(gq.VA.Imag()),
		VV: gp.VV.Real().Add(gq.VV.Imag()),
	})

	if nl2 := len(e.il); nl2 > 0 {
		from, to, err := e.branchDerivs(v)
		if err != nil {
			return nil, err
		}
		var hf, ht *Blocks
		if e.limit == Current {
			if hf, err = D2AIbrDV2(from, e.yf, v, mu[:nl2]); err != nil {
				return nil, err
			}
			ht, err = D2AIbrDV2(to, e.yt, v, mu[nl2:])
		} else {
			if hf, err = D2ASbrDV2(from, e.cf, e.yf, v, mu[:nl2]); err != nil {
				return nil, err
			}
			ht, err = D2ASbrDV2(to, e.ct, e.yt, v, mu[nl2:])
		}
		if err != nil {
			return nil, err
		}
		e.appendBlocks(t, hf)
		e.appendBlocks(t, ht)
	}
	return t.Matrix(), nil
}

func (e *Evaluator) appendBlocks(t *sparse.Triplet, b *Blocks) {
	t.AppendMatrix(b.AA, e.idx.Va, e.idx.Va)
	t.AppendMatrix(b.AV, e.idx.Va, e.idx.Vm)
	t.AppendMatrix(b.VA, e.idx.Vm, e.idx.Va)
	t.AppendMatrix(b.VV, e.idx.Vm, e.idx.Vm)
}

// BranchFlows returns the complex power injected at the from and to ends of
// every branch (p.u.).
func BranchFlows(c *network.Case, v []complex128) (sf, st []complex128) {
	_, yf, yt := network.MakeYbus(c)
	ifr, ito := yf.MulVec(v), yt.MulVec(v)
	sf = make([]complex128, len(c.Branches))
	st = make([]complex128, len(c.Branches))
	for l, br := range c.Branches {
		a, b := v[br.From-1], v[br.To-1]
		sf[l] = a * complex(real(ifr[l]), -imag(ifr[l]))
		st[l] = b * complex(real(ito[l]), -imag(ito[l]))
	}
	return sf, st
}
