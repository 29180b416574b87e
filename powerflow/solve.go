package powerflow

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"power-system-opf/network"
	"power-system-opf/sparse"
)

const deg2rad = math.Pi / 180

// Solver runs DC and full Newton AC power flows. Zero fields take the
// values of NewSolver.
type Solver struct {
	// Tol is the largest accepted power mismatch in p.u.
	Tol float64 `json:"tol" yaml:"tol"`
	// MaxIt is the Newton iteration limit.
	MaxIt  int         `json:"max_it" yaml:"max_it"`
	Logger *zap.Logger `json:"-" yaml:"-"`
}

func NewSolver() *Solver {
	return &Solver{Tol: 1e-8, MaxIt: 10, Logger: zap.NewNop()}
}

func (s *Solver) withDefaults() Solver {
	d := *NewSolver()
	if s == nil {
		return d
	}
	out := *s
	if out.Tol <= 0 {
		out.Tol = d.Tol
	}
	if out.MaxIt <= 0 {
		out.MaxIt = d.MaxIt
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	return out
}

// buses is the internal case with its bus classification.
type buses struct {
	in     *network.Case
	mp     *network.Mapping
	ref    int
	refGen int
	pv, pq []int
	pvpq   []int
}

func classify(c *network.Case) (*buses, error) {
	in, mp, err := c.Internal()
	if err != nil {
		return nil, errors.Wrap(err, "powerflow: invalid case")
	}
	refs := in.RefBuses()
	if len(refs) != 1 {
		return nil, errors.Wrapf(ErrReferenceBus, "found %d reference buses", len(refs))
	}
	b := &buses{in: in, mp: mp, ref: refs[0], refGen: -1}
	hasGen := make([]bool, len(in.Buses))
	for k, g := range in.Generators {
		hasGen[g.Bus-1] = true
		if g.Bus-1 == b.ref && b.refGen < 0 {
			b.refGen = k
		}
	}
	if b.refGen < 0 {
		return nil, errors.Wrap(ErrReferenceBus, "no generator at the reference bus")
	}
	// a PV bus without a generator holds no voltage
	for i, bus := range in.Buses {
		switch {
		case i == b.ref:
		case bus.Type == network.PV && hasGen[i]:
			b.pv = append(b.pv, i)
		default:
			b.pq = append(b.pq, i)
		}
	}
	b.pvpq = append(append([]int(nil), b.pv...), b.pq...)
	return b, nil
}

// DC solves B·Va = Pbus for the bus angles with the reference angle fixed
// and assigns the balance to the first generator at the reference bus.
func (s *Solver) DC(c *network.Case) (*Solution, error) {
	opt := s.withDefaults()
	b, err := classify(c)
	if err != nil {
		return nil, err
	}
	in := b.in
	base := in.BaseMVA
	bbus, bf, pbusinj, pfinj := network.MakeBdc(in)
	pg, qg := dispatch(in)
	sbus := network.MakeSbus(in, pg, qg)
	pbus := make([]float64, len(in.Buses))
	for i, bus := range in.Buses {
		pbus[i] = real(sbus[i]) - pbusinj[i] - bus.Gs/base
	}

	va := make([]float64, len(in.Buses))
	va[b.ref] = in.Buses[b.ref].Va * deg2rad
	if n := len(b.pvpq); n > 0 {
		a := mat.NewDense(n, n, nil)
		place(a, bbus, b.pvpq, b.pvpq, 0, 0)
		rhs := make([]float64, n)
		for r, i := range b.pvpq {
			rhs[r] = pbus[i] - bbus.At(i, b.ref)*va[b.ref]
		}
		theta, err := solveDense(a, rhs)
		if err != nil {
			return nil, err
		}
		for r, i := range b.pvpq {
			va[i] = theta[r]
		}
	}

	pinj := bbus.MulVec(va)
	pg[b.refGen] += pinj[b.ref] - pbus[b.ref]
	pf := bf.MulVec(va)
	sf := make([]complex128, len(in.Branches))
	st := make([]complex128, len(in.Branches))
	for l := range pf {
		p := pf[l] + pfinj[l]
		sf[l], st[l] = complex(p, 0), complex(-p, 0)
	}
	vm := make([]float64, len(in.Buses))
	for i := range vm {
		vm[i] = 1
	}
	opt.Logger.Info("dc power flow solved", zap.Int("buses", len(in.Buses)))
	return b.solution(c, true, true, 0, 0, vm, va, sf, st, pg, make([]float64, len(pg))), nil
}

// Newton solves the AC power flow with full Newton steps on the real
// mismatch of PV and PQ buses and the reactive mismatch of PQ buses, from
// the case voltages with generator buses at their set-points. An iteration
// limit is reported through Solution.Converged.
func (s *Solver) Newton(ctx context.Context, c *network.Case) (*Solution, error) {
	opt := s.withDefaults()
	b, err := classify(c)
	if err != nil {
		return nil, err
	}
	in := b.in
	nb := len(in.Buses)
	ybus, _, _ := network.MakeYbus(in)
	pg, qg := dispatch(in)
	sbus := network.MakeSbus(in, pg, qg)

	vm := make([]float64, nb)
	va := make([]float64, nb)
	for i, bus := range in.Buses {
		vm[i], va[i] = bus.Vm, bus.Va*deg2rad
	}
	for _, g := range in.Generators {
		if i := g.Bus - 1; i == b.ref || contains(b.pv, i) {
			vm[i] = g.Vg
		}
	}

	npvpq, npq := len(b.pvpq), len(b.pq)
	v := network.Voltages(vm, va)
	f := b.mismatch(ybus, v, sbus)
	normF := infNorm(f)
	converged := normF < opt.Tol
	it := 0
	for !converged && it < opt.MaxIt {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "powerflow: newton interrupted")
		}
		it++
		dVa, dVm, err := DSbusDV(ybus, v)
		if err != nil {
			return nil, err
		}
		n := npvpq + npq
		j := mat.NewDense(n, n, nil)
		place(j, dVa.Real(), b.pvpq, b.pvpq, 0, 0)
		place(j, dVm.Real(), b.pvpq, b.pq, 0, npvpq)
		place(j, dVa.Imag(), b.pq, b.pvpq, npvpq, 0)
		place(j, dVm.Imag(), b.pq, b.pq, npvpq, npvpq)
		dx, err := solveDense(j, f)
		if err != nil {
			return nil, err
		}
		for r, i := range b.pvpq {
			va[i] -= dx[r]
		}
		for r, i := range b.pq {
			vm[i] -= dx[npvpq+r]
		}
		v = network.Voltages(vm, va)
		f = b.mismatch(ybus, v, sbus)
		normF = infNorm(f)
		converged = normF < opt.Tol
		opt.Logger.Debug("newton iteration", zap.Int("it", it), zap.Float64("mismatch", normF))
	}

	// generators at the reference and PV buses pick up the computed injection
	sinj := injections(ybus, v)
	base := in.BaseMVA
	pg[b.refGen] += real(sinj[b.ref] - sbus[b.ref])
	share := make([]int, nb)
	for _, g := range in.Generators {
		share[g.Bus-1]++
	}
	for k, g := range in.Generators {
		i := g.Bus - 1
		if i == b.ref || contains(b.pv, i) {
			qg[k] = (imag(sinj[i]) + in.Buses[i].Qd/base) / float64(share[i])
		}
	}
	sf, st := BranchFlows(in, v)
	for i := range vm {
		vm[i], va[i] = cmplx.Abs(v[i]), cmplx.Phase(v[i])
	}

	if converged {
		opt.Logger.Info("newton power flow converged", zap.Int("iterations", it))
	} else {
		opt.Logger.Warn("newton power flow did not converge",
			zap.Int("iterations", it),
			zap.Float64("mismatch", normF),
		)
	}
	return b.solution(c, false, converged, it, normF, vm, va, sf, st, pg, qg), nil
}

// mismatch returns [Re(ΔS) at PV and PQ buses; Im(ΔS) at PQ buses].
func (b *buses) mismatch(ybus *sparse.CMatrix, v, sbus []complex128) []float64 {
	ds := injections(ybus, v)
	f := make([]float64, 0, len(b.pvpq)+len(b.pq))
	for _, i := range b.pvpq {
		f = append(f, real(ds[i]-sbus[i]))
	}
	for _, i := range b.pq {
		f = append(f, imag(ds[i]-sbus[i]))
	}
	return f
}

func injections(ybus *sparse.CMatrix, v []complex128) []complex128 {
	return hadamard(v, conj(ybus.MulVec(v)))
}

// dispatch returns the generator outputs in p.u.
func dispatch(c *network.Case) (pg, qg []float64) {
	pg = make([]float64, len(c.Generators))
	qg = make([]float64, len(c.Generators))
	for k, g := range c.Generators {
		pg[k], qg[k] = g.Pg/c.BaseMVA, g.Qg/c.BaseMVA
	}
	return pg, qg
}

// place copies m[rows, cols] into dst at (r0, c0).
func place(dst *mat.Dense, m *sparse.Matrix, rows, cols []int, r0, c0 int) {
	_, nc := m.Dims()
	col := make([]int, nc)
	for j := range col {
		col[j] = -1
	}
	for k, j := range cols {
		col[j] = k
	}
	nr, _ := m.Dims()
	row := make([]int, nr)
	for i := range row {
		row[i] = -1
	}
	for k, i := range rows {
		row[i] = k
	}
	m.DoNonZero(func(i, j int, v float64) {
		if row[i] >= 0 && col[j] >= 0 {
			dst.Set(r0+row[i], c0+col[j], dst.At(r0+row[i], c0+col[j])+v)
		}
	})
}

func solveDense(a *mat.Dense, b []float64) ([]float64, error) {
	n, _ := a.Dims()
	var lu mat.LU
	lu.Factorize(a)
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(n, append([]float64(nil), b...))); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, ErrSingular
		}
	}
	sol := x.RawVector().Data
	if floats.HasNaN(sol) {
		return nil, ErrSingular
	}
	return sol, nil
}

func infNorm(f []float64) float64 {
	if len(f) == 0 {
		return 0
	}
	return floats.Norm(f, math.Inf(1))
}

func contains(idx []int, i int) bool {
	for _, k := range idx {
		if k == i {
			return true
		}
	}
	return false
}
