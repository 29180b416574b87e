package opf

import (
	"math"

	"github.com/pkg/errors"

	"power-system-opf/cost"
	"power-system-opf/model"
	"power-system-opf/network"
	"power-system-opf/powerflow"
	"power-system-opf/sparse"
)

const deg2rad = math.Pi / 180

// formulation is the optimisation model of an internal case together with
// the evaluators its callbacks use.
type formulation struct {
	c    *network.Case
	dc   bool
	m    *model.Model
	cost *cost.Evaluator
	ref  int
	// rate limited branches
	il []int
	// branches with angle difference limits
	iang []int

	// DC branch flow Pf = Bf·Va + Pfinj
	bf    *sparse.Matrix
	pfinj []float64

	pf *powerflow.Evaluator
}

func newFormulation(c *network.Case, dc, angleLimits bool, limit powerflow.FlowLimit) (*formulation, error) {
	cost.PWL1ToPoly(c.Generators)
	if err := cost.Check(c.Generators); err != nil {
		return nil, err
	}
	f := &formulation{c: c, dc: dc, m: model.New(), ref: c.RefBuses()[0]}
	if err := f.addVars(); err != nil {
		return nil, err
	}

	pg, _ := f.m.Var("Pg")
	yOff := 0
	if y, ok := f.m.Var("y"); ok {
		yOff = y.I1
	}
	var err error
	f.cost, err = cost.NewEvaluator(c.Generators, c.BaseMVA, pg.I1, yOff, f.m.NumVars())
	if err != nil {
		return nil, err
	}

	if dc {
		err = f.addDC()
	} else {
		err = f.addAC(limit)
	}
	if err != nil {
		return nil, err
	}
	if angleLimits {
		if err := f.addAngleLimits(); err != nil {
			return nil, err
		}
	}
	if f.cost.NumY() > 0 {
		a, l, u, err := cost.Basin(c.Generators, c.BaseMVA)
		if err != nil {
			return nil, err
		}
		if _, err := f.m.AddLinConstraint("ycon", a, l, u, []string{"Pg", "y"}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *formulation) addVars() error {
	c := f.c
	nb, ng := len(c.Buses), len(c.Generators)
	base := c.BaseMVA

	va0 := make([]float64, nb)
	val := make([]float64, nb)
	vau := make([]float64, nb)
	for i, bus := range c.Buses {
		va0[i] = bus.Va * deg2rad
		val[i], vau[i] = math.Inf(-1), math.Inf(1)
	}
	val[f.ref], vau[f.ref] = va0[f.ref], va0[f.ref]
	if _, err := f.m.AddVar("Va", nb, va0, val, vau); err != nil {
		return err
	}

	if !f.dc {
		vm0 := make([]float64, nb)
		vml := make([]float64, nb)
		vmu := make([]float64, nb)
		for i, bus := range c.Buses {
			vm0[i], vml[i], vmu[i] = bus.Vm, bus.VMin, bus.VMax
		}
		for _, g := range c.Generators {
			vm0[g.Bus-1] = g.Vg
		}
		if _, err := f.m.AddVar("Vm", nb, vm0, vml, vmu); err != nil {
			return err
		}
	}

	pg0 := make([]float64, ng)
	pgl := make([]float64, ng)
	pgu := make([]float64, ng)
	for k, g := range c.Generators {
		pg0[k], pgl[k], pgu[k] = g.Pg/base, g.PMin/base, g.PMax/base
	}
	if _, err := f.m.AddVar("Pg", ng, pg0, pgl, pgu); err != nil {
		return err
	}

	if !f.dc {
		qg0 := make([]float64, ng)
		qgl := make([]float64, ng)
		qgu := make([]float64, ng)
		for k, g := range c.Generators {
			qg0[k], qgl[k], qgu[k] = g.Qg/base, g.QMin/base, g.QMax/base
		}
		if _, err := f.m.AddVar("Qg", ng, qg0, qgl, qgu); err != nil {
			return err
		}
	}

	ny := 0
	for _, g := range c.Generators {
		if g.Cost.Model == network.PiecewiseLinear {
			ny++
		}
	}
	if ny > 0 {
		if _, err := f.m.AddVar("y", ny, nil, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// addDC adds the linearised power balance and branch flow limits.
func (f *formulation) addDC() error {
	c := f.c
	base := c.BaseMVA
	bbus, bf, pbusinj, pfinj := network.MakeBdc(c)
	f.bf, f.pfinj = bf, pfinj

	// B·Va - Cg·Pg = -(Pd + Gs)/base - Pbusinj
	a := sparse.HStack(bbus, network.GenConnection(c).ScaleBy(-1))
	rhs := make([]float64, len(c.Buses))
	for i, bus := range c.Buses {
		rhs[i] = -(bus.Pd+bus.Gs)/base - pbusinj[i]
	}
	if _, err := f.m.AddLinConstraint("Pmis", a, rhs, rhs, []string{"Va", "Pg"}); err != nil {
		return err
	}

	var upf, upt []float64
	for l, br := range c.Branches {
		if br.RateA > 0 && br.RateA < 1e10 {
			f.il = append(f.il, l)
			upf = append(upf, br.RateA/base-pfinj[l])
			upt = append(upt, br.RateA/base+pfinj[l])
		}
	}
	bfl := bf.SelectRows(f.il)
	if _, err := f.m.AddLinConstraint("Pf", bfl, nil, upf, []string{"Va"}); err != nil {
		return err
	}
	_, err := f.m.AddLinConstraint("Pt", bfl.ScaleBy(-1), nil, upt, []string{"Va"})
	return err
}

// addAC reserves the nonlinear rows and adds the constant power factor rows
// of dispatchable loads.
func (f *formulation) addAC(limit powerflow.FlowLimit) error {
	c := f.c
	nb, ng := len(c.Buses), len(c.Generators)
	i1 := func(name string) int {
		v, _ := f.m.Var(name)
		return v.I1
	}
	idx := powerflow.Index{Va: i1("Va"), Vm: i1("Vm"), Pg: i1("Pg"), Qg: i1("Qg"), NX: f.m.NumVars()}
	f.pf = powerflow.NewEvaluator(c, limit, idx)
	f.il = f.pf.Constrained()
	nl2 := len(f.il)
	for _, nc := range []struct {
		name string
		n    int
	}{{"Pmis", nb}, {"Qmis", nb}, {"Sf", nl2}, {"St", nl2}} {
		if _, err := f.m.AddNlnConstraint(nc.name, nc.n); err != nil {
			return err
		}
	}

	// Qlim·Pg - Pmin·Qg = 0 keeps the power factor given by Pmin and the
	// non-zero Q limit.
	var ivl []int
	for k := range c.Generators {
		g := &c.Generators[k]
		if !g.IsLoad() || g.QMin == 0 && g.QMax == 0 {
			continue
		}
		if g.QMin != 0 && g.QMax != 0 {
			return errors.Wrapf(ErrDispatchableLoad, "generator at bus %d", g.Bus)
		}
		ivl = append(ivl, k)
	}
	t := sparse.NewTriplet(len(ivl), 2*ng)
	for r, k := range ivl {
		g := &c.Generators[k]
		qlim := g.QMax
		if g.QMax == 0 {
			qlim = g.QMin
		}
		t.Append(r, k, qlim/c.BaseMVA)
		t.Append(r, ng+k, -g.PMin/c.BaseMVA)
	}
	zero := make([]float64, len(ivl))
	_, err := f.m.AddLinConstraint("vl", t.Matrix(), zero, zero, []string{"Pg", "Qg"})
	return err
}

// addAngleLimits bounds Va(from) - Va(to) for branches with a non-zero limit
// inside ±360 degrees.
func (f *formulation) addAngleLimits() error {
	c := f.c
	var l, u []float64
	for i, br := range c.Branches {
		hasMin := br.AngMin != 0 && br.AngMin > -360
		hasMax := br.AngMax != 0 && br.AngMax < 360
		if !hasMin && !hasMax {
			continue
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if hasMin {
			lo = br.AngMin * deg2rad
		}
		if hasMax {
			hi = br.AngMax * deg2rad
		}
		f.iang = append(f.iang, i)
		l = append(l, lo)
		u = append(u, hi)
	}
	t := sparse.NewTriplet(len(f.iang), len(c.Buses))
	for r, i := range f.iang {
		t.Append(r, c.Branches[i].From-1, 1)
		t.Append(r, c.Branches[i].To-1, -1)
	}
	_, err := f.m.AddLinConstraint("ang", t.Matrix(), l, u, []string{"Va"})
	return err
}

// initialPoint returns the middle of the variable bounds, with infinite
// bounds clipped to ±1e10, all angles at the reference angle and the cost
// variables above the largest piecewise linear cost. Voltage magnitudes
// start from the bus voltages and generator set-points, kept inside their
// limits.
func (f *formulation) initialPoint() []float64 {
	v0, xmin, xmax := f.m.Bounds()
	x0 := make([]float64, len(xmin))
	for i := range x0 {
		x0[i] = (math.Max(xmin[i], -1e10) + math.Min(xmax[i], 1e10)) / 2
	}
	if vm, ok := f.m.Var("Vm"); ok {
		for i := vm.I1; i < vm.I1+vm.N; i++ {
			x0[i] = math.Max(xmin[i], math.Min(v0[i], xmax[i]))
		}
	}
	va := f.m.Split("Va", x0)
	ref := f.c.Buses[f.ref].Va * deg2rad
	for i := range va {
		va[i] = ref
	}
	if y := f.m.Split("y", x0); y != nil {
		maxc := cost.MaxPWLCost(f.c.Generators)
		for i := range y {
			y[i] = maxc + 0.1*math.Abs(maxc)
		}
	}
	return x0
}
