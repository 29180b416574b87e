package network

import (
	"math"
	"math/cmplx"

	"power-system-opf/sparse"
)

// tap returns the complex turns ratio of a branch.
func (br *Branch) tap() complex128 {
	ratio := br.Ratio
	if ratio == 0 {
		ratio = 1
	}
	return cmplx.Rect(ratio, br.Shift*math.Pi/180)
}

// admittance returns the two-port admittances of the π model.
func (br *Branch) admittance() (yff, yft, ytf, ytt complex128) {
	if br.OutOfService {
		return 0, 0, 0, 0
	}
	ys := 1 / complex(br.R, br.X)
	tap := br.tap()
	ytt = ys + complex(0, br.B/2)
	yff = ytt / (tap * cmplx.Conj(tap))
	yft = -ys / cmplx.Conj(tap)
	ytf = -ys / tap
	return yff, yft, ytf, ytt
}

// MakeYbus builds the bus admittance matrix and the branch matrices Yf and
// Yt with If = Yf·V and It = Yt·V. Shunts are taken from the buses in p.u.
// of the case base.
func MakeYbus(c *Case) (ybus, yf, yt *sparse.CMatrix) {
	nb, nl := len(c.Buses), len(c.Branches)
	y := sparse.NewCTriplet(nb, nb)
	f := sparse.NewCTriplet(nl, nb)
	t := sparse.NewCTriplet(nl, nb)
	for l := range c.Branches {
		br := &c.Branches[l]
		i, j := br.From-1, br.To-1
		yff, yft, ytf, ytt := br.admittance()
		f.Append(l, i, yff)
		f.Append(l, j, yft)
		t.Append(l, i, ytf)
		t.Append(l, j, ytt)
		// 互导纳与自导纳
		y.Append(i, i, yff)
		y.Append(i, j, yft)
		y.Append(j, i, ytf)
		y.Append(j, j, ytt)
	}
	for i, bus := range c.Buses {
		// 对地支路
		if bus.Gs != 0 || bus.Bs != 0 {
			y.Append(i, i, complex(bus.Gs, bus.Bs)/complex(c.BaseMVA, 0))
		}
	}
	return y.Matrix(), f.Matrix(), t.Matrix()
}

// MakeBdc builds the DC power flow matrices: Pbus = Bbus·Va + Pbusinj and
// Pf = Bf·Va + Pfinj, all in p.u.
func MakeBdc(c *Case) (bbus, bf *sparse.Matrix, pbusinj, pfinj []float64) {
	nb, nl := len(c.Buses), len(c.Branches)
	b := sparse.NewTriplet(nb, nb)
	f := sparse.NewTriplet(nl, nb)
	pbusinj = make([]float64, nb)
	pfinj = make([]float64, nl)
	for l := range c.Branches {
		br := &c.Branches[l]
		if br.OutOfService {
			continue
		}
		i, j := br.From-1, br.To-1
		ratio := br.Ratio
		if ratio == 0 {
			ratio = 1
		}
		s := 1 / (br.X * ratio)
		f.Append(l, i, s)
		f.Append(l, j, -s)
		b.Append(i, i, s)
		b.Append(i, j, -s)
		b.Append(j, i, -s)
		b.Append(j, j, s)
		pfinj[l] = -s * br.Shift * math.Pi / 180
		pbusinj[i] += pfinj[l]
		pbusinj[j] -= pfinj[l]
	}
	return b.Matrix(), f.Matrix(), pbusinj, pfinj
}

// BranchConnection returns the from and to bus incidence matrices (nl×nb).
func BranchConnection(c *Case) (cf, ct *sparse.Matrix) {
	nb, nl := len(c.Buses), len(c.Branches)
	f := sparse.NewTriplet(nl, nb)
	t := sparse.NewTriplet(nl, nb)
	for l, br := range c.Branches {
		f.Append(l, br.From-1, 1)
		t.Append(l, br.To-1, 1)
	}
	return f.Matrix(), t.Matrix()
}

// GenConnection returns the bus-generator incidence matrix (nb×ng).
func GenConnection(c *Case) *sparse.Matrix {
	m := sparse.NewTriplet(len(c.Buses), len(c.Generators))
	for k, g := range c.Generators {
		m.Append(g.Bus-1, k, 1)
	}
	return m.Matrix()
}

// Demand returns the fixed bus load (Pd + jQd) in p.u.
func Demand(c *Case) []complex128 {
	sd := make([]complex128, len(c.Buses))
	for i, bus := range c.Buses {
		sd[i] = complex(bus.Pd, bus.Qd) / complex(c.BaseMVA, 0)
	}
	return sd
}

// MakeSbus returns the net complex injection Cg·(Pg + jQg) − Sd in p.u. for
// generator outputs given in p.u.
func MakeSbus(c *Case, pg, qg []float64) []complex128 {
	s := Demand(c)
	for i := range s {
		s[i] = -s[i]
	}
	for k, g := range c.Generators {
		s[g.Bus-1] += complex(pg[k], qg[k])
	}
	return s
}

// Voltages returns the complex bus voltages Vm·exp(j·Va) with Va in radians.
func Voltages(vm, va []float64) []complex128 {
	v := make([]complex128, len(vm))
	for i := range vm {
		v[i] = cmplx.Rect(vm[i], va[i])
	}
	return v
}
