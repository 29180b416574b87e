package opf

import (
	"fmt"
	"io"
	"text/tabwriter"

	"power-system-opf/network"
	"power-system-opf/pips"
	"power-system-opf/powerflow"
)

// BusResult is the solution at one bus. Prices are in $/MWh and $/MVArh,
// voltage limit multipliers in $/p.u.h.
type BusResult struct {
	InService bool
	Va        float64 // degrees
	Vm        float64
	LamP      float64
	LamQ      float64
	MuVMax    float64
	MuVMin    float64
}

// BranchResult holds the branch end flows (MW, MVAr) and the multipliers of
// the flow ($/MVAh) and angle difference ($/deg h) limits.
type BranchResult struct {
	InService bool
	Pf, Qf    float64
	Pt, Qt    float64
	MuSf      float64
	MuSt      float64
	MuAngMin  float64
	MuAngMax  float64
}

// GenResult is the dispatch of one generator with its limit multipliers in
// $/MWh and $/MVArh.
type GenResult struct {
	InService bool
	Pg, Qg    float64
	Vg        float64
	MuPMax    float64
	MuPMin    float64
	MuQMax    float64
	MuQMin    float64
}

// Result is an OPF solution indexed like the case that was solved. Elements
// removed before solving are marked not in service.
type Result struct {
	DC     bool
	Status pips.Status
	Reason pips.FailReason
	// F is the total generation cost in $/h.
	F float64
	// X is the decision vector of the internal model.
	X      []float64
	Lambda pips.Multipliers
	Output pips.Output

	Buses      []BusResult
	Branches   []BranchResult
	Generators []GenResult
}

func (r *Result) Converged() bool { return r.Status == pips.Converged }

func (f *formulation) result(res *pips.Result, orig *network.Case, mp *network.Mapping) *Result {
	out := &Result{
		DC:         f.dc,
		Status:     res.Status,
		Reason:     res.Reason,
		F:          res.F,
		X:          res.X,
		Lambda:     res.Lambda,
		Output:     res.Output,
		Buses:      make([]BusResult, len(orig.Buses)),
		Branches:   make([]BranchResult, len(orig.Branches)),
		Generators: make([]GenResult, len(orig.Generators)),
	}
	c := f.c
	base := c.BaseMVA
	nb := len(c.Buses)
	x, lam := res.X, res.Lambda

	va := f.m.Split("Va", x)
	vm := make([]float64, nb)
	lamP := make([]float64, nb)
	lamQ := make([]float64, nb)
	if f.dc {
		for i, bus := range c.Buses {
			vm[i] = bus.Vm
		}
		muL, muU := f.m.Rows("Pmis", lam.MuL), f.m.Rows("Pmis", lam.MuU)
		for i := range lamP {
			lamP[i] = (muU[i] - muL[i]) / base
		}
	} else {
		copy(vm, f.m.Split("Vm", x))
		pm, _ := f.m.Nln("Pmis")
		qm, _ := f.m.Nln("Qmis")
		for i := range lamP {
			lamP[i] = lam.EqNonlin[pm.I1+i] / base
			lamQ[i] = lam.EqNonlin[qm.I1+i] / base
		}
	}

	vmSet, _ := f.m.Var("Vm")
	for i := range c.Buses {
		b := &out.Buses[mp.Buses[i]]
		*b = BusResult{
			InService: true,
			Va:        va[i] / deg2rad,
			Vm:        vm[i],
			LamP:      lamP[i],
			LamQ:      lamQ[i],
		}
		if vmSet != nil {
			b.MuVMax = lam.Upper[vmSet.I1+i]
			b.MuVMin = lam.Lower[vmSet.I1+i]
		}
	}

	nl := len(c.Branches)
	flows := make([]BranchResult, nl)
	if f.dc {
		pf := f.bf.MulVec(va)
		for l := range flows {
			p := (pf[l] + f.pfinj[l]) * base
			flows[l].Pf, flows[l].Pt = p, -p
		}
		pfU, ptU := f.m.Rows("Pf", lam.MuU), f.m.Rows("Pt", lam.MuU)
		for k, l := range f.il {
			flows[l].MuSf = pfU[k] / base
			flows[l].MuSt = ptU[k] / base
		}
	} else {
		sf, st := powerflow.BranchFlows(c, f.pf.Voltages(x))
		for l := range flows {
			flows[l].Pf, flows[l].Qf = real(sf[l])*base, imag(sf[l])*base
			flows[l].Pt, flows[l].Qt = real(st[l])*base, imag(st[l])*base
		}
		// squared limits: d(F²)/dF at the rating is 2·rate
		sfRows, _ := f.m.Nln("Sf")
		stRows, _ := f.m.Nln("St")
		neq := f.pf.NumEq()
		for k, l := range f.il {
			rate := c.Branches[l].RateA
			flows[l].MuSf = 2 * lam.IneqNonlin[sfRows.I1-neq+k] * rate / base / base
			flows[l].MuSt = 2 * lam.IneqNonlin[stRows.I1-neq+k] * rate / base / base
		}
	}
	if len(f.iang) > 0 {
		angL, angU := f.m.Rows("ang", lam.MuL), f.m.Rows("ang", lam.MuU)
		for k, l := range f.iang {
			flows[l].MuAngMin = angL[k] * deg2rad
			flows[l].MuAngMax = angU[k] * deg2rad
		}
	}
	for l := range flows {
		flows[l].InService = true
		out.Branches[mp.Branches[l]] = flows[l]
	}

	pg := f.m.Split("Pg", x)
	pgSet, _ := f.m.Var("Pg")
	qgSet, _ := f.m.Var("Qg")
	for k, g := range c.Generators {
		r := GenResult{
			InService: true,
			Pg:        pg[k] * base,
			Vg:        g.Vg,
			MuPMax:    lam.Upper[pgSet.I1+k] / base,
			MuPMin:    lam.Lower[pgSet.I1+k] / base,
		}
		if qgSet != nil {
			r.Qg = x[qgSet.I1+k] * base
			r.Vg = vm[g.Bus-1]
			r.MuQMax = lam.Upper[qgSet.I1+k] / base
			r.MuQMin = lam.Lower[qgSet.I1+k] / base
		}
		out.Generators[mp.Generators[k]] = r
	}
	return out
}

// Apply writes the solution into c, which must have the shape of the solved
// case. Out of service branches and generators get zero flows and output.
// A DC solution leaves voltage magnitudes and every reactive quantity as
// they are.
func (r *Result) Apply(c *network.Case) error {
	if r.Status == pips.NumericallyFailed {
		return ErrNotSolved
	}
	if len(c.Buses) != len(r.Buses) || len(c.Branches) != len(r.Branches) || len(c.Generators) != len(r.Generators) {
		return ErrCaseMismatch
	}
	for i, rb := range r.Buses {
		if !rb.InService {
			continue
		}
		b := &c.Buses[i]
		b.Va, b.LamP = rb.Va, rb.LamP
		if !r.DC {
			b.Vm, b.LamQ = rb.Vm, rb.LamQ
			b.MuVMax, b.MuVMin = rb.MuVMax, rb.MuVMin
		}
	}
	for l, rb := range r.Branches {
		br := &c.Branches[l]
		br.Pf, br.Pt = rb.Pf, rb.Pt
		br.MuSf, br.MuSt = rb.MuSf, rb.MuSt
		br.MuAngMin, br.MuAngMax = rb.MuAngMin, rb.MuAngMax
		if !r.DC || !rb.InService {
			br.Qf, br.Qt = rb.Qf, rb.Qt
		}
	}
	for k, rg := range r.Generators {
		g := &c.Generators[k]
		g.OutOfService = !rg.InService
		g.Pg = rg.Pg
		g.MuPMax, g.MuPMin = rg.MuPMax, rg.MuPMin
		if !r.DC || !rg.InService {
			g.Qg = rg.Qg
			g.MuQMax, g.MuQMin = rg.MuQMax, rg.MuQMin
		}
		if rg.InService && !r.DC {
			g.Vg = rg.Vg
		}
	}
	return nil
}

// Fprint writes the solution as bus, generator and branch tables.
func (r *Result) Fprint(w io.Writer) error {
	kind := "AC"
	if r.DC {
		kind = "DC"
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s OPF %s in %d iterations, cost %.2f $/h\n\n", kind, r.Status, r.Output.Iterations, r.F)

	fmt.Fprintln(tw, "bus\tVm\tVa\tlamP\tlamQ\tmuVmax\tmuVmin\t")
	for i, b := range r.Buses {
		if !b.InService {
			continue
		}
		fmt.Fprintf(tw, "%d\t%.4f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t\n", i+1, b.Vm, b.Va, b.LamP, b.LamQ, b.MuVMax, b.MuVMin)
	}
	fmt.Fprintln(tw, "\ngen\tPg\tQg\tVg\tmuPmax\tmuPmin\tmuQmax\tmuQmin\t")
	for k, g := range r.Generators {
		if !g.InService {
			continue
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.4f\t%.3f\t%.3f\t%.3f\t%.3f\t\n", k+1, g.Pg, g.Qg, g.Vg, g.MuPMax, g.MuPMin, g.MuQMax, g.MuQMin)
	}
	fmt.Fprintln(tw, "\nbranch\tPf\tQf\tPt\tQt\tmuSf\tmuSt\t")
	for l, b := range r.Branches {
		if !b.InService {
			continue
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.3f\t%.3f\t\n", l+1, b.Pf, b.Qf, b.Pt, b.Qt, b.MuSf, b.MuSt)
	}
	return tw.Flush()
}
