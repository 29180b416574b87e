package powerflow

import (
	"fmt"
	"io"
	"text/tabwriter"

	"power-system-opf/network"
)

type BusState struct {
	InService bool
	Vm        float64
	Va        float64 // degrees
}

// BranchState holds the branch end flows in MW and MVAr.
type BranchState struct {
	InService bool
	Pf, Qf    float64
	Pt, Qt    float64
}

type GenState struct {
	InService bool
	Pg, Qg    float64
}

// Solution is a power flow result indexed like the case that was solved.
// A DC solution has unit voltage magnitudes and no reactive flows.
type Solution struct {
	DC         bool
	Converged  bool
	Iterations int
	// Mismatch is the largest remaining power mismatch in p.u.
	Mismatch float64

	Buses      []BusState
	Branches   []BranchState
	Generators []GenState
}

func (b *buses) solution(orig *network.Case, dc, converged bool, it int, mis float64,
	vm, va []float64, sf, st []complex128, pg, qg []float64) *Solution {
	base := b.in.BaseMVA
	s := &Solution{
		DC:         dc,
		Converged:  converged,
		Iterations: it,
		Mismatch:   mis,
		Buses:      make([]BusState, len(orig.Buses)),
		Branches:   make([]BranchState, len(orig.Branches)),
		Generators: make([]GenState, len(orig.Generators)),
	}
	for i, k := range b.mp.Buses {
		s.Buses[k] = BusState{InService: true, Vm: vm[i], Va: va[i] / deg2rad}
	}
	for l, k := range b.mp.Branches {
		s.Branches[k] = BranchState{
			InService: true,
			Pf:        real(sf[l]) * base,
			Qf:        imag(sf[l]) * base,
			Pt:        real(st[l]) * base,
			Qt:        imag(st[l]) * base,
		}
	}
	for g, k := range b.mp.Generators {
		s.Generators[k] = GenState{InService: true, Pg: pg[g] * base, Qg: qg[g] * base}
	}
	return s
}

// Apply writes a converged solution into c, which must have the shape of
// the solved case. A DC solution leaves voltage magnitudes and reactive
// quantities as they are.
func (s *Solution) Apply(c *network.Case) error {
	if !s.Converged {
		return ErrNotConverged
	}
	if len(c.Buses) != len(s.Buses) || len(c.Branches) != len(s.Branches) || len(c.Generators) != len(s.Generators) {
		return ErrCaseMismatch
	}
	for i, sb := range s.Buses {
		if !sb.InService {
			continue
		}
		c.Buses[i].Va = sb.Va
		if !s.DC {
			c.Buses[i].Vm = sb.Vm
		}
	}
	for l, sb := range s.Branches {
		br := &c.Branches[l]
		br.Pf, br.Pt = sb.Pf, sb.Pt
		if !s.DC || !sb.InService {
			br.Qf, br.Qt = sb.Qf, sb.Qt
		}
	}
	for k, sg := range s.Generators {
		if !sg.InService {
			continue
		}
		c.Generators[k].Pg = sg.Pg
		if !s.DC {
			c.Generators[k].Qg = sg.Qg
		}
	}
	return nil
}

// Fprint writes the bus voltages, generator outputs and branch flows.
func (s *Solution) Fprint(w io.Writer) error {
	kind, status := "AC", "converged"
	if s.DC {
		kind = "DC"
	}
	if !s.Converged {
		status = "did not converge"
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s power flow %s in %d iterations, mismatch %.2e p.u.\n\n", kind, status, s.Iterations, s.Mismatch)

	fmt.Fprintln(tw, "bus\tVm\tVa\t")
	for i, b := range s.Buses {
		if b.InService {
			fmt.Fprintf(tw, "%d\t%.4f\t%.3f\t\n", i+1, b.Vm, b.Va)
		}
	}
	fmt.Fprintln(tw, "\ngen\tPg\tQg\t")
	for k, g := range s.Generators {
		if g.InService {
			fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t\n", k+1, g.Pg, g.Qg)
		}
	}
	fmt.Fprintln(tw, "\nbranch\tPf\tQf\tPt\tQt\t")
	for l, b := range s.Branches {
		if b.InService {
			fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t\n", l+1, b.Pf, b.Qf, b.Pt, b.Qt)
		}
	}
	return tw.Flush()
}
