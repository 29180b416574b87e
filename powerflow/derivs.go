// Package powerflow evaluates AC power flow equations in polar coordinates
// together with their first and second derivatives with respect to the bus
// voltage angles Va and magnitudes Vm.
package powerflow

import (
	"math/cmplx"

	"power-system-opf/sparse"
)

// CBlocks holds the complex second derivative blocks of a scalar function of
// (Va, Vm): AA = ∂²/∂Va², AV = ∂²/∂Va∂Vm, VA = ∂²/∂Vm∂Va, VV = ∂²/∂Vm².
type CBlocks struct {
	AA, AV, VA, VV *sparse.CMatrix
}

// Blocks is the real counterpart of CBlocks.
type Blocks struct {
	AA, AV, VA, VV *sparse.Matrix
}

// normalize returns V/|V| and 1/|V|.
func normalize(v []complex128) (vn []complex128, inv []complex128, err error) {
	vn = make([]complex128, len(v))
	inv = make([]complex128, len(v))
	for i, vi := range v {
		m := cmplx.Abs(vi)
		if m == 0 {
			return nil, nil, &NumericDegeneracyError{Bus: i}
		}
		vn[i] = vi / complex(m, 0)
		inv[i] = complex(1/m, 0)
	}
	return vn, inv, nil
}

func conj(x []complex128) []complex128 {
	y := make([]complex128, len(x))
	for i, v := range x {
		y[i] = cmplx.Conj(v)
	}
	return y
}

func hadamard(a, b []complex128) []complex128 {
	y := make([]complex128, len(a))
	for i := range a {
		y[i] = a[i] * b[i]
	}
	return y
}

func scaled(a []complex128, s complex128) []complex128 {
	y := make([]complex128, len(a))
	for i := range a {
		y[i] = a[i] * s
	}
	return y
}

func gather(v []complex128, idx []int) []complex128 {
	y := make([]complex128, len(idx))
	for k, i := range idx {
		y[k] = v[i]
	}
	return y
}

func lift(x []float64) []complex128 {
	y := make([]complex128, len(x))
	for i, v := range x {
		y[i] = complex(v, 0)
	}
	return y
}

// incidence returns the n×nb matrix with vals[l] at (l, idx[l]).
func incidence(nb int, idx []int, vals []complex128) *sparse.CMatrix {
	t := sparse.NewCTriplet(len(idx), nb)
	for l, i := range idx {
		t.Append(l, i, vals[l])
	}
	return t.Matrix()
}

// DSbusDV returns the partial derivatives of the complex bus injections
// V⊙conj(Ybus·V) with respect to voltage angle and magnitude.
func DSbusDV(ybus *sparse.CMatrix, v []complex128) (dVa, dVm *sparse.CMatrix, err error) {
	vn, _, err := normalize(v)
	if err != nil {
		return nil, nil, err
	}
	ibus := ybus.MulVec(v)

	// diag(V)·conj(Ybus·diag(Vnorm)) + conj(diag(Ibus))·diag(Vnorm)
	dVm = ybus.Scale(nil, vn).Conj().Scale(v, nil).Add(sparse.CDiag(hadamard(conj(ibus), vn)))
	// j·diag(V)·conj(diag(Ibus) - Ybus·diag(V))
	dVa = sparse.CDiag(ibus).Sub(ybus.Scale(nil, v)).Conj().Scale(scaled(v, 1i), nil)
	return dVa, dVm, nil
}

// BranchDerivs holds the first derivatives of one end of the branch flows.
type BranchDerivs struct {
	DVa, DVm *sparse.CMatrix
	// Flow is the branch quantity itself (S or I) at that end.
	Flow []complex128
}

// DSbrDV returns the derivatives of the complex power flows at the bus
// selected by idx for branches with If = ybr·V.
func DSbrDV(ybr *sparse.CMatrix, idx []int, v []complex128) (*BranchDerivs, error) {
	vn, _, err := normalize(v)
	if err != nil {
		return nil, err
	}
	nb := len(v)
	ibr := ybr.MulVec(v)
	vbr := gather(v, idx)
	conjI := conj(ibr)

	// j·(conj(diag(If))·sp(f, V(f)) - diag(Vf)·conj(Yf·diag(V)))
	dVa := incidence(nb, idx, hadamard(conjI, vbr)).
		Sub(ybr.Scale(nil, v).Conj().Scale(vbr, nil)).
		ScaleBy(1i)
	// diag(Vf)·conj(Yf·diag(Vnorm)) + conj(diag(If))·sp(f, Vnorm(f))
	dVm := ybr.Scale(nil, vn).Conj().Scale(vbr, nil).
		Add(incidence(nb, idx, hadamard(conjI, gather(vn, idx))))

	return &BranchDerivs{DVa: dVa, DVm: dVm, Flow: hadamard(vbr, conjI)}, nil
}

// DIbrDV returns the derivatives of the branch currents ybr·V.
func DIbrDV(ybr *sparse.CMatrix, v []complex128) (*BranchDerivs, error) {
	vn, _, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return &BranchDerivs{
		DVa:  ybr.Scale(nil, scaled(v, 1i)),
		DVm:  ybr.Scale(nil, vn),
		Flow: ybr.MulVec(v),
	}, nil
}

// DAbrDV returns the derivatives of the squared magnitudes |F|² from the
// derivatives of the complex quantities F.
func DAbrDV(d *BranchDerivs) (dVa, dVm *sparse.Matrix) {
	re := make([]float64, len(d.Flow))
	im := make([]float64, len(d.Flow))
	for l, s := range d.Flow {
		re[l] = 2 * real(s)
		im[l] = 2 * imag(s)
	}
	dVa = d.DVa.Real().Scale(re, nil).Add(d.DVa.Imag().Scale(im, nil))
	dVm = d.DVm.Real().Scale(re, nil).Add(d.DVm.Imag().Scale(im, nil))
	return dVa, dVm
}

// RealPart keeps only the real part of the flows and their derivatives so
// that DAbrDV and D2ASbrDV2 yield derivatives of P².
func (d *BranchDerivs) RealPart() *BranchDerivs {
	flow := make([]complex128, len(d.Flow))
	for l, s := range d.Flow {
		flow[l] = complex(real(s), 0)
	}
	return &BranchDerivs{
		DVa:  sparse.Complex(d.DVa.Real()),
		DVm:  sparse.Complex(d.DVm.Real()),
		Flow: flow,
	}
}
