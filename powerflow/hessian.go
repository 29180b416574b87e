package powerflow

import (
	"power-system-opf/sparse"
)

// D2SbusDV2 returns the second derivatives of lamᵀ·(V⊙conj(Ybus·V)).
func D2SbusDV2(ybus *sparse.CMatrix, v []complex128, lam []float64) (*CBlocks, error) {
	_, inv, err := normalize(v)
	if err != nil {
		return nil, err
	}
	l := lift(lam)
	ibus := ybus.MulVec(v)
	lv := hadamard(l, v)

	b := ybus.Scale(nil, v)
	c := b.Conj().Scale(lv, nil)
	d := ybus.ConjTranspose().Scale(nil, v)
	e := d.Scale(nil, l).Sub(sparse.CDiag(d.MulVec(l))).Scale(conj(v), nil)
	f := c.Sub(sparse.CDiag(hadamard(lv, conj(ibus))))

	va := e.Sub(f).Scale(scaled(inv, 1i), nil)
	return &CBlocks{
		AA: e.Add(f),
		AV: va.Transpose(),
		VA: va,
		VV: c.Add(c.Transpose()).Scale(inv, inv),
	}, nil
}

// D2SbrDV2 returns the second derivatives of lamᵀ·Sbr where Sbr is the
// complex flow at the bus end given by the incidence matrix cbr.
func D2SbrDV2(cbr *sparse.Matrix, ybr *sparse.CMatrix, v, lam []complex128) (*CBlocks, error) {
	_, inv, err := normalize(v)
	if err != nil {
		return nil, err
	}
	a := ybr.ConjTranspose().Scale(nil, lam).Mul(sparse.Complex(cbr))
	b := a.Scale(conj(v), v)
	d := sparse.CDiag(hadamard(a.MulVec(v), conj(v)))
	e := sparse.CDiag(hadamard(a.MulVecT(conj(v)), v))
	f := b.Add(b.Transpose())

	va := b.Sub(b.Transpose()).Sub(d).Add(e).Scale(scaled(inv, 1i), nil)
	return &CBlocks{
		AA: f.Sub(d).Sub(e),
		AV: va.Transpose(),
		VA: va,
		VV: f.Scale(inv, inv),
	}, nil
}

// D2IbrDV2 returns the second derivatives of lamᵀ·(ybr·V).
func D2IbrDV2(ybr *sparse.CMatrix, v, lam []complex128) (*CBlocks, error) {
	_, inv, err := normalize(v)
	if err != nil {
		return nil, err
	}
	nb := len(v)
	aa := ybr.MulVecT(lam)
	for i := range aa {
		aa[i] = -aa[i] * v[i]
	}
	haa := sparse.CDiag(aa)
	hva := haa.Scale(nil, scaled(inv, -1i))
	return &CBlocks{AA: haa, AV: hva, VA: hva, VV: sparse.CZeros(nb, nb)}, nil
}

// D2ASbrDV2 returns the second derivatives of lamᵀ·|Sbr|² given the first
// derivatives of Sbr.
func D2ASbrDV2(d *BranchDerivs, cbr *sparse.Matrix, ybr *sparse.CMatrix, v []complex128, lam []float64) (*Blocks, error) {
	s, err := D2SbrDV2(cbr, ybr, v, hadamard(conj(d.Flow), lift(lam)))
	if err != nil {
		return nil, err
	}
	return squared(d, s, lam), nil
}

// D2AIbrDV2 returns the second derivatives of lamᵀ·|Ibr|² given the first
// derivatives of Ibr.
func D2AIbrDV2(d *BranchDerivs, ybr *sparse.CMatrix, v []complex128, lam []float64) (*Blocks, error) {
	s, err := D2IbrDV2(ybr, v, hadamard(conj(d.Flow), lift(lam)))
	if err != nil {
		return nil, err
	}
	return squared(d, s, lam), nil
}

// squared forms 2·Re(F″ + F′ᵀ·diag(lam)·conj(F′)) for each block.
func squared(d *BranchDerivs, s *CBlocks, lam []float64) *Blocks {
	l := lift(lam)
	outer := func(x, y *sparse.CMatrix) *sparse.CMatrix {
		return x.Transpose().Scale(nil, l).Mul(y.Conj())
	}
	part := func(h, o *sparse.CMatrix) *sparse.Matrix {
		return h.Add(o).Real().ScaleBy(2)
	}
	return &Blocks{
		AA: part(s.AA, outer(d.DVa, d.DVa)),
		AV: part(s.AV, outer(d.DVa, d.DVm)),
		VA: part(s.VA, outer(d.DVm, d.DVa)),
		VV: part(s.VV, outer(d.DVm, d.DVm)),
	}
}
