package sparse

import "math/cmplx"

// CMatrix is a complex sparse matrix in compressed row form.
type CMatrix struct {
	m *csr[complex128]
}

// CTriplet accumulates (i, j, v) entries of a complex matrix.
type CTriplet struct {
	t coo[complex128]
}

func NewCTriplet(r, c int) *CTriplet {
	return &CTriplet{t: coo[complex128]{r: r, c: c}}
}

// Append adds v at (i, j). Repeated coordinates are summed.
func (t *CTriplet) Append(i, j int, v complex128) {
	t.t.add(i, j, v)
}

func (t *CTriplet) Matrix() *CMatrix {
	return &CMatrix{m: t.t.compress()}
}

// CDiag returns a square complex matrix with d on the diagonal.
func CDiag(d []complex128) *CMatrix {
	return &CMatrix{m: diag(d)}
}

// CZeros returns an r×c complex matrix with no stored entries.
func CZeros(r, c int) *CMatrix {
	return &CMatrix{m: newCSR[complex128](r, c, 0)}
}

// Complex lifts a real matrix.
func Complex(a *Matrix) *CMatrix {
	c := &csr[complex128]{
		r:      a.m.r,
		c:      a.m.c,
		indptr: append([]int(nil), a.m.indptr...),
		ind:    append([]int(nil), a.m.ind...),
		data:   make([]complex128, len(a.m.data)),
	}
	for p, v := range a.m.data {
		c.data[p] = complex(v, 0)
	}
	return &CMatrix{m: c}
}

func (m *CMatrix) Dims() (r, c int) { return m.m.r, m.m.c }

func (m *CMatrix) At(i, j int) complex128 { return m.m.at(i, j) }

func (m *CMatrix) NNZ() int { return len(m.m.data) }

// MulVec returns m·x.
func (m *CMatrix) MulVec(x []complex128) []complex128 { return m.m.mulVec(x) }

// MulVecT returns mᵀ·x (no conjugation).
func (m *CMatrix) MulVecT(x []complex128) []complex128 { return m.m.mulVecT(x) }

// Transpose returns mᵀ without conjugation.
func (m *CMatrix) Transpose() *CMatrix { return &CMatrix{m: m.m.transpose()} }

// ConjTranspose returns mᴴ.
func (m *CMatrix) ConjTranspose() *CMatrix { return m.Transpose().Conj() }

func (m *CMatrix) Conj() *CMatrix {
	c := m.m.clone()
	for p, v := range c.data {
		c.data[p] = cmplx.Conj(v)
	}
	return &CMatrix{m: c}
}

func (m *CMatrix) Mul(b *CMatrix) *CMatrix { return &CMatrix{m: mul(m.m, b.m)} }

func (m *CMatrix) Add(b *CMatrix) *CMatrix { return &CMatrix{m: add(m.m, b.m, 1, 1)} }

func (m *CMatrix) Sub(b *CMatrix) *CMatrix { return &CMatrix{m: add(m.m, b.m, 1, -1)} }

// Scale returns diag(rows)·m·diag(cols); nil leaves that side unscaled.
func (m *CMatrix) Scale(rows, cols []complex128) *CMatrix {
	return &CMatrix{m: m.m.scale(rows, cols)}
}

// ScaleBy returns s·m.
func (m *CMatrix) ScaleBy(s complex128) *CMatrix {
	c := m.m.clone()
	for p := range c.data {
		c.data[p] *= s
	}
	return &CMatrix{m: c}
}

func (m *CMatrix) SelectRows(rows []int) *CMatrix { return &CMatrix{m: m.m.selectRows(rows)} }

// Real returns the real parts, keeping the sparsity pattern.
func (m *CMatrix) Real() *Matrix {
	return m.part(func(v complex128) float64 { return real(v) })
}

// Imag returns the imaginary parts, keeping the sparsity pattern.
func (m *CMatrix) Imag() *Matrix {
	return m.part(func(v complex128) float64 { return imag(v) })
}

func (m *CMatrix) part(f func(complex128) float64) *Matrix {
	c := &csr[float64]{
		r:      m.m.r,
		c:      m.m.c,
		indptr: append([]int(nil), m.m.indptr...),
		ind:    append([]int(nil), m.m.ind...),
		data:   make([]float64, len(m.m.data)),
	}
	for p, v := range m.m.data {
		c.data[p] = f(v)
	}
	return &Matrix{m: c}
}

// DoNonZero calls fn for every stored entry in row-major order.
func (m *CMatrix) DoNonZero(fn func(i, j int, v complex128)) { m.m.doNonZero(fn) }
