package sparse

import (
	"gonum.org/v1/gonum/mat"
)

// Matrix is a real sparse matrix in compressed row form. It satisfies
// mat.Matrix so it can be handed directly to gonum routines.
type Matrix struct {
	m *csr[float64]
}

var _ mat.Matrix = (*Matrix)(nil)

// Triplet accumulates (i, j, v) entries of a real matrix.
type Triplet struct {
	t coo[float64]
}

// NewTriplet returns an empty r×c triplet builder.
func NewTriplet(r, c int) *Triplet {
	return &Triplet{t: coo[float64]{r: r, c: c}}
}

// Append adds v at (i, j). Repeated coordinates are summed.
func (t *Triplet) Append(i, j int, v float64) {
	t.t.add(i, j, v)
}

// AppendMatrix scatters m into the builder with its (0, 0) entry placed at
// (r0, c0).
func (t *Triplet) AppendMatrix(m *Matrix, r0, c0 int) {
	m.m.doNonZero(func(i, j int, v float64) {
		t.t.add(r0+i, c0+j, v)
	})
}

// AppendScaled is AppendMatrix with every entry multiplied by s.
func (t *Triplet) AppendScaled(m *Matrix, r0, c0 int, s float64) {
	m.m.doNonZero(func(i, j int, v float64) {
		t.t.add(r0+i, c0+j, s*v)
	})
}

// Dims returns the dimensions of the matrix being built.
func (t *Triplet) Dims() (r, c int) { return t.t.r, t.t.c }

// Matrix compresses the accumulated entries.
func (t *Triplet) Matrix() *Matrix {
	return &Matrix{m: t.t.compress()}
}

// Zeros returns an r×c matrix with no stored entries.
func Zeros(r, c int) *Matrix {
	return &Matrix{m: newCSR[float64](r, c, 0)}
}

// Identity returns the n×n identity.
func Identity(n int) *Matrix {
	d := make([]float64, n)
	for i := range d {
		d[i] = 1
	}
	return Diag(d)
}

// Diag returns a square matrix with d on the diagonal.
func Diag(d []float64) *Matrix {
	return &Matrix{m: diag(d)}
}

// NewFromDense stores the non-zero entries of a.
func NewFromDense(a mat.Matrix) *Matrix {
	r, c := a.Dims()
	t := NewTriplet(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := a.At(i, j); v != 0 {
				t.Append(i, j, v)
			}
		}
	}
	return t.Matrix()
}

func (m *Matrix) Dims() (r, c int) { return m.m.r, m.m.c }

func (m *Matrix) At(i, j int) float64 { return m.m.at(i, j) }

// T returns the transpose as a new compressed matrix.
func (m *Matrix) T() mat.Matrix { return m.Transpose() }

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int { return len(m.m.data) }

func (m *Matrix) Transpose() *Matrix { return &Matrix{m: m.m.transpose()} }

// MulVec returns m·x.
func (m *Matrix) MulVec(x []float64) []float64 { return m.m.mulVec(x) }

// MulVecT returns mᵀ·x.
func (m *Matrix) MulVecT(x []float64) []float64 { return m.m.mulVecT(x) }

// Mul returns m·b.
func (m *Matrix) Mul(b *Matrix) *Matrix { return &Matrix{m: mul(m.m, b.m)} }

// Add returns m + b.
func (m *Matrix) Add(b *Matrix) *Matrix { return &Matrix{m: add(m.m, b.m, 1, 1)} }

// Sub returns m - b.
func (m *Matrix) Sub(b *Matrix) *Matrix { return &Matrix{m: add(m.m, b.m, 1, -1)} }

// Scale returns diag(rows)·m·diag(cols); nil leaves that side unscaled.
func (m *Matrix) Scale(rows, cols []float64) *Matrix { return &Matrix{m: m.m.scale(rows, cols)} }

// ScaleBy returns s·m.
func (m *Matrix) ScaleBy(s float64) *Matrix {
	c := m.m.clone()
	for p := range c.data {
		c.data[p] *= s
	}
	return &Matrix{m: c}
}

// SelectRows returns the rows of m listed in rows, in that order.
func (m *Matrix) SelectRows(rows []int) *Matrix { return &Matrix{m: m.m.selectRows(rows)} }

// DoNonZero calls fn for every stored entry in row-major order.
func (m *Matrix) DoNonZero(fn func(i, j int, v float64)) { m.m.doNonZero(fn) }

// Dense expands m into a gonum dense matrix.
func (m *Matrix) Dense() *mat.Dense {
	if m.m.r == 0 || m.m.c == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.m.r, m.m.c, nil)
	m.m.doNonZero(func(i, j int, v float64) {
		d.Set(i, j, d.At(i, j)+v)
	})
	return d
}

// HStack concatenates matrices with equal row counts left to right.
func HStack(ms ...*Matrix) *Matrix {
	if len(ms) == 0 {
		return Zeros(0, 0)
	}
	r, _ := ms[0].Dims()
	c := 0
	for _, m := range ms {
		mr, mc := m.Dims()
		if mr != r {
			panic("sparse: row mismatch in HStack")
		}
		c += mc
	}
	t := NewTriplet(r, c)
	off := 0
	for _, m := range ms {
		t.AppendMatrix(m, 0, off)
		_, mc := m.Dims()
		off += mc
	}
	return t.Matrix()
}

// VStack concatenates matrices with equal column counts top to bottom.
func VStack(ms ...*Matrix) *Matrix {
	if len(ms) == 0 {
		return Zeros(0, 0)
	}
	_, c := ms[0].Dims()
	r := 0
	for _, m := range ms {
		mr, mc := m.Dims()
		if mc != c {
			panic("sparse: column mismatch in VStack")
		}
		r += mr
	}
	t := NewTriplet(r, c)
	off := 0
	for _, m := range ms {
		t.AppendMatrix(m, off, 0)
		mr, _ := m.Dims()
		off += mr
	}
	return t.Matrix()
}
