package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const delta = 1e-12

func testMatrix() *Matrix {
	t := NewTriplet(3, 4)
	t.Append(0, 3, 2)
	t.Append(0, 0, 1)
	t.Append(1, 1, -3)
	t.Append(2, 2, 4)
	t.Append(2, 0, 5)
	t.Append(0, 3, 1) // summed with the first entry
	return t.Matrix()
}

func TestTripletSumsDuplicates(t *testing.T) {
	m := testMatrix()
	r, c := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 4, c)
	assert.Equal(t, 5, m.NNZ())
	assert.Equal(t, 3.0, m.At(0, 3))
	assert.Equal(t, 0.0, m.At(1, 3))

	var cols []int
	m.DoNonZero(func(i, j int, v float64) {
		if i == 0 {
			cols = append(cols, j)
		}
	})
	assert.Equal(t, []int{0, 3}, cols)
}

func TestProductsMatchDense(t *testing.T) {
	a := testMatrix()
	bt := NewTriplet(4, 2)
	bt.Append(0, 0, 1)
	bt.Append(1, 1, 2)
	bt.Append(3, 0, -1)
	bt.Append(2, 1, 0.5)
	b := bt.Matrix()

	var want mat.Dense
	want.Mul(a.Dense(), b.Dense())
	got := a.Mul(b)
	assert.True(t, mat.EqualApprox(&want, got.Dense(), delta))

	var wantT mat.Dense
	wantT.CloneFrom(a.Dense().T())
	assert.True(t, mat.EqualApprox(&wantT, a.Transpose(), delta))
	assert.True(t, mat.EqualApprox(&wantT, a.T(), delta))

	x := []float64{1, 2, 3, 4}
	var wantV mat.VecDense
	wantV.MulVec(a.Dense(), mat.NewVecDense(4, x))
	assert.InDeltaSlice(t, wantV.RawVector().Data, a.MulVec(x), delta)

	y := []float64{1, -1, 2}
	var wantVT mat.VecDense
	wantVT.MulVec(a.Dense().T(), mat.NewVecDense(3, y))
	assert.InDeltaSlice(t, wantVT.RawVector().Data, a.MulVecT(y), delta)
}

func TestAddScaleSelect(t *testing.T) {
	a := testMatrix()
	sum := a.Add(a.ScaleBy(2))
	var want mat.Dense
	want.Scale(3, a.Dense())
	assert.True(t, mat.EqualApprox(&want, sum, delta))

	assert.Equal(t, 0.0, a.Sub(a).At(0, 3))

	s := a.Scale([]float64{1, 2, 3}, []float64{1, 1, 1, 10})
	assert.Equal(t, 30.0, s.At(0, 3))
	assert.Equal(t, 15.0, s.At(2, 0))

	rows := a.SelectRows([]int{2, 0})
	assert.Equal(t, 5.0, rows.At(0, 0))
	assert.Equal(t, 3.0, rows.At(1, 3))
}

func TestStacks(t *testing.T) {
	a := testMatrix()
	h := HStack(a, Identity(3))
	r, c := h.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 7, c)
	assert.Equal(t, 1.0, h.At(1, 5))

	v := VStack(a, Zeros(2, 4))
	r, c = v.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 4.0, v.At(2, 2))
}

func TestComplexParts(t *testing.T) {
	ct := NewCTriplet(2, 2)
	ct.Append(0, 0, complex(1, 2))
	ct.Append(0, 1, complex(0, -1))
	ct.Append(1, 1, complex(3, 0))
	m := ct.Matrix()

	h := m.ConjTranspose()
	assert.Equal(t, complex(0, 1), h.At(1, 0))
	assert.Equal(t, complex(1, -2), h.At(0, 0))
	assert.Equal(t, 1.0, m.Real().At(0, 0))
	assert.Equal(t, -1.0, m.Imag().At(0, 1))

	x := []complex128{1, complex(0, 1)}
	y := m.MulVec(x)
	assert.Equal(t, complex(2, 2), y[0])
	assert.Equal(t, complex(0, 3), y[1])

	p := m.Mul(CDiag([]complex128{2, 2}))
	assert.Equal(t, complex(2, 4), p.At(0, 0))
	assert.Equal(t, complex(1, 2), Complex(m.Real()).At(0, 0)+complex(0, 2))
}
