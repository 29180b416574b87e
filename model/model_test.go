package model

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-system-opf/sparse"
)

func TestVarSetsAreContiguous(t *testing.T) {
	m := New()
	sizes := map[string]int{"Va": 3, "Vm": 3, "Pg": 2, "Qg": 2, "y": 0}
	order := []string{"Va", "Vm", "Pg", "Qg", "y"}
	for _, name := range order {
		_, err := m.AddVar(name, sizes[name], nil, nil, nil)
		require.NoError(t, err)
	}

	next := 0
	for _, v := range m.Vars() {
		assert.Equal(t, next, v.I1, v.Name)
		assert.Equal(t, v.N, v.IN-v.I1+1, v.Name)
		next += v.N
	}
	assert.Equal(t, 10, m.NumVars())
}

func TestDuplicateName(t *testing.T) {
	m := New()
	_, err := m.AddVar("Pg", 2, nil, nil, nil)
	require.NoError(t, err)
	_, err = m.AddVar("Pg", 1, nil, nil, nil)
	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Pg", dup.Name)
	assert.Equal(t, 2, m.NumVars())
}

func TestLinConstraintDimensions(t *testing.T) {
	m := New()
	_, err := m.AddVar("Va", 2, nil, nil, nil)
	require.NoError(t, err)
	_, err = m.AddVar("Pg", 1, nil, nil, nil)
	require.NoError(t, err)

	_, err = m.AddLinConstraint("Pmis", sparse.Zeros(2, 2), nil, nil, []string{"Va", "Pg"})
	var dim *DimensionMismatchError
	require.True(t, errors.As(err, &dim))
	assert.Equal(t, 3, dim.Want)

	_, err = m.AddLinConstraint("Pmis", sparse.Zeros(2, 3), nil, nil, []string{"Va", "Qg"})
	var unknown *UnknownNameError
	require.True(t, errors.As(err, &unknown))

	_, err = m.AddLinConstraint("Pmis", sparse.Zeros(1, 3), []float64{1}, []float64{0}, []string{"Va", "Pg"})
	var order *BoundOrderError
	require.True(t, errors.As(err, &order))

	assert.Equal(t, 0, m.NumLin())
	_, ok := m.Lin("Pmis")
	assert.False(t, ok)
}

func TestLinearConstraintsScatter(t *testing.T) {
	m := New()
	_, err := m.AddVar("Va", 2, nil, nil, nil)
	require.NoError(t, err)
	_, err = m.AddVar("Pg", 2, nil, nil, nil)
	require.NoError(t, err)
	_, err = m.AddVar("y", 1, nil, nil, nil)
	require.NoError(t, err)

	// columns: Pg0, Pg1, y
	a := sparse.NewTriplet(1, 3)
	a.Append(0, 1, 2)
	a.Append(0, 2, -1)
	_, err = m.AddLinConstraint("ycon", a.Matrix(), nil, []float64{5}, []string{"Pg", "y"})
	require.NoError(t, err)

	b := sparse.NewTriplet(1, 2)
	b.Append(0, 0, 1)
	b.Append(0, 1, -1)
	_, err = m.AddLinConstraint("ang", b.Matrix(), []float64{-1}, []float64{1}, []string{"Va"})
	require.NoError(t, err)

	A, l, u := m.LinearConstraints()
	r, c := A.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 5, c)
	assert.Equal(t, 2.0, A.At(0, 3))
	assert.Equal(t, -1.0, A.At(0, 4))
	assert.Equal(t, 1.0, A.At(1, 0))
	assert.Equal(t, -1.0, A.At(1, 1))
	assert.True(t, math.IsInf(l[0], -1))
	assert.Equal(t, []float64{5, 1}, u)

	assert.Equal(t, []float64{1}, m.Rows("ang", []float64{0, 1}))
}

func TestBoundsRoundTrip(t *testing.T) {
	m := New()
	_, err := m.AddVar("Va", 2, []float64{0.1, 0.2}, []float64{0, 0}, nil)
	require.NoError(t, err)
	_, err = m.AddVar("Pg", 1, []float64{3}, []float64{1}, []float64{4})
	require.NoError(t, err)

	x0, xmin, xmax := m.Bounds()
	assert.Equal(t, []float64{0.1, 0.2, 3}, x0)
	assert.Equal(t, []float64{0, 0, 1}, xmin)
	assert.True(t, math.IsInf(xmax[0], 1))
	assert.Equal(t, []float64{0.1, 0.2}, m.Split("Va", x0))
	assert.Equal(t, []float64{3}, m.Split("Pg", x0))
}

func TestAddVarLengthMismatch(t *testing.T) {
	m := New()
	_, err := m.AddVar("Vm", 2, []float64{1}, nil, nil)
	var dim *DimensionMismatchError
	require.True(t, errors.As(err, &dim))
	_, ok := m.Var("Vm")
	assert.False(t, ok)
}
