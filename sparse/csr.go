// Package sparse provides the compressed sparse row matrices used to hold
// network admittances, constraint Jacobians and Lagrangian Hessians.
package sparse

import "sort"

type number interface {
	~float64 | ~complex128
}

// csr is the storage shared by Matrix and CMatrix. Column indices inside a
// row are strictly increasing.
type csr[T number] struct {
	r, c   int
	indptr []int
	ind    []int
	data   []T
}

func newCSR[T number](r, c, nnz int) *csr[T] {
	return &csr[T]{
		r:      r,
		c:      c,
		indptr: make([]int, r+1),
		ind:    make([]int, 0, nnz),
		data:   make([]T, 0, nnz),
	}
}

// coo holds unsorted coordinate entries; duplicates are summed on compress.
type coo[T number] struct {
	r, c int
	i, j []int
	v    []T
}

func (t *coo[T]) add(i, j int, v T) {
	if i < 0 || i >= t.r || j < 0 || j >= t.c {
		panic("sparse: index out of range")
	}
	t.i = append(t.i, i)
	t.j = append(t.j, j)
	t.v = append(t.v, v)
}

func (t *coo[T]) compress() *csr[T] {
	start := make([]int, t.r+1)
	for _, i := range t.i {
		start[i+1]++
	}
	for i := 0; i < t.r; i++ {
		start[i+1] += start[i]
	}
	pos := make([]int, t.r)
	copy(pos, start[:t.r])
	cols := make([]int, len(t.i))
	vals := make([]T, len(t.v))
	for k, i := range t.i {
		p := pos[i]
		cols[p] = t.j[k]
		vals[p] = t.v[k]
		pos[i]++
	}

	m := newCSR[T](t.r, t.c, len(cols))
	mark := newMark(t.c)
	for i := 0; i < t.r; i++ {
		rowStart := len(m.ind)
		for p := start[i]; p < start[i+1]; p++ {
			j := cols[p]
			if q := mark[j]; q >= rowStart {
				m.data[q] += vals[p]
				continue
			}
			mark[j] = len(m.ind)
			m.ind = append(m.ind, j)
			m.data = append(m.data, vals[p])
		}
		sortRow(m.ind[rowStart:], m.data[rowStart:])
		m.indptr[i+1] = len(m.ind)
	}
	return m
}

func newMark(n int) []int {
	mark := make([]int, n)
	for j := range mark {
		mark[j] = -1
	}
	return mark
}

type rowSorter[T number] struct {
	ind  []int
	data []T
}

func (s rowSorter[T]) Len() int           { return len(s.ind) }
func (s rowSorter[T]) Less(a, b int) bool { return s.ind[a] < s.ind[b] }
func (s rowSorter[T]) Swap(a, b int) {
	s.ind[a], s.ind[b] = s.ind[b], s.ind[a]
	s.data[a], s.data[b] = s.data[b], s.data[a]
}

func sortRow[T number](ind []int, data []T) {
	if len(ind) < 2 {
		return
	}
	sort.Sort(rowSorter[T]{ind: ind, data: data})
}

func (m *csr[T]) at(i, j int) T {
	if i < 0 || i >= m.r || j < 0 || j >= m.c {
		panic("sparse: index out of range")
	}
	lo, hi := m.indptr[i], m.indptr[i+1]
	k := lo + sort.SearchInts(m.ind[lo:hi], j)
	if k < hi && m.ind[k] == j {
		return m.data[k]
	}
	return 0
}

func (m *csr[T]) clone() *csr[T] {
	return &csr[T]{
		r:      m.r,
		c:      m.c,
		indptr: append([]int(nil), m.indptr...),
		ind:    append([]int(nil), m.ind...),
		data:   append([]T(nil), m.data...),
	}
}

func (m *csr[T]) mulVec(x []T) []T {
	if len(x) != m.c {
		panic("sparse: dimension mismatch")
	}
	y := make([]T, m.r)
	for i := 0; i < m.r; i++ {
		var s T
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			s += m.data[p] * x[m.ind[p]]
		}
		y[i] = s
	}
	return y
}

// mulVecT computes mᵀx without forming the transpose.
func (m *csr[T]) mulVecT(x []T) []T {
	if len(x) != m.r {
		panic("sparse: dimension mismatch")
	}
	y := make([]T, m.c)
	for i := 0; i < m.r; i++ {
		if x[i] == 0 {
			continue
		}
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			y[m.ind[p]] += m.data[p] * x[i]
		}
	}
	return y
}

func (m *csr[T]) transpose() *csr[T] {
	t := &csr[T]{
		r:      m.c,
		c:      m.r,
		indptr: make([]int, m.c+1),
		ind:    make([]int, len(m.ind)),
		data:   make([]T, len(m.data)),
	}
	for _, j := range m.ind {
		t.indptr[j+1]++
	}
	for j := 0; j < m.c; j++ {
		t.indptr[j+1] += t.indptr[j]
	}
	pos := make([]int, m.c)
	copy(pos, t.indptr[:m.c])
	for i := 0; i < m.r; i++ {
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			j := m.ind[p]
			q := pos[j]
			t.ind[q] = i
			t.data[q] = m.data[p]
			pos[j]++
		}
	}
	return t
}

// mul is a row-by-row Gustavson product.
func mul[T number](a, b *csr[T]) *csr[T] {
	if a.c != b.r {
		panic("sparse: dimension mismatch")
	}
	m := newCSR[T](a.r, b.c, len(a.ind)+len(b.ind))
	mark := newMark(b.c)
	for i := 0; i < a.r; i++ {
		rowStart := len(m.ind)
		for p := a.indptr[i]; p < a.indptr[i+1]; p++ {
			k, av := a.ind[p], a.data[p]
			for q := b.indptr[k]; q < b.indptr[k+1]; q++ {
				j := b.ind[q]
				if mark[j] < rowStart {
					mark[j] = len(m.ind)
					m.ind = append(m.ind, j)
					m.data = append(m.data, av*b.data[q])
				} else {
					m.data[mark[j]] += av * b.data[q]
				}
			}
		}
		sortRow(m.ind[rowStart:], m.data[rowStart:])
		m.indptr[i+1] = len(m.ind)
	}
	return m
}

// add returns alpha·a + beta·b.
func add[T number](a, b *csr[T], alpha, beta T) *csr[T] {
	if a.r != b.r || a.c != b.c {
		panic("sparse: dimension mismatch")
	}
	m := newCSR[T](a.r, a.c, len(a.ind)+len(b.ind))
	for i := 0; i < a.r; i++ {
		p, pEnd := a.indptr[i], a.indptr[i+1]
		q, qEnd := b.indptr[i], b.indptr[i+1]
		for p < pEnd || q < qEnd {
			switch {
			case q >= qEnd || (p < pEnd && a.ind[p] < b.ind[q]):
				m.ind = append(m.ind, a.ind[p])
				m.data = append(m.data, alpha*a.data[p])
				p++
			case p >= pEnd || b.ind[q] < a.ind[p]:
				m.ind = append(m.ind, b.ind[q])
				m.data = append(m.data, beta*b.data[q])
				q++
			default:
				m.ind = append(m.ind, a.ind[p])
				m.data = append(m.data, alpha*a.data[p]+beta*b.data[q])
				p++
				q++
			}
		}
		m.indptr[i+1] = len(m.ind)
	}
	return m
}

// scale returns diag(rows)·m·diag(cols). A nil scale vector means identity.
func (m *csr[T]) scale(rows, cols []T) *csr[T] {
	if rows != nil && len(rows) != m.r || cols != nil && len(cols) != m.c {
		panic("sparse: dimension mismatch")
	}
	s := m.clone()
	for i := 0; i < s.r; i++ {
		for p := s.indptr[i]; p < s.indptr[i+1]; p++ {
			if rows != nil {
				s.data[p] *= rows[i]
			}
			if cols != nil {
				s.data[p] *= cols[s.ind[p]]
			}
		}
	}
	return s
}

func (m *csr[T]) selectRows(rows []int) *csr[T] {
	s := newCSR[T](len(rows), m.c, 0)
	for k, i := range rows {
		s.ind = append(s.ind, m.ind[m.indptr[i]:m.indptr[i+1]]...)
		s.data = append(s.data, m.data[m.indptr[i]:m.indptr[i+1]]...)
		s.indptr[k+1] = len(s.ind)
	}
	return s
}

func diag[T number](d []T) *csr[T] {
	n := len(d)
	m := newCSR[T](n, n, n)
	for i, v := range d {
		m.ind = append(m.ind, i)
		m.data = append(m.data, v)
		m.indptr[i+1] = i + 1
	}
	return m
}

func (m *csr[T]) doNonZero(fn func(i, j int, v T)) {
	for i := 0; i < m.r; i++ {
		for p := m.indptr[i]; p < m.indptr[i+1]; p++ {
			fn(i, m.ind[p], m.data[p])
		}
	}
}
