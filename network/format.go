package network

import (
	"fmt"
	"io"
	"math"

	"power-system-opf/sparse"
)

// FprintComplexMatrix writes m row by row as "a + jb" entries.
func FprintComplexMatrix(w io.Writer, m *sparse.CMatrix) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			sign := "+"
			if imag(v) < 0 {
				sign = "-"
			}
			if _, err := fmt.Fprintf(w, "%.3f %s j%.3f\t\t", real(v), sign, math.Abs(imag(v))); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
