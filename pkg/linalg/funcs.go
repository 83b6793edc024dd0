package linalg

import (
	"fmt"
	"math"
)

// degenerateNorm is the squared row norm below which a Gram-Schmidt
// projection divisor is treated as zero.
const degenerateNorm = 1e-300

// Orthogonalize runs Gram-Schmidt over the rows of m in place. Row 0 is left
// untouched and row r is reduced against rows 0..r-1. Only the first
// min(rows, cols) rows take part; extra rows cannot be mutually orthogonal
// and are left as drawn.
func Orthogonalize(m *Matrix) error {
	rows, cols := m.Dims()
	n := rows
	if cols < n {
		n = cols
	}
	basis := make([]Vector, 0, n)
	norms := make([]float64, 0, n)
	for r := 0; r < n; r++ {
		row, err := m.Row(r)
		if err != nil {
			return err
		}
		for i, b := range basis {
			coef, err := row.Dot(b)
			if err != nil {
				return err
			}
			coef /= norms[i]
			for j := range row {
				row[j] -= coef * b[j]
			}
		}
		ns := row.NormSquared()
		if r < n-1 && ns < degenerateNorm {
			return &NumericDegeneracyError{
				Op:     "orthogonalize",
				Reason: fmt.Sprintf("row %d has zero norm", r),
			}
		}
		if err := m.SetRow(r, row); err != nil {
			return err
		}
		basis = append(basis, row)
		norms = append(norms, ns)
	}
	return nil
}

// Sigmoid returns 1/(1+e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// SigmoidInv returns ln(y/(1-y)). y must lie in (0, 1).
func SigmoidInv(y float64) (float64, error) {
	if !(y > 0 && y < 1) {
		return 0, &NumericDegeneracyError{
			Op:     "sigmoid inverse",
			Reason: fmt.Sprintf("%v outside (0,1)", y),
		}
	}
	return math.Log(y / (1 - y)), nil
}

// Sign returns -1, 0 or 1.
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
