package linalg

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense rows×cols real matrix backed by gonum. Every binary
// operation checks shapes up front and returns a *DimensionError instead of
// letting gonum panic.
type Matrix struct {
	d *mat.Dense
}

// NewMatrix returns a zero rows×cols matrix.
func NewMatrix(rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, dimErr("new matrix", matShape(rows, cols), "positive shape")
	}
	return &Matrix{d: mat.NewDense(rows, cols, nil)}, nil
}

// NewFilledMatrix returns a rows×cols matrix with every entry set to v.
func NewFilledMatrix(rows, cols int, v float64) (*Matrix, error) {
	m, err := NewMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	m.Fill(v)
	return m, nil
}

// NewMatrixFromRows copies rows into a new matrix. Ragged input is rejected.
func NewMatrixFromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, dimErr("matrix from rows", "empty", "positive shape")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, dimErr("matrix from rows", vecShape(cols), vecShape(len(rows[i])))
		}
		data = append(data, row...)
	}
	return &Matrix{d: mat.NewDense(len(rows), cols, data)}, nil
}

// Identity returns the n×n identity matrix.
func Identity(n int) (*Matrix, error) {
	m, err := NewMatrix(n, n)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		m.d.Set(i, i, 1)
	}
	return m, nil
}

// RandomFill returns a rows×cols matrix of independent uniform draws from
// [low, high). The caller owns rnd; seed it for reproducible weights.
func RandomFill(rows, cols int, low, high float64, rnd *rand.Rand) (*Matrix, error) {
	m, err := NewMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.d.Set(i, j, rnd.Float64()*(high-low)+low)
		}
	}
	return m, nil
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (int, int) { return m.d.Dims() }

// Rows returns the number of rows.
func (m *Matrix) Rows() int {
	r, _ := m.d.Dims()
	return r
}

// Cols returns the number of columns.
func (m *Matrix) Cols() int {
	_, c := m.d.Dims()
	return c
}

// At returns entry (i, j).
func (m *Matrix) At(i, j int) float64 { return m.d.At(i, j) }

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float64) { m.d.Set(i, j, v) }

// Fill sets every entry to v.
func (m *Matrix) Fill(v float64) {
	raw := m.d.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] = v
		}
	}
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{d: mat.DenseCopyOf(m.d)}
}

func (m *Matrix) sameShape(op string, b *Matrix) error {
	ar, ac := m.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return dimErr(op, matShape(ar, ac), matShape(br, bc))
	}
	return nil
}

// Add returns m + b.
func (m *Matrix) Add(b *Matrix) (*Matrix, error) {
	if err := m.sameShape("matrix add", b); err != nil {
		return nil, err
	}
	var res mat.Dense
	res.Add(m.d, b.d)
	return &Matrix{d: &res}, nil
}

// AddInPlace adds b into m.
func (m *Matrix) AddInPlace(b *Matrix) error {
	if err := m.sameShape("matrix add in place", b); err != nil {
		return err
	}
	m.d.Add(m.d, b.d)
	return nil
}

// Sub returns m - b.
func (m *Matrix) Sub(b *Matrix) (*Matrix, error) {
	if err := m.sameShape("matrix sub", b); err != nil {
		return nil, err
	}
	var res mat.Dense
	res.Sub(m.d, b.d)
	return &Matrix{d: &res}, nil
}

// MulElem returns the component-wise product m ⊙ b.
func (m *Matrix) MulElem(b *Matrix) (*Matrix, error) {
	if err := m.sameShape("matrix mul elem", b); err != nil {
		return nil, err
	}
	var res mat.Dense
	res.MulElem(m.d, b.d)
	return &Matrix{d: &res}, nil
}

// Mul returns the matrix product m·b.
func (m *Matrix) Mul(b *Matrix) (*Matrix, error) {
	ar, ac := m.Dims()
	br, bc := b.Dims()
	if ac != br {
		return nil, dimErr("matrix mul", matShape(ar, ac), matShape(br, bc))
	}
	var res mat.Dense
	res.Mul(m.d, b.d)
	return &Matrix{d: &res}, nil
}

// MulVec returns the column-vector product m·v.
func (m *Matrix) MulVec(v Vector) (Vector, error) {
	r, c := m.Dims()
	if len(v) != c {
		return nil, dimErr("matrix-vector mul", matShape(r, c), vecShape(len(v)))
	}
	var out mat.VecDense
	out.MulVec(m.d, mat.NewVecDense(len(v), v.Clone()))
	return Vector(out.RawVector().Data), nil
}

// Scale returns f·m.
func (m *Matrix) Scale(f float64) *Matrix {
	var res mat.Dense
	res.Scale(f, m.d)
	return &Matrix{d: &res}
}

// Apply returns a new matrix with f applied to every entry.
func (m *Matrix) Apply(f func(float64) float64) *Matrix {
	var res mat.Dense
	res.Apply(func(_, _ int, v float64) float64 { return f(v) }, m.d)
	return &Matrix{d: &res}
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) (Vector, error) {
	r, c := m.Dims()
	if i < 0 || i >= r {
		return nil, dimErr("matrix row", matShape(r, c), vecShape(i))
	}
	return Vector(mat.Row(nil, i, m.d)), nil
}

// SetRow replaces row i with v.
func (m *Matrix) SetRow(i int, v Vector) error {
	r, c := m.Dims()
	if i < 0 || i >= r {
		return dimErr("matrix set row", matShape(r, c), vecShape(i))
	}
	if len(v) != c {
		return dimErr("matrix set row", matShape(r, c), vecShape(len(v)))
	}
	m.d.SetRow(i, v)
	return nil
}

// ToRows copies the matrix into a row-major slice of slices.
func (m *Matrix) ToRows() [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m.d)
	}
	return out
}

// EqualApprox reports whether m and b have the same shape and all entries
// are within tol of each other.
func (m *Matrix) EqualApprox(b *Matrix, tol float64) bool {
	if m.sameShape("", b) != nil {
		return false
	}
	return mat.EqualApprox(m.d, b.d, tol)
}

// String formats the matrix the way gonum prints it.
func (m *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(m.d, mat.Squeeze()))
}
