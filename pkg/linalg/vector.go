package linalg

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Vector is a fixed-length sequence of reals. Operations never resize the
// receiver; binary operations require equal length and return a new Vector.
type Vector []float64

// NewVector returns a zero vector of length n.
func NewVector(n int) Vector { return make(Vector, n) }

// FilledVector returns a vector of length n with every element set to v.
func FilledVector(n int, v float64) Vector {
	out := make(Vector, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Len returns the vector length.
func (v Vector) Len() int { return len(v) }

// Clone returns a deep copy.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Add returns v + w.
func (v Vector) Add(w Vector) (Vector, error) {
	if len(v) != len(w) {
		return nil, dimErr("vector add", vecShape(len(v)), vecShape(len(w)))
	}
	return floats.AddTo(make(Vector, len(v)), v, w), nil
}

// Sub returns v - w.
func (v Vector) Sub(w Vector) (Vector, error) {
	if len(v) != len(w) {
		return nil, dimErr("vector sub", vecShape(len(v)), vecShape(len(w)))
	}
	return floats.SubTo(make(Vector, len(v)), v, w), nil
}

// MulElem returns the component-wise product v ⊙ w.
func (v Vector) MulElem(w Vector) (Vector, error) {
	if len(v) != len(w) {
		return nil, dimErr("vector mul elem", vecShape(len(v)), vecShape(len(w)))
	}
	return floats.MulTo(make(Vector, len(v)), v, w), nil
}

// Scale returns f·v.
func (v Vector) Scale(f float64) Vector {
	return floats.ScaleTo(make(Vector, len(v)), f, v)
}

// Dot returns the scalar product ⟨v, w⟩.
func (v Vector) Dot(w Vector) (float64, error) {
	if len(v) != len(w) {
		return 0, dimErr("vector dot", vecShape(len(v)), vecShape(len(w)))
	}
	return floats.Dot(v, w), nil
}

// Norm returns the L2 norm.
func (v Vector) Norm() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// NormSquared returns ‖v‖².
func (v Vector) NormSquared() float64 { return floats.Dot(v, v) }

// Apply maps f over every element.
func (v Vector) Apply(f func(float64) float64) Vector {
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = f(x)
	}
	return out
}

// Append returns a new vector with xs appended.
func (v Vector) Append(xs ...float64) Vector {
	out := make(Vector, len(v), len(v)+len(xs))
	copy(out, v)
	return append(out, xs...)
}

// DropLast returns a copy without the last element.
func (v Vector) DropLast() (Vector, error) {
	if len(v) == 0 {
		return nil, dimErr("vector drop last", vecShape(0), vecShape(1))
	}
	return v[:len(v)-1].Clone(), nil
}

// Outer returns the dyadic product v ⊗ w as a len(v)×len(w) matrix.
func (v Vector) Outer(w Vector) (*Matrix, error) {
	if len(v) == 0 || len(w) == 0 {
		return nil, dimErr("vector outer", vecShape(len(v)), vecShape(len(w)))
	}
	var d mat.Dense
	d.Outer(1, mat.NewVecDense(len(v), v.Clone()), mat.NewVecDense(len(w), w.Clone()))
	return &Matrix{d: &d}, nil
}

// MulMatrix returns the row-vector product v·m.
func (v Vector) MulMatrix(m *Matrix) (Vector, error) {
	r, c := m.Dims()
	if len(v) != r {
		return nil, dimErr("vector-matrix mul", vecShape(len(v)), matShape(r, c))
	}
	var out mat.VecDense
	out.MulVec(m.d.T(), mat.NewVecDense(len(v), v.Clone()))
	return Vector(out.RawVector().Data), nil
}

// EqualApprox reports whether v and w have equal length and every element
// pair is within tol.
func (v Vector) EqualApprox(w Vector, tol float64) bool {
	if len(v) != len(w) {
		return false
	}
	return floats.EqualApprox(v, w, tol)
}
