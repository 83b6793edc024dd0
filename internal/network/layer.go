package network

import (
	"errors"
	"fmt"
	"math/rand"

	"FinCast/pkg/linalg"
)

const (
	initLow      = -0.01
	initHigh     = 0.01
	initAttempts = 3
)

// Layer is one fully connected sigmoid layer. The weight matrix is
// out×(in+1); the last column holds the bias, fed by a constant 1 appended
// to every input.
type Layer struct {
	weights *linalg.Matrix
	steps   *linalg.Matrix
	history *GradientHistory

	input  linalg.Vector
	output linalg.Vector
	delta  linalg.Vector
}

// NewLayer draws uniform(-0.01, 0.01) weights and orthogonalizes their rows.
// A degenerate draw is retried before giving up.
func NewLayer(out, in int, rnd *rand.Rand) (*Layer, error) {
	var (
		w   *linalg.Matrix
		err error
	)
	for attempt := 0; attempt < initAttempts; attempt++ {
		w, err = linalg.RandomFill(out, in+1, initLow, initHigh, rnd)
		if err != nil {
			return nil, err
		}
		if err = linalg.Orthogonalize(w); err == nil {
			break
		}
		if !errors.Is(err, linalg.ErrNumericDegeneracy) {
			return nil, err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("init weights after %d attempts: %w", initAttempts, err)
	}
	return newLayerWithWeights(w)
}

func newLayerWithWeights(w *linalg.Matrix) (*Layer, error) {
	rows, cols := w.Dims()
	steps, err := linalg.NewMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	history, err := NewGradientHistory(rows, cols)
	if err != nil {
		return nil, err
	}
	return &Layer{
		weights: w,
		steps:   steps,
		history: history,
		input:   linalg.NewVector(cols),
		output:  linalg.NewVector(rows),
	}, nil
}

// InputSize is the number of inputs without the bias.
func (l *Layer) InputSize() int { return l.weights.Cols() - 1 }

// OutputSize is the number of units.
func (l *Layer) OutputSize() int { return l.weights.Rows() }

// Feed computes sigmoid(W·[in, 1]) and stores input and output for the
// backward pass. The returned vector is a copy.
func (l *Layer) Feed(in linalg.Vector) (linalg.Vector, error) {
	if len(in) != l.InputSize() {
		return nil, &linalg.DimensionError{
			Op:    "layer feed",
			Left:  fmt.Sprintf("%dx%d", l.OutputSize(), l.InputSize()),
			Right: fmt.Sprintf("[%d]", len(in)),
		}
	}
	biased := in.Append(1)
	pre, err := l.weights.MulVec(biased)
	if err != nil {
		return nil, err
	}
	l.input = biased
	l.output = pre.Apply(linalg.Sigmoid)
	return l.output.Clone(), nil
}

// Lambda returns output ⊙ (1 - output), the sigmoid derivative.
func (l *Layer) Lambda() linalg.Vector {
	return l.output.Apply(func(o float64) float64 { return o * (1 - o) })
}

// DeltaFromTarget sets the error signal of an output layer.
func (l *Layer) DeltaFromTarget(target linalg.Vector) (linalg.Vector, error) {
	diff, err := target.Sub(l.output)
	if err != nil {
		return nil, fmt.Errorf("delta from target: %w", err)
	}
	d, err := diff.MulElem(l.Lambda())
	if err != nil {
		return nil, err
	}
	l.delta = d
	return d.Clone(), nil
}

// DeltaFromNext sets the error signal of a hidden layer from the layer
// after it: (next.delta · next.W) without the bias column, ⊙ lambda.
func (l *Layer) DeltaFromNext(next *Layer) (linalg.Vector, error) {
	if next.delta == nil {
		return nil, &linalg.DimensionError{Op: "delta from next", Left: "next delta", Right: "unset"}
	}
	back, err := next.delta.MulMatrix(next.weights)
	if err != nil {
		return nil, fmt.Errorf("delta from next: %w", err)
	}
	back, err = back.DropLast()
	if err != nil {
		return nil, err
	}
	d, err := back.MulElem(l.Lambda())
	if err != nil {
		return nil, fmt.Errorf("delta from next: %w", err)
	}
	l.delta = d
	return d.Clone(), nil
}

// Gradient returns delta ⊗ input for the current pattern.
func (l *Layer) Gradient() (*linalg.Matrix, error) {
	if l.delta == nil {
		return nil, &linalg.DimensionError{Op: "layer gradient", Left: "delta", Right: "unset"}
	}
	return l.delta.Outer(l.input)
}

// AddGradient accumulates g into the current epoch's gradient.
func (l *Layer) AddGradient(g *linalg.Matrix) error {
	return l.history.Current().AddInPlace(g)
}

// History exposes the gradient ring for the step-size rule.
func (l *Layer) History() *GradientHistory { return l.history }

// StepSizes returns the per-weight step matrix. It is owned by the layer;
// the trainer adapts it in place between epochs.
func (l *Layer) StepSizes() *linalg.Matrix { return l.steps }

// ApplyWeightChanges moves every weight by its step size in the direction of
// the accumulated gradient's sign, then starts a fresh accumulator.
func (l *Layer) ApplyWeightChanges() error {
	dir := l.history.Current().Apply(linalg.Sign)
	change, err := l.steps.MulElem(dir)
	if err != nil {
		return fmt.Errorf("apply weight changes: %w", err)
	}
	if err := l.weights.AddInPlace(change); err != nil {
		return fmt.Errorf("apply weight changes: %w", err)
	}
	fresh, err := linalg.NewMatrix(l.weights.Dims())
	if err != nil {
		return err
	}
	l.history.Push(fresh)
	return nil
}

// DiscardGradient zeroes the current accumulator, dropping a partial epoch.
func (l *Layer) DiscardGradient() {
	l.history.Current().Fill(0)
	l.delta = nil
}

// CheckShapes verifies that weights, steps and the current gradient agree.
func (l *Layer) CheckShapes() error {
	wr, wc := l.weights.Dims()
	for name, m := range map[string]*linalg.Matrix{"step sizes": l.steps, "gradient": l.history.Current()} {
		r, c := m.Dims()
		if r != wr || c != wc {
			return &linalg.DimensionError{
				Op:    "layer " + name,
				Left:  fmt.Sprintf("%dx%d", wr, wc),
				Right: fmt.Sprintf("%dx%d", r, c),
			}
		}
	}
	return nil
}

// Weights returns a copy of the weight matrix.
func (l *Layer) Weights() *linalg.Matrix { return l.weights.Clone() }

func (l *Layer) Input() linalg.Vector  { return l.input.Clone() }
func (l *Layer) Output() linalg.Vector { return l.output.Clone() }
func (l *Layer) Delta() linalg.Vector  { return l.delta.Clone() }
