// Package transform holds the reversible numeric stages that turn raw chart
// values into network inputs and network outputs back into chart values.
package transform

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

// Transform is one invertible stage. Reconvert undoes Convert on the stage's
// own output. ReconvertVector rebuilds the values of a single channel; stages
// that act element-wise ignore key.
type Transform interface {
	Name() string
	Convert(c *models.Chart) (*models.Chart, error)
	Reconvert(c *models.Chart) (*models.Chart, error)
	ConvertVector(v linalg.Vector) (linalg.Vector, error)
	ReconvertVector(v linalg.Vector, key string) (linalg.Vector, error)
}

// unary lifts a scalar forward/inverse pair to charts and vectors.
type unary struct {
	name    string
	forward func(float64) (float64, error)
	inverse func(float64) (float64, error)
}

func (u unary) Name() string { return u.name }

func (u unary) Convert(c *models.Chart) (*models.Chart, error) {
	return u.mapChart(c, u.forward)
}

func (u unary) Reconvert(c *models.Chart) (*models.Chart, error) {
	return u.mapChart(c, u.inverse)
}

func (u unary) ConvertVector(v linalg.Vector) (linalg.Vector, error) {
	return u.mapVector(v, u.forward)
}

func (u unary) ReconvertVector(v linalg.Vector, _ string) (linalg.Vector, error) {
	return u.mapVector(v, u.inverse)
}

func (u unary) mapChart(c *models.Chart, f func(float64) (float64, error)) (*models.Chart, error) {
	var firstErr error
	out := c.Map(func(_ string, v float64) float64 {
		if firstErr != nil {
			return 0
		}
		r, err := f(v)
		if err != nil {
			firstErr = err
		}
		return r
	})
	if firstErr != nil {
		return nil, fmt.Errorf("%s: %w", u.name, firstErr)
	}
	return out, nil
}

func (u unary) mapVector(v linalg.Vector, f func(float64) (float64, error)) (linalg.Vector, error) {
	out := make(linalg.Vector, len(v))
	for i, x := range v {
		r, err := f(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.name, err)
		}
		out[i] = r
	}
	return out, nil
}

func finite(op string, x float64) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, &linalg.NumericDegeneracyError{Op: op, Reason: fmt.Sprintf("non-finite result %v", x)}
	}
	return x, nil
}

// Sigmoid squashes values into (0,1). It is the last stage applied to
// training targets so they match the network's output range.
func Sigmoid() Transform {
	return unary{
		name:    "sigmoid",
		forward: func(x float64) (float64, error) { return linalg.Sigmoid(x), nil },
		inverse: linalg.SigmoidInv,
	}
}
