package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

// Standardization rescales values to 2(d-μ)/σ so that most of them land in
// the sensitive range of the sigmoid. μ and σ (sample standard deviation)
// are fitted once and then applied to every channel.
type Standardization struct {
	unary
	mean float64
	std  float64
}

// NewStandardization fits μ and σ on the first channel of ref.
func NewStandardization(ref *models.Chart) (*Standardization, error) {
	keys := ref.Keys()
	if len(keys) == 0 {
		return nil, &models.ConfigError{Field: "chart", Reason: "standardization needs at least one channel"}
	}
	return FitStandardization(ref.Series(keys[0]))
}

// FitStandardization fits μ and σ on values. At least two values with a
// non-zero spread are required.
func FitStandardization(values []float64) (*Standardization, error) {
	if len(values) < 2 {
		return nil, &linalg.NumericDegeneracyError{
			Op:     "standardization",
			Reason: fmt.Sprintf("sample std needs 2 values, have %d", len(values)),
		}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if !(std > 0) || math.IsInf(std, 0) {
		return nil, &linalg.NumericDegeneracyError{
			Op:     "standardization",
			Reason: fmt.Sprintf("standard deviation is %v", std),
		}
	}
	s := &Standardization{mean: mean, std: std}
	s.unary = unary{
		name:    "standardization",
		forward: s.forward,
		inverse: s.inverse,
	}
	return s, nil
}

func (s *Standardization) Mean() float64   { return s.mean }
func (s *Standardization) StdDev() float64 { return s.std }

func (s *Standardization) forward(d float64) (float64, error) {
	return 2 * (d - s.mean) / s.std, nil
}

func (s *Standardization) inverse(d float64) (float64, error) {
	return d*s.std/2 + s.mean, nil
}

var _ Transform = (*Standardization)(nil)
