package transform

import (
	"fmt"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

// Chain applies its stages in order and inverts them in reverse order.
type Chain struct {
	stages []Transform
}

// NewChain builds a chain from stages, first applied first.
func NewChain(stages ...Transform) *Chain {
	return &Chain{stages: append([]Transform(nil), stages...)}
}

// Stages returns the stages in application order.
func (c *Chain) Stages() []Transform {
	return append([]Transform(nil), c.stages...)
}

// Append returns a new chain with extra stages applied after c's.
func (c *Chain) Append(stages ...Transform) *Chain {
	return NewChain(append(c.Stages(), stages...)...)
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Convert(chart *models.Chart) (*models.Chart, error) {
	var err error
	for _, s := range c.stages {
		if chart, err = s.Convert(chart); err != nil {
			return nil, fmt.Errorf("convert %s: %w", s.Name(), err)
		}
	}
	return chart, nil
}

func (c *Chain) Reconvert(chart *models.Chart) (*models.Chart, error) {
	var err error
	for i := len(c.stages) - 1; i >= 0; i-- {
		s := c.stages[i]
		if chart, err = s.Reconvert(chart); err != nil {
			return nil, fmt.Errorf("reconvert %s: %w", s.Name(), err)
		}
	}
	return chart, nil
}

func (c *Chain) ConvertVector(v linalg.Vector) (linalg.Vector, error) {
	var err error
	for _, s := range c.stages {
		if v, err = s.ConvertVector(v); err != nil {
			return nil, fmt.Errorf("convert vector %s: %w", s.Name(), err)
		}
	}
	return v, nil
}

func (c *Chain) ReconvertVector(v linalg.Vector, key string) (linalg.Vector, error) {
	var err error
	for i := len(c.stages) - 1; i >= 0; i-- {
		s := c.stages[i]
		if v, err = s.ReconvertVector(v, key); err != nil {
			return nil, fmt.Errorf("reconvert vector %s: %w", s.Name(), err)
		}
	}
	return v, nil
}

var _ Transform = (*Chain)(nil)
