package transform

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

// LogReturn turns consecutive values a, b into ln(b/a). It keeps the first
// point of the chart it was fitted on so the growth series can be rebuilt.
type LogReturn struct {
	start models.ChartPoint
}

// NewLogReturn fits the transform on ref, storing its first point.
func NewLogReturn(ref *models.Chart) (*LogReturn, error) {
	if ref.Len() == 0 {
		return nil, &models.ConfigError{Field: "chart", Reason: "log return needs at least one point"}
	}
	return &LogReturn{start: ref.First()}, nil
}

// Start returns a copy of the reference point.
func (l *LogReturn) Start() models.ChartPoint { return l.start.Clone() }

func (l *LogReturn) Name() string { return "log return" }

func logGrowth(a, b float64) (float64, error) {
	if !(a > 0) || !(b > 0) {
		return 0, &linalg.NumericDegeneracyError{
			Op:     "log return",
			Reason: fmt.Sprintf("non-positive operand ln(%v/%v)", b, a),
		}
	}
	return math.Log(b / a), nil
}

func grow(a, c float64) (float64, error) {
	return finite("log return inverse", a*math.Exp(c))
}

// Convert maps an N-point chart to the N-1 log-growth rates between
// neighbours.
func (l *LogReturn) Convert(c *models.Chart) (*models.Chart, error) {
	if c.Len() == 0 {
		return c.WithPoints(nil), nil
	}
	keys := c.Keys()
	points := make([]models.ChartPoint, 0, c.Len()-1)
	for i := 1; i < c.Len(); i++ {
		p := make(models.ChartPoint, len(keys))
		for _, k := range keys {
			g, err := logGrowth(c.Value(i-1, k), c.Value(i, k))
			if err != nil {
				return nil, fmt.Errorf("point %d channel %q: %w", i, k, err)
			}
			p[k] = g
		}
		points = append(points, p)
	}
	return c.WithPoints(points), nil
}

// Reconvert prepends the reference point and accumulates a·e^c, so
// Reconvert(Convert(ref)) reproduces ref.
func (l *LogReturn) Reconvert(c *models.Chart) (*models.Chart, error) {
	keys := c.Keys()
	for _, k := range keys {
		if _, ok := l.start[k]; !ok {
			return nil, &linalg.DimensionError{Op: "log return reconvert", Left: fmt.Sprintf("channel %q", k), Right: "reference point"}
		}
	}
	points := make([]models.ChartPoint, 0, c.Len()+1)
	prev := l.start.Clone()
	if c.Len() > 0 && len(prev) != len(keys) {
		return nil, &linalg.DimensionError{
			Op:    "log return reconvert",
			Left:  fmt.Sprintf("%d channels", len(keys)),
			Right: fmt.Sprintf("%d channels", len(prev)),
		}
	}
	points = append(points, prev)
	for i := 0; i < c.Len(); i++ {
		p := make(models.ChartPoint, len(keys))
		for _, k := range keys {
			v, err := grow(prev[k], c.Value(i, k))
			if err != nil {
				return nil, fmt.Errorf("point %d channel %q: %w", i, k, err)
			}
			p[k] = v
		}
		points = append(points, p)
		prev = p
	}
	return models.NewChart(points)
}

// ConvertVector keeps v[0] as the base and rewrites v[1..] as ln(v[i]/v[0]).
func (l *LogReturn) ConvertVector(v linalg.Vector) (linalg.Vector, error) {
	out := v.Clone()
	for i := 1; i < len(v); i++ {
		g, err := logGrowth(v[0], v[i])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = g
	}
	return out, nil
}

// ReconvertVector walks forward from the reference point's key value,
// out[i] = out[i-1]·e^v[i].
func (l *LogReturn) ReconvertVector(v linalg.Vector, key string) (linalg.Vector, error) {
	value, ok := l.start[key]
	if !ok {
		return nil, &models.ConfigError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", key)}
	}
	out := make(linalg.Vector, len(v))
	for i, c := range v {
		next, err := grow(value, c)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		value = next
		out[i] = value
	}
	return out, nil
}

var _ Transform = (*LogReturn)(nil)
