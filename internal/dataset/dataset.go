// Package dataset fits the transform chain on a chart and cuts it into
// network-ready training patterns.
package dataset

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
	"FinCast/internal/transform"
	"FinCast/pkg/linalg"
)

// roundTripTolerance is the relative error accepted when the output channel
// is rebuilt from its own log returns.
const roundTripTolerance = 1e-9

// DataSet is a chart with its fitted transforms and designated output
// channel. It is immutable once built.
type DataSet struct {
	chart     *models.Chart
	output    string
	logReturn *transform.LogReturn
	std       *transform.Standardization
	priority  models.PriorityFunc
}

type Option func(*DataSet)

// WithPriority replaces the default pattern replay weighting.
func WithPriority(f models.PriorityFunc) Option {
	return func(d *DataSet) {
		if f != nil {
			d.priority = f
		}
	}
}

// New fits the log return on chart and the standardization on the first
// channel of the resulting log-return chart.
func New(chart *models.Chart, output string, opts ...Option) (*DataSet, error) {
	if chart == nil || chart.Len() == 0 {
		return nil, &models.InsufficientDataError{Have: 0, Need: 1}
	}
	if !chart.HasKey(output) {
		return nil, &models.ConfigError{Field: "output channel", Reason: fmt.Sprintf("%q not in chart channels %v", output, chart.Keys())}
	}
	lr, err := transform.NewLogReturn(chart)
	if err != nil {
		return nil, fmt.Errorf("fit log return: %w", err)
	}
	logs, err := lr.Convert(chart)
	if err != nil {
		return nil, fmt.Errorf("fit log return: %w", err)
	}
	std, err := transform.NewStandardization(logs)
	if err != nil {
		return nil, fmt.Errorf("fit standardization: %w", err)
	}
	d := &DataSet{
		chart:     chart,
		output:    output,
		logReturn: lr,
		std:       std,
		priority:  models.DefaultPriority,
	}
	for _, o := range opts {
		o(d)
	}
	if err := d.checkRoundTrip(logs); err != nil {
		return nil, err
	}
	return d, nil
}

// checkRoundTrip rebuilds the output channel from its log returns and
// compares it with the raw series.
func (d *DataSet) checkRoundTrip(logs *models.Chart) error {
	rebuilt, err := d.logReturn.ReconvertVector(logs.Series(d.output), d.output)
	if err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	raw := d.chart.Series(d.output)[1:]
	for i, want := range raw {
		if math.Abs(rebuilt[i]-want) > roundTripTolerance*math.Max(1, math.Abs(want)) {
			return &linalg.NumericDegeneracyError{
				Op:     "round trip",
				Reason: fmt.Sprintf("point %d rebuilt as %v, want %v", i+1, rebuilt[i], want),
			}
		}
	}
	return nil
}

func (d *DataSet) Chart() *models.Chart { return d.chart }

func (d *DataSet) OutputChannel() string { return d.output }

// Channels returns the number of channels per point.
func (d *DataSet) Channels() int { return len(d.chart.Keys()) }

func (d *DataSet) Standardization() *transform.Standardization { return d.std }

// Patterns cuts the chart into windows of 2E+1 points. Pattern i reads the
// log returns of points i..i+E and targets the output channel's growth from
// point i+E to i+2E.
func (d *DataSet) Patterns(estimateLength int) ([]models.DataPattern, error) {
	if estimateLength <= 0 {
		return nil, &models.ConfigError{Field: "estimate length", Reason: fmt.Sprintf("must be positive, got %d", estimateLength)}
	}
	span := 2 * estimateLength
	if d.chart.Len() <= span {
		return nil, &models.InsufficientDataError{Have: d.chart.Len(), Need: span}
	}
	n := d.chart.Len() - span
	patterns := make([]models.DataPattern, n)
	for i := 0; i < n; i++ {
		segment := d.chart.Slice(i, i+span+1)
		input, err := d.InputVector(segment.Slice(0, estimateLength+1))
		if err != nil {
			return nil, fmt.Errorf("pattern %d input: %w", i, err)
		}
		target, err := d.EncodeTarget(segment.At(estimateLength), segment.At(span))
		if err != nil {
			return nil, fmt.Errorf("pattern %d target: %w", i, err)
		}
		patterns[i] = models.DataPattern{
			Input:    input,
			Target:   linalg.Vector{target},
			Priority: d.priority(i, n, estimateLength),
		}
	}
	return patterns, nil
}

// InputVector converts a window of E+1 points into E·channels network inputs.
// The window gets its own log return so only relative growth is seen.
func (d *DataSet) InputVector(window *models.Chart) (linalg.Vector, error) {
	lr, err := transform.NewLogReturn(window)
	if err != nil {
		return nil, err
	}
	converted, err := transform.NewChain(lr, d.std).Convert(window)
	if err != nil {
		return nil, err
	}
	return converted.Flatten(), nil
}

// targetChain maps the output channel relative to base: log return, then
// the fitted standardization, then sigmoid.
func (d *DataSet) targetChain(base models.ChartPoint) (*transform.Chain, error) {
	baseChart, err := models.NewChart([]models.ChartPoint{base})
	if err != nil {
		return nil, err
	}
	lr, err := transform.NewLogReturn(baseChart)
	if err != nil {
		return nil, err
	}
	return transform.NewChain(lr, d.std, transform.Sigmoid()), nil
}

// EncodeTarget returns sigmoid(standardize(ln(future/last))) for the output
// channel.
func (d *DataSet) EncodeTarget(last, future models.ChartPoint) (float64, error) {
	chain, err := d.targetChain(last)
	if err != nil {
		return 0, err
	}
	pair, err := models.NewChart([]models.ChartPoint{last, future})
	if err != nil {
		return 0, err
	}
	converted, err := chain.Convert(pair)
	if err != nil {
		return 0, err
	}
	return converted.Value(0, d.output), nil
}

// DecodeEstimate inverts EncodeTarget: a network output y becomes
// last·e^(standardize⁻¹(sigmoid⁻¹(y))) on the output channel's scale.
func (d *DataSet) DecodeEstimate(y float64, last models.ChartPoint) (float64, error) {
	chain, err := d.targetChain(last)
	if err != nil {
		return 0, err
	}
	out, err := chain.ReconvertVector(linalg.Vector{y}, d.output)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// LatestWindow returns the most recent E+1 points, the input of an estimate.
func (d *DataSet) LatestWindow(estimateLength int) (*models.Chart, error) {
	if estimateLength <= 0 {
		return nil, &models.ConfigError{Field: "estimate length", Reason: fmt.Sprintf("must be positive, got %d", estimateLength)}
	}
	n := d.chart.Len()
	if n < estimateLength+1 {
		return nil, &models.InsufficientDataError{Have: n, Need: estimateLength}
	}
	return d.chart.Slice(n-estimateLength-1, n), nil
}
