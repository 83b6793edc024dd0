package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

func chartOf(t *testing.T, rows ...map[string]float64) *models.Chart {
	t.Helper()
	points := make([]models.ChartPoint, len(rows))
	for i, r := range rows {
		points[i] = r
	}
	c, err := models.NewChart(points)
	require.NoError(t, err)
	return c
}

func assertChartsEqual(t *testing.T, want, got *models.Chart) {
	t.Helper()
	require.Equal(t, want.Len(), got.Len())
	require.Equal(t, want.Keys(), got.Keys())
	assert.InDeltaSlice(t, []float64(want.Flatten()), []float64(got.Flatten()), 1e-9)
}

func sampleChart(t *testing.T) *models.Chart {
	return chartOf(t,
		map[string]float64{"close": 10, "open": 9.5},
		map[string]float64{"close": 11, "open": 10.2},
		map[string]float64{"close": 10.4, "open": 11.1},
		map[string]float64{"close": 12, "open": 10.3},
		map[string]float64{"close": 12.5, "open": 12.2},
		map[string]float64{"close": 12.1, "open": 12.6},
	)
}

func TestStandardizationFit(t *testing.T) {
	s, err := FitStandardization([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	assert.InDelta(t, 3, s.Mean(), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), s.StdDev(), 1e-12)

	v, err := s.ConvertVector(linalg.Vector{3})
	require.NoError(t, err)
	assert.InDelta(t, 0, v[0], 1e-12)

	in := linalg.Vector{1, 2, 3, 4, 5}
	conv, err := s.ConvertVector(in)
	require.NoError(t, err)
	back, err := s.ReconvertVector(conv, "ignored")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64(in), []float64(back), 1e-12)
}

func TestStandardizationDegenerate(t *testing.T) {
	_, err := FitStandardization([]float64{4, 4, 4})
	assert.ErrorIs(t, err, linalg.ErrNumericDegeneracy)

	_, err = FitStandardization([]float64{4})
	assert.ErrorIs(t, err, linalg.ErrNumericDegeneracy)
}

func TestStandardizationUsesFirstChannel(t *testing.T) {
	c := chartOf(t,
		map[string]float64{"b": 100, "a": 1},
		map[string]float64{"b": 300, "a": 3},
	)
	s, err := NewStandardization(c)
	require.NoError(t, err)
	assert.InDelta(t, 2, s.Mean(), 1e-12)
}

func TestLogReturnConvert(t *testing.T) {
	c := chartOf(t,
		map[string]float64{"v": 10},
		map[string]float64{"v": 20},
		map[string]float64{"v": 5},
	)
	lr, err := NewLogReturn(c)
	require.NoError(t, err)

	out, err := lr.Convert(c)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	assert.InDeltaSlice(t, []float64{math.Log(2), math.Log(0.25)}, out.Series("v"), 1e-12)

	back, err := lr.Reconvert(out)
	require.NoError(t, err)
	assertChartsEqual(t, c, back)
}

func TestLogReturnNonPositive(t *testing.T) {
	c := chartOf(t, map[string]float64{"v": 10}, map[string]float64{"v": 0})
	lr, err := NewLogReturn(c)
	require.NoError(t, err)

	_, err = lr.Convert(c)
	assert.ErrorIs(t, err, linalg.ErrNumericDegeneracy)

	_, err = lr.ConvertVector(linalg.Vector{-1, 2})
	assert.ErrorIs(t, err, linalg.ErrNumericDegeneracy)
}

func TestLogReturnVector(t *testing.T) {
	c := chartOf(t, map[string]float64{"v": 10}, map[string]float64{"v": 12})
	lr, err := NewLogReturn(c)
	require.NoError(t, err)

	conv, err := lr.ConvertVector(linalg.Vector{2, 4, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, math.Log(2), math.Log(0.5)}, []float64(conv), 1e-12)

	back, err := lr.ReconvertVector(linalg.Vector{math.Log(1.2), math.Log(0.5)}, "v")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{12, 6}, []float64(back), 1e-9)

	_, err = lr.ReconvertVector(linalg.Vector{0}, "missing")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestChainRoundTrip(t *testing.T) {
	c := sampleChart(t)
	lr, err := NewLogReturn(c)
	require.NoError(t, err)
	logs, err := lr.Convert(c)
	require.NoError(t, err)
	std, err := NewStandardization(logs)
	require.NoError(t, err)

	chain := NewChain(lr, std)
	conv, err := chain.Convert(c)
	require.NoError(t, err)
	assert.Equal(t, c.Len()-1, conv.Len())

	back, err := chain.Reconvert(conv)
	require.NoError(t, err)
	assertChartsEqual(t, c, back)
}

func TestChainWithSigmoidRoundTrip(t *testing.T) {
	c := sampleChart(t)
	lr, err := NewLogReturn(c)
	require.NoError(t, err)
	logs, err := lr.Convert(c)
	require.NoError(t, err)
	std, err := NewStandardization(logs)
	require.NoError(t, err)

	chain := NewChain(lr, std).Append(Sigmoid())
	require.Len(t, chain.Stages(), 3)

	conv, err := chain.Convert(c)
	require.NoError(t, err)
	for _, v := range conv.Flatten() {
		assert.Greater(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
	back, err := chain.Reconvert(conv)
	require.NoError(t, err)
	assertChartsEqual(t, c, back)
}

func TestChainVectorOrder(t *testing.T) {
	std, err := FitStandardization([]float64{0, 2})
	require.NoError(t, err)
	chain := NewChain(std, Sigmoid())

	v, err := chain.ConvertVector(linalg.Vector{1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v[0], 1e-12)

	back, err := chain.ReconvertVector(v, "")
	require.NoError(t, err)
	assert.InDelta(t, 1, back[0], 1e-12)
}

func TestSigmoidReconvertOutOfRange(t *testing.T) {
	_, err := Sigmoid().ReconvertVector(linalg.Vector{1.5}, "")
	assert.ErrorIs(t, err, linalg.ErrNumericDegeneracy)
}
