package network

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/pkg/linalg"
)

func mustMatrix(t *testing.T, rows [][]float64) *linalg.Matrix {
	t.Helper()
	m, err := linalg.NewMatrixFromRows(rows)
	require.NoError(t, err)
	return m
}

func TestGradientHistoryRing(t *testing.T) {
	h, err := NewGradientHistory(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())
	_, ok := h.Previous()
	assert.False(t, ok)

	marks := make([]*linalg.Matrix, 4)
	for i := range marks {
		marks[i], err = linalg.NewFilledMatrix(1, 1, float64(i+1))
		require.NoError(t, err)
		h.Push(marks[i])
	}
	assert.Equal(t, HistoryDepth, h.Len())
	assert.Same(t, marks[3], h.Current())
	prev, ok := h.Previous()
	require.True(t, ok)
	assert.Same(t, marks[2], prev)
	two, ok := h.TwoBack()
	require.True(t, ok)
	assert.Same(t, marks[1], two)
}

func TestLayerFeed(t *testing.T) {
	l, err := newLayerWithWeights(mustMatrix(t, [][]float64{{1, -1, 0.5}}))
	require.NoError(t, err)

	out, err := l.Feed(linalg.Vector{1, 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, linalg.Sigmoid(-0.5), out[0], 1e-12)
	assert.Equal(t, linalg.Vector{1, 2, 1}, l.Input())

	out[0] = 42
	assert.NotEqual(t, 42.0, l.Output()[0], "feed must return a copy")

	_, err = l.Feed(linalg.Vector{1})
	assert.ErrorIs(t, err, linalg.ErrDimension)
}

func TestLayerDeltas(t *testing.T) {
	hidden, err := newLayerWithWeights(mustMatrix(t, [][]float64{{0.2, 0.1}, {-0.3, 0.4}}))
	require.NoError(t, err)
	out, err := newLayerWithWeights(mustMatrix(t, [][]float64{{0.5, -0.7, 0.1}}))
	require.NoError(t, err)

	h, err := hidden.Feed(linalg.Vector{0.6})
	require.NoError(t, err)
	o, err := out.Feed(h)
	require.NoError(t, err)

	dOut, err := out.DeltaFromTarget(linalg.Vector{0.9})
	require.NoError(t, err)
	wantOut := (0.9 - o[0]) * o[0] * (1 - o[0])
	assert.InDelta(t, wantOut, dOut[0], 1e-12)
	assert.Equal(t, dOut, out.Delta())

	dHidden, err := hidden.DeltaFromNext(out)
	require.NoError(t, err)
	require.Len(t, dHidden, 2)
	assert.InDelta(t, 0.5*wantOut*h[0]*(1-h[0]), dHidden[0], 1e-12)
	assert.InDelta(t, -0.7*wantOut*h[1]*(1-h[1]), dHidden[1], 1e-12)

	g, err := out.Gradient()
	require.NoError(t, err)
	assert.Equal(t, 1, g.Rows())
	assert.Equal(t, 3, g.Cols())
	assert.InDelta(t, wantOut*h[0], g.At(0, 0), 1e-12)
	assert.InDelta(t, wantOut, g.At(0, 2), 1e-12)
}

func TestLayerDeltaFromTargetMismatch(t *testing.T) {
	l, err := newLayerWithWeights(mustMatrix(t, [][]float64{{1, 1}}))
	require.NoError(t, err)
	_, err = l.DeltaFromTarget(linalg.Vector{1, 2})
	assert.ErrorIs(t, err, linalg.ErrDimension)
}

func TestApplyWeightChanges(t *testing.T) {
	l, err := newLayerWithWeights(mustMatrix(t, [][]float64{{0, 0, 0}}))
	require.NoError(t, err)
	l.StepSizes().Fill(0.1)

	require.NoError(t, l.AddGradient(mustMatrix(t, [][]float64{{2, -3, 0}})))
	require.NoError(t, l.AddGradient(mustMatrix(t, [][]float64{{1, 1, 0}})))
	require.NoError(t, l.ApplyWeightChanges())

	assert.InDeltaSlice(t, []float64{0.1, -0.1, 0}, l.Weights().ToRows()[0], 1e-12)
	assert.Equal(t, 2, l.History().Len())
	prev, ok := l.History().Previous()
	require.True(t, ok)
	assert.Equal(t, []float64{3, -2, 0}, prev.ToRows()[0])
	assert.Equal(t, []float64{0, 0, 0}, l.History().Current().ToRows()[0])
}

func TestDiscardGradient(t *testing.T) {
	l, err := newLayerWithWeights(mustMatrix(t, [][]float64{{0, 0}}))
	require.NoError(t, err)
	require.NoError(t, l.AddGradient(mustMatrix(t, [][]float64{{5, 5}})))
	l.DiscardGradient()
	assert.Equal(t, []float64{0, 0}, l.History().Current().ToRows()[0])
	assert.Equal(t, 1, l.History().Len())
}

func TestNewLayerInitialWeights(t *testing.T) {
	l, err := NewLayer(3, 4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 4, l.InputSize())
	assert.Equal(t, 3, l.OutputSize())

	rows := l.Weights().ToRows()
	for _, v := range rows[0] {
		assert.LessOrEqual(t, v, 0.01)
		assert.GreaterOrEqual(t, v, -0.01)
	}
	for i := 1; i < len(rows); i++ {
		for j := 0; j < i; j++ {
			d, err := linalg.Vector(rows[i]).Dot(rows[j])
			require.NoError(t, err)
			assert.InDelta(t, 0, d, 1e-15)
		}
	}
}

func TestNewLayerIsReproducible(t *testing.T) {
	a, err := NewLayer(2, 3, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	b, err := NewLayer(2, 3, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	assert.True(t, a.Weights().EqualApprox(b.Weights(), 0))
}

func TestNetworkStructure(t *testing.T) {
	n, err := New(3, 2, []int{4, 5}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, []int{6, 4, 5, 1}, n.Structure())
	assert.Equal(t, 6, n.InputSize())
	assert.Len(t, n.Weights(), 3)

	out, err := n.Feed(linalg.FilledVector(6, 0.5))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Greater(t, out[0], 0.0)
	assert.Less(t, out[0], 1.0)

	_, err = n.Feed(linalg.FilledVector(5, 0.5))
	assert.ErrorIs(t, err, linalg.ErrDimension)
}

func TestNetworkConfigErrors(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []struct {
		name   string
		e, ch  int
		hidden []int
	}{
		{"zero estimate length", 0, 1, nil},
		{"zero channels", 2, 0, nil},
		{"bad hidden", 2, 1, []int{3, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.e, tc.ch, tc.hidden, rnd)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
}

func TestNetworkConcurrentFeed(t *testing.T) {
	n, err := New(2, 1, []int{3}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	want, err := n.Feed(linalg.Vector{0.1, 0.2})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := n.Feed(linalg.Vector{0.1, 0.2})
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestExclusiveSession(t *testing.T) {
	n, err := New(1, 1, nil, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	err = n.Exclusive(func(s Session) error {
		require.Len(t, s.Layers(), 1)
		_, err := s.Feed(linalg.Vector{0.3})
		return err
	})
	assert.NoError(t, err)
}
