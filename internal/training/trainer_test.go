package training

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/internal/network"
	"FinCast/pkg/linalg"
)

func newNet(t *testing.T, seed int64) *network.Network {
	t.Helper()
	n, err := network.New(2, 1, []int{3}, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return n
}

func constantPatterns(target float64) []models.DataPattern {
	return []models.DataPattern{
		{Input: linalg.Vector{0.2, -0.4}, Target: linalg.Vector{target}, Priority: 1},
		{Input: linalg.Vector{-0.1, 0.3}, Target: linalg.Vector{target}, Priority: 2},
	}
}

func TestNextStepClamps(t *testing.T) {
	assert.InDelta(t, 0.12, nextStep(0.1, 1, 1, 1.2, 0.5), 1e-12)
	assert.InDelta(t, 0.12, nextStep(0.1, 1, 0, 1.2, 0.5), 1e-12)
	assert.InDelta(t, 0.05, nextStep(0.1, -1, 1, 1.2, 0.5), 1e-12)
	assert.Equal(t, 0.1, nextStep(0.1, 0, 1, 1.2, 0.5))
	assert.Equal(t, 0.1, nextStep(0.1, 1, -1, 1.2, 0.5))

	assert.Equal(t, maxStep, nextStep(0.95, 1, 1, 1.2, 0.5))
	assert.Equal(t, minStep, nextStep(1.5e-6, -1, 0, 1.2, 0.5))
}

func TestNextStepNeverGrowsOnSignFlip(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	step := initialStep
	for i := 0; i < 10000; i++ {
		s := rnd.NormFloat64()
		sPrev := rnd.NormFloat64()
		next := nextStep(step, s, sPrev, 1.2, 0.5)
		if s < 0 {
			assert.LessOrEqual(t, next, step)
		}
		assert.GreaterOrEqual(t, next, minStep)
		assert.LessOrEqual(t, next, maxStep)
		step = next
	}
}

func TestAdaptStepSizesWarmup(t *testing.T) {
	n := newNet(t, 1)
	tr, err := New(n, constantPatterns(0.7))
	require.NoError(t, err)

	for epoch := 0; epoch < 2; epoch++ {
		require.NoError(t, tr.TrainEpoch())
		_ = n.Exclusive(func(s network.Session) error {
			for _, l := range s.Layers() {
				for _, row := range l.StepSizes().ToRows() {
					for _, v := range row {
						assert.Equal(t, initialStep, v)
					}
				}
			}
			return nil
		})
	}

	require.NoError(t, tr.TrainEpoch())
	_ = n.Exclusive(func(s network.Session) error {
		for _, l := range s.Layers() {
			assert.Equal(t, network.HistoryDepth, l.History().Len())
			for _, row := range l.StepSizes().ToRows() {
				for _, v := range row {
					assert.GreaterOrEqual(t, v, minStep)
					assert.LessOrEqual(t, v, maxStep)
				}
			}
		}
		return nil
	})
}

func TestNewValidatesConfig(t *testing.T) {
	n := newNet(t, 1)

	_, err := New(n, constantPatterns(0.5), WithFactors(1, 0.5))
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = New(n, constantPatterns(0.5), WithFactors(1.2, 1))
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = New(n, constantPatterns(0.5), WithFactors(1.2, 0))
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = New(nil, constantPatterns(0.5))
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = New(n, nil)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "patterns")

	_, err = New(n, []models.DataPattern{{Input: linalg.Vector{1}, Target: linalg.Vector{0.5}, Priority: 1}})
	assert.ErrorIs(t, err, linalg.ErrDimension)
}

func TestTrainingReducesError(t *testing.T) {
	n := newNet(t, 5)
	patterns := constantPatterns(0.8)
	tr, err := New(n, patterns)
	require.NoError(t, err)

	loss := func() float64 {
		var sum float64
		for _, p := range patterns {
			out, err := n.Feed(p.Input)
			require.NoError(t, err)
			sum += math.Pow(p.Target[0]-out[0], 2)
		}
		return sum
	}
	before := loss()
	for i := 0; i < 60; i++ {
		require.NoError(t, tr.TrainEpoch())
	}
	assert.Less(t, loss(), before/4)
}

func TestFailedEpochKeepsWeights(t *testing.T) {
	n := newNet(t, 2)
	patterns := append(constantPatterns(0.6), models.DataPattern{
		Input: linalg.Vector{math.NaN(), 0}, Target: linalg.Vector{0.5}, Priority: 1,
	})
	tr, err := New(n, patterns)
	require.NoError(t, err)

	before := n.Weights()
	err = tr.TrainEpoch()
	require.Error(t, err)
	assert.ErrorIs(t, err, linalg.ErrNumericDegeneracy)

	after := n.Weights()
	for i := range before {
		assert.True(t, before[i].EqualApprox(after[i], 0))
	}
	_ = n.Exclusive(func(s network.Session) error {
		for _, l := range s.Layers() {
			assert.Equal(t, 1, l.History().Len())
			for _, row := range l.History().Current().ToRows() {
				for _, v := range row {
					assert.Equal(t, 0.0, v)
				}
			}
		}
		return nil
	})
}

func TestStopBeforeStartReturns(t *testing.T) {
	tr, err := New(newNet(t, 1), constantPatterns(0.5))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a run")
	}
	assert.Equal(t, StateIdle, tr.State())
}

func TestSecondStartIsNoop(t *testing.T) {
	tr, err := New(newNet(t, 1), constantPatterns(0.5))
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background(), 1_000_000))
	require.True(t, tr.IsRunning())

	require.NoError(t, tr.Start(context.Background(), 3))
	assert.Equal(t, 1_000_000, tr.Progress().MaxEpochs)

	tr.Stop()
	assert.False(t, tr.IsRunning())
	assert.Equal(t, StateStopped, tr.State())

	err = tr.Start(context.Background(), 10)
	assert.ErrorIs(t, err, ErrTrainerStopped)
}

func TestStopHaltsWeightUpdates(t *testing.T) {
	n := newNet(t, 4)
	tr, err := New(n, constantPatterns(0.5))
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background(), 1_000_000))
	time.Sleep(10 * time.Millisecond)
	tr.Stop()

	frozen := n.Weights()
	epoch := tr.Progress().Epoch
	time.Sleep(10 * time.Millisecond)
	for i, w := range n.Weights() {
		assert.True(t, w.EqualApprox(frozen[i], 0))
	}
	assert.Equal(t, epoch, tr.Progress().Epoch)
}

func TestRunCompletesAndNotifies(t *testing.T) {
	var calls atomic.Int32
	tr, err := New(newNet(t, 1), constantPatterns(0.5),
		WithEpochObserver(func(p models.Progress, err error) {
			assert.NoError(t, err)
			calls.Add(1)
		}))
	require.NoError(t, err)

	require.NoError(t, tr.Start(context.Background(), 5))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	assert.Equal(t, int32(5), calls.Load())
	p := tr.Progress()
	assert.Equal(t, 5, p.Epoch)
	assert.Equal(t, 5, p.MaxEpochs)
	assert.False(t, p.Running)
	assert.InDelta(t, 1.0, p.Fraction(), 1e-12)
}

func TestStartRejectsNonPositiveEpochs(t *testing.T) {
	tr, err := New(newNet(t, 1), constantPatterns(0.5))
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Start(context.Background(), 0), models.ErrConfig)
	assert.Equal(t, StateIdle, tr.State())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "dimension", errorKind(&linalg.DimensionError{}))
	assert.Equal(t, "numeric", errorKind(&linalg.NumericDegeneracyError{}))
	assert.Equal(t, "other", errorKind(assert.AnError))
}
