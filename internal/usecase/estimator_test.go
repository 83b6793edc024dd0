package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
)

func waveChart(t *testing.T, n int) *models.Chart {
	t.Helper()
	points := make([]models.ChartPoint, n)
	for i := range points {
		x := float64(i)
		points[i] = models.ChartPoint{
			"close":  100 * math.Exp(0.02*math.Sin(x/3)+0.001*x),
			"volume": 5000 + 800*math.Cos(x/2) + 10*x,
		}
	}
	c, err := models.NewChart(points)
	require.NoError(t, err)
	return c
}

func newTestEstimator(opts ...EstimatorOption) *Estimator {
	return NewEstimator(Settings{Seed: 7, EventEvery: 1}, opts...)
}

func waitForEvent(t *testing.T, ch <-chan models.TrainingEvent, typ string) models.TrainingEvent {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event stream closed before %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestEstimatorNotReady(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	_, err := e.Estimate(context.Background())
	assert.ErrorIs(t, err, models.ErrNotReady)

	assert.ErrorIs(t, e.Start(10), models.ErrNotReady)

	_, err = e.LoadPatterns(waveChart(t, 20), 2)
	assert.ErrorIs(t, err, models.ErrNotReady)

	_, err = e.Train(TrainParams{EstimateLength: 2, Hidden: []int{3}, Epochs: 5})
	assert.ErrorIs(t, err, models.ErrNotReady)

	require.NoError(t, e.Initialize(2, []int{3}, 2))
	assert.ErrorIs(t, e.Start(10), models.ErrNotReady)

	_, err = e.LoadStoredChart(context.Background(), ChartQuery{Symbol: "BTCUSDT", N: 10, TF: "1m", Channels: []string{"close"}, Output: "close"})
	assert.ErrorIs(t, err, models.ErrNotReady)
}

func TestEstimatorInitializeRejectsBadConfig(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	assert.ErrorIs(t, e.Initialize(0, []int{3}, 1), models.ErrConfig)
	assert.ErrorIs(t, e.Initialize(2, []int{0}, 1), models.ErrConfig)
	assert.ErrorIs(t, e.Initialize(2, []int{3}, 0), models.ErrConfig)
	assert.ErrorIs(t, e.Start(0), models.ErrConfig)
}

func TestEstimatorTrainAndEstimate(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	events, cancel := e.Subscribe(1024)
	defer cancel()

	chart := waveChart(t, 40)
	require.NoError(t, e.LoadData(chart, "close"))

	p, err := e.Train(TrainParams{EstimateLength: 3, Hidden: []int{4}, Epochs: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, p.MaxEpochs)

	started := waitForEvent(t, events, models.EventStarted)
	finished := waitForEvent(t, events, models.EventFinished)
	assert.Equal(t, started.RunID, finished.RunID)
	assert.Equal(t, 20, finished.Epoch)

	require.Eventually(t, func() bool { return !e.IsRunning() }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 20, e.Progress().Epoch)

	v, err := e.Estimate(context.Background())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v))
	assert.Greater(t, v, 0.0)

	last := chart.Last()["close"]
	assert.InDelta(t, last, v, last)
}

func TestEstimatorTrainWhileRunningIsNoop(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	require.NoError(t, e.LoadData(waveChart(t, 40), "close"))
	_, err := e.Train(TrainParams{EstimateLength: 3, Hidden: []int{4}, Epochs: 1_000_000})
	require.NoError(t, err)
	require.True(t, e.IsRunning())

	p, err := e.Train(TrainParams{EstimateLength: 2, Hidden: []int{2}, Epochs: 5})
	require.NoError(t, err)
	assert.Equal(t, 1_000_000, p.MaxEpochs)

	require.NoError(t, e.Start(3))
	assert.Equal(t, 1_000_000, e.Progress().MaxEpochs)

	e.Stop()
	assert.False(t, e.IsRunning())
}

func TestEstimatorConcurrentTrainStartsOneRun(t *testing.T) {
	e := NewEstimator(Settings{Seed: 7})
	defer e.Close()

	events, cancel := e.Subscribe(64)
	defer cancel()

	require.NoError(t, e.LoadData(waveChart(t, 40), "close"))

	var (
		wg    sync.WaitGroup
		ready = make(chan struct{})
		errs  = make(chan error, 2)
	)
	for i, hidden := range [][]int{{4}, {2, 2}} {
		wg.Add(1)
		go func(length int, hidden []int) {
			defer wg.Done()
			<-ready
			_, err := e.Train(TrainParams{EstimateLength: length, Hidden: hidden, Epochs: 1_000_000})
			errs <- err
		}(i+2, hidden)
	}
	close(ready)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.True(t, e.IsRunning())

	e.Stop()
	var started, stopped int
	for stopped == 0 {
		select {
		case ev := <-events:
			switch ev.Type {
			case models.EventStarted:
				started++
			case models.EventStopped:
				stopped++
			}
		case <-time.After(10 * time.Second):
			t.Fatal("no stopped event")
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestEstimatorFinishedEventCarriesError(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	events, cancel := e.Subscribe(4)
	defer cancel()

	e.epochObserver("run-1")(models.Progress{Epoch: 5, MaxEpochs: 5}, errors.New("non-finite output"))
	ev := waitForEvent(t, events, models.EventFinished)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "non-finite output", ev.Error)
	assert.False(t, ev.Running)
}

func TestEstimatorRestartAfterStop(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	require.NoError(t, e.LoadData(waveChart(t, 30), "close"))
	require.NoError(t, e.Initialize(2, []int{3}, 2))
	require.NoError(t, e.Start(1_000_000))
	e.Stop()
	require.False(t, e.IsRunning())

	require.NoError(t, e.Start(4))
	assert.Equal(t, 4, e.Progress().MaxEpochs)
	require.Eventually(t, func() bool { return !e.IsRunning() }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, e.Progress().Epoch)
}

func TestEstimatorStartRejectsChannelMismatch(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	require.NoError(t, e.LoadData(waveChart(t, 30), "close"))
	require.NoError(t, e.Initialize(2, []int{3}, 1))
	assert.ErrorIs(t, e.Start(5), models.ErrConfig)
	assert.False(t, e.IsRunning())
}

func TestEstimatorLoadPatterns(t *testing.T) {
	e := newTestEstimator()
	defer e.Close()

	require.NoError(t, e.LoadData(waveChart(t, 30), "close"))

	_, err := e.LoadPatterns(waveChart(t, 4), 2)
	assert.ErrorIs(t, err, models.ErrInsufficientData)

	_, err = e.LoadPatterns(waveChart(t, 10), 0)
	assert.ErrorIs(t, err, models.ErrConfig)

	patterns, err := e.LoadPatterns(waveChart(t, 10), 2)
	require.NoError(t, err)
	require.Len(t, patterns, 10-2*2)
	for _, p := range patterns {
		assert.Len(t, p.Input, 2*2)
		require.Len(t, p.Target, 1)
		assert.Greater(t, p.Target[0], 0.0)
		assert.Less(t, p.Target[0], 1.0)
	}

	require.NoError(t, e.Initialize(2, []int{3}, 2))
	require.NoError(t, e.Start(3))
	require.Eventually(t, func() bool { return !e.IsRunning() }, 5*time.Second, 5*time.Millisecond)
}

func TestEstimatorLoadDataStopsTraining(t *testing.T) {
	e := NewEstimator(Settings{Seed: 7})
	defer e.Close()

	events, cancel := e.Subscribe(1024)
	defer cancel()

	require.NoError(t, e.LoadData(waveChart(t, 30), "close"))
	_, err := e.Train(TrainParams{EstimateLength: 2, Hidden: []int{3}, Epochs: 1_000_000})
	require.NoError(t, err)

	require.NoError(t, e.LoadData(waveChart(t, 32), "volume"))
	assert.False(t, e.IsRunning())
	waitForEvent(t, events, models.EventStopped)

	err = e.LoadData(waveChart(t, 30), "open")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestEstimatorCachesEstimates(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()

	e := newTestEstimator(WithEstimateCache(mem))
	defer e.Close()

	require.NoError(t, e.LoadData(waveChart(t, 30), "close"))
	require.NoError(t, e.Initialize(2, []int{3}, 2))

	first, err := e.Estimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())

	second, err := e.Estimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, e.Initialize(2, []int{3}, 2))
	assert.Equal(t, 0, mem.Len())
}

type fakeChartStore struct {
	chart       *models.Chart
	err         error
	latestCalls int
	rangeCalls  int
}

func (f *fakeChartStore) GetChart(context.Context, string, time.Time, time.Time, domrepo.Timeframe, []string) (*models.Chart, error) {
	f.rangeCalls++
	return f.chart, f.err
}

func (f *fakeChartStore) GetLatestChart(context.Context, string, int, domrepo.Timeframe, []string) (*models.Chart, error) {
	f.latestCalls++
	return f.chart, f.err
}

func TestEstimatorLoadStoredChart(t *testing.T) {
	store := &fakeChartStore{chart: waveChart(t, 25)}
	e := newTestEstimator(WithChartStore(store))
	defer e.Close()

	q := ChartQuery{Symbol: "BTCUSDT", N: 25, TF: domrepo.TF1m, Channels: []string{"close", "volume"}, Output: "close"}
	chart, err := e.LoadStoredChart(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 25, chart.Len())
	assert.Equal(t, 1, store.latestCalls)
	assert.Equal(t, "close", e.OutputChannel())

	q.From = time.Now().Add(-time.Hour)
	q.To = time.Now()
	_, err = e.LoadStoredChart(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, store.rangeCalls)

	store.err = errors.New("clickhouse down")
	_, err = e.LoadStoredChart(context.Background(), q)
	assert.ErrorIs(t, err, store.err)
}
