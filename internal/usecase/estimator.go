package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"FinCast/internal/dataset"
	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/network"
	"FinCast/internal/training"
	"FinCast/pkg/cache"
	"FinCast/pkg/linalg"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"
)

const estimateCachePrefix = "estimate"

// Settings are the estimator's fixed hyperparameters.
type Settings struct {
	IncreaseFactor float64
	DecreaseFactor float64
	// Seed drives weight initialization. 0 seeds from the clock.
	Seed int64
	// EventEvery publishes an epoch event every n epochs. 0 disables them.
	EventEvery  int
	EstimateTTL time.Duration
	Priority    models.PriorityFunc
}

// TrainParams are the per-run parameters accepted by Train.
type TrainParams struct {
	EstimateLength int
	Hidden         []int
	Epochs         int
}

// Estimator ties a dataset, a network and its trainer together and is the
// single entry point for loading data, training and estimating.
type Estimator struct {
	settings Settings
	log      *logger.Logger
	metrics  domrepo.Metrics
	cache    cache.Service
	charts   domrepo.ChartStore
	hub      *eventHub

	mu             sync.Mutex
	rnd            *rand.Rand
	net            *network.Network
	trainer        *training.Trainer
	data           *dataset.DataSet
	patterns       []models.DataPattern
	estimateLength int
	hidden         []int
	channels       int
	generation     int64
	runID          string
}

type EstimatorOption func(*Estimator)

func WithEstimatorLogger(l *logger.Logger) EstimatorOption {
	return func(e *Estimator) {
		if l != nil {
			e.log = l
		}
	}
}

func WithEstimatorMetrics(m domrepo.Metrics) EstimatorOption {
	return func(e *Estimator) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEstimateCache caches estimates per generation and epoch.
func WithEstimateCache(c cache.Service) EstimatorOption {
	return func(e *Estimator) { e.cache = c }
}

// WithEventPublisher forwards training events to a broker.
func WithEventPublisher(p domrepo.EventPublisher) EstimatorOption {
	return func(e *Estimator) { e.hub.pub = p }
}

// WithChartStore enables LoadStoredChart.
func WithChartStore(s domrepo.ChartStore) EstimatorOption {
	return func(e *Estimator) { e.charts = s }
}

func NewEstimator(s Settings, opts ...EstimatorOption) *Estimator {
	if s.IncreaseFactor == 0 {
		s.IncreaseFactor = training.DefaultIncreaseFactor
	}
	if s.DecreaseFactor == 0 {
		s.DecreaseFactor = training.DefaultDecreaseFactor
	}
	if s.Priority == nil {
		s.Priority = models.DefaultPriority
	}
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Estimator{
		settings: s,
		log:      logger.NewNop(),
		metrics:  metrics.Noop{},
		rnd:      rand.New(rand.NewSource(seed)),
	}
	e.hub = newEventHub(nil, e.log, 256)
	for _, o := range opts {
		o(e)
	}
	e.hub.log = e.log
	return e
}

// Initialize builds a fresh network [E·channels, hidden..., 1]. A running
// trainer is stopped and discarded.
func (e *Estimator) Initialize(estimateLength int, hidden []int, channels int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(estimateLength, hidden, channels)
}

func (e *Estimator) initializeLocked(estimateLength int, hidden []int, channels int) error {
	net, err := network.New(estimateLength, channels, hidden, e.rnd)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	e.stopLocked()
	e.net = net
	e.trainer = nil
	e.estimateLength = estimateLength
	e.hidden = append([]int(nil), hidden...)
	e.channels = channels
	if len(e.patterns) > 0 && len(e.patterns[0].Input) != net.InputSize() {
		e.patterns = nil
	}
	e.bumpGeneration()
	e.log.Info("network initialized", logger.Ints("structure", net.Structure()))
	return nil
}

// LoadData stops training and fits a new dataset on chart.
func (e *Estimator) LoadData(chart *models.Chart, output string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	ds, err := dataset.New(chart, output, dataset.WithPriority(e.settings.Priority))
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	e.data = ds
	e.patterns = nil
	e.bumpGeneration()
	e.log.Info("data loaded",
		logger.Int("points", chart.Len()),
		logger.Strings("channels", chart.Keys()),
		logger.String("output", output),
	)
	return nil
}

// ChartQuery selects candles from the chart store. A zero From/To range
// reads the latest N candles instead.
type ChartQuery struct {
	Symbol   string
	N        int
	From, To time.Time
	TF       domrepo.Timeframe
	Channels []string
	Output   string
}

// LoadStoredChart reads a chart from the chart store and loads it like
// LoadData.
func (e *Estimator) LoadStoredChart(ctx context.Context, q ChartQuery) (*models.Chart, error) {
	if e.charts == nil {
		return nil, &models.NotReadyError{Op: "load stored chart", Missing: "chart store"}
	}
	start := time.Now()
	var (
		chart *models.Chart
		err   error
	)
	if q.From.IsZero() && q.To.IsZero() {
		chart, err = e.charts.GetLatestChart(ctx, q.Symbol, q.N, q.TF, q.Channels)
	} else {
		chart, err = e.charts.GetChart(ctx, q.Symbol, q.From, q.To, q.TF, q.Channels)
	}
	e.metrics.RecordLatency("chart_store_load", time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordError("chart_store")
		return nil, fmt.Errorf("load stored chart: %w", err)
	}
	if err := e.LoadData(chart, q.Output); err != nil {
		return nil, err
	}
	return chart, nil
}

// LoadPatterns fits a dataset on chart with the current output channel and
// returns its training patterns. They replace the patterns of the next run.
func (e *Estimator) LoadPatterns(chart *models.Chart, estimateLength int) ([]models.DataPattern, error) {
	if estimateLength <= 0 {
		return nil, &models.ConfigError{Field: "estimate length", Reason: fmt.Sprintf("must be positive, got %d", estimateLength)}
	}
	if chart.Len() <= 2*estimateLength {
		return nil, &models.InsufficientDataError{Have: chart.Len(), Need: 2 * estimateLength}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.data == nil {
		return nil, &models.NotReadyError{Op: "load patterns", Missing: "output channel"}
	}
	ds, err := dataset.New(chart, e.data.OutputChannel(), dataset.WithPriority(e.settings.Priority))
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	patterns, err := ds.Patterns(estimateLength)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	e.stopLocked()
	e.data = ds
	e.patterns = patterns
	e.bumpGeneration()
	return append([]models.DataPattern(nil), patterns...), nil
}

// Start launches training for maxEpochs. While a run is alive it does
// nothing. After a run has ended the network is re-initialized with the same
// structure before the new run starts.
func (e *Estimator) Start(maxEpochs int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLocked(maxEpochs)
}

func (e *Estimator) startLocked(maxEpochs int) error {
	if maxEpochs <= 0 {
		return &models.ConfigError{Field: "max epochs", Reason: fmt.Sprintf("must be positive, got %d", maxEpochs)}
	}
	if e.net == nil {
		return &models.NotReadyError{Op: "start", Missing: "network"}
	}
	if e.data == nil {
		return &models.NotReadyError{Op: "start", Missing: "data"}
	}
	if e.trainer != nil {
		if e.trainer.IsRunning() {
			return nil
		}
		net, err := network.New(e.estimateLength, e.channels, e.hidden, e.rnd)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		e.net = net
		e.trainer = nil
	}
	if e.data.Channels() != e.channels {
		return &models.ConfigError{
			Field:  "channel count",
			Reason: fmt.Sprintf("network built for %d channels, data has %d", e.channels, e.data.Channels()),
		}
	}
	if e.patterns == nil {
		patterns, err := e.data.Patterns(e.estimateLength)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		e.patterns = patterns
	}

	e.bumpGeneration()
	runID := fmt.Sprintf("run-%d", e.generation)
	e.runID = runID
	tr, err := training.New(e.net, e.patterns,
		training.WithFactors(e.settings.IncreaseFactor, e.settings.DecreaseFactor),
		training.WithLogger(e.log.With(logger.String("run_id", runID))),
		training.WithMetrics(e.metrics),
		training.WithEpochObserver(e.epochObserver(runID)),
	)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	// Emitted first so it precedes the run's epoch events.
	e.hub.Emit(models.TrainingEvent{
		Type:      models.EventStarted,
		RunID:     runID,
		MaxEpochs: maxEpochs,
		Running:   true,
		Timestamp: time.Now(),
	})
	if err := tr.Start(context.Background(), maxEpochs); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	e.trainer = tr
	return nil
}

// Train initializes a network for the loaded data and starts it, unless a
// run is already alive, in which case the call changes nothing.
func (e *Estimator) Train(p TrainParams) (models.Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trainer != nil && e.trainer.IsRunning() {
		return e.trainer.Progress(), nil
	}
	if e.data == nil {
		return models.Progress{}, &models.NotReadyError{Op: "train", Missing: "data"}
	}
	if err := e.initializeLocked(p.EstimateLength, p.Hidden, e.data.Channels()); err != nil {
		return models.Progress{}, err
	}
	if err := e.startLocked(p.Epochs); err != nil {
		return models.Progress{}, err
	}
	return e.trainer.Progress(), nil
}

// epochObserver runs on the training goroutine. It must not take e.mu
// because Stop holds it while waiting for that goroutine.
func (e *Estimator) epochObserver(runID string) func(models.Progress, error) {
	every := e.settings.EventEvery
	return func(p models.Progress, err error) {
		ev := models.TrainingEvent{
			RunID:     runID,
			Epoch:     p.Epoch,
			MaxEpochs: p.MaxEpochs,
			Running:   true,
			Timestamp: time.Now(),
		}
		switch {
		case err != nil && errors.Is(err, linalg.ErrDimension):
			ev.Type = models.EventFailed
			ev.Running = false
			ev.Error = err.Error()
		case p.Epoch == p.MaxEpochs:
			ev.Type = models.EventFinished
			ev.Running = false
			if err != nil {
				ev.Error = err.Error()
			}
		case every > 0 && p.Epoch%every == 0:
			ev.Type = models.EventEpoch
			if err != nil {
				ev.Error = err.Error()
			}
		default:
			return
		}
		e.hub.Emit(ev)
	}
}

// Stop cancels training and waits for the loop to exit.
func (e *Estimator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Estimator) stopLocked() {
	if e.trainer == nil || !e.trainer.IsRunning() {
		return
	}
	e.trainer.Stop()
	p := e.trainer.Progress()
	e.hub.Emit(models.TrainingEvent{
		Type:      models.EventStopped,
		RunID:     e.runID,
		Epoch:     p.Epoch,
		MaxEpochs: p.MaxEpochs,
		Timestamp: time.Now(),
	})
	e.log.Info("training stopped", logger.Int("epoch", p.Epoch), logger.Int("max_epochs", p.MaxEpochs))
}

// OutputChannel is the channel estimates refer to, empty before LoadData.
func (e *Estimator) OutputChannel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.data == nil {
		return ""
	}
	return e.data.OutputChannel()
}

// EstimateLength is the window and horizon of the current network, 0 before
// Initialize.
func (e *Estimator) EstimateLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimateLength
}

func (e *Estimator) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trainer != nil && e.trainer.IsRunning()
}

// Progress returns the epoch counters of the current or last run.
func (e *Estimator) Progress() models.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trainer == nil {
		return models.Progress{}
	}
	return e.trainer.Progress()
}

// Estimate feeds the most recent window through the network and returns the
// predicted value of the output channel E points ahead.
func (e *Estimator) Estimate(ctx context.Context) (float64, error) {
	e.mu.Lock()
	net, data, length, gen := e.net, e.data, e.estimateLength, e.generation
	epoch := 0
	if e.trainer != nil {
		epoch = e.trainer.Progress().Epoch
	}
	e.mu.Unlock()

	if net == nil {
		return 0, &models.NotReadyError{Op: "estimate", Missing: "network"}
	}
	if data == nil {
		return 0, &models.NotReadyError{Op: "estimate", Missing: "data"}
	}

	compute := func(context.Context) (float64, error) {
		return e.compute(net, data, length)
	}
	if e.cache == nil {
		return compute(ctx)
	}
	key := cache.GenerateKeyWithParams(estimateCachePrefix, gen, epoch)
	return cache.GetOrLoad(ctx, e.cache, key, e.settings.EstimateTTL, compute)
}

func (e *Estimator) compute(net *network.Network, data *dataset.DataSet, length int) (float64, error) {
	start := time.Now()
	defer func() { e.metrics.RecordLatency("estimate", time.Since(start).Seconds()) }()

	window, err := data.LatestWindow(length)
	if err != nil {
		return 0, fmt.Errorf("estimate: %w", err)
	}
	input, err := data.InputVector(window)
	if err != nil {
		return 0, fmt.Errorf("estimate: %w", err)
	}
	out, err := net.Feed(input)
	if err != nil {
		return 0, fmt.Errorf("estimate: %w", err)
	}
	value, err := data.DecodeEstimate(out[0], window.Last())
	if err != nil {
		return 0, fmt.Errorf("estimate: %w", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &linalg.NumericDegeneracyError{Op: "estimate", Reason: fmt.Sprintf("non-finite estimate %v", value)}
	}
	e.metrics.RecordEstimate(data.OutputChannel(), value)
	return value, nil
}

// Subscribe streams training events until cancel is called or the estimator
// is closed.
func (e *Estimator) Subscribe(buffer int) (<-chan models.TrainingEvent, func()) {
	return e.hub.Subscribe(buffer)
}

// Close stops training and flushes pending events.
func (e *Estimator) Close() {
	e.Stop()
	e.hub.Close()
}

// bumpGeneration invalidates cached estimates. Callers hold e.mu.
func (e *Estimator) bumpGeneration() {
	e.generation++
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.cache.DeleteByPattern(ctx, cache.BuildPattern(estimateCachePrefix+":")); err != nil {
		e.log.Warn("estimate cache invalidation failed", logger.Error(err))
	}
}
