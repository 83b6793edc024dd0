// Package training runs RPROP over a network in a cancellable background
// loop.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/repository"
	"FinCast/internal/network"
	"FinCast/pkg/linalg"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"
)

const (
	DefaultIncreaseFactor = 1.2
	DefaultDecreaseFactor = 0.5

	initialStep = 0.1
	maxStep     = 1.0
	minStep     = 1e-6
)

// ErrTrainerStopped is returned by Start on a trainer whose run has ended.
// A new trainer and network must be built instead.
var ErrTrainerStopped = errors.New("trainer stopped")

// State of a Trainer.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Trainer owns the epoch loop for one network and one pattern set.
type Trainer struct {
	net      *network.Network
	patterns []models.DataPattern
	increase float64
	decrease float64
	log      *logger.Logger
	metrics  repository.Metrics
	onEpoch  func(models.Progress, error)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	epoch     atomic.Int64
	maxEpochs atomic.Int64
}

type Option func(*Trainer)

// WithFactors sets the RPROP step increase (c⁺ > 1) and decrease
// (0 < c⁻ < 1) factors.
func WithFactors(increase, decrease float64) Option {
	return func(t *Trainer) {
		t.increase = increase
		t.decrease = decrease
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.log = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(t *Trainer) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithEpochObserver registers fn to run after every epoch with the progress
// and the epoch's error, if any. It runs on the training goroutine.
func WithEpochObserver(fn func(models.Progress, error)) Option {
	return func(t *Trainer) { t.onEpoch = fn }
}

// New validates the factors and the pattern shapes against net.
func New(net *network.Network, patterns []models.DataPattern, opts ...Option) (*Trainer, error) {
	t := &Trainer{
		net:      net,
		patterns: patterns,
		increase: DefaultIncreaseFactor,
		decrease: DefaultDecreaseFactor,
		log:      logger.NewNop(),
		metrics:  metrics.Noop{},
	}
	for _, o := range opts {
		o(t)
	}
	if net == nil {
		return nil, &models.ConfigError{Field: "network", Reason: "is nil"}
	}
	if !(t.increase > 1) {
		return nil, &models.ConfigError{Field: "increase factor", Reason: fmt.Sprintf("must be > 1, got %v", t.increase)}
	}
	if !(t.decrease > 0 && t.decrease < 1) {
		return nil, &models.ConfigError{Field: "decrease factor", Reason: fmt.Sprintf("must be in (0,1), got %v", t.decrease)}
	}
	if len(patterns) == 0 {
		return nil, &models.ConfigError{Field: "patterns", Reason: "at least one pattern is required"}
	}
	for i, p := range patterns {
		if len(p.Input) != net.InputSize() {
			return nil, &linalg.DimensionError{
				Op:    fmt.Sprintf("pattern %d input", i),
				Left:  fmt.Sprintf("[%d]", len(p.Input)),
				Right: fmt.Sprintf("network input [%d]", net.InputSize()),
			}
		}
		if len(p.Target) != 1 {
			return nil, &linalg.DimensionError{
				Op:    fmt.Sprintf("pattern %d target", i),
				Left:  fmt.Sprintf("[%d]", len(p.Target)),
				Right: "network output [1]",
			}
		}
	}
	return t, nil
}

func (t *Trainer) Network() *network.Network { return t.net }

func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsRunning reports whether the epoch loop is alive.
func (t *Trainer) IsRunning() bool { return t.State() == StateRunning }

// Progress returns completed and maximum epochs of the current or last run.
func (t *Trainer) Progress() models.Progress {
	return models.Progress{
		Epoch:     int(t.epoch.Load()),
		MaxEpochs: int(t.maxEpochs.Load()),
		Running:   t.IsRunning(),
	}
}

// Start launches the epoch loop. It is a no-op while a run is alive and
// fails with ErrTrainerStopped once a run has ended. ctx bounds the run in
// addition to Stop.
func (t *Trainer) Start(ctx context.Context, maxEpochs int) error {
	if maxEpochs <= 0 {
		return &models.ConfigError{Field: "max epochs", Reason: fmt.Sprintf("must be positive, got %d", maxEpochs)}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateRunning:
		return nil
	case StateStopped:
		return ErrTrainerStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = StateRunning
	t.epoch.Store(0)
	t.maxEpochs.Store(int64(maxEpochs))
	t.metrics.SetTrainingRunning(true)

	go t.run(runCtx, maxEpochs, t.done)
	return nil
}

// Stop cancels the loop and waits for it to exit. No weight changes happen
// after Stop returns. Without a live run it returns immediately.
func (t *Trainer) Stop() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.cancel()
	done := t.done
	t.mu.Unlock()
	<-done
}

// Wait blocks until the current run exits or ctx is done.
func (t *Trainer) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trainer) run(ctx context.Context, maxEpochs int, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		t.state = StateStopped
		t.cancel()
		t.mu.Unlock()
		t.metrics.SetTrainingRunning(false)
		close(done)
	}()

	t.log.Info("training started",
		logger.Int("max_epochs", maxEpochs),
		logger.Int("patterns", len(t.patterns)),
		logger.Ints("structure", t.net.Structure()),
	)
	for e := 0; e < maxEpochs; e++ {
		if ctx.Err() != nil {
			t.log.Info("training cancelled", logger.Int("epoch", e))
			return
		}
		start := time.Now()
		err := t.TrainEpoch()
		t.epoch.Store(int64(e + 1))
		if err != nil {
			kind := errorKind(err)
			t.metrics.RecordEpochFailure(kind)
			if errors.Is(err, linalg.ErrDimension) {
				t.log.Error("training epoch failed, stopping run",
					logger.Int("epoch", e),
					logger.String("kind", kind),
					logger.Error(err),
				)
				t.notify(err)
				return
			}
			t.log.Warn("training epoch failed",
				logger.Int("epoch", e),
				logger.String("kind", kind),
				logger.Error(err),
			)
		} else {
			t.metrics.RecordEpoch(time.Since(start).Seconds())
		}
		t.notify(err)
	}
	t.log.Info("training finished", logger.Int("epochs", maxEpochs))
}

func (t *Trainer) notify(err error) {
	if t.onEpoch == nil {
		return
	}
	p := t.Progress()
	// The observer runs inside the loop, before the state flips to stopped.
	p.Running = true
	t.onEpoch(p, err)
}

// TrainEpoch runs one synchronous epoch: backpropagation over every pattern
// priority times, then the RPROP update of every layer. On error the partial
// gradient is discarded and the weights keep their previous values.
func (t *Trainer) TrainEpoch() error {
	for i, p := range t.patterns {
		for r := 0; r < p.Priority; r++ {
			err := t.net.Exclusive(func(s network.Session) error {
				return backpropagate(s, p)
			})
			if err != nil {
				t.discard()
				return fmt.Errorf("pattern %d: %w", i, err)
			}
		}
	}
	err := t.net.Exclusive(func(s network.Session) error {
		layers := s.Layers()
		for i, l := range layers {
			if err := l.CheckShapes(); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		}
		for i, l := range layers {
			adaptStepSizes(l, t.increase, t.decrease)
			if err := l.ApplyWeightChanges(); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		t.discard()
		return fmt.Errorf("weight update: %w", err)
	}
	return nil
}

func (t *Trainer) discard() {
	_ = t.net.Exclusive(func(s network.Session) error {
		for _, l := range s.Layers() {
			l.DiscardGradient()
		}
		return nil
	})
}

// backpropagate feeds p once, injects the error at the output layer and
// walks it back, accumulating delta ⊗ input in every layer.
func backpropagate(s network.Session, p models.DataPattern) error {
	out, err := s.Feed(p.Input)
	if err != nil {
		return err
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &linalg.NumericDegeneracyError{Op: "feed", Reason: fmt.Sprintf("non-finite output %v", v)}
		}
	}
	layers := s.Layers()
	last := layers[len(layers)-1]
	if _, err := last.DeltaFromTarget(p.Target); err != nil {
		return err
	}
	if err := accumulate(last); err != nil {
		return err
	}
	for i := len(layers) - 2; i >= 0; i-- {
		if _, err := layers[i].DeltaFromNext(layers[i+1]); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if err := accumulate(layers[i]); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

func accumulate(l *network.Layer) error {
	g, err := l.Gradient()
	if err != nil {
		return err
	}
	return l.AddGradient(g)
}

// adaptStepSizes applies the RPROP rule to every weight of l. Until three
// gradients exist every step is reset to initialStep.
func adaptStepSizes(l *network.Layer, increase, decrease float64) {
	h := l.History()
	steps := l.StepSizes()
	twoBack, ok := h.TwoBack()
	if !ok {
		steps.Fill(initialStep)
		return
	}
	current := h.Current()
	previous, _ := h.Previous()
	rows, cols := steps.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			s := current.At(i, j) * previous.At(i, j)
			sPrev := previous.At(i, j) * twoBack.At(i, j)
			steps.Set(i, j, nextStep(steps.At(i, j), s, sPrev, increase, decrease))
		}
	}
}

// nextStep grows the step while consecutive gradient signs agree and shrinks
// it when they flip, clamped to [minStep, maxStep].
func nextStep(step, s, sPrev, increase, decrease float64) float64 {
	switch {
	case s > 0 && sPrev >= 0:
		return math.Min(step*increase, maxStep)
	case s < 0:
		return math.Max(step*decrease, minStep)
	default:
		return step
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, linalg.ErrDimension):
		return "dimension"
	case errors.Is(err, linalg.ErrNumericDegeneracy):
		return "numeric"
	default:
		return "other"
	}
}
