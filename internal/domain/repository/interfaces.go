package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// ChartStore provides read-only access to historical candles shaped as
// charts of the requested channels.
type ChartStore interface {
	GetChart(ctx context.Context, symbol string, from, to time.Time, tf Timeframe, channels []string) (*models.Chart, error)
	GetLatestChart(ctx context.Context, symbol string, n int, tf Timeframe, channels []string) (*models.Chart, error)
}

// EventPublisher ships training lifecycle events to a broker.
type EventPublisher interface {
	PublishTrainingEvent(ctx context.Context, e models.TrainingEvent) error
	Close() error
}

type Metrics interface {
	RecordEpoch(seconds float64)
	RecordEpochFailure(kind string)
	SetTrainingRunning(running bool)
	RecordEstimate(channel string, value float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
