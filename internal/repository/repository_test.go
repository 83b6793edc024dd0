package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

type fakeProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.topic, f.key, f.value = topic, key, value
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaEventPublisherKeysByRun(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaEventPublisher{producer: fp, topic: "fincast.training"}

	ev := models.TrainingEvent{Type: models.EventEpoch, RunID: "run-3", Epoch: 7}
	require.NoError(t, p.PublishTrainingEvent(context.Background(), ev))
	assert.Equal(t, "fincast.training", fp.topic)
	assert.Equal(t, []byte("run-3"), fp.key)
	assert.Equal(t, ev, fp.value)

	fp.err = errors.New("leader not available")
	err := p.PublishTrainingEvent(context.Background(), ev)
	assert.ErrorIs(t, err, fp.err)
}

func TestQueriesPerTimeframe(t *testing.T) {
	q, err := rangeQuery(domrepo.TF1m)
	require.NoError(t, err)
	assert.Contains(t, q, "fincast.candles_1m")
	assert.Contains(t, q, "ORDER BY bucket ASC")

	q, err = latestQuery(domrepo.TF1s)
	require.NoError(t, err)
	assert.Contains(t, q, "fincast.candles_1s")
	assert.Contains(t, q, "LIMIT ?")

	q, err = latestQuery(domrepo.TF5m)
	require.NoError(t, err)
	assert.Contains(t, q, "toStartOfFiveMinutes")
	assert.Contains(t, q, "GROUP BY b ORDER BY b DESC")

	_, err = rangeQuery("1h")
	assert.ErrorIs(t, err, models.ErrConfig)
}
