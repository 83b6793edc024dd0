package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(50*time.Millisecond, 2*time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 2*time.Second)
	}
	assert.LessOrEqual(t, backoffWithJitter(0, 0, 1), 50*time.Millisecond)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue("text")
	require.NoError(t, err)
	assert.Equal(t, "text", string(b))

	b, err = encodeValue(map[string]int{"epoch": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"epoch":3}`, string(b))

	_, err = encodeValue(func() {})
	assert.Error(t, err)
}

func TestTraceHook(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, data, err := TraceHook.BeforeHandle(context.Background(), "charts", msg, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Equal(t, []byte("x"), data)

	ctx, _, _ = TraceHook.BeforeHandle(context.Background(), "charts", kafka.Message{}, nil)
	assert.Empty(t, TraceID(ctx))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer(nil)
	assert.Error(t, err)
}
