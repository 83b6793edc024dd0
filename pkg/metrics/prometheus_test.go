package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordEpoch(0.01)
	r.RecordEpoch(0.02)
	r.RecordEpochFailure("numeric")
	r.SetTrainingRunning(true)
	r.RecordEstimate("close", 12.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.epochs))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.epochFailures.WithLabelValues("numeric")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.running))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.lastEstimate.WithLabelValues("close")))

	r.SetTrainingRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.running))
}
