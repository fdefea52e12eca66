package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("parley", reg, zap.NewNop()), reg
}

func TestQueueDepthGauges(t *testing.T) {
	t.Parallel()
	c, _ := newTestCollector(t)

	c.QueueDepth(3, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queuePending))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueInFlight))

	c.QueueDepth(0, 0)
	assert.Zero(t, testutil.ToFloat64(c.queuePending))
}

func TestThrottleRetryCounter(t *testing.T) {
	t.Parallel()
	c, _ := newTestCollector(t)
	c.ThrottleRetry()
	c.ThrottleRetry()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.throttleRetries))
}

func TestTurnCompleted(t *testing.T) {
	t.Parallel()
	c, reg := newTestCollector(t)
	c.TurnCompleted(5, 4)
	c.TurnCompleted(1, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	var sawIterations bool
	for _, f := range families {
		if f.GetName() == "parley_turn_iterations" {
			sawIterations = true
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, sawIterations)
}

func TestAudioInstruments(t *testing.T) {
	t.Parallel()
	c, _ := newTestCollector(t)

	c.RecordAudioQueueDepth("c1", 4)
	c.RecordAudioDelivered()
	c.RecordAudioDelivered()
	c.RecordAudioFailure()
	c.RecordSynthesis(150 * time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.audioQueueDepth.WithLabelValues("c1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.audioDelivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.audioFailures))
}
