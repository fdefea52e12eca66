// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the service's prometheus instruments. It satisfies
// the queue and orchestrator observer interfaces so components stay free
// of prometheus imports.
type Collector struct {
	// inference queue
	queuePending    prometheus.Gauge
	queueInFlight   prometheus.Gauge
	throttleRetries prometheus.Counter

	// turn taking
	turnsTotal     prometheus.Counter
	turnIterations prometheus.Histogram
	turnResponses  prometheus.Histogram

	// audio delivery
	audioQueueDepth  *prometheus.GaugeVec
	audioDelivered   prometheus.Counter
	audioFailures    prometheus.Counter
	synthesisLatency prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the service instruments on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),

		queuePending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_queue_pending",
			Help:      "Number of inference requests waiting in the queue",
		}),
		queueInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_queue_in_flight",
			Help:      "Number of inference requests currently executing",
		}),
		throttleRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_throttle_retries_total",
			Help:      "Total number of throttled inference requests requeued",
		}),

		turnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed user turns",
		}),
		turnIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_iterations",
			Help:      "Agent iterations per user turn",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		}),
		turnResponses: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_responses",
			Help:      "Persona responses produced per user turn",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}),

		audioQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_queue_depth",
			Help:      "Queued audio segments awaiting playback acknowledgment",
		}, []string{"conversation_id"}),
		audioDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_segments_delivered_total",
			Help:      "Total audio segments delivered to clients",
		}),
		audioFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_delivery_failures_total",
			Help:      "Total audio segments dropped after delivery failure",
		}),
		synthesisLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_synthesis_duration_seconds",
			Help:      "Speech synthesis latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// QueueDepth implements the inference queue's observer.
func (c *Collector) QueueDepth(pending, inFlight int) {
	c.queuePending.Set(float64(pending))
	c.queueInFlight.Set(float64(inFlight))
}

// ThrottleRetry implements the inference queue's observer.
func (c *Collector) ThrottleRetry() {
	c.throttleRetries.Inc()
}

// TurnCompleted implements the orchestrator's observer.
func (c *Collector) TurnCompleted(iterations, responses int) {
	c.turnsTotal.Inc()
	c.turnIterations.Observe(float64(iterations))
	c.turnResponses.Observe(float64(responses))
}

// RecordAudioQueueDepth records the queued segment count per conversation.
func (c *Collector) RecordAudioQueueDepth(conversationID string, depth int) {
	c.audioQueueDepth.WithLabelValues(conversationID).Set(float64(depth))
}

// RecordAudioDelivered counts one delivered audio segment.
func (c *Collector) RecordAudioDelivered() {
	c.audioDelivered.Inc()
}

// RecordAudioFailure counts one dropped audio segment.
func (c *Collector) RecordAudioFailure() {
	c.audioFailures.Inc()
}

// RecordSynthesis records one synthesis round trip.
func (c *Collector) RecordSynthesis(duration time.Duration) {
	c.synthesisLatency.Observe(duration.Seconds())
}
