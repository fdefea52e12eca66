// Package queue serializes calls to the external inference service behind
// a bounded-concurrency, backoff-aware dispatcher. It is the sole
// backpressure point of the orchestration core: callers queue and wait
// instead of firing unbounded concurrent calls.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/llm"
)

// Mode is the routing mode of a queued request. Iterative mode requires
// each persona to see the previous persona's output before generating its
// own, so the queue collapses to strictly serial execution while any
// iterative request is pending or in flight.
type Mode string

const (
	ModeParallel  Mode = "parallel"
	ModeIterative Mode = "iterative"
)

var (
	// ErrClosed is returned when enqueueing on a closed queue.
	ErrClosed = errors.New("inference queue closed")
	// ErrRetriesExhausted is returned when throttling retries run out.
	ErrRetriesExhausted = errors.New("throttling retries exhausted")
)

// Request is one queued inference call.
type Request struct {
	ID             string
	ConversationID string
	PersonaID      string
	Mode           Mode
	Generate       *llm.GenerateRequest
	EnqueuedAt     time.Time

	attempts int
	retryAt  time.Time
	result   chan outcome
}

type outcome struct {
	resp *llm.GenerateResponse
	err  error
}

// Config tunes the dispatcher.
type Config struct {
	// MaxConcurrent bounds parallel-mode concurrency. The effective limit
	// drops to 1 whenever an iterative request is pending or in flight.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
	// BaseDelay seeds the exponential throttling backoff.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`
	// MaxDelay caps the throttling backoff.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// PollInterval is the dispatcher's sleep between drain iterations when
	// nothing can be started immediately.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// RequestTimeout is the hard per-call timeout. Timeouts are hard
	// failures, never silently retried.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// MaxThrottleRetries bounds requeues of a single throttled request.
	MaxThrottleRetries int `yaml:"max_throttle_retries" json:"max_throttle_retries"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:      2,
		BaseDelay:          time.Second,
		MaxDelay:           30 * time.Second,
		PollInterval:       25 * time.Millisecond,
		RequestTimeout:     60 * time.Second,
		MaxThrottleRetries: 5,
	}
}

// Observer receives queue instrumentation. Implementations must be cheap;
// calls happen under the queue lock.
type Observer interface {
	QueueDepth(pending, inFlight int)
	ThrottleRetry()
}

type nopObserver struct{}

func (nopObserver) QueueDepth(int, int) {}
func (nopObserver) ThrottleRetry()      {}

// Queue is the bounded-concurrency inference dispatcher. It holds no
// domain state beyond the pending requests themselves.
type Queue struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
	obs      Observer

	mu        sync.Mutex
	pending   []*Request // head at index 0
	inFlight  int
	iterative int // iterative requests pending or in flight
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// New creates a queue and starts its dispatcher loop.
func New(provider llm.Provider, cfg Config, logger *zap.Logger, obs Observer) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxThrottleRetries <= 0 {
		cfg.MaxThrottleRetries = def.MaxThrottleRetries
	}

	q := &Queue{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "inference_queue")),
		obs:      obs,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Enqueue submits a request and blocks until it resolves or ctx is done.
// Throttling failures are retried internally with exponential backoff and
// stay invisible to the caller unless retries are exhausted.
func (q *Queue) Enqueue(ctx context.Context, req *Request) (*llm.GenerateResponse, error) {
	if req.Generate == nil {
		return nil, errors.New("nil generate request")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Mode == "" {
		req.Mode = ModeParallel
	}
	req.EnqueuedAt = time.Now()
	req.result = make(chan outcome, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.pending = append(q.pending, req)
	if req.Mode == ModeIterative {
		q.iterative++
	}
	q.obs.QueueDepth(len(q.pending), q.inFlight)
	q.mu.Unlock()
	q.signal()

	select {
	case out := <-req.result:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the dispatcher. Pending requests are failed with ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	drained := q.pending
	q.pending = nil
	q.mu.Unlock()

	close(q.done)
	for _, r := range drained {
		r.result <- outcome{err: ErrClosed}
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatch drains the queue continuously while pending items or in-flight
// work remains, sleeping a fixed poll interval when nothing can start.
func (q *Queue) dispatch() {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for q.startNext() {
		}
		select {
		case <-q.done:
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// startNext pops and launches the head request when capacity allows.
// Returns false when nothing could be started.
func (q *Queue) startNext() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return false
	}
	if q.inFlight >= q.effectiveLimit() {
		return false
	}
	head := q.pending[0]
	if now := time.Now(); head.retryAt.After(now) {
		return false
	}

	q.pending = q.pending[1:]
	q.inFlight++
	q.obs.QueueDepth(len(q.pending), q.inFlight)

	go q.execute(head)
	return true
}

// effectiveLimit collapses to 1 while any iterative request is pending or
// in flight; concurrent execution would corrupt causal ordering between
// personas. Callers must hold q.mu.
func (q *Queue) effectiveLimit() int {
	if q.iterative > 0 {
		return 1
	}
	return q.cfg.MaxConcurrent
}

func (q *Queue) execute(req *Request) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.RequestTimeout)
	resp, err := q.provider.Generate(ctx, req.Generate)
	cancel()

	if err != nil && llm.IsThrottling(err) && ctx.Err() == nil {
		q.requeueThrottled(req, err)
		return
	}

	q.finish(req, resp, err)
}

// requeueThrottled puts the request back at the head of the list with an
// exponential backoff delay, unless its retry budget is spent.
func (q *Queue) requeueThrottled(req *Request, cause error) {
	req.attempts++
	if req.attempts > q.cfg.MaxThrottleRetries {
		q.logger.Warn("throttling retries exhausted",
			zap.String("request_id", req.ID),
			zap.Int("attempts", req.attempts),
			zap.Error(cause),
		)
		q.finish(req, nil, errors.Join(ErrRetriesExhausted, cause))
		return
	}

	q.mu.Lock()
	q.inFlight--
	// backoff scales with current load: base * 2^inflight, capped.
	delay := q.cfg.BaseDelay << uint(q.inFlight)
	if delay > q.cfg.MaxDelay || delay <= 0 {
		delay = q.cfg.MaxDelay
	}
	req.retryAt = time.Now().Add(delay)
	if q.closed {
		q.mu.Unlock()
		req.result <- outcome{err: ErrClosed}
		return
	}
	q.pending = append([]*Request{req}, q.pending...)
	q.obs.QueueDepth(len(q.pending), q.inFlight)
	q.obs.ThrottleRetry()
	q.mu.Unlock()

	q.logger.Info("request throttled, requeued at head",
		zap.String("request_id", req.ID),
		zap.Int("attempt", req.attempts),
		zap.Duration("delay", delay),
	)
	q.signal()
}

func (q *Queue) finish(req *Request, resp *llm.GenerateResponse, err error) {
	q.mu.Lock()
	q.inFlight--
	if req.Mode == ModeIterative {
		q.iterative--
	}
	q.obs.QueueDepth(len(q.pending), q.inFlight)
	q.mu.Unlock()
	q.signal()

	if err != nil {
		req.result <- outcome{err: err}
		return
	}
	req.result <- outcome{resp: resp}
}

// Stats reports current pending and in-flight counts.
func (q *Queue) Stats() (pending, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), q.inFlight
}
