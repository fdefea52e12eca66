package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/llm"
)

// fakeProvider records call windows and serves scripted responses.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []callWindow
	delay   time.Duration
	scripts []func() (*llm.GenerateResponse, error)
}

type callWindow struct {
	start, end time.Time
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	start := time.Now()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	var script func() (*llm.GenerateResponse, error)
	if len(f.scripts) > 0 {
		script = f.scripts[0]
		f.scripts = f.scripts[1:]
	}
	f.calls = append(f.calls, callWindow{start: start, end: time.Now()})
	f.mu.Unlock()

	if script != nil {
		return script()
	}
	return &llm.GenerateResponse{Text: "ok"}, nil
}

func (f *fakeProvider) windows() []callWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]callWindow, len(f.calls))
	copy(out, f.calls)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func TestEnqueueResolvesResponse(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	q := New(provider, testConfig(), zap.NewNop(), nil)
	defer q.Close()

	resp, err := q.Enqueue(context.Background(), &Request{
		Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestIterativeModeCollapsesConcurrency(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{delay: 60 * time.Millisecond}
	q := New(provider, testConfig(), zap.NewNop(), nil)
	defer q.Close()

	var g errgroup.Group
	g.Go(func() error {
		_, err := q.Enqueue(context.Background(), &Request{
			Mode:     ModeIterative,
			Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "a"}}},
		})
		return err
	})
	g.Go(func() error {
		_, err := q.Enqueue(context.Background(), &Request{
			Mode:     ModeParallel,
			Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "b"}}},
		})
		return err
	})
	require.NoError(t, g.Wait())

	windows := provider.windows()
	require.Len(t, windows, 2)

	// Strictly serial: the second call must start after the first ends.
	first, second := windows[0], windows[1]
	if second.start.Before(first.start) {
		first, second = second, first
	}
	assert.False(t, second.start.Before(first.end),
		"iterative mode must serialize execution: second started %v before first ended",
		first.end.Sub(second.start))
}

func TestParallelModeOverlaps(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{delay: 80 * time.Millisecond}
	q := New(provider, testConfig(), zap.NewNop(), nil)
	defer q.Close()

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := q.Enqueue(context.Background(), &Request{
				Mode:     ModeParallel,
				Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "x"}}},
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	windows := provider.windows()
	require.Len(t, windows, 2)
	first, second := windows[0], windows[1]
	if second.start.Before(first.start) {
		first, second = second, first
	}
	assert.True(t, second.start.Before(first.end), "parallel calls should overlap")
}

func TestThrottledRequestRetriedInvisibly(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{
		scripts: []func() (*llm.GenerateResponse, error){
			func() (*llm.GenerateResponse, error) {
				return nil, &llm.Error{Code: llm.ErrRateLimited, Message: "slow down", HTTPStatus: 429}
			},
			func() (*llm.GenerateResponse, error) {
				return &llm.GenerateResponse{Text: "second time lucky"}, nil
			},
		},
	}
	q := New(provider, testConfig(), zap.NewNop(), nil)
	defer q.Close()

	resp, err := q.Enqueue(context.Background(), &Request{
		Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}},
	})
	require.NoError(t, err, "throttling must stay invisible to the caller")
	assert.Equal(t, "second time lucky", resp.Text)
	assert.Len(t, provider.windows(), 2)
}

func TestThrottleRetriesExhausted(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxThrottleRetries = 2
	throttle := func() (*llm.GenerateResponse, error) {
		return nil, &llm.Error{Code: llm.ErrRateLimited, Message: "still throttled"}
	}
	provider := &fakeProvider{scripts: []func() (*llm.GenerateResponse, error){throttle, throttle, throttle, throttle}}
	q := New(provider, cfg, zap.NewNop(), nil)
	defer q.Close()

	_, err := q.Enqueue(context.Background(), &Request{
		Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestHardFailureRejectsImmediately(t *testing.T) {
	t.Parallel()
	hard := errors.New("model exploded")
	provider := &fakeProvider{
		scripts: []func() (*llm.GenerateResponse, error){
			func() (*llm.GenerateResponse, error) { return nil, hard },
		},
	}
	q := New(provider, testConfig(), zap.NewNop(), nil)
	defer q.Close()

	_, err := q.Enqueue(context.Background(), &Request{
		Generate: &llm.GenerateRequest{Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}},
	})
	require.ErrorIs(t, err, hard)
	assert.Len(t, provider.windows(), 1, "hard failures must not be retried")
}

func TestEnqueueAfterClose(t *testing.T) {
	t.Parallel()
	q := New(&fakeProvider{}, testConfig(), zap.NewNop(), nil)
	q.Close()

	_, err := q.Enqueue(context.Background(), &Request{
		Generate: &llm.GenerateRequest{},
	})
	assert.ErrorIs(t, err, ErrClosed)
}
