package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "pong")
	})
	cfg := DefaultManagerConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager(handler, cfg, nil)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestManagerServesAfterStart(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	require.NoError(t, m.Start())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))
}

func TestManagerDoubleStartFails(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
}

func TestManagerShutdownStopsServing(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	require.NoError(t, m.Start())
	addr := m.Addr()

	require.NoError(t, m.Shutdown(context.Background()))

	client := &http.Client{Timeout: time.Second}
	_, err := client.Get("http://" + addr + "/")
	assert.Error(t, err)

	// A closed manager never restarts.
	assert.Error(t, m.Start())
	// Shutdown is idempotent.
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerAddrBeforeStart(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	assert.Equal(t, "127.0.0.1:0", m.Addr())
	require.NoError(t, m.Start())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())
}
