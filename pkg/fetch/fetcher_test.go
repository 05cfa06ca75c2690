package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactive-maps/pkg/config"
	"interactive-maps/pkg/utils"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		MaxRetries:        2,
		InitialRetryDelay: 1 * time.Millisecond,
		MaxRetryDelay:     5 * time.Millisecond,
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestFetcher(cfg *config.AppConfig) *Fetcher {
	return NewFetcher(http.DefaultClient, cfg, testLogger())
}

func TestFetchWithRetry_SuccessFirstAttempt(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	fetcher := newTestFetcher(testConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchWithRetry_RetriesOn5xxThenSucceeds(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fetcher := newTestFetcher(testConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchWithRetry_ExhaustsRetriesOn5xx(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	fetcher := newTestFetcher(cfg)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.ErrorIs(t, err, utils.ErrServerHTTPError)
	assert.Equal(t, int32(cfg.MaxRetries+1), atomic.LoadInt32(&hits))
}

func TestFetchWithRetry_NoRetryOn404(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := newTestFetcher(testConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()

	assert.ErrorIs(t, err, utils.ErrClientHTTPError)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchWithRetry_RetriesOn429(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fetcher := newTestFetcher(testConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchWithRetry_ContextCancelledBeforeAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newTestFetcher(testConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = fetcher.FetchWithRetry(req, ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchWithRetry_NetworkErrorRetried(t *testing.T) {
	// Closed server produces connection-refused on every attempt.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	cfg := testConfig()
	fetcher := newTestFetcher(cfg)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := fetcher.FetchWithRetry(req, context.Background())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
}

func TestNewClient_AppliesSettings(t *testing.T) {
	cfg := config.HTTPClientConfig{
		Timeout:             10 * time.Second,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     time.Minute,
		DialerTimeout:       5 * time.Second,
		DialerKeepAlive:     15 * time.Second,
	}

	client := NewClient(cfg, testLogger())
	require.NotNil(t, client)
	assert.Equal(t, 10*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 50, transport.MaxIdleConns)
	assert.Equal(t, 4, transport.MaxIdleConnsPerHost)
	assert.True(t, transport.ForceAttemptHTTP2)
}
