package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmsat/internal/types"
)

// newTestClient creates a BaseClient with test defaults.
func newTestClient(t *testing.T, settings BreakerSettings) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		settings,
		"farmsat-test/1.0",
	)
}

func get(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultBreakerSettings())

	resp, err := client.Do(get(t, context.Background(), server.URL+"/test"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"status":"ok"}`, string(body))
}

func TestDo_InjectsHeaders(t *testing.T) {
	var gotRunID, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRunID = r.Header.Get("X-Request-Id")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, DefaultBreakerSettings())

	ctx := types.WithRunID(context.Background(), "run-abc-123")
	resp, err := client.Do(get(t, ctx, server.URL))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "run-abc-123", gotRunID)
	assert.Equal(t, "farmsat-test/1.0", gotUA)
}

func TestDo_NoRunIDWhenNotInContext(t *testing.T) {
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Request-Id"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := newTestClient(t, DefaultBreakerSettings()).Do(get(t, context.Background(), server.URL))
	require.NoError(t, err)
	resp.Body.Close()

	assert.False(t, present)
}

func TestDo_SingleAttemptOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, DefaultBreakerSettings()).Do(get(t, context.Background(), server.URL))
	require.Error(t, err)

	assert.Equal(t, types.ErrCodeUpstreamUnavailable, types.CodeOf(err))
	assert.Equal(t, int32(1), calls.Load(), "no retries")
}

func TestDo_429MapsToRateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(t, DefaultBreakerSettings()).Do(get(t, context.Background(), server.URL))
	require.Error(t, err)

	assert.Equal(t, types.ErrCodeUpstreamRateLimited, types.CodeOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_4xxReturnedAsIs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	resp, err := newTestClient(t, DefaultBreakerSettings()).Do(get(t, context.Background(), server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDo_CircuitBreakerOpensAfterThreshold(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := client.Do(get(t, context.Background(), server.URL))
		require.Error(t, err)
	}
	require.Equal(t, int32(3), calls.Load())

	_, err := client.Do(get(t, context.Background(), server.URL))
	require.Error(t, err)

	assert.Equal(t, types.ErrCodeUpstreamUnavailable, types.CodeOf(err))
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach the server")
}

func TestDo_NetworkErrorMapsToAppError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, DefaultBreakerSettings()).Do(get(t, context.Background(), url))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

func TestDo_CancelledContextIsNotAnUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, DefaultBreakerSettings()).Do(get(t, ctx, server.URL))
	require.ErrorIs(t, err, context.Canceled)

	var appErr *types.AppError
	assert.NotErrorAs(t, err, &appErr)
}
