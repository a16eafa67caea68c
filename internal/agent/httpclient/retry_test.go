package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryTransportRetriesOn503ThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := RetryConfig{MaxSteps: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	c := NewDefaultClientWithRetry(server.URL, server.Client(), cfg, nil)

	status, err := c.Perform(context.Background(), "", "/", http.MethodGet, nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 3, calls)
}

func TestRetryTransportGivesUpAfterMaxSteps(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := RetryConfig{MaxSteps: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	c := NewDefaultClientWithRetry(server.URL, server.Client(), cfg, nil)

	status, err := c.Perform(context.Background(), "", "/", http.MethodGet, nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, 3, calls) // initial + 2 retries
}

func TestRetryTransportDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := RetryConfig{MaxSteps: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	c := NewDefaultClientWithRetry(server.URL, server.Client(), cfg, nil)

	status, err := c.Perform(context.Background(), "", "/", http.MethodGet, nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 1, calls)
}
