package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/domain"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestDispatcher(cfg Config) (*Dispatcher, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	return New(cfg, zap.NewNop(), m), m
}

func testEvent() domain.AlertEvent {
	return domain.AlertEvent{
		Timestamp:      time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		RequestText:    "Hello",
		Kind:           domain.FailureRateLimited,
		Detail:         "rate limit exceeded",
		UpstreamStatus: 429,
	}
}

func alertCount(m *metrics.Metrics, result string) float64 {
	return testutil.ToFloat64(m.AlertsTotal.WithLabelValues(result))
}

func TestDispatcher_Notify(t *testing.T) {
	t.Run("delivers payload", func(t *testing.T) {
		var got payload
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		d, m := newTestDispatcher(Config{Timeout: time.Second})
		d.Notify(context.Background(), testEvent(), server.URL)

		assert.EqualValues(t, 1, hits.Load())
		assert.Equal(t, "completion-gateway", got.ErrorSource)
		assert.Equal(t, "RateLimited", got.Kind)
		assert.Equal(t, "rate limit exceeded", got.ErrorMessage)
		assert.Equal(t, 429, got.UpstreamStatus)
		assert.Equal(t, "Hello", got.OriginalRequest.Text)
		assert.True(t, got.Timestamp.Equal(testEvent().Timestamp))
		assert.Equal(t, float64(1), alertCount(m, "sent"))
	})

	t.Run("no webhook means no io", func(t *testing.T) {
		d, m := newTestDispatcher(Config{})
		var calls atomic.Int32
		d.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("must not be called")
		})

		assert.NotPanics(t, func() {
			d.Notify(context.Background(), testEvent(), "")
			d.Dispatch(testEvent(), "")
		})
		require.NoError(t, d.Wait(context.Background()))

		assert.Zero(t, calls.Load())
		assert.Equal(t, float64(2), alertCount(m, "skipped"))
	})

	t.Run("non-2xx swallowed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		d, m := newTestDispatcher(Config{Timeout: time.Second})
		assert.NotPanics(t, func() {
			d.Notify(context.Background(), testEvent(), server.URL)
		})
		assert.Equal(t, float64(1), alertCount(m, "failed"))
	})

	t.Run("network error swallowed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		d, m := newTestDispatcher(Config{Timeout: time.Second})
		d.Notify(context.Background(), testEvent(), url)
		assert.Equal(t, float64(1), alertCount(m, "failed"))
	})

	t.Run("timeout bounded", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		d, m := newTestDispatcher(Config{Timeout: 50 * time.Millisecond})
		start := time.Now()
		d.Notify(context.Background(), testEvent(), server.URL)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, float64(1), alertCount(m, "failed"))
	})

	t.Run("panic recovered", func(t *testing.T) {
		d, m := newTestDispatcher(Config{})
		d.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
			panic("transport blew up")
		})

		assert.NotPanics(t, func() {
			d.Notify(context.Background(), testEvent(), "http://hooks.example.com/alert")
		})
		assert.Equal(t, float64(1), alertCount(m, "failed"))
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("does not block caller", func(t *testing.T) {
		release := make(chan struct{})
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			<-release
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		d, m := newTestDispatcher(Config{Timeout: 5 * time.Second})

		start := time.Now()
		d.Dispatch(testEvent(), server.URL)
		assert.Less(t, time.Since(start), 500*time.Millisecond)

		close(release)
		require.NoError(t, d.Wait(context.Background()))

		assert.EqualValues(t, 1, hits.Load())
		assert.Equal(t, float64(1), alertCount(m, "sent"))
	})

	t.Run("wait respects context", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()

		d, _ := newTestDispatcher(Config{Timeout: 5 * time.Second})
		d.Dispatch(testEvent(), server.URL)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

		close(release)
		require.NoError(t, d.Wait(context.Background()))
	})

	t.Run("every dispatch attempted", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			time.Sleep(5 * time.Millisecond)
		}))
		defer server.Close()

		d, m := newTestDispatcher(Config{Timeout: time.Second, MaxConcurrent: 2})
		for i := 0; i < 20; i++ {
			d.Dispatch(testEvent(), server.URL)
		}
		require.NoError(t, d.Wait(context.Background()))

		assert.EqualValues(t, 20, hits.Load())
		assert.Equal(t, float64(20), alertCount(m, "sent"))
	})
}

func TestDispatcher_DispatchAfterWaitIsDropped(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	d, m := newTestDispatcher(Config{Timeout: time.Second})
	d.Dispatch(testEvent(), server.URL)
	require.NoError(t, d.Wait(context.Background()))

	d.Dispatch(testEvent(), server.URL)
	require.NoError(t, d.Wait(context.Background()))

	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, float64(1), alertCount(m, "sent"))
	assert.Equal(t, float64(1), alertCount(m, "dropped"))
}

func TestDispatcher_DispatchDuringDrain(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()

	d, m := newTestDispatcher(Config{Timeout: 5 * time.Second})
	d.Dispatch(testEvent(), server.URL)

	waitDone := make(chan error, 1)
	go func() { waitDone <- d.Wait(context.Background()) }()

	require.Eventually(t, func() bool {
		d.Dispatch(testEvent(), server.URL)
		return alertCount(m, "dropped") > 0
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-waitDone)
	assert.GreaterOrEqual(t, alertCount(m, "sent"), float64(1))
}

func TestDispatcher_NilMetrics(t *testing.T) {
	d := New(Config{}, nil, nil)
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), testEvent(), "")
	})
}
