package collector_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/collector"
)

const probeBody = `{
	"service_id": "svc-a",
	"captured_at": "2025-03-03T10:00:00Z",
	"resources": {"cpu_usage": 85.5, "memory_usage": 61.0, "network_in": 1024, "network_out": 2048},
	"performance": {"response_time_ms": 42.0, "throughput_rps": 900.0, "error_rate": 0.002, "queue_length": 7},
	"instances": {"current": 4, "healthy": 4, "unhealthy": 0},
	"custom": {"order_depth": 12.5},
	"some_future_field": {"ignored": true}
}`

func TestHTTPCollector_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/svc-a", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(probeBody))
	}))
	defer srv.Close()

	c := collector.NewHTTPCollector(collector.HTTPCollectorConfig{Endpoint: srv.URL})
	defer c.Close()

	metrics, err := c.Collect(context.Background(), "svc-a")
	require.NoError(t, err)

	assert.Equal(t, "svc-a", metrics.ServiceID)
	assert.Equal(t, 85.5, metrics.Resources.CPUUsage)
	assert.Equal(t, 42.0, metrics.Performance.ResponseTimeMs)
	assert.Equal(t, 4, metrics.Instances.Current)
	assert.Equal(t, 12.5, metrics.Custom["order_depth"])
	assert.Equal(t, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), metrics.CapturedAt)
}

func TestHTTPCollector_Collect_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr: collector.ErrServiceNotFound,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"resources": "nope"`))
			},
			wantErr: collector.ErrSourceMalformed,
		},
		{
			name: "invalid field values",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"service_id": "svc-a", "resources": {"cpu_usage": 250}}`))
			},
			wantErr: collector.ErrSourceMalformed,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: collector.ErrSourceUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := collector.NewHTTPCollector(collector.HTTPCollectorConfig{Endpoint: srv.URL})
			defer c.Close()

			_, err := c.Collect(context.Background(), "svc-a")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPCollector_Collect_Unreachable(t *testing.T) {
	c := collector.NewHTTPCollector(collector.HTTPCollectorConfig{
		Endpoint: "http://127.0.0.1:1",
		Timeout:  500 * time.Millisecond,
	})
	defer c.Close()

	_, err := c.Collect(context.Background(), "svc-a")
	assert.ErrorIs(t, err, collector.ErrSourceUnreachable)
}

func TestResilientCollector_OpensCircuit(t *testing.T) {
	mock := collector.NewMockCollector(collector.MockCollectorConfig{BaseCPU: 50})
	mock.FailWith(collector.ErrSourceUnreachable)

	rc := collector.NewResilientCollector(collector.ResilientCollectorConfig{
		Collector:   mock,
		MaxFailures: 2,
		Timeout:     time.Minute,
	})

	_, err := rc.Collect(context.Background(), "svc-a")
	assert.ErrorIs(t, err, collector.ErrSourceUnreachable)
	_, err = rc.Collect(context.Background(), "svc-a")
	assert.ErrorIs(t, err, collector.ErrSourceUnreachable)

	// Circuit is now open; source is no longer called.
	mock.FailWith(nil)
	_, err = rc.Collect(context.Background(), "svc-a")
	assert.Error(t, err)
}
