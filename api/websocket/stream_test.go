package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func metricsSnapshot(serviceID string, cpu float64) *models.ServiceMetrics {
	return &models.ServiceMetrics{
		ServiceID:  serviceID,
		CapturedAt: time.Now(),
		Resources:  models.ResourceMetrics{CPUUsage: cpu, MemoryUsage: 40},
		Instances:  models.InstanceCounts{Current: 3, Healthy: 3},
	}
}

func TestMetricsStream_PushesStoreUpdatesToClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "")
	hub.Register(client)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, time.Millisecond)

	store := metricstore.New(8)
	defer store.Close()
	stream := NewMetricsStream(hub, store)
	stream.Start()
	defer stream.Stop()

	store.Put("svc-a", metricsSnapshot("svc-a", 87.5))

	select {
	case raw := <-client.send:
		var msg OutgoingMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, MessageTypeMetrics, msg.Type)
		assert.Equal(t, "svc-a", msg.ServiceID)

		var data MetricsData
		payload, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(payload, &data))
		assert.Equal(t, 87.5, data.CPUUsage)
		assert.Equal(t, 3, data.Instances)
	case <-time.After(time.Second):
		t.Fatal("no metrics message pushed to client")
	}
}

func TestMetricsStream_StopHaltsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "")
	hub.Register(client)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, time.Millisecond)

	store := metricstore.New(8)
	defer store.Close()
	stream := NewMetricsStream(hub, store)
	stream.Start()
	stream.Stop()

	// Give the run loop a beat to observe the cancellation.
	time.Sleep(20 * time.Millisecond)
	store.Put("svc-a", metricsSnapshot("svc-a", 50))

	select {
	case <-client.send:
		t.Fatal("message delivered after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
