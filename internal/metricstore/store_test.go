package metricstore_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func snapshot(serviceID string, cpu float64) *models.ServiceMetrics {
	return &models.ServiceMetrics{
		ServiceID:  serviceID,
		CapturedAt: time.Now(),
		Resources:  models.ResourceMetrics{CPUUsage: cpu},
		Instances:  models.InstanceCounts{Current: 3, Healthy: 3},
	}
}

func TestStore_PutReplacesSnapshot(t *testing.T) {
	store := metricstore.New(8)
	defer store.Close()

	store.Put("svc-a", snapshot("svc-a", 50))
	store.Put("svc-a", snapshot("svc-a", 90))

	m, ok := store.Get("svc-a")
	require.True(t, ok)
	assert.Equal(t, 90.0, m.Resources.CPUUsage)

	_, ok = store.Get("svc-b")
	assert.False(t, ok)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := metricstore.New(8)
	defer store.Close()

	orig := snapshot("svc-a", 50)
	orig.Custom = map[string]float64{"depth": 1}
	store.Put("svc-a", orig)

	m, ok := store.Get("svc-a")
	require.True(t, ok)
	m.Resources.CPUUsage = 99
	m.Custom["depth"] = 42

	again, _ := store.Get("svc-a")
	assert.Equal(t, 50.0, again.Resources.CPUUsage)
	assert.Equal(t, 1.0, again.Custom["depth"])
}

func TestStore_SubscribeReceivesServiceID(t *testing.T) {
	store := metricstore.New(8)
	defer store.Close()

	updates := store.Subscribe()
	store.Put("svc-a", snapshot("svc-a", 50))

	select {
	case id := <-updates:
		assert.Equal(t, "svc-a", id)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestStore_SlowSubscriberDropsOldest(t *testing.T) {
	store := metricstore.New(1)
	defer store.Close()

	updates := store.Subscribe()

	store.Put("svc-a", snapshot("svc-a", 50))
	store.Put("svc-b", snapshot("svc-b", 60))

	// The svc-a signal was displaced; the snapshot itself is intact.
	id := <-updates
	assert.Equal(t, "svc-b", id)

	m, ok := store.Get("svc-a")
	require.True(t, ok)
	assert.Equal(t, 50.0, m.Resources.CPUUsage)
}

func TestStore_PutAfterCloseIsSilent(t *testing.T) {
	store := metricstore.New(8)
	updates := store.Subscribe()
	store.Close()

	store.Put("svc-a", snapshot("svc-a", 50))

	_, open := <-updates
	assert.False(t, open, "subscriber channel closed, no send after Close")

	m, ok := store.Get("svc-a")
	require.True(t, ok)
	assert.Equal(t, 50.0, m.Resources.CPUUsage, "snapshot still stored after Close")
}

func TestStore_ConcurrentPutAndClose(t *testing.T) {
	// Exercised with -race: Close must never close a channel a concurrent
	// Put is sending on.
	for i := 0; i < 50; i++ {
		store := metricstore.New(1)
		store.Subscribe()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				store.Put("svc-a", snapshot("svc-a", float64(j)))
			}
		}()
		go func() {
			defer wg.Done()
			store.Close()
		}()
		wg.Wait()
	}
}

func TestStore_Snapshot(t *testing.T) {
	store := metricstore.New(8)
	defer store.Close()

	store.Put("svc-a", snapshot("svc-a", 50))
	store.Put("svc-b", snapshot("svc-b", 60))

	all := store.Snapshot()
	assert.Len(t, all, 2)
	assert.Equal(t, 50.0, all["svc-a"].Resources.CPUUsage)
	assert.ElementsMatch(t, []string{"svc-a", "svc-b"}, store.ServiceIDs())
}
