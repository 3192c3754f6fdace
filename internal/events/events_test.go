package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func TestEventBus_TypedSubscription(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	decisions := bus.Subscribe(models.EventTypeDecisionMade)

	bus.Publish(models.NewEvent(models.EventTypeDecisionMade, "svc-a", "decided"))
	bus.Publish(models.NewEvent(models.EventTypeAlert, "svc-a", "not for this channel"))

	select {
	case e := <-decisions:
		assert.Equal(t, models.EventTypeDecisionMade, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a decision event")
	}

	select {
	case e := <-decisions:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	all := bus.SubscribeAll()

	bus.Publish(models.NewEvent(models.EventTypeScalingStarted, "svc-a", "started"))
	bus.Publish(models.NewEvent(models.EventTypeScalingCompleted, "svc-a", "done"))

	got := []models.EventType{(<-all).Type, (<-all).Type}
	assert.Equal(t, []models.EventType{models.EventTypeScalingStarted, models.EventTypeScalingCompleted}, got)
}

func TestEventBus_FullChannelDropsInsteadOfBlocking(t *testing.T) {
	bus := events.NewEventBus(1)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeAlert)

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Publish(models.NewEvent(models.EventTypeAlert, "svc-a", "first"))
		bus.Publish(models.NewEvent(models.EventTypeAlert, "svc-a", "dropped"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full channel")
	}

	e := <-ch
	assert.Equal(t, "first", e.Message)
}

func TestEventBus_PublishAfterCloseIsNoop(t *testing.T) {
	bus := events.NewEventBus(10)
	bus.Close()
	bus.Publish(models.NewEvent(models.EventTypeAlert, "svc-a", "late"))
}

func TestPublisher_TraceIDPropagates(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeScalingStarted)
	pub := events.NewPublisher(bus).WithTraceID("trace-123")

	pub.ScalingStarted(&models.ScalingDecision{ServiceID: "svc-a", Action: models.ActionScaleUp})

	e := <-ch
	assert.Equal(t, "trace-123", e.TraceID)
	assert.Equal(t, "svc-a", e.ServiceID)
}

type memoryStore struct {
	mu        sync.Mutex
	decisions []*models.ScalingDecision
	events    []*models.ScalingEvent
}

func (s *memoryStore) SaveDecision(_ context.Context, d *models.ScalingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *memoryStore) SaveScalingEvent(_ context.Context, e *models.ScalingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memoryStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions), len(s.events)
}

func TestEventLogger_PersistsDecisionsAndScalings(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	store := &memoryStore{}
	eventLogger := events.NewEventLogger(store, bus.SubscribeAll())
	eventLogger.Start()
	defer eventLogger.Stop()

	pub := events.NewPublisher(bus)
	decision := &models.ScalingDecision{ServiceID: "svc-a", Action: models.ActionScaleUp}
	pub.DecisionMade(decision)
	pub.ScalingCompleted(models.NewScalingEvent(decision, nil))
	pub.Alert("svc-a", models.SeverityInfo, "not persisted", nil)

	require.Eventually(t, func() bool {
		d, e := store.counts()
		return d == 1 && e == 1
	}, time.Second, 5*time.Millisecond)
}
