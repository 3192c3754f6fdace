package events

import (
	"context"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// Store is the slice of persistence the event logger needs.
type Store interface {
	SaveDecision(ctx context.Context, decision *models.ScalingDecision) error
	SaveScalingEvent(ctx context.Context, event *models.ScalingEvent) error
}

// EventLogger drains the bus, mirrors every event into the structured log,
// and persists decisions and completed/failed scalings.
type EventLogger struct {
	store     Store
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewEventLogger(store Store, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		store:     store,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

// Stop cancels processing and waits for the drain goroutine to exit.
func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"service_id": event.ServiceID,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	if l.store == nil {
		return
	}

	switch event.Type {
	case models.EventTypeDecisionMade:
		l.persistDecision(event)
	case models.EventTypeScalingCompleted, models.EventTypeScalingFailed:
		l.persistScalingEvent(event)
	}
}

func (l *EventLogger) persistDecision(event *models.Event) {
	decision, ok := event.Data.(*models.ScalingDecision)
	if !ok {
		return
	}
	if err := l.store.SaveDecision(l.ctx, decision); err != nil {
		logger.Errorf("Failed to persist decision: %v", err)
	}
}

func (l *EventLogger) persistScalingEvent(event *models.Event) {
	scalingEvent, ok := event.Data.(*models.ScalingEvent)
	if !ok {
		return
	}
	if err := l.store.SaveScalingEvent(l.ctx, scalingEvent); err != nil {
		logger.Errorf("Failed to persist scaling event: %v", err)
	}
}
