package events

import (
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// Publisher is the typed facade components use to emit lifecycle events.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) MetricCollected(serviceID string, metrics *models.ServiceMetrics) {
	event := models.NewEvent(models.EventTypeMetricCollected, serviceID, "Metrics collected").
		WithData(metrics)
	p.publish(event)
}

func (p *Publisher) MetricsError(serviceID string, err error) {
	event := models.NewEvent(models.EventTypeMetricsError, serviceID, "Metrics collection failed").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{"error": err.Error()})
	p.publish(event)
}

func (p *Publisher) DecisionMade(decision *models.ScalingDecision) {
	msg := "Scaling decision: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeDecisionMade, decision.ServiceID, msg).
		WithData(decision)

	if decision.IsEmergency {
		event.WithSeverity(models.SeverityCritical)
	} else if decision.Urgency == models.UrgencyHigh {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) DecisionError(serviceID string, err error) {
	event := models.NewEvent(models.EventTypeDecisionError, serviceID, "Decision failed").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{"error": err.Error()})
	p.publish(event)
}

func (p *Publisher) ScalingStarted(decision *models.ScalingDecision) {
	msg := "Scaling started: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeScalingStarted, decision.ServiceID, msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingCompleted(scalingEvent *models.ScalingEvent) {
	msg := "Scaling completed: " + string(scalingEvent.Action)
	event := models.NewEvent(models.EventTypeScalingCompleted, scalingEvent.ServiceID, msg).
		WithData(scalingEvent)
	p.publish(event)
}

func (p *Publisher) ScalingFailed(scalingEvent *models.ScalingEvent) {
	msg := "Scaling failed: " + scalingEvent.Error
	event := models.NewEvent(models.EventTypeScalingFailed, scalingEvent.ServiceID, msg).
		WithSeverity(models.SeverityCritical).
		WithData(scalingEvent)
	p.publish(event)
}

func (p *Publisher) HookFailed(serviceID, phase, url string, err error) {
	event := models.NewEvent(models.EventTypeHookFailed, serviceID, "Scaling hook failed").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"phase": phase,
			"url":   url,
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) Alert(serviceID string, severity models.EventSeverity, message string, data interface{}) {
	event := models.NewEvent(models.EventTypeAlert, serviceID, message).
		WithSeverity(severity).
		WithData(data)
	p.publish(event)
}

func (p *Publisher) Error(serviceID string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, serviceID, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{"error": err.Error()})
	p.publish(event)
}
