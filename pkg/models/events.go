package models

import "time"

type EventType string

const (
	EventTypeMetricCollected  EventType = "metric_collected"
	EventTypeMetricsError     EventType = "metrics_error"
	EventTypeDecisionMade     EventType = "decision_made"
	EventTypeDecisionError    EventType = "decision_error"
	EventTypeScalingStarted   EventType = "scaling_started"
	EventTypeScalingCompleted EventType = "scaling_completed"
	EventTypeScalingFailed    EventType = "scaling_failed"
	EventTypeHookFailed       EventType = "hook_failed"
	EventTypeAlert            EventType = "alert"
	EventTypeError            EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event is an internal lifecycle notification carried on the event bus.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	ServiceID string        `json:"service_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, serviceID, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		ServiceID: serviceID,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
