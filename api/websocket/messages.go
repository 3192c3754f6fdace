package websocket

import (
	"encoding/json"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

type MessageType string

const (
	MessageTypeMetrics      MessageType = "metrics"
	MessageTypeDecision     MessageType = "decision"
	MessageTypeScalingEvent MessageType = "scaling_event"
	MessageTypeAlert        MessageType = "alert"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	ServiceID string      `json:"service_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewMessage(msgType MessageType, serviceID string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		ServiceID: serviceID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

type MetricsData struct {
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   float64 `json:"memory_usage"`
	ThroughputRPS float64 `json:"throughput_rps"`
	Instances     int     `json:"instances"`
}

type ScalingEventData struct {
	Action            string `json:"action"`
	PreviousInstances int    `json:"previous_instances"`
	NewInstances      int    `json:"new_instances"`
	Reason            string `json:"reason"`
	Success           bool   `json:"success"`
}

type AlertData struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func BroadcastMetrics(hub *Hub, metrics *models.ServiceMetrics) {
	data := MetricsData{
		CPUUsage:      metrics.Resources.CPUUsage,
		MemoryUsage:   metrics.Resources.MemoryUsage,
		ThroughputRPS: metrics.Performance.ThroughputRPS,
		Instances:     metrics.Instances.Current,
	}
	msg := NewMessage(MessageTypeMetrics, metrics.ServiceID, data)
	hub.BroadcastToService(metrics.ServiceID, msg.JSON())
}

func BroadcastScalingEvent(hub *Hub, event *models.ScalingEvent) {
	data := ScalingEventData{
		Action:            string(event.Action),
		PreviousInstances: event.PreviousInstances,
		NewInstances:      event.NewInstances,
		Reason:            event.RuleSummary,
		Success:           event.Success,
	}
	msg := NewMessage(MessageTypeScalingEvent, event.ServiceID, data)
	hub.BroadcastToService(event.ServiceID, msg.JSON())
}

func BroadcastAlert(hub *Hub, serviceID, severity, message string) {
	data := AlertData{
		Severity: severity,
		Message:  message,
	}
	msg := NewMessage(MessageTypeAlert, serviceID, data)
	hub.BroadcastToService(serviceID, msg.JSON())
}
