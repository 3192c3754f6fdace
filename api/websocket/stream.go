package websocket

import (
	"context"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
)

// MetricsStream pushes fresh snapshots to WebSocket clients as the metric
// store announces changes, keeping dashboards live without polling.
type MetricsStream struct {
	hub     *Hub
	store   *metricstore.Store
	updates <-chan string
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewMetricsStream(hub *Hub, store *metricstore.Store) *MetricsStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &MetricsStream{
		hub:     hub,
		store:   store,
		updates: store.Subscribe(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *MetricsStream) Start() {
	go s.run()
	logger.Info("WebSocket metrics stream started")
}

func (s *MetricsStream) Stop() {
	s.cancel()
	logger.Info("WebSocket metrics stream stopped")
}

func (s *MetricsStream) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case serviceID, ok := <-s.updates:
			if !ok {
				return
			}
			if s.hub.ClientCount() == 0 {
				continue
			}
			if m, ok := s.store.Get(serviceID); ok {
				BroadcastMetrics(s.hub, m)
			}
		}
	}
}
