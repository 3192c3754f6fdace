package metricstore

import (
	"sync"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// Store holds the latest ServiceMetrics snapshot per service and fans out a
// change signal tagged with the service id. Writes replace atomically; reads
// never observe a torn snapshot. Subscribers that fall behind lose the oldest
// pending notification, never the snapshot itself.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*models.ServiceMetrics
	subs      []chan string
	bufSize   int
	closed    bool
}

func New(bufferSize int) *Store {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Store{
		snapshots: make(map[string]*models.ServiceMetrics),
		bufSize:   bufferSize,
	}
}

// Put replaces the snapshot for a service and notifies subscribers.
func (s *Store) Put(serviceID string, metrics *models.ServiceMetrics) {
	s.mu.Lock()
	s.snapshots[serviceID] = metrics.Clone()
	s.mu.Unlock()

	// Sends happen under the read lock so Close cannot close a channel
	// mid-notification. All sends are non-blocking.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	for _, ch := range s.subs {
		select {
		case ch <- serviceID:
		default:
			// Drop the oldest pending signal to make room; a change
			// notification is a hint, the snapshot itself is never lost.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- serviceID:
			default:
				logger.WithService(serviceID).Warn("Metric store subscriber stalled, dropping change signal")
			}
		}
	}
}

// Get returns the current snapshot for a service, or false when absent.
func (s *Store) Get(serviceID string) (*models.ServiceMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.snapshots[serviceID]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Snapshot returns a consistent copy of all services' latest metrics.
func (s *Store) Snapshot() map[string]*models.ServiceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.ServiceMetrics, len(s.snapshots))
	for id, m := range s.snapshots {
		out[id] = m.Clone()
	}
	return out
}

// ServiceIDs lists the services with a stored snapshot.
func (s *Store) ServiceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe returns a channel receiving the id of each updated service.
func (s *Store) Subscribe() <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, s.bufSize)
	s.subs = append(s.subs, ch)
	return ch
}

// Close stops notifications and closes all subscriber channels.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
