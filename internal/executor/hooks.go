package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/internal/metrics"
)

const (
	HookPhasePre  = "pre"
	HookPhasePost = "post"
)

// HookSink notifies external endpoints around a scaling operation. Hooks are
// best-effort: a failure is logged and published but never aborts the scaling,
// and there are no retries.
type HookSink struct {
	preURLs   []string
	postURLs  []string
	timeout   time.Duration
	client    *http.Client
	publisher *events.Publisher
}

type hookPayload struct {
	Phase     string    `json:"phase"`
	ServiceID string    `json:"service_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHookSink(preURLs, postURLs []string, timeout time.Duration, publisher *events.Publisher) *HookSink {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HookSink{
		preURLs:   preURLs,
		postURLs:  postURLs,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		publisher: publisher,
	}
}

func (h *HookSink) RunPre(ctx context.Context, serviceID string) {
	h.run(ctx, HookPhasePre, serviceID, h.preURLs)
}

func (h *HookSink) RunPost(ctx context.Context, serviceID string) {
	h.run(ctx, HookPhasePost, serviceID, h.postURLs)
}

func (h *HookSink) run(ctx context.Context, phase, serviceID string, urls []string) {
	for _, url := range urls {
		if err := h.invoke(ctx, phase, serviceID, url); err != nil {
			logger.WithService(serviceID).Warnf("%s-hook %s failed: %v", phase, url, err)
			metrics.HookFailuresTotal.WithLabelValues(serviceID, phase).Inc()
			if h.publisher != nil {
				h.publisher.HookFailed(serviceID, phase, url, err)
			}
		}
	}
}

func (h *HookSink) invoke(ctx context.Context, phase, serviceID, url string) error {
	body, _ := json.Marshal(hookPayload{
		Phase:     phase,
		ServiceID: serviceID,
		Timestamp: time.Now().UTC(),
	})

	hookCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hookCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("hook returned %d", resp.StatusCode)
	}
	return nil
}
