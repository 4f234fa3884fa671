package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetsim/internal/store"
)

// Event types pushed to webhook subscribers.
const (
	EventRoutePlanned        = "route.planned"
	EventSimulationCompleted = "simulation.completed"
	EventOrderDelivered      = "order.delivered"
	EventOrderFailed         = "order.failed"
)

// Publisher fans an event out to every matching subscription by enqueueing
// one delivery per subscriber. Actual HTTP pushes happen in the Worker.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues deliveries for all subscriptions registered for eventType.
// Publish failures are dropped; webhooks are best-effort by design and
// must never block the request path.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}
