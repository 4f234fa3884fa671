package api

import (
	"sync"
)

// StreamEvent is one tracking or lifecycle event pushed to stream
// subscribers. Topic is a vehicle ID, or "fleet" for run-level events.
type StreamEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// FleetTopic receives run-level events not tied to a single vehicle.
const FleetTopic = "fleet"

// EventBroker fans StreamEvents out to subscribers by topic.
type EventBroker interface {
	Subscribe(topic string) chan StreamEvent
	Unsubscribe(topic string, ch chan StreamEvent)
	Publish(topic string, evt StreamEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop events
// rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan StreamEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan StreamEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan StreamEvent {
	ch := make(chan StreamEvent, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan StreamEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan StreamEvent) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(topic string, evt StreamEvent) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
