package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("vehicle_001")

	b.Publish("vehicle_001", StreamEvent{Type: "position_updated", Data: map[string]any{"lat": 40.71}})

	select {
	case got := <-ch:
		if got.Type != "position_updated" {
			t.Fatalf("type = %q", got.Type)
		}
		if got.Data["lat"].(float64) != 40.71 {
			t.Fatalf("payload = %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe("vehicle_001", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("vehicle_001")
	other := b.Subscribe("vehicle_002")

	b.Publish("vehicle_001", StreamEvent{Type: "stop_arrived", Data: map[string]any{}})

	select {
	case <-a:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("subscriber on published topic got nothing")
	}
	select {
	case evt := <-other:
		t.Fatalf("unrelated topic received %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
	b.Unsubscribe("vehicle_001", a)
	b.Unsubscribe("vehicle_002", other)
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("vehicle_001")
	done := make(chan struct{})
	go func() {
		// more events than the channel buffers; Publish must not block
		for i := 0; i < 100; i++ {
			b.Publish("vehicle_001", StreamEvent{Type: "position_updated", Data: map[string]any{"i": i}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	b.Unsubscribe("vehicle_001", ch)
}
