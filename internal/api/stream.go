package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is the client-to-server control frame for the track stream.
type wsMessage struct {
	Type      string `json:"type"`
	VehicleID string `json:"vehicleId,omitempty"`
}

// TrackStreamHandler handles GET /v1/track/stream over WebSocket. The
// client starts on the topic named by ?vehicleId= (or the fleet topic) and
// can adjust with {"type":"subscribe","vehicleId":...} / "unsubscribe"
// frames. Events are pushed as {"type":"event","topic",...,"data":...}.
func (s *Server) TrackStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	var wg sync.WaitGroup
	subs := map[string]chan StreamEvent{}
	subscribe := func(topic string) {
		if _, ok := subs[topic]; ok {
			return
		}
		ch := s.Broker.Subscribe(topic)
		subs[topic] = ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for evt := range ch {
				if err := write(map[string]any{"type": "event", "topic": topic, "event": evt.Type, "data": evt.Data}); err != nil {
					return
				}
			}
		}()
	}

	if v := r.URL.Query().Get("vehicleId"); v != "" {
		subscribe(v)
	} else {
		subscribe(FleetTopic)
	}
	_ = write(map[string]any{"type": "hello", "topics": topicNames(subs)})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "subscribe":
			if msg.VehicleID != "" {
				subscribe(msg.VehicleID)
				_ = write(map[string]any{"type": "subscribed", "topic": msg.VehicleID})
			}
		case "unsubscribe":
			if ch, ok := subs[msg.VehicleID]; ok {
				s.Broker.Unsubscribe(msg.VehicleID, ch)
				delete(subs, msg.VehicleID)
				_ = write(map[string]any{"type": "unsubscribed", "topic": msg.VehicleID})
			}
		case "ping":
			_ = write(map[string]any{"type": "pong"})
		}
	}

	close(stop)
	for topic, ch := range subs {
		s.Broker.Unsubscribe(topic, ch)
	}
	wg.Wait()
}

func topicNames(subs map[string]chan StreamEvent) []string {
	out := make([]string, 0, len(subs))
	for t := range subs {
		out = append(out, t)
	}
	return out
}
