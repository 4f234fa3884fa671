// Package main runs a demo client for the vehicle track stream: it plans
// a route for the stored fleet, opens the WebSocket stream for the first
// routed vehicle, then reports a position fix and prints what comes back.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func post(base, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed one vehicle and two orders, then plan.
	_, _ = post(base, "/v1/vehicles", []byte(`{"vehicles":[{"id":"vehicle_001","maxWeightKg":500,"maxVolumeM3":10,"start":{"lat":40.7128,"lng":-74.0060}}]}`))
	_, _ = post(base, "/v1/orders", []byte(`{"orders":[
		{"id":"order_00001","pickup":{"lat":40.710,"lng":-74.000},"delivery":{"lat":40.715,"lng":-73.995},"window":{"earliest":"2025-06-02T08:00:00Z","latest":"2025-06-02T22:00:00Z"},"weightKg":10,"volumeM3":0.5},
		{"id":"order_00002","pickup":{"lat":40.712,"lng":-74.005},"delivery":{"lat":40.718,"lng":-73.990},"window":{"earliest":"2025-06-02T08:00:00Z","latest":"2025-06-02T22:00:00Z"},"weightKg":20,"volumeM3":1}
	]}`))

	resp, err := post(base, "/v1/optimize", []byte(`{}`))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var optResp struct {
		Result struct {
			Routes []struct {
				VehicleID string `json:"vehicleId"`
			} `json:"routes"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&optResp); err != nil {
		log.Fatal(err)
	}
	if len(optResp.Result.Routes) == 0 {
		log.Fatal("no routes returned")
	}
	vehicleID := optResp.Result.Routes[0].VehicleID
	log.Printf("streaming vehicle %s", vehicleID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/track/stream", RawQuery: "vehicleId=" + vehicleID}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", msg)
		}
	}()

	// Trigger stream traffic with a position fix.
	time.Sleep(500 * time.Millisecond)
	_, _ = post(base, "/v1/vehicles/"+vehicleID+"/position", []byte(`{"location":{"lat":40.7128,"lng":-74.0060},"speedKph":32,"heading":90}`))

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
