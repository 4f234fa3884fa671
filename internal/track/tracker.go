package track

import (
	"sync"
	"time"

	"fleetsim/internal/geo"
	"fleetsim/internal/model"
	"fleetsim/internal/sim"
)

// Stop statuses as a route progresses.
const (
	StopPending   = "pending"
	StopArrived   = "arrived"
	StopCompleted = "completed"
)

// Position is the latest known fix for a vehicle.
type Position struct {
	VehicleID string    `json:"vehicleId"`
	Location  geo.Point `json:"location"`
	SpeedKph  float64   `json:"speedKph"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"ts"`
}

// StopInfo is one tracked stop on a registered route.
type StopInfo struct {
	OrderID    string     `json:"orderId"`
	Kind       string     `json:"kind"`
	Location   geo.Point  `json:"location"`
	Status     string     `json:"status"`
	ArrivedAt  *time.Time `json:"arrivedAt,omitempty"`
	DepartedAt *time.Time `json:"departedAt,omitempty"`
}

// Callback receives tracking events: position_updated, stop_arrived,
// stop_completed. Payload is a Position or a (vehicleID, orderID) pair
// wrapped in StopEvent.
type Callback func(event string, data any)

// StopEvent is the payload for stop_arrived / stop_completed callbacks.
type StopEvent struct {
	VehicleID string `json:"vehicleId"`
	OrderID   string `json:"orderId"`
}

// Tracker keeps live vehicle positions and per-vehicle stop lists, and
// computes ETAs from the latest fix. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	speedKph  float64
	serviceMn float64
	positions map[string]Position
	routes    map[string][]StopInfo
	callbacks []Callback
	now       func() time.Time
}

// New returns a Tracker using speedKph for ETA travel time and serviceMin
// as the per-stop service allowance. Non-positive values get the fleet
// defaults (40 km/h, 30 min).
func New(speedKph, serviceMin float64) *Tracker {
	if speedKph <= 0 {
		speedKph = 40
	}
	if serviceMin <= 0 {
		serviceMin = 30
	}
	return &Tracker{
		speedKph:  speedKph,
		serviceMn: serviceMin,
		positions: map[string]Position{},
		routes:    map[string][]StopInfo{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnEvent registers a callback for tracking events.
func (t *Tracker) OnEvent(cb Callback) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()
}

// UpdatePosition stores the latest fix and notifies callbacks.
func (t *Tracker) UpdatePosition(p Position) {
	if p.Timestamp.IsZero() {
		p.Timestamp = t.now()
	}
	t.mu.Lock()
	t.positions[p.VehicleID] = p
	cbs := append([]Callback(nil), t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb("position_updated", p)
	}
}

// Position returns the latest fix for a vehicle.
func (t *Tracker) Position(vehicleID string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[vehicleID]
	return p, ok
}

// RegisterRoute replaces the tracked stop list for a vehicle with the
// route's stop sequence, all pending.
func (t *Tracker) RegisterRoute(rt model.Route) {
	stops := make([]StopInfo, 0, len(rt.Stops))
	for _, st := range rt.Stops {
		stops = append(stops, StopInfo{
			OrderID:  st.OrderID,
			Kind:     st.Kind,
			Location: st.Location,
			Status:   StopPending,
		})
	}
	t.mu.Lock()
	t.routes[rt.VehicleID] = stops
	t.mu.Unlock()
}

// Stops returns the tracked stop list for a vehicle.
func (t *Tracker) Stops(vehicleID string) []StopInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]StopInfo(nil), t.routes[vehicleID]...)
}

// ETA estimates when the vehicle finishes its remaining stops: travel at
// the configured speed from the latest fix through every not-completed
// stop, plus service time at each. Returns false without a fix or route.
func (t *Tracker) ETA(vehicleID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[vehicleID]
	stops := t.routes[vehicleID]
	if !ok || len(stops) == 0 {
		return time.Time{}, false
	}

	next := 0
	for i, st := range stops {
		if st.Status == StopPending {
			next = i
			break
		}
	}
	total := 0.0
	loc := pos.Location
	for i := next; i < len(stops); i++ {
		d, err := geo.Distance(loc, stops[i].Location)
		if err != nil {
			return time.Time{}, false
		}
		total += d/t.speedKph*60 + t.serviceMn
		loc = stops[i].Location
	}
	return t.now().Add(time.Duration(total * float64(time.Minute))), true
}

// ETAToStop estimates arrival at the stop serving orderID: full legs plus
// service for intermediate stops, travel only for the final leg.
func (t *Tracker) ETAToStop(vehicleID, orderID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[vehicleID]
	stops := t.routes[vehicleID]
	if !ok || len(stops) == 0 {
		return time.Time{}, false
	}

	target := -1
	for i, st := range stops {
		if st.OrderID == orderID {
			target = i
			break
		}
	}
	if target < 0 {
		return time.Time{}, false
	}
	total := 0.0
	loc := pos.Location
	for i := 0; i <= target; i++ {
		d, err := geo.Distance(loc, stops[i].Location)
		if err != nil {
			return time.Time{}, false
		}
		total += d / t.speedKph * 60
		if i < target {
			total += t.serviceMn
		}
		loc = stops[i].Location
	}
	return t.now().Add(time.Duration(total * float64(time.Minute))), true
}

// MarkArrived transitions the order's stop to arrived and stamps it.
func (t *Tracker) MarkArrived(vehicleID, orderID string) {
	t.markStop(vehicleID, orderID, StopArrived, "stop_arrived")
}

// MarkCompleted transitions the order's stop to completed and stamps it.
func (t *Tracker) MarkCompleted(vehicleID, orderID string) {
	t.markStop(vehicleID, orderID, StopCompleted, "stop_completed")
}

func (t *Tracker) markStop(vehicleID, orderID, status, event string) {
	t.mu.Lock()
	stops := t.routes[vehicleID]
	var hit bool
	for i := range stops {
		if stops[i].OrderID != orderID || stops[i].Status == StopCompleted {
			continue
		}
		stops[i].Status = status
		ts := t.now()
		if status == StopArrived {
			stops[i].ArrivedAt = &ts
		} else {
			stops[i].DepartedAt = &ts
		}
		hit = true
		break
	}
	cbs := append([]Callback(nil), t.callbacks...)
	t.mu.Unlock()
	if !hit {
		return
	}
	for _, cb := range cbs {
		cb(event, StopEvent{VehicleID: vehicleID, OrderID: orderID})
	}
}

// Attach subscribes the tracker to a simulation engine so simulated stop
// activity drives the live view: delivery/pickup starts mark arrival,
// completions mark the stop done and move the vehicle's fix.
func (t *Tracker) Attach(e *sim.Engine) {
	arrive := func(ev sim.Event) {
		t.UpdatePosition(Position{VehicleID: ev.VehicleID, Location: ev.Location, SpeedKph: t.speedKph})
		t.MarkArrived(ev.VehicleID, ev.EntityID)
	}
	complete := func(ev sim.Event) {
		t.MarkCompleted(ev.VehicleID, ev.EntityID)
	}
	e.Subscribe(sim.KindPickupStart, arrive)
	e.Subscribe(sim.KindDeliveryStart, arrive)
	e.Subscribe(sim.KindPickupComplete, complete)
	e.Subscribe(sim.KindDeliveryComplete, complete)
}
