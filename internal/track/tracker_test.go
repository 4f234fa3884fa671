package track

import (
	"testing"
	"time"

	"fleetsim/internal/constraint"
	"fleetsim/internal/geo"
	"fleetsim/internal/model"
	"fleetsim/internal/sim"
)

var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	t := New(40, 30)
	t.now = func() time.Time { return fixedNow }
	return t
}

func sampleRoute() model.Route {
	return model.Route{
		VehicleID: "v1",
		Orders:    []string{"o1"},
		Stops: []model.Stop{
			{OrderID: "o1", Kind: model.StopPickup, Location: geo.Point{Lat: 40.72, Lng: -74.00}},
			{OrderID: "o1", Kind: model.StopDelivery, Location: geo.Point{Lat: 40.73, Lng: -73.99}},
		},
	}
}

func TestPositionRoundTrip(t *testing.T) {
	tr := newTestTracker()
	if _, ok := tr.Position("v1"); ok {
		t.Fatal("untracked vehicle reported a position")
	}
	tr.UpdatePosition(Position{VehicleID: "v1", Location: geo.Point{Lat: 40.71, Lng: -74.01}})
	p, ok := tr.Position("v1")
	if !ok || p.Location.Lat != 40.71 {
		t.Fatalf("position = %+v ok=%v", p, ok)
	}
	if p.Timestamp.IsZero() {
		t.Fatal("timestamp not stamped")
	}
}

func TestETARequiresFixAndRoute(t *testing.T) {
	tr := newTestTracker()
	if _, ok := tr.ETA("v1"); ok {
		t.Fatal("ETA without route or fix")
	}
	tr.RegisterRoute(sampleRoute())
	if _, ok := tr.ETA("v1"); ok {
		t.Fatal("ETA without position fix")
	}
}

func TestETAAccountsForTravelAndService(t *testing.T) {
	tr := newTestTracker()
	tr.RegisterRoute(sampleRoute())
	start := geo.Point{Lat: 40.71, Lng: -74.01}
	tr.UpdatePosition(Position{VehicleID: "v1", Location: start})

	stops := sampleRoute().Stops
	leg1 := geo.MustDistance(start, stops[0].Location)
	leg2 := geo.MustDistance(stops[0].Location, stops[1].Location)
	wantMin := leg1/40*60 + 30 + leg2/40*60 + 30

	eta, ok := tr.ETA("v1")
	if !ok {
		t.Fatal("no ETA")
	}
	got := eta.Sub(fixedNow).Minutes()
	if diff := got - wantMin; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("ETA minutes = %v, want %v", got, wantMin)
	}
}

func TestETAToStopOmitsFinalService(t *testing.T) {
	tr := newTestTracker()
	tr.RegisterRoute(sampleRoute())
	start := geo.Point{Lat: 40.71, Lng: -74.01}
	tr.UpdatePosition(Position{VehicleID: "v1", Location: start})

	// o1's pickup is the first stop: travel only, no service allowance.
	eta, ok := tr.ETAToStop("v1", "o1")
	if !ok {
		t.Fatal("no ETA to stop")
	}
	want := geo.MustDistance(start, sampleRoute().Stops[0].Location) / 40 * 60
	got := eta.Sub(fixedNow).Minutes()
	if diff := got - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("ETA minutes = %v, want %v", got, want)
	}

	if _, ok := tr.ETAToStop("v1", "missing"); ok {
		t.Fatal("ETA for unknown order")
	}
}

func TestStopTransitionsAndCallbacks(t *testing.T) {
	tr := newTestTracker()
	tr.RegisterRoute(sampleRoute())
	var events []string
	tr.OnEvent(func(event string, _ any) { events = append(events, event) })

	tr.MarkArrived("v1", "o1")
	tr.MarkCompleted("v1", "o1")
	stops := tr.Stops("v1")
	if stops[0].Status != StopCompleted {
		t.Fatalf("pickup stop = %+v", stops[0])
	}
	if stops[0].ArrivedAt == nil || stops[0].DepartedAt == nil {
		t.Fatal("stamps missing on completed stop")
	}
	if stops[1].Status != StopPending {
		t.Fatalf("delivery stop advanced early: %+v", stops[1])
	}

	// second arrival targets the delivery stop
	tr.MarkArrived("v1", "o1")
	if tr.Stops("v1")[1].Status != StopArrived {
		t.Fatal("delivery stop not arrived")
	}

	want := []string{"stop_arrived", "stop_completed", "stop_arrived"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestAttachFollowsSimulation(t *testing.T) {
	tr := newTestTracker()
	rt := sampleRoute()
	tr.RegisterRoute(rt)

	e := sim.New(constraint.DefaultConfig(), 1)
	tr.Attach(e)
	e.Schedule(sim.Event{Time: 10, Kind: sim.KindPickupStart, EntityID: "o1", VehicleID: "v1", Location: rt.Stops[0].Location})
	e.Schedule(sim.Event{Time: 25, Kind: sim.KindPickupComplete, EntityID: "o1", VehicleID: "v1"})
	e.Schedule(sim.Event{Time: 40, Kind: sim.KindDeliveryStart, EntityID: "o1", VehicleID: "v1", Location: rt.Stops[1].Location})
	e.Schedule(sim.Event{Time: 70, Kind: sim.KindDeliveryComplete, EntityID: "o1", VehicleID: "v1"})
	e.Run(480)

	stops := tr.Stops("v1")
	if stops[0].Status != StopCompleted || stops[1].Status != StopCompleted {
		t.Fatalf("stops after sim = %+v", stops)
	}
	p, ok := tr.Position("v1")
	if !ok || p.Location != rt.Stops[1].Location {
		t.Fatalf("final fix = %+v ok=%v", p, ok)
	}
}
