package constraint

import (
	"testing"
	"time"

	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

func window(fromHour, toHour int) model.TimeWindow {
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return model.TimeWindow{
		Earliest: day.Add(time.Duration(fromHour) * time.Hour),
		Latest:   day.Add(time.Duration(toHour) * time.Hour),
	}
}

func testVehicle() model.Vehicle {
	return model.Vehicle{
		ID:          "veh_1",
		MaxWeightKg: 100,
		MaxVolumeM3: 10,
		Start:       geo.Point{Lat: 40.7128, Lng: -74.0060},
	}
}

func testOrder(id string, weight, volume float64) model.Order {
	return model.Order{
		ID:       id,
		Pickup:   geo.Point{Lat: 40.7200, Lng: -74.0000},
		Delivery: geo.Point{Lat: 40.7300, Lng: -73.9900},
		Window:   window(0, 23),
		WeightKg: weight,
		VolumeM3: volume,
	}
}

func TestCapacityConstraint(t *testing.T) {
	ck := NewChecker(DefaultConfig())
	s := NewRouteState(testVehicle())

	if v := ck.Check(s, testOrder("o1", 60, 5)); v != nil {
		t.Fatalf("within capacity rejected: %v", v)
	}
	ck.Apply(s, testOrder("o1", 60, 5))

	v := ck.Check(s, testOrder("o2", 50, 1))
	if v == nil || v.Kind != KindCapacity {
		t.Fatalf("overweight candidate: got %v, want capacity violation", v)
	}
	v = ck.Check(s, testOrder("o3", 1, 6))
	if v == nil || v.Kind != KindCapacity {
		t.Fatalf("overvolume candidate: got %v, want capacity violation", v)
	}
}

func TestTimeWindowEarlyArrivalAllowed(t *testing.T) {
	ck := NewChecker(DefaultConfig())
	s := NewRouteState(testVehicle())
	o := testOrder("o1", 1, 0.1)
	o.Window = window(8, 20) // vehicle arrives well before 08:00; early is fine
	if v := ck.Check(s, o); v != nil {
		t.Fatalf("early arrival treated as violation: %v", v)
	}
}

func TestTimeWindowLateArrivalViolates(t *testing.T) {
	ck := NewChecker(DefaultConfig())
	s := NewRouteState(testVehicle())
	s.ElapsedMin = 10 * 60 // route is 10h in; nearby delivery closes at 01:00
	o := testOrder("o1", 1, 0.1)
	o.Window = window(0, 1)
	v := ck.Check(s, o)
	if v == nil || v.Kind != KindTimeWindow {
		t.Fatalf("late arrival: got %v, want time_window violation", v)
	}
}

func TestDriverHoursMaxShift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxShiftHours = 1
	ck := NewChecker(cfg)
	s := NewRouteState(testVehicle())
	s.ElapsedMin = 55 // +travel +15 pickup +30 delivery service blows the 1h shift
	o := testOrder("o1", 1, 0.1)
	o.Window = window(0, 23)
	v := ck.Check(s, o)
	if v == nil || v.Kind != KindDriverHours {
		t.Fatalf("shift overrun: got %v, want driver_hours violation", v)
	}
}

func TestDriverHoursBreakInserted(t *testing.T) {
	cfg := DefaultConfig()
	ck := NewChecker(cfg)
	s := NewRouteState(testVehicle())
	s.SinceBreakMin = cfg.BreakAfterHours*60 - 1 // next leg crosses the threshold
	o := testOrder("o1", 1, 0.1)
	if v := ck.Check(s, o); v != nil {
		t.Fatalf("break-requiring candidate rejected: %v", v)
	}
	ck.Apply(s, o)
	if s.Breaks != 1 {
		t.Fatalf("breaks = %d, want 1", s.Breaks)
	}
	if s.BreakMin != cfg.MandatoryBreakHours*60 {
		t.Fatalf("break minutes = %v, want %v", s.BreakMin, cfg.MandatoryBreakHours*60)
	}
	if s.SinceBreakMin >= cfg.BreakAfterHours*60 {
		t.Fatalf("continuous driving not reset: %v", s.SinceBreakMin)
	}
}

func TestZoneRestriction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludedZones = []geo.Polygon{{
		Name: "downtown",
		Vertices: []geo.Point{
			{Lat: 40.72, Lng: -74.00}, {Lat: 40.72, Lng: -73.98},
			{Lat: 40.74, Lng: -73.98}, {Lat: 40.74, Lng: -74.00},
		},
	}}
	ck := NewChecker(cfg)
	s := NewRouteState(testVehicle())

	inside := testOrder("o1", 1, 0.1)
	inside.Delivery = geo.Point{Lat: 40.73, Lng: -73.99}
	v := ck.Check(s, inside)
	if v == nil || v.Kind != KindZone {
		t.Fatalf("excluded-zone delivery: got %v, want zone violation", v)
	}

	outside := testOrder("o2", 1, 0.1)
	outside.Delivery = geo.Point{Lat: 40.80, Lng: -73.90}
	if v := ck.Check(s, outside); v != nil {
		t.Fatalf("outside-zone delivery rejected: %v", v)
	}
}

func TestCheckerShortCircuitOrder(t *testing.T) {
	// candidate violates both capacity and time window; capacity is
	// checked first and must win.
	ck := NewChecker(DefaultConfig())
	s := NewRouteState(testVehicle())
	s.ElapsedMin = 20 * 60
	o := testOrder("o1", 500, 0.1)
	o.Window = window(0, 1)
	v := ck.Check(s, o)
	if v == nil || v.Kind != KindCapacity {
		t.Fatalf("got %v, want capacity (checked first)", v)
	}
}

func TestValidateSequence(t *testing.T) {
	ck := NewChecker(DefaultConfig())
	orders := []model.Order{testOrder("o1", 10, 1), testOrder("o2", 10, 1)}
	s, v := ck.ValidateSequence(testVehicle(), orders)
	if v != nil {
		t.Fatalf("feasible sequence rejected: %v", v)
	}
	if len(s.Orders) != 2 || s.WeightKg != 20 || s.VolumeM3 != 2 {
		t.Fatalf("final state wrong: %+v", s)
	}

	heavy := []model.Order{testOrder("o1", 80, 1), testOrder("o2", 80, 1)}
	if _, v := ck.ValidateSequence(testVehicle(), heavy); v == nil || v.Kind != KindCapacity {
		t.Fatalf("infeasible sequence passed: %v", v)
	}
}
