package opt

import (
	"math"
	"reflect"
	"testing"
	"time"

	"fleetsim/internal/constraint"
	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

func openWindow() model.TimeWindow {
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return model.TimeWindow{Earliest: day, Latest: day.Add(23 * time.Hour)}
}

func order(id string, pickup, delivery geo.Point, weight float64) model.Order {
	return model.Order{
		ID: id, Pickup: pickup, Delivery: delivery,
		Window: openWindow(), WeightKg: weight, VolumeM3: 0.5,
		Status: model.OrderPending,
	}
}

func vehicle(id string, start geo.Point) model.Vehicle {
	return model.Vehicle{ID: id, MaxWeightKg: 500, MaxVolumeM3: 10, Start: start}
}

func TestSingleOrderSingleVehicle(t *testing.T) {
	z := New(constraint.DefaultConfig(), nil)
	depot := geo.Point{Lat: 40.7128, Lng: -74.0060}
	pickup := geo.Point{Lat: 40.72, Lng: -74.00}
	delivery := geo.Point{Lat: 40.73, Lng: -73.99}

	res, err := z.Optimize(
		[]model.Order{order("o1", pickup, delivery, 10)},
		[]model.Vehicle{vehicle("v1", depot)},
		Options{Improve: true},
	)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(res.Routes) != 1 || len(res.UnassignedOrders) != 0 {
		t.Fatalf("routes=%d unassigned=%v, want 1 route / none unassigned", len(res.Routes), res.UnassignedOrders)
	}
	rt := res.Routes[0]
	if len(rt.Orders) != 1 || rt.Orders[0] != "o1" {
		t.Fatalf("route orders = %v", rt.Orders)
	}
	if len(rt.Stops) != 2 || rt.Stops[0].Kind != model.StopPickup || rt.Stops[1].Kind != model.StopDelivery {
		t.Fatalf("stops = %+v", rt.Stops)
	}
	oneWay := geo.MustDistance(depot, pickup) + geo.MustDistance(pickup, delivery)
	if math.Abs(rt.DistanceKm-oneWay) > 1e-9 {
		t.Fatalf("distance = %v, want one-way %v", rt.DistanceKm, oneWay)
	}
}

func TestDepotReturnAddsDistance(t *testing.T) {
	z := New(constraint.DefaultConfig(), nil)
	depot := geo.Point{Lat: 40.7128, Lng: -74.0060}
	pickup := geo.Point{Lat: 40.72, Lng: -74.00}
	delivery := geo.Point{Lat: 40.73, Lng: -73.99}

	v := vehicle("v1", depot)
	v.End = &depot
	res, err := z.Optimize([]model.Order{order("o1", pickup, delivery, 10)}, []model.Vehicle{v}, Options{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	roundTrip := geo.MustDistance(depot, pickup) + geo.MustDistance(pickup, delivery) + geo.MustDistance(delivery, depot)
	if math.Abs(res.Routes[0].DistanceKm-roundTrip) > 1e-9 {
		t.Fatalf("distance = %v, want round-trip %v", res.Routes[0].DistanceKm, roundTrip)
	}
}

func TestOverweightOrderUnassigned(t *testing.T) {
	z := New(constraint.DefaultConfig(), nil)
	depot := geo.Point{Lat: 40.7128, Lng: -74.0060}
	heavy := order("heavy", geo.Point{Lat: 40.72, Lng: -74.00}, geo.Point{Lat: 40.73, Lng: -73.99}, 9999)
	ok := order("ok", geo.Point{Lat: 40.72, Lng: -74.00}, geo.Point{Lat: 40.73, Lng: -73.99}, 10)

	res, err := z.Optimize([]model.Order{heavy, ok},
		[]model.Vehicle{vehicle("v1", depot), vehicle("v2", depot)}, Options{Improve: true})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !reflect.DeepEqual(res.UnassignedOrders, []string{"heavy"}) {
		t.Fatalf("unassigned = %v, want [heavy]", res.UnassignedOrders)
	}
	for _, rt := range res.Routes {
		for _, id := range rt.Orders {
			if id == "heavy" {
				t.Fatal("overweight order appeared in a route")
			}
		}
	}
}

func TestUnassignedListedInInputOrder(t *testing.T) {
	z := New(constraint.DefaultConfig(), nil)
	depot := geo.Point{Lat: 40.70, Lng: -74.00}
	heavy := func(id string) model.Order { return order(id, depot, depot, 9999) }

	res, err := z.Optimize(
		[]model.Order{heavy("b"), heavy("a"), heavy("c")},
		[]model.Vehicle{vehicle("v1", depot)},
		Options{Improve: true},
	)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !reflect.DeepEqual(res.UnassignedOrders, []string{"b", "a", "c"}) {
		t.Fatalf("unassigned = %v, want input order [b a c]", res.UnassignedOrders)
	}
	if len(res.Routes) != 0 {
		t.Fatalf("routes = %+v, want none", res.Routes)
	}
}

func TestTwoOptUncrossesPath(t *testing.T) {
	// Four same-point pickup/delivery orders at square corners, visited in
	// a crossing sequence; 2-opt must uncross and strictly shorten it.
	z := New(constraint.DefaultConfig(), nil)
	v := vehicle("v1", geo.Point{Lat: 0, Lng: 0})
	corner := func(id string, lat, lng float64) model.Order {
		p := geo.Point{Lat: lat, Lng: lng}
		return order(id, p, p, 1)
	}
	crossing := []model.Order{
		corner("a", 0.0, 0.1),
		corner("b", 0.1, 0.2),
		corner("c", 0.0, 0.2),
		corner("d", 0.1, 0.1),
	}
	beforeDist := z.pathDistance(v, crossing)
	improved, truncated := z.twoOpt(v, crossing, 0, time.Time{})
	if truncated {
		t.Fatal("unexpected truncation")
	}
	afterDist := z.pathDistance(v, improved)
	if afterDist >= beforeDist {
		t.Fatalf("2-opt did not improve: before %v after %v", beforeDist, afterDist)
	}
}

func TestImprovementNeverIncreasesDistance(t *testing.T) {
	depot := geo.Point{Lat: 40.70, Lng: -74.00}
	var orders []model.Order
	coords := []geo.Point{
		{Lat: 40.71, Lng: -74.02}, {Lat: 40.76, Lng: -73.95}, {Lat: 40.72, Lng: -73.99},
		{Lat: 40.75, Lng: -74.01}, {Lat: 40.73, Lng: -73.97}, {Lat: 40.74, Lng: -74.03},
	}
	for i, p := range coords {
		orders = append(orders, order(string(rune('a'+i)), p, geo.Point{Lat: p.Lat + 0.004, Lng: p.Lng - 0.004}, 5))
	}
	vs := []model.Vehicle{vehicle("v1", depot)}

	base := New(constraint.DefaultConfig(), nil)
	plain, err := base.Optimize(orders, vs, Options{Improve: false})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	improved, err := base.Optimize(orders, vs, Options{Improve: true})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if improved.TotalDistanceKm > plain.TotalDistanceKm+1e-9 {
		t.Fatalf("improvement increased distance: %v > %v", improved.TotalDistanceKm, plain.TotalDistanceKm)
	}
}

func TestDeterministicRuns(t *testing.T) {
	depot := geo.Point{Lat: 40.70, Lng: -74.00}
	var orders []model.Order
	for i := 0; i < 8; i++ {
		p := geo.Point{Lat: 40.70 + float64(i)*0.01, Lng: -74.00 + float64(i%3)*0.01}
		orders = append(orders, order(string(rune('a'+i)), p, geo.Point{Lat: p.Lat + 0.005, Lng: p.Lng}, 5))
	}
	vs := []model.Vehicle{vehicle("v1", depot), vehicle("v2", depot)}

	run := func() ([][]string, []string) {
		z := New(constraint.DefaultConfig(), nil)
		res, err := z.Optimize(orders, vs, Options{Improve: true})
		if err != nil {
			t.Fatalf("Optimize: %v", err)
		}
		var seqs [][]string
		for _, rt := range res.Routes {
			seqs = append(seqs, rt.Orders)
		}
		return seqs, res.UnassignedOrders
	}
	s1, u1 := run()
	s2, u2 := run()
	if !reflect.DeepEqual(s1, s2) || !reflect.DeepEqual(u1, u2) {
		t.Fatalf("runs differ:\n%v %v\n%v %v", s1, u1, s2, u2)
	}
}

func TestCapacityInvariantOnOutput(t *testing.T) {
	depot := geo.Point{Lat: 40.70, Lng: -74.00}
	var orders []model.Order
	for i := 0; i < 10; i++ {
		p := geo.Point{Lat: 40.70 + float64(i)*0.005, Lng: -74.00}
		orders = append(orders, order(string(rune('a'+i)), p, p, 40))
	}
	v := model.Vehicle{ID: "small", MaxWeightKg: 100, MaxVolumeM3: 10, Start: depot}
	z := New(constraint.DefaultConfig(), nil)
	res, err := z.Optimize(orders, []model.Vehicle{v}, Options{Improve: true})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	for _, rt := range res.Routes {
		if rt.WeightUsedKg > v.MaxWeightKg || rt.VolumeUsedM3 > v.MaxVolumeM3 {
			t.Fatalf("capacity invariant broken: %+v", rt)
		}
	}
	if len(res.UnassignedOrders) == 0 {
		t.Fatal("expected overflow orders to be unassigned")
	}
}

func TestMalformedInputErrors(t *testing.T) {
	z := New(constraint.DefaultConfig(), nil)
	depot := geo.Point{Lat: 40.70, Lng: -74.00}

	bad := order("bad", geo.Point{Lat: 99, Lng: 0}, depot, 1)
	if _, err := z.Optimize([]model.Order{bad}, []model.Vehicle{vehicle("v1", depot)}, Options{}); err == nil {
		t.Fatal("out-of-range pickup should error")
	}

	inv := order("inv", depot, depot, 1)
	inv.Window.Earliest = inv.Window.Latest.Add(time.Hour)
	if _, err := z.Optimize([]model.Order{inv}, []model.Vehicle{vehicle("v1", depot)}, Options{}); err == nil {
		t.Fatal("inverted window should error")
	}

	badVeh := model.Vehicle{ID: "v", MaxWeightKg: -1, MaxVolumeM3: 1, Start: depot}
	if _, err := z.Optimize([]model.Order{order("o", depot, depot, 1)}, []model.Vehicle{badVeh}, Options{}); err == nil {
		t.Fatal("non-positive capacity should error")
	}
}
