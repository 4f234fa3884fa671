package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

func testOrder(id string) model.Order {
	day := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return model.Order{
		ID:       id,
		Pickup:   geo.Point{Lat: 40.71, Lng: -74.00},
		Delivery: geo.Point{Lat: 40.72, Lng: -73.99},
		Window:   model.TimeWindow{Earliest: day, Latest: day.Add(2 * time.Hour)},
		WeightKg: 10, VolumeM3: 0.5,
	}
}

func TestMemoryOrderCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	o, err := m.CreateOrder(ctx, testOrder("o1"))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.Status != model.OrderPending || o.CreatedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", o)
	}

	got, err := m.GetOrder(ctx, "o1")
	if err != nil || got.ID != "o1" {
		t.Fatalf("GetOrder: %v %+v", err, got)
	}
	if _, err := m.GetOrder(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing order: %v", err)
	}

	if err := m.UpdateOrderStatus(ctx, "o1", model.OrderDelivered, "rt_1"); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	got, _ = m.GetOrder(ctx, "o1")
	if got.Status != model.OrderDelivered || got.AssignedRoute != "rt_1" {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestMemoryOrderGeneratedID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := testOrder("")
	created, err := m.CreateOrder(ctx, o)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if created.ID == "" {
		t.Fatal("no ID generated")
	}
}

func TestMemoryListOrdersPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		if _, err := m.CreateOrder(ctx, testOrder(id)); err != nil {
			t.Fatal(err)
		}
	}

	page1, next, err := m.ListOrders(ctx, "", "", 2)
	if err != nil || len(page1) != 2 || next != "b" {
		t.Fatalf("page1 = %d next=%q err=%v", len(page1), next, err)
	}
	page2, next, err := m.ListOrders(ctx, "", next, 2)
	if err != nil || len(page2) != 2 || next != "d" {
		t.Fatalf("page2 = %d next=%q err=%v", len(page2), next, err)
	}
	page3, next, err := m.ListOrders(ctx, "", next, 2)
	if err != nil || len(page3) != 1 || next != "" {
		t.Fatalf("page3 = %d next=%q err=%v", len(page3), next, err)
	}
}

func TestMemoryListOrdersByStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := m.CreateOrder(ctx, testOrder(id)); err != nil {
			t.Fatal(err)
		}
	}
	_ = m.UpdateOrderStatus(ctx, "b", model.OrderDelivered, "")
	items, _, err := m.ListOrders(ctx, model.OrderDelivered, "", 10)
	if err != nil || len(items) != 1 || items[0].ID != "b" {
		t.Fatalf("filtered list = %+v err=%v", items, err)
	}
}

func TestMemorySaveRoutesAssignsOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.CreateOrder(ctx, testOrder("o1")); err != nil {
		t.Fatal(err)
	}
	routes, err := m.SaveRoutes(ctx, []model.Route{{VehicleID: "v1", Orders: []string{"o1"}}})
	if err != nil {
		t.Fatalf("SaveRoutes: %v", err)
	}
	if routes[0].ID == "" {
		t.Fatal("route ID not generated")
	}
	o, _ := m.GetOrder(ctx, "o1")
	if o.Status != model.OrderAssigned || o.AssignedRoute != routes[0].ID {
		t.Fatalf("order not assigned: %+v", o)
	}
	rt, err := m.GetRoute(ctx, routes[0].ID)
	if err != nil || rt.VehicleID != "v1" {
		t.Fatalf("GetRoute: %v %+v", err, rt)
	}
}

func TestMemoryVehicles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v, err := m.CreateVehicle(ctx, model.Vehicle{ID: "v1", MaxWeightKg: 100, MaxVolumeM3: 10, Start: geo.Point{Lat: 40.7, Lng: -74}})
	if err != nil || v.ID != "v1" {
		t.Fatalf("CreateVehicle: %v", err)
	}
	list, err := m.ListVehicles(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListVehicles: %v %d", err, len(list))
	}
	if _, err := m.GetVehicle(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing vehicle: %v", err)
	}
}

func TestMemorySimulationResults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	res := model.SimulateResult{RunID: "run_1", Seed: 42, OrdersCompleted: 5, CompletionRate: 100}
	if err := m.SaveSimulationResult(ctx, res); err != nil {
		t.Fatalf("SaveSimulationResult: %v", err)
	}
	got, err := m.GetSimulationResult(ctx, "run_1")
	if err != nil || got.OrdersCompleted != 5 {
		t.Fatalf("GetSimulationResult: %v %+v", err, got)
	}
	list, _, err := m.ListSimulationResults(ctx, "", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSimulationResults: %v %d", err, len(list))
	}
}

func TestMemorySubscriptionsAndEventMatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		URL: "https://example.com/hook", Events: []string{"route.planned", "order.delivered"}, Secret: "s3cr3t",
	})
	if err != nil || s.ID == "" {
		t.Fatalf("CreateSubscription: %v", err)
	}
	hit, err := m.GetSubscriptionsForEvent(ctx, "route.planned")
	if err != nil || len(hit) != 1 {
		t.Fatalf("matching event: %v %d", err, len(hit))
	}
	miss, err := m.GetSubscriptionsForEvent(ctx, "simulation.completed")
	if err != nil || len(miss) != 0 {
		t.Fatalf("non-matching event: %v %d", err, len(miss))
	}
	if err := m.DeleteSubscription(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if err := m.DeleteSubscription(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestMemoryWebhookDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueWebhook(ctx, "sub_1", "route.planned", "https://example.com/hook", "sec", []byte(`{}`))
	if err != nil {
		t.Fatalf("EnqueueWebhook: %v", err)
	}

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due = %+v err=%v", due, err)
	}

	// failed attempt goes to retry with a future attempt time
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 20); err != nil {
		t.Fatalf("MarkWebhookDelivery: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("retry due before next attempt: %+v", due)
	}

	// manual retry makes it due again; success finishes it
	if err := m.RetryWebhookDelivery(ctx, id); err != nil {
		t.Fatalf("RetryWebhookDelivery: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("retried delivery not due: %+v", due)
	}
	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 15); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	delivered, _, err := m.ListWebhookDeliveries(ctx, "delivered", "", 10)
	if err != nil || len(delivered) != 1 || delivered[0].Attempts != 2 {
		t.Fatalf("delivered list = %+v err=%v", delivered, err)
	}
}

func TestMemoryPlanMetrics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SavePlanMetrics(ctx, "run_1", map[string]any{"routes": 3, "unassigned": 1}); err != nil {
		t.Fatalf("SavePlanMetrics: %v", err)
	}
	rows, err := m.ListPlanMetrics(ctx, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListPlanMetrics: %v %d", err, len(rows))
	}
	if rows[0]["runId"] != "run_1" || rows[0]["routes"] != 3 {
		t.Fatalf("row = %+v", rows[0])
	}
}
