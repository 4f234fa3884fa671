package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetsim/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	orders     map[string]model.Order
	orderIDs   []string // insertion order, cursor pagination
	vehicles   map[string]model.Vehicle
	vehicleIDs []string
	routes     map[string]model.Route
	routeIDs   []string
	planMx     []map[string]any
	simResults map[string]model.SimulateResult
	simIDs     []string
	subs       map[string]model.Subscription
	subIDs     []string
	deliveries map[string]*WebhookDelivery
	deliverIDs []string
}

func NewMemory() *Memory {
	return &Memory{
		orders:     map[string]model.Order{},
		vehicles:   map[string]model.Vehicle{},
		routes:     map[string]model.Route{},
		simResults: map[string]model.SimulateResult{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*WebhookDelivery{},
	}
}

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.orders[o.ID]; !exists {
		m.orderIDs = append(m.orderIDs, o.ID)
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.orderIDs, cursor)
	out := []model.Order{}
	next := ""
	for i := start; i < len(m.orderIDs); i++ {
		o := m.orders[m.orderIDs[i]]
		if status != "" && o.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, o)
	}
	return out, next, nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, id, status, routeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	if routeID != "" {
		o.AssignedRoute = routeID
	}
	m.orders[id] = o
	return nil
}

func (m *Memory) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if _, exists := m.vehicles[v.ID]; !exists {
		m.vehicleIDs = append(m.vehicleIDs, v.ID)
	}
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Vehicle, 0, len(m.vehicleIDs))
	for _, id := range m.vehicleIDs {
		out = append(out, m.vehicles[id])
	}
	return out, nil
}

func (m *Memory) SaveRoutes(ctx context.Context, routes []model.Route) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Route, 0, len(routes))
	for _, rt := range routes {
		if rt.ID == "" {
			rt.ID = uuid.New().String()
		}
		if rt.CreatedAt.IsZero() {
			rt.CreatedAt = time.Now().UTC()
		}
		if _, exists := m.routes[rt.ID]; !exists {
			m.routeIDs = append(m.routeIDs, rt.ID)
		}
		m.routes[rt.ID] = rt
		for _, oid := range rt.Orders {
			if o, ok := m.orders[oid]; ok {
				o.Status = model.OrderAssigned
				o.AssignedRoute = rt.ID
				m.orders[oid] = o
			}
		}
		out = append(out, rt)
	}
	return out, nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return rt, nil
}

func (m *Memory) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.routeIDs, cursor)
	end := start + limit
	if end > len(m.routeIDs) {
		end = len(m.routeIDs)
	}
	out := make([]model.Route, 0, end-start)
	for _, id := range m.routeIDs[start:end] {
		out = append(out, m.routes[id])
	}
	next := ""
	if end < len(m.routeIDs) && len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, runID string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := map[string]any{"runId": runID}
	for k, v := range metrics {
		row[k] = v
	}
	m.planMx = append(m.planMx, row)
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.planMx) {
		limit = len(m.planMx)
	}
	// newest last; return the tail
	out := append([]map[string]any{}, m.planMx[len(m.planMx)-limit:]...)
	return out, nil
}

func (m *Memory) SaveSimulationResult(ctx context.Context, res model.SimulateResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.simResults[res.RunID]; !exists {
		m.simIDs = append(m.simIDs, res.RunID)
	}
	m.simResults[res.RunID] = res
	return nil
}

func (m *Memory) GetSimulationResult(ctx context.Context, runID string) (model.SimulateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.simResults[runID]
	if !ok {
		return model.SimulateResult{}, ErrNotFound
	}
	return res, nil
}

func (m *Memory) ListSimulationResults(ctx context.Context, cursor string, limit int) ([]model.SimulateResult, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.simIDs, cursor)
	end := start + limit
	if end > len(m.simIDs) {
		end = len(m.simIDs)
	}
	out := make([]model.SimulateResult, 0, end-start)
	for _, id := range m.simIDs[start:end] {
		out = append(out, m.simResults[id])
	}
	next := ""
	if end < len(m.simIDs) && len(out) > 0 {
		next = out[len(out)-1].RunID
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[s.ID] = s
	m.subIDs = append(m.subIDs, s.ID)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, id := range m.subIDs {
		s := m.subs[id]
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.subIDs, cursor)
	end := start + limit
	if end > len(m.subIDs) {
		end = len(m.subIDs)
	}
	out := make([]model.Subscription, 0, end-start)
	for _, id := range m.subIDs[start:end] {
		out = append(out, m.subs[id])
	}
	next := ""
	if end < len(m.subIDs) && len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	out := make([]string, 0, len(m.subIDs))
	for _, v := range m.subIDs {
		if v != id {
			out = append(out, v)
		}
	}
	m.subIDs = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &WebhookDelivery{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         "pending",
		NextAttemptAt:  time.Now(),
	}
	m.deliveries[d.ID] = d
	m.deliverIDs = append(m.deliverIDs, d.ID)
	return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliverIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.deliverIDs, cursor)
	out := []WebhookDelivery{}
	next := ""
	for i := start; i < len(m.deliverIDs); i++ {
		d := m.deliveries[m.deliverIDs[i]]
		if d == nil {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, *d)
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}

// cursorIndex returns the slice index just past cursor, or 0 when absent.
func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}
