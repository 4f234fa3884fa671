package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetsim/internal/buildinfo"
	"fleetsim/internal/model"
	"fleetsim/internal/opt"
	"fleetsim/internal/store"
	"fleetsim/internal/track"
)

// OrdersHandler handles POST/GET /v1/orders.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Orders []model.Order `json:"orders"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if len(req.Orders) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing orders", "orders must be non-empty", r.URL.Path)
			return
		}
		created := make([]model.Order, 0, len(req.Orders))
		for _, o := range req.Orders {
			if o.ID == "" {
				o.ID = "order_" + uuid.NewString()
			}
			if err := model.ValidateOrder(o); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
				return
			}
			saved, err := s.Store.CreateOrder(r.Context(), o)
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Create order failed", err.Error(), r.URL.Path)
				return
			}
			created = append(created, saved)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"created": len(created), "items": created})
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		items, next, err := s.Store.ListOrders(r.Context(), status, cursor, queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OrderByIDHandler handles GET/DELETE /v1/orders/{id}. DELETE cancels an
// order that has not reached a terminal state.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		o, err := s.Store.GetOrder(r.Context(), id)
		if err != nil {
			writeStoreErr(w, r, "Order", err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodDelete:
		o, err := s.Store.GetOrder(r.Context(), id)
		if err != nil {
			writeStoreErr(w, r, "Order", err)
			return
		}
		switch o.Status {
		case model.OrderDelivered, model.OrderFailed, model.OrderCancelled:
			writeProblem(w, http.StatusConflict, "Order finished", "cannot cancel order in status "+o.Status, r.URL.Path)
			return
		}
		if err := s.Store.UpdateOrderStatus(r.Context(), id, model.OrderCancelled, ""); err != nil {
			writeStoreErr(w, r, "Order", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehiclesHandler handles POST/GET /v1/vehicles.
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Vehicles []model.Vehicle `json:"vehicles"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if len(req.Vehicles) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing vehicles", "vehicles must be non-empty", r.URL.Path)
			return
		}
		created := make([]model.Vehicle, 0, len(req.Vehicles))
		for _, v := range req.Vehicles {
			if v.ID == "" {
				v.ID = "vehicle_" + uuid.NewString()
			}
			if err := model.ValidateVehicle(v); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid vehicle", err.Error(), r.URL.Path)
				return
			}
			saved, err := s.Store.CreateVehicle(r.Context(), v)
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "Create vehicle failed", err.Error(), r.URL.Path)
				return
			}
			created = append(created, saved)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"created": len(created), "items": created})
	case http.MethodGet:
		items, err := s.Store.ListVehicles(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// VehicleByIDHandler handles /v1/vehicles/{id} and its tracking
// subresources: /eta, /position, /stops.
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		v, err := s.Store.GetVehicle(r.Context(), id)
		if err != nil {
			writeStoreErr(w, r, "Vehicle", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case "eta":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var eta time.Time
		var ok bool
		if orderID := r.URL.Query().Get("orderId"); orderID != "" {
			eta, ok = s.Tracker.ETAToStop(id, orderID)
		} else {
			eta, ok = s.Tracker.ETA(id)
		}
		if !ok {
			writeProblem(w, http.StatusNotFound, "ETA unavailable", "no position or route registered for vehicle", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vehicleId": id, "eta": eta.UTC().Format(time.RFC3339)})
	case "position":
		switch r.Method {
		case http.MethodGet:
			p, ok := s.Tracker.Position(id)
			if !ok {
				writeProblem(w, http.StatusNotFound, "Position unavailable", "no position reported for vehicle", r.URL.Path)
				return
			}
			writeJSON(w, http.StatusOK, p)
		case http.MethodPost:
			var p track.Position
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
				return
			}
			p.VehicleID = id
			if !p.Location.Valid() {
				writeProblem(w, http.StatusBadRequest, "Invalid position", "location out of range", r.URL.Path)
				return
			}
			if p.Timestamp.IsZero() {
				p.Timestamp = time.Now().UTC()
			}
			s.Tracker.UpdatePosition(p)
			writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "stops":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Tracker.Stops(id)})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// RoutesIndexHandler handles GET /v1/routes.
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, next, err := s.Store.ListRoutes(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RouteByIDHandler handles GET /v1/routes/{id}.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	rt, err := s.Store.GetRoute(r.Context(), id)
	if err != nil {
		writeStoreErr(w, r, "Route", err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, next, err := s.Store.ListSubscriptions(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeStoreErr(w, r, "Subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics. Durable rows win;
// the in-process registry is the fallback when the store has none.
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.Store.ListPlanMetrics(r.Context(), queryLimit(r))
	if err != nil || len(items) == 0 {
		ids, ms := opt.ListMetrics()
		items = make([]map[string]any, 0, len(ids))
		for i, id := range ids {
			items = append(items, map[string]any{
				"runId":           id,
				"algo":            ms[i].Algorithm,
				"orders":          ms[i].Orders,
				"vehicles":        ms[i].Vehicles,
				"routes":          ms[i].Routes,
				"unassigned":      ms[i].Unassigned,
				"totalDistanceKm": ms[i].TotalDistanceKm,
				"elapsedSeconds":  ms[i].ElapsedSeconds,
				"truncated":       ms[i].Truncated,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), id); err != nil {
		writeStoreErr(w, r, "Delivery", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// HealthHandler reports liveness and build info.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler reports readiness, pinging the database when one is wired.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func queryLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

func writeStoreErr(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, what+" not found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, what+" lookup failed", err.Error(), r.URL.Path)
}
