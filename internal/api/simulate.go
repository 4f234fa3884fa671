package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetsim/internal/metrics"
	"fleetsim/internal/model"
	"fleetsim/internal/sim"
	"fleetsim/internal/store"
	"fleetsim/internal/webhooks"
)

// simulateRequest wraps the run payload with an optional scenario preset.
// When Scenario is set (or no orders are supplied) the demand is generated
// instead of taken from the request.
type simulateRequest struct {
	model.SimulateRequest
	Scenario string `json:"scenario,omitempty"`
}

// Scenario preset names accepted by /v1/simulate and /v1/scenarios.
func scenarioByName(name string, fallback sim.Scenario) (sim.Scenario, bool) {
	switch name {
	case "":
		return fallback, true
	case "small_peak":
		return sim.SmallPeak(), true
	case "medium_uniform":
		return sim.MediumUniform(), true
	case "large_evening":
		return sim.LargeEvening(), true
	}
	return sim.Scenario{}, false
}

// SimulateHandler handles POST /v1/simulate: plan (if needed), replay the
// routes through the event engine, persist and publish the outcome.
func (s *Server) SimulateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSimulateRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid simulate request", err.Error(), r.URL.Path)
		return
	}

	orders, vehicles := req.Orders, req.Vehicles
	if req.Scenario != "" || len(orders) == 0 {
		sc, ok := scenarioByName(req.Scenario, s.Cfg.Scenario)
		if !ok {
			writeProblem(w, http.StatusBadRequest, "Unknown scenario", req.Scenario, r.URL.Path)
			return
		}
		orders, vehicles = sc.Generate(req.Seed)
	}

	routes := req.Routes
	if len(routes) == 0 {
		res, err := s.Opt.Optimize(orders, vehicles, s.optOptions(model.OptimizeRequest{}))
		if err != nil {
			metrics.SimulationRuns.WithLabelValues("error").Inc()
			writeProblem(w, http.StatusBadRequest, "Planning failed", err.Error(), r.URL.Path)
			return
		}
		routes = res.Routes
	}

	endMin := req.EndTimeMin
	if endMin <= 0 {
		endMin = 24 * 60
	}

	eng := sim.New(s.Cfg.Constraint, req.Seed)
	eng.JitterPct = req.JitterPct
	s.Tracker.Attach(eng)
	for _, rt := range routes {
		s.Tracker.RegisterRoute(rt)
	}
	eng.ReplayRoutes(routes, orders, vehicles)
	st := eng.Run(endMin)
	m := sim.Summarize(st)

	runID := "sim_" + uuid.NewString()
	result := model.SimulateResult{
		RunID:           runID,
		Seed:            req.Seed,
		EndTimeMin:      endMin,
		OrdersCreated:   m.TotalOrders,
		OrdersCompleted: m.CompletedOrders,
		OrdersFailed:    m.FailedOrders,
		CompletionRate:  m.CompletionRate,
		AvgDelayMin:     m.AvgDelayMin,
		OnTimePct:       m.OnTimePct,
		CostPerDelivery: m.CostPerDelivery,
		TotalDistanceKm: m.TotalDistanceKm,
		TotalVehicleHrs: m.TotalVehicleHrs,
		VehicleUtilPct:  m.VehicleUtilPct,
		Report:          m.Report(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Store.SaveSimulationResult(r.Context(), result); err != nil {
		metrics.SimulationRuns.WithLabelValues("error").Inc()
		writeProblem(w, http.StatusInternalServerError, "Save result failed", err.Error(), r.URL.Path)
		return
	}
	metrics.SimulationRuns.WithLabelValues("ok").Inc()
	metrics.SimulationOrders.WithLabelValues("completed").Observe(float64(m.CompletedOrders))
	metrics.SimulationOrders.WithLabelValues("failed").Observe(float64(m.FailedOrders))

	s.syncOrderOutcomes(r.Context(), eng, orders, runID)

	s.Pub.Emit(r.Context(), webhooks.EventSimulationCompleted, result)
	s.Broker.Publish(FleetTopic, StreamEvent{Type: "simulation.completed", Data: map[string]any{
		"runId":          runID,
		"completionRate": m.CompletionRate,
		"onTimePct":      m.OnTimePct,
	}})

	writeJSON(w, http.StatusOK, result)
}

// syncOrderOutcomes pushes terminal order states from the engine back into
// the store and out to webhook subscribers. Orders the store has never seen
// (generated scenarios) are skipped silently.
func (s *Server) syncOrderOutcomes(ctx context.Context, eng *sim.Engine, orders []model.Order, runID string) {
	for _, o := range orders {
		switch eng.OrderPhase(o.ID) {
		case sim.PhaseDelivered:
			if err := s.Store.UpdateOrderStatus(ctx, o.ID, model.OrderDelivered, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
				continue
			}
			s.Pub.Emit(ctx, webhooks.EventOrderDelivered, map[string]any{"orderId": o.ID, "runId": runID})
		case sim.PhaseFailed:
			if err := s.Store.UpdateOrderStatus(ctx, o.ID, model.OrderFailed, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
				continue
			}
			s.Pub.Emit(ctx, webhooks.EventOrderFailed, map[string]any{"orderId": o.ID, "runId": runID})
		}
	}
}

// SimulationsHandler handles GET /v1/simulations.
func (s *Server) SimulationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, next, err := s.Store.ListSimulationResults(r.Context(), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List simulations failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// SimulationByIDHandler handles GET /v1/simulations/{runId}.
func (s *Server) SimulationByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/simulations/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	res, err := s.Store.GetSimulationResult(r.Context(), id)
	if err != nil {
		writeStoreErr(w, r, "Simulation", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ScenariosHandler handles GET /v1/scenarios: the preset catalog.
func (s *Server) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default": s.Cfg.Scenario,
		"presets": map[string]sim.Scenario{
			"small_peak":     sim.SmallPeak(),
			"medium_uniform": sim.MediumUniform(),
			"large_evening":  sim.LargeEvening(),
		},
	})
}
