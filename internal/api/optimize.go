package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fleetsim/internal/metrics"
	"fleetsim/internal/model"
	"fleetsim/internal/opt"
	"fleetsim/internal/webhooks"
)

// OptimizeHandler handles POST /v1/optimize. Orders and vehicles may be
// supplied inline; when omitted, the pending orders and registered fleet
// from the store are planned instead.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}

	orders := req.Orders
	if len(orders) == 0 {
		var err error
		orders, _, err = s.Store.ListOrders(r.Context(), model.OrderPending, "", 1000)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load orders failed", err.Error(), r.URL.Path)
			return
		}
	}
	vehicles := req.Vehicles
	if len(vehicles) == 0 {
		var err error
		vehicles, err = s.Store.ListVehicles(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load vehicles failed", err.Error(), r.URL.Path)
			return
		}
	}
	if len(orders) == 0 || len(vehicles) == 0 {
		writeProblem(w, http.StatusBadRequest, "Nothing to plan", "no orders or no vehicles available", r.URL.Path)
		return
	}

	res, err := s.Opt.Optimize(orders, vehicles, s.optOptions(req))
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues("error").Inc()
		writeProblem(w, http.StatusBadRequest, "Optimize failed", err.Error(), r.URL.Path)
		return
	}
	metrics.OptimizeRuns.WithLabelValues("ok").Inc()
	metrics.OptimizeDuration.Observe(res.ElapsedSeconds)
	metrics.UnassignedOrders.Observe(float64(len(res.UnassignedOrders)))

	saved, err := s.Store.SaveRoutes(r.Context(), res.Routes)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save routes failed", err.Error(), r.URL.Path)
		return
	}
	res.Routes = saved
	for _, rt := range saved {
		s.Tracker.RegisterRoute(rt)
	}

	runID := "plan_" + uuid.NewString()
	rm := opt.RunMetrics{
		Algorithm:       res.Algorithm,
		Orders:          len(orders),
		Vehicles:        len(vehicles),
		Routes:          len(saved),
		Unassigned:      len(res.UnassignedOrders),
		TotalDistanceKm: res.TotalDistanceKm,
		ElapsedSeconds:  res.ElapsedSeconds,
		Truncated:       res.Truncated,
	}
	opt.RecordMetrics(runID, rm)
	_ = s.Store.SavePlanMetrics(r.Context(), runID, map[string]any{
		"algo":            rm.Algorithm,
		"orders":          rm.Orders,
		"vehicles":        rm.Vehicles,
		"routes":          rm.Routes,
		"unassigned":      rm.Unassigned,
		"totalDistanceKm": rm.TotalDistanceKm,
		"elapsedSeconds":  rm.ElapsedSeconds,
		"truncated":       rm.Truncated,
	})

	s.Pub.Emit(r.Context(), webhooks.EventRoutePlanned, map[string]any{
		"runId":            runID,
		"routes":           len(saved),
		"unassignedOrders": res.UnassignedOrders,
		"totalDistanceKm":  res.TotalDistanceKm,
	})
	s.Broker.Publish(FleetTopic, StreamEvent{Type: "route.planned", Data: map[string]any{
		"runId":  runID,
		"routes": len(saved),
	}})

	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "result": res})
}

func (s *Server) optOptions(req model.OptimizeRequest) opt.Options {
	o := opt.Options{
		Improve:    s.Cfg.Optimizer.Improve,
		MaxPasses:  s.Cfg.Optimizer.MaxPasses,
		TimeBudget: time.Duration(s.Cfg.Optimizer.TimeBudgetMs) * time.Millisecond,
	}
	if req.Improve != nil {
		o.Improve = *req.Improve
	}
	if req.MaxPasses > 0 {
		o.MaxPasses = req.MaxPasses
	}
	if req.TimeBudgetMs > 0 {
		o.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	return o
}

// ValidateHandler handles POST /v1/validate: checks whether one vehicle
// can feasibly serve an order sequence, without planning anything.
func (s *Server) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Vehicle model.Vehicle `json:"vehicle"`
		Orders  []model.Order `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := model.ValidateVehicle(req.Vehicle); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid vehicle", err.Error(), r.URL.Path)
		return
	}
	for _, o := range req.Orders {
		if err := model.ValidateOrder(o); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
			return
		}
	}

	st, viol := s.Opt.Checker().ValidateSequence(req.Vehicle, req.Orders)
	resp := map[string]any{"feasible": viol == nil}
	if viol != nil {
		resp["violation"] = viol
	}
	if st != nil {
		resp["schedule"] = map[string]any{
			"elapsedMin": st.ElapsedMin,
			"driveMin":   st.DriveMin,
			"breaks":     st.Breaks,
			"weightKg":   st.WeightKg,
			"volumeM3":   st.VolumeM3,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
