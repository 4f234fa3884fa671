package opt

import (
	"fmt"
	"time"

	"fleetsim/internal/constraint"
	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

// Algorithm identifies the heuristic in results and stored metrics.
const Algorithm = "nearest_neighbor_2opt"

// Options bounds one optimization run. Improve toggles the 2-opt phase;
// MaxPasses and TimeBudget cap it (zero means unbounded).
type Options struct {
	Improve    bool
	MaxPasses  int
	TimeBudget time.Duration
}

// Optimizer builds routes with nearest-neighbor construction gated by the
// constraint checker, then improves them with 2-opt local search. It is a
// heuristic: results are local optima with no global-optimality guarantee.
type Optimizer struct {
	checker *constraint.Checker
	matrix  *geo.Matrix
}

// New returns an Optimizer using cfg for constraint evaluation and matrix
// as the shared pairwise distance cache. A nil matrix gets a private one.
func New(cfg constraint.Config, matrix *geo.Matrix) *Optimizer {
	if matrix == nil {
		matrix = geo.NewMatrix(0)
	}
	return &Optimizer{checker: constraint.NewChecker(cfg), matrix: matrix}
}

// Checker exposes the constraint checker (the external validation entry
// point shares it with the optimizer).
func (z *Optimizer) Checker() *constraint.Checker { return z.checker }

// Optimize assigns orders to vehicles and sequences each route.
// Infeasible orders are returned in UnassignedOrders, not as an error;
// only malformed input fails.
func (z *Optimizer) Optimize(orders []model.Order, vehicles []model.Vehicle, opts Options) (model.OptimizeResult, error) {
	start := time.Now()
	res := model.OptimizeResult{Algorithm: Algorithm, UnassignedOrders: []string{}, Routes: []model.Route{}}

	for _, o := range orders {
		if err := model.ValidateOrder(o); err != nil {
			return res, fmt.Errorf("optimize: %w", err)
		}
	}
	for _, v := range vehicles {
		if err := model.ValidateVehicle(v); err != nil {
			return res, fmt.Errorf("optimize: %w", err)
		}
	}

	states := make([]*constraint.RouteState, len(vehicles))
	for i, v := range vehicles {
		states[i] = constraint.NewRouteState(v)
	}

	unassigned := z.construct(states, orders)
	for _, o := range orders {
		if unassigned[o.ID] {
			res.UnassignedOrders = append(res.UnassignedOrders, o.ID)
		}
	}

	if opts.Improve {
		deadline := time.Time{}
		if opts.TimeBudget > 0 {
			deadline = start.Add(opts.TimeBudget)
		}
		for i := range states {
			if len(states[i].Orders) < 3 {
				continue
			}
			improved, truncated := z.twoOpt(states[i].Vehicle, states[i].Orders, opts.MaxPasses, deadline)
			res.Truncated = res.Truncated || truncated
			if st, viol := z.checker.ValidateSequence(states[i].Vehicle, improved); viol == nil {
				states[i] = st
			}
		}
	}

	for _, s := range states {
		if len(s.Orders) == 0 {
			continue
		}
		rt := z.buildRoute(s)
		res.TotalDistanceKm += rt.DistanceKm
		res.TotalVehicleHrs += rt.TimeMin / 60
		res.Routes = append(res.Routes, rt)
	}
	res.ElapsedSeconds = time.Since(start).Seconds()
	return res, nil
}

// construct runs the nearest-neighbor phase: round-robin over vehicles,
// each taking the nearest feasible unassigned order until no vehicle can
// accept any remaining order. Equal distances tie-break on order ID so
// runs are reproducible.
func (z *Optimizer) construct(states []*constraint.RouteState, orders []model.Order) map[string]bool {
	unassigned := make(map[string]bool, len(orders))
	remaining := make([]model.Order, len(orders))
	copy(remaining, orders)
	for _, o := range orders {
		unassigned[o.ID] = true
	}

	for len(remaining) > 0 {
		progress := false
		for _, s := range states {
			bestIdx := -1
			bestDist := 0.0
			for i, o := range remaining {
				d, _ := z.matrix.Distance(s.Location, o.Pickup)
				if bestIdx >= 0 {
					if d > bestDist {
						continue
					}
					if d == bestDist && o.ID >= remaining[bestIdx].ID {
						continue
					}
				}
				if z.checker.Check(s, o) != nil {
					continue
				}
				bestIdx = i
				bestDist = d
			}
			if bestIdx < 0 {
				continue
			}
			o := remaining[bestIdx]
			z.checker.Apply(s, o)
			delete(unassigned, o.ID)
			remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
			progress = true
			if len(remaining) == 0 {
				break
			}
		}
		if !progress {
			break
		}
	}
	return unassigned
}

// buildRoute materializes a finalized Route from a route state, recomputing
// stops and aggregates from the order sequence alone.
func (z *Optimizer) buildRoute(s *constraint.RouteState) model.Route {
	cfg := z.checker.Config()
	rt := model.Route{
		VehicleID: s.Vehicle.ID,
		Orders:    make([]string, 0, len(s.Orders)),
		Stops:     make([]model.Stop, 0, 2*len(s.Orders)),
		CreatedAt: time.Now().UTC(),
	}

	loc := s.Vehicle.Start
	elapsed := 0.0
	sinceBreak := 0.0
	for _, o := range s.Orders {
		toPickup := z.dist(loc, o.Pickup)
		toDelivery := z.dist(o.Pickup, o.Delivery)
		travel := travelMin(cfg, toPickup) + travelMin(cfg, toDelivery)
		if cfg.BreakAfterHours > 0 && sinceBreak+travel > cfg.BreakAfterHours*60 {
			elapsed += cfg.MandatoryBreakHours * 60
			sinceBreak = 0
			rt.BreakCount++
		}
		elapsed += travelMin(cfg, toPickup)
		rt.Stops = append(rt.Stops, model.Stop{
			OrderID: o.ID, Kind: model.StopPickup, Location: o.Pickup,
			ArrivalMin: elapsed, ServiceMin: cfg.PickupServiceMin,
		})
		elapsed += cfg.PickupServiceMin
		elapsed += travelMin(cfg, toDelivery)
		rt.Stops = append(rt.Stops, model.Stop{
			OrderID: o.ID, Kind: model.StopDelivery, Location: o.Delivery,
			ArrivalMin: elapsed, ServiceMin: cfg.DeliveryServiceMin,
		})
		elapsed += cfg.DeliveryServiceMin
		sinceBreak += travel
		rt.DistanceKm += toPickup + toDelivery
		rt.WeightUsedKg += o.WeightKg
		rt.VolumeUsedM3 += o.VolumeM3
		rt.Orders = append(rt.Orders, o.ID)
		loc = o.Delivery
	}
	if s.Vehicle.End != nil {
		back := z.dist(loc, *s.Vehicle.End)
		rt.DistanceKm += back
		elapsed += travelMin(cfg, back)
	}
	rt.TimeMin = elapsed
	return rt
}

func (z *Optimizer) dist(a, b geo.Point) float64 {
	d, _ := z.matrix.Distance(a, b)
	return d
}

func travelMin(cfg constraint.Config, km float64) float64 {
	speed := cfg.AverageSpeedKph
	if speed <= 0 {
		speed = 40
	}
	return km / speed * 60
}

// pathDistance is the geometric length of an order sequence for v:
// start -> p1 -> d1 -> ... -> dn [-> end].
func (z *Optimizer) pathDistance(v model.Vehicle, orders []model.Order) float64 {
	total := 0.0
	loc := v.Start
	for _, o := range orders {
		total += z.dist(loc, o.Pickup)
		total += z.dist(o.Pickup, o.Delivery)
		loc = o.Delivery
	}
	if v.End != nil {
		total += z.dist(loc, *v.End)
	}
	return total
}
