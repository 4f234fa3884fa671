package constraint

import (
	"fleetsim/internal/model"
)

// Checker evaluates a candidate insertion against all active constraints
// in a fixed order and short-circuits on the first violation. The order
// (capacity, time window, driver hours, zone) front-loads the cheapest
// checks; the constraints themselves are independent and commutative.
type Checker struct {
	cfg         Config
	constraints []Constraint
}

// NewChecker builds a checker with the standard constraint set.
func NewChecker(cfg Config) *Checker {
	return &Checker{
		cfg: cfg,
		constraints: []Constraint{
			Capacity{},
			TimeWindow{Cfg: cfg},
			DriverHours{Cfg: cfg},
			ZoneRestriction{Zones: cfg.ExcludedZones},
		},
	}
}

// Config exposes the tuning values the checker was built with.
func (c *Checker) Config() Config { return c.cfg }

// Check evaluates appending o to the route described by s. Returns nil on
// pass or the first violation found.
func (c *Checker) Check(s *RouteState, o model.Order) *Violation {
	leg := c.cfg.candidateLeg(s, o)
	for _, cn := range c.constraints {
		if v := cn.Validate(s, o, leg); v != nil {
			return v
		}
	}
	return nil
}

// Apply advances s by the order o, which must already have passed Check.
// Travel, service, and any mandatory break are committed to the schedule.
func (c *Checker) Apply(s *RouteState, o model.Order) {
	leg := c.cfg.candidateLeg(s, o)
	if leg.breakMin > 0 {
		s.BreakMin += leg.breakMin
		s.Breaks++
		s.SinceBreakMin = 0
	}
	s.ElapsedMin += leg.breakMin + leg.toPickupMin + c.cfg.PickupServiceMin +
		leg.toDeliveryMin + c.cfg.DeliveryServiceMin
	s.DriveMin += leg.toPickupMin + leg.toDeliveryMin
	s.SinceBreakMin += leg.toPickupMin + leg.toDeliveryMin
	s.WeightKg += o.WeightKg
	s.VolumeM3 += o.VolumeM3
	s.Location = o.Delivery
	s.Orders = append(s.Orders, o)
}

// ValidateSequence replays a full candidate order sequence for v through
// every constraint. Used by local-search moves, where a reversal can break
// a window even though it shortens distance. Returns the final state on
// pass, or nil and the violation.
func (c *Checker) ValidateSequence(v model.Vehicle, orders []model.Order) (*RouteState, *Violation) {
	s := NewRouteState(v)
	for _, o := range orders {
		if viol := c.Check(s, o); viol != nil {
			return nil, viol
		}
		c.Apply(s, o)
	}
	return s, nil
}
