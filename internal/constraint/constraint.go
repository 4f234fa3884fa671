package constraint

import (
	"math"

	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

// Violation kinds surfaced by the checker.
const (
	KindCapacity    = "capacity"
	KindTimeWindow  = "time_window"
	KindDriverHours = "driver_hours"
	KindZone        = "zone"
)

// Violation is a typed constraint rejection. A nil *Violation means pass.
type Violation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (v *Violation) Error() string { return v.Kind + ": " + v.Detail }

// Config holds the tuning constants shared by the constraint engine and
// the optimizer. Defaults match typical urban delivery operations.
type Config struct {
	AverageSpeedKph     float64       `yaml:"averageSpeedKph"`     // default 40
	PickupServiceMin    float64       `yaml:"pickupServiceMin"`    // default 15
	DeliveryServiceMin  float64       `yaml:"deliveryServiceMin"`  // default 30
	MaxShiftHours       float64       `yaml:"maxShiftHours"`       // default 10
	MandatoryBreakHours float64       `yaml:"mandatoryBreakHours"` // default 0.5
	BreakAfterHours     float64       `yaml:"breakAfterHours"`     // default 5
	ExcludedZones       []geo.Polygon `yaml:"excludedZones,omitempty"`
}

// DefaultConfig returns the documented default tuning values.
func DefaultConfig() Config {
	return Config{
		AverageSpeedKph:     40,
		PickupServiceMin:    15,
		DeliveryServiceMin:  30,
		MaxShiftHours:       10,
		MandatoryBreakHours: 0.5,
		BreakAfterHours:     5,
	}
}

func (c Config) travelMin(km float64) float64 {
	speed := c.AverageSpeedKph
	if speed <= 0 {
		speed = 40
	}
	return km / speed * 60
}

// RouteState is the running schedule of a route under construction. The
// optimizer owns one per vehicle and advances it as orders are appended.
type RouteState struct {
	Vehicle model.Vehicle
	Orders  []model.Order

	WeightKg      float64
	VolumeM3      float64
	ElapsedMin    float64 // shift time including service and breaks
	DriveMin      float64 // total driving time
	SinceBreakMin float64 // continuous driving since last break
	BreakMin      float64 // total break time taken
	Breaks        int
	Location      geo.Point // vehicle's current position
}

// NewRouteState starts an empty route at the vehicle's start location.
func NewRouteState(v model.Vehicle) *RouteState {
	return &RouteState{Vehicle: v, Location: v.Start}
}

// Leg is the candidate leg the checker evaluates: travel to pickup,
// pickup service, travel to delivery. Computed once per Check call and
// shared by the time-window and driver-hours constraints.
type Leg struct {
	toPickupMin   float64
	toDeliveryMin float64
	arrivalMin    float64 // estimated arrival at the delivery stop
	breakMin      float64 // mandatory break inserted before the candidate
}

func (c Config) candidateLeg(s *RouteState, o model.Order) Leg {
	toPickup := c.travelMin(geo.MustDistance(s.Location, o.Pickup))
	toDelivery := c.travelMin(geo.MustDistance(o.Pickup, o.Delivery))

	var breakMin float64
	if c.BreakAfterHours > 0 && s.SinceBreakMin+toPickup+toDelivery > c.BreakAfterHours*60 {
		breakMin = c.MandatoryBreakHours * 60
	}
	arrival := s.ElapsedMin + breakMin + toPickup + c.PickupServiceMin + toDelivery
	return Leg{toPickupMin: toPickup, toDeliveryMin: toDelivery, arrivalMin: arrival, breakMin: breakMin}
}

// Constraint is a stateless rule over (route-so-far, candidate order).
type Constraint interface {
	Name() string
	Validate(s *RouteState, o model.Order, leg Leg) *Violation
}

// Capacity rejects candidates whose cumulative weight or volume would
// exceed the vehicle maxima. Cheapest check, evaluated first.
type Capacity struct{}

func (Capacity) Name() string { return KindCapacity }

func (Capacity) Validate(s *RouteState, o model.Order, _ Leg) *Violation {
	if s.WeightKg+o.WeightKg > s.Vehicle.MaxWeightKg {
		return &Violation{Kind: KindCapacity, Detail: "weight exceeds vehicle maximum"}
	}
	if s.VolumeM3+o.VolumeM3 > s.Vehicle.MaxVolumeM3 {
		return &Violation{Kind: KindCapacity, Detail: "volume exceeds vehicle maximum"}
	}
	return nil
}

// TimeWindow rejects candidates whose estimated delivery arrival falls
// after the order's latest time. No waiting is modeled: arriving before
// earliest starts service immediately and is not a violation.
type TimeWindow struct{ Cfg Config }

func (TimeWindow) Name() string { return KindTimeWindow }

func (t TimeWindow) Validate(s *RouteState, o model.Order, leg Leg) *Violation {
	latest := float64(o.Window.Latest.Hour()*60 + o.Window.Latest.Minute())
	if latest == 0 {
		return nil // open window
	}
	arrivalOfDay := math.Mod(leg.arrivalMin, 24*60)
	if arrivalOfDay > latest {
		return &Violation{Kind: KindTimeWindow, Detail: "estimated arrival after window close"}
	}
	return nil
}

// DriverHours enforces continuous-driving break rules and the maximum
// shift duration. A required break is planned, not rejected; exceeding
// the shift ceiling has no remediation and is a violation.
type DriverHours struct{ Cfg Config }

func (DriverHours) Name() string { return KindDriverHours }

func (d DriverHours) Validate(s *RouteState, o model.Order, leg Leg) *Violation {
	c := d.Cfg
	shift := s.ElapsedMin + leg.breakMin + leg.toPickupMin + c.PickupServiceMin +
		leg.toDeliveryMin + c.DeliveryServiceMin
	if c.MaxShiftHours > 0 && shift > c.MaxShiftHours*60 {
		return &Violation{Kind: KindDriverHours, Detail: "shift duration exceeds maximum"}
	}
	return nil
}

// ZoneRestriction rejects candidates whose delivery point falls inside an
// excluded region.
type ZoneRestriction struct{ Zones []geo.Polygon }

func (ZoneRestriction) Name() string { return KindZone }

func (z ZoneRestriction) Validate(_ *RouteState, o model.Order, _ Leg) *Violation {
	for _, zone := range z.Zones {
		if zone.Contains(o.Delivery) {
			return &Violation{Kind: KindZone, Detail: "delivery inside excluded zone " + zone.Name}
		}
	}
	return nil
}
