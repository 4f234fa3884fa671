package model

import (
	"fmt"
	"time"

	"fleetsim/internal/geo"
)

// Order status lifecycle: pending -> assigned -> in_transit -> delivered.
// cancelled may replace pending/assigned.
const (
	OrderPending   = "pending"
	OrderAssigned  = "assigned"
	OrderInTransit = "in_transit"
	OrderDelivered = "delivered"
	OrderFailed    = "failed"
	OrderCancelled = "cancelled"
)

// TimeWindow is an absolute delivery window, earliest <= latest.
type TimeWindow struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// Contains reports whether t falls within the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Earliest) && !t.After(w.Latest)
}

// Order is a delivery order. Geometry, weight, and volume are immutable
// after intake; only status and route assignment change.
type Order struct {
	ID             string     `json:"id"`
	Pickup         geo.Point  `json:"pickup"`
	Delivery       geo.Point  `json:"delivery"`
	Window         TimeWindow `json:"window"`
	WeightKg       float64    `json:"weightKg"`
	VolumeM3       float64    `json:"volumeM3"`
	Status         string     `json:"status"`
	Zone           string     `json:"zone,omitempty"`
	AssignedRoute  string     `json:"assignedRouteId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
	ArrivalTimeMin float64    `json:"arrivalTimeMin,omitempty"` // minutes into the simulated day
}

// Vehicle is immutable for the duration of one optimization run.
type Vehicle struct {
	ID          string     `json:"id"`
	MaxWeightKg float64    `json:"maxWeightKg"`
	MaxVolumeM3 float64    `json:"maxVolumeM3"`
	Start       geo.Point  `json:"start"`
	End         *geo.Point `json:"end,omitempty"` // depot return when set
	Available   TimeWindow `json:"available,omitempty"`
}

// Stop kinds within a route.
const (
	StopPickup   = "pickup"
	StopDelivery = "delivery"
)

// Stop is one visit on a route. ArrivalMin is computed from the stop
// sequence and is not authoritative until simulated.
type Stop struct {
	OrderID    string    `json:"orderId"`
	Kind       string    `json:"kind"`
	Location   geo.Point `json:"location"`
	ArrivalMin float64   `json:"arrivalMin"`
	ServiceMin float64   `json:"serviceMin"`
}

// Route is the ordered visit plan for one vehicle. Aggregate fields are
// derived from the stop sequence and recomputed whenever it changes.
type Route struct {
	ID           string    `json:"id"`
	VehicleID    string    `json:"vehicleId"`
	Orders       []string  `json:"orders"` // visiting order of order IDs
	Stops        []Stop    `json:"stops"`
	DistanceKm   float64   `json:"distanceKm"`
	TimeMin      float64   `json:"timeMin"`
	WeightUsedKg float64   `json:"weightUsedKg"`
	VolumeUsedM3 float64   `json:"volumeUsedM3"`
	BreakCount   int       `json:"breakCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// ValidateOrder rejects malformed intake records. Infeasibility is not
// checked here; only numeric sanity.
func ValidateOrder(o Order) error {
	if o.ID == "" {
		return fmt.Errorf("order: id required")
	}
	if !o.Pickup.Valid() {
		return fmt.Errorf("order %s: pickup %w", o.ID, geo.ErrInvalidCoordinate)
	}
	if !o.Delivery.Valid() {
		return fmt.Errorf("order %s: delivery %w", o.ID, geo.ErrInvalidCoordinate)
	}
	if o.Window.Latest.Before(o.Window.Earliest) {
		return fmt.Errorf("order %s: inverted time window", o.ID)
	}
	if o.WeightKg < 0 || o.VolumeM3 < 0 {
		return fmt.Errorf("order %s: negative weight or volume", o.ID)
	}
	return nil
}

// ValidateVehicle rejects malformed vehicle records.
func ValidateVehicle(v Vehicle) error {
	if v.ID == "" {
		return fmt.Errorf("vehicle: id required")
	}
	if v.MaxWeightKg <= 0 || v.MaxVolumeM3 <= 0 {
		return fmt.Errorf("vehicle %s: capacity must be positive", v.ID)
	}
	if !v.Start.Valid() {
		return fmt.Errorf("vehicle %s: start %w", v.ID, geo.ErrInvalidCoordinate)
	}
	if v.End != nil && !v.End.Valid() {
		return fmt.Errorf("vehicle %s: end %w", v.ID, geo.ErrInvalidCoordinate)
	}
	return nil
}

// OptimizeRequest is the optimizer entry-point payload.
type OptimizeRequest struct {
	Orders       []Order   `json:"orders"`
	Vehicles     []Vehicle `json:"vehicles"`
	Improve      *bool     `json:"improve,omitempty"` // default true
	MaxPasses    int       `json:"maxPasses,omitempty"`
	TimeBudgetMs int       `json:"timeBudgetMs,omitempty"`
}

// OptimizeResult is the optimizer output.
type OptimizeResult struct {
	Routes           []Route  `json:"routes"`
	UnassignedOrders []string `json:"unassignedOrders"`
	TotalDistanceKm  float64  `json:"totalDistanceKm"`
	TotalVehicleHrs  float64  `json:"totalVehicleHours"`
	ElapsedSeconds   float64  `json:"optimizationTimeSeconds"`
	Truncated        bool     `json:"truncated,omitempty"`
	Algorithm        string   `json:"algorithm"`
}

// SimulateRequest drives a simulation run over previously planned routes
// or a generated scenario.
type SimulateRequest struct {
	Orders     []Order   `json:"orders"`
	Vehicles   []Vehicle `json:"vehicles"`
	Routes     []Route   `json:"routes,omitempty"`
	Seed       int64     `json:"seed"`
	EndTimeMin float64   `json:"endTimeMin"`
	JitterPct  float64   `json:"jitterPct,omitempty"`
}

// SimulateResult is the flattened outcome of one simulation run.
type SimulateResult struct {
	RunID           string             `json:"runId"`
	Seed            int64              `json:"seed"`
	EndTimeMin      float64            `json:"endTimeMin"`
	OrdersCreated   int                `json:"ordersCreated"`
	OrdersCompleted int                `json:"ordersCompleted"`
	OrdersFailed    int                `json:"ordersFailed"`
	CompletionRate  float64            `json:"completionRate"`
	AvgDelayMin     float64            `json:"avgDelayMinutes"`
	OnTimePct       float64            `json:"onTimePercentage"`
	CostPerDelivery float64            `json:"costPerDelivery"`
	TotalDistanceKm float64            `json:"totalDistanceKm"`
	TotalVehicleHrs float64            `json:"totalVehicleHours"`
	VehicleUtilPct  map[string]float64 `json:"vehicleUtilization,omitempty"`
	Report          string             `json:"report,omitempty"`
	CreatedAt       time.Time          `json:"createdAt,omitempty"`
}

// SubscriptionRequest registers a webhook for event pushes.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
