package sim

import (
	"fmt"
	"math/rand"
	"time"

	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

// ArrivalPattern shapes when synthetic orders show up.
type ArrivalPattern string

const (
	ArrivalUniform  ArrivalPattern = "uniform"
	ArrivalRushHour ArrivalPattern = "rush_hour"
	ArrivalEvening  ArrivalPattern = "evening"
)

// SizePattern shapes synthetic order weight/volume.
type SizePattern string

const (
	SizeUniform    SizePattern = "uniform"
	SizeSmallHeavy SizePattern = "small_heavy"
	SizeLargeLight SizePattern = "large_light"
)

// DefaultDepot is lower Manhattan.
var DefaultDepot = geo.Point{Lat: 40.7128, Lng: -74.0060}

// Scenario configures synthetic order/vehicle generation. Base anchors the
// generated time windows; a zero Base uses the current UTC time, which
// sacrifices reproducibility across runs.
type Scenario struct {
	NumOrders   int            `json:"numOrders" yaml:"numOrders"`
	NumVehicles int            `json:"numVehicles" yaml:"numVehicles"`
	MinCorner   geo.Point      `json:"minCorner" yaml:"minCorner"`
	MaxCorner   geo.Point      `json:"maxCorner" yaml:"maxCorner"`
	Arrival     ArrivalPattern `json:"arrival" yaml:"arrival"`
	Sizes       SizePattern    `json:"sizes" yaml:"sizes"`
	Hours       float64        `json:"hours" yaml:"hours"`
	Depot       geo.Point      `json:"depot" yaml:"depot"`
	MaxWeightKg float64        `json:"maxWeightKg" yaml:"maxWeightKg"`
	MaxVolumeM3 float64        `json:"maxVolumeM3" yaml:"maxVolumeM3"`
	Base        time.Time      `json:"base" yaml:"-"`
}

func defaultScenario() Scenario {
	return Scenario{
		NumOrders:   50,
		NumVehicles: 5,
		MinCorner:   geo.Point{Lat: 40.70, Lng: -74.02},
		MaxCorner:   geo.Point{Lat: 40.72, Lng: -73.98},
		Arrival:     ArrivalUniform,
		Sizes:       SizeUniform,
		Hours:       12,
		Depot:       DefaultDepot,
		MaxWeightKg: 500,
		MaxVolumeM3: 10,
	}
}

// SmallPeak is 20 small-heavy orders, 3 vehicles, rush-hour arrivals.
func SmallPeak() Scenario {
	sc := defaultScenario()
	sc.NumOrders, sc.NumVehicles = 20, 3
	sc.Arrival, sc.Sizes = ArrivalRushHour, SizeSmallHeavy
	return sc
}

// MediumUniform is the default 50-order, 5-vehicle mix.
func MediumUniform() Scenario { return defaultScenario() }

// LargeEvening is 100 large-light orders, 10 vehicles, evening arrivals.
func LargeEvening() Scenario {
	sc := defaultScenario()
	sc.NumOrders, sc.NumVehicles = 100, 10
	sc.Arrival, sc.Sizes = ArrivalEvening, SizeLargeLight
	return sc
}

// Generate synthesizes orders and vehicles from the scenario and seed.
// Identical scenario + seed yields identical output.
func (sc Scenario) Generate(seed int64) ([]model.Order, []model.Vehicle) {
	rng := rand.New(rand.NewSource(seed))
	base := sc.Base
	if base.IsZero() {
		base = time.Now().UTC().Truncate(time.Minute)
	}
	simMin := sc.Hours * 60

	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	orders := make([]model.Order, 0, sc.NumOrders)
	for i := 0; i < sc.NumOrders; i++ {
		pickup := geo.Point{
			Lat: uniform(sc.MinCorner.Lat, sc.MaxCorner.Lat),
			Lng: uniform(sc.MinCorner.Lng, sc.MaxCorner.Lng),
		}
		delivery := geo.Point{
			Lat: uniform(sc.MinCorner.Lat, sc.MaxCorner.Lat),
			Lng: uniform(sc.MinCorner.Lng, sc.MaxCorner.Lng),
		}

		var arrival float64
		switch sc.Arrival {
		case ArrivalRushHour:
			if rng.Intn(2) == 0 {
				arrival = uniform(8*60, 10*60)
			} else {
				arrival = uniform(17*60, 19*60)
			}
		case ArrivalEvening:
			arrival = uniform(17*60, 22*60)
		default:
			arrival = uniform(0, simMin)
		}

		var weight, volume float64
		switch sc.Sizes {
		case SizeSmallHeavy:
			weight, volume = uniform(50, 150), uniform(0.1, 0.5)
		case SizeLargeLight:
			weight, volume = uniform(5, 30), uniform(1.0, 5.0)
		default:
			weight, volume = uniform(10, 100), uniform(0.1, 2.0)
		}

		start := base.Add(time.Duration(arrival) * time.Minute)
		orders = append(orders, model.Order{
			ID:             fmt.Sprintf("order_%05d", i),
			Pickup:         pickup,
			Delivery:       delivery,
			WeightKg:       round1(weight),
			VolumeM3:       round2(volume),
			Window:         model.TimeWindow{Earliest: start, Latest: start.Add(2 * time.Hour)},
			Status:         model.OrderPending,
			ArrivalTimeMin: arrival,
			CreatedAt:      base,
		})
	}

	vehicles := make([]model.Vehicle, 0, sc.NumVehicles)
	for i := 0; i < sc.NumVehicles; i++ {
		depot := sc.Depot
		vehicles = append(vehicles, model.Vehicle{
			ID:          fmt.Sprintf("vehicle_%03d", i),
			MaxWeightKg: round1(sc.MaxWeightKg * uniform(0.9, 1.1)),
			MaxVolumeM3: round2(sc.MaxVolumeM3 * uniform(0.9, 1.1)),
			Start:       depot,
			End:         &depot,
		})
	}
	return orders, vehicles
}

func round1(v float64) float64 { return float64(int(v*10+0.5)) / 10 }
