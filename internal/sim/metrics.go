package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Operating cost model.
const (
	CostPerKm   = 1.50
	CostPerHour = 20.0
)

// Metrics summarizes a finished run for reporting.
type Metrics struct {
	CompletionRate      float64            `json:"completionRate"`
	AvgDelayMin         float64            `json:"avgDelayMinutes"`
	OnTimePct           float64            `json:"onTimePercentage"`
	CostPerDelivery     float64            `json:"costPerDelivery"`
	TotalDistanceKm     float64            `json:"totalDistanceKm"`
	TotalVehicleHrs     float64            `json:"totalVehicleHours"`
	AvgOrdersPerVehicle float64            `json:"avgOrdersPerVehicle"`
	TotalOrders         int                `json:"totalOrders"`
	CompletedOrders     int                `json:"completedOrders"`
	FailedOrders        int                `json:"failedOrders"`
	VehicleUtilPct      map[string]float64 `json:"vehicleUtilization"`
}

// Utilization is the average of weight and volume usage percentages,
// capped at 100.
func Utilization(maxWeight, maxVolume, usedWeight, usedVolume float64) float64 {
	wu, vu := 0.0, 0.0
	if maxWeight > 0 {
		wu = usedWeight / maxWeight * 100
	}
	if maxVolume > 0 {
		vu = usedVolume / maxVolume * 100
	}
	return math.Min(100, (wu+vu)/2)
}

// Summarize derives run metrics from final simulation state.
func Summarize(s *State) Metrics {
	total := s.OrdersCreated
	if total == 0 {
		total = s.OrdersCompleted + s.OrdersFailed
	}

	m := Metrics{
		TotalOrders:     total,
		CompletedOrders: s.OrdersCompleted,
		FailedOrders:    s.OrdersFailed,
		TotalDistanceKm: round2(s.TotalDistanceKm),
		TotalVehicleHrs: round2(s.TotalVehicleHrs),
		VehicleUtilPct:  s.VehicleUtilPct,
	}
	if total > 0 {
		m.CompletionRate = round2(float64(s.OrdersCompleted) / float64(total) * 100)
	}
	if s.OrdersCompleted > 0 {
		m.OnTimePct = round2(float64(s.OnTime) / float64(s.OrdersCompleted) * 100)
		cost := s.TotalDistanceKm*CostPerKm + s.TotalVehicleHrs*CostPerHour
		m.CostPerDelivery = round2(cost / float64(s.OrdersCompleted))
	}
	if len(s.OrderDelays) > 0 {
		sum := 0.0
		for _, d := range s.OrderDelays {
			sum += d
		}
		m.AvgDelayMin = round2(sum / float64(len(s.OrderDelays)))
	}
	if n := len(s.VehicleUtilPct); n > 0 {
		m.AvgOrdersPerVehicle = round2(float64(s.OrdersCompleted) / float64(n))
	}
	return m
}

// Report renders a plain-text summary.
func (m Metrics) Report() string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(&b, "SIMULATION METRICS REPORT\n%s\n", rule)
	fmt.Fprintf(&b, "Orders Completed:         %d/%d (%.2f%%)\n", m.CompletedOrders, m.TotalOrders, m.CompletionRate)
	fmt.Fprintf(&b, "Failed Orders:            %d\n", m.FailedOrders)
	fmt.Fprintf(&b, "On-Time Deliveries:       %.2f%%\n", m.OnTimePct)
	fmt.Fprintf(&b, "Average Delay:            %.2f minutes\n\n", m.AvgDelayMin)
	fmt.Fprintf(&b, "OPERATIONAL METRICS\n%s\n", rule)
	fmt.Fprintf(&b, "Total Distance:           %.2f km\n", m.TotalDistanceKm)
	fmt.Fprintf(&b, "Total Vehicle Hours:      %.2f hours\n", m.TotalVehicleHrs)
	fmt.Fprintf(&b, "Avg Orders per Vehicle:   %.2f\n", m.AvgOrdersPerVehicle)
	fmt.Fprintf(&b, "Cost per Delivery:        $%.2f\n\n", m.CostPerDelivery)
	fmt.Fprintf(&b, "VEHICLE UTILIZATION\n%s\n", rule)
	ids := make([]string, 0, len(m.VehicleUtilPct))
	for id := range m.VehicleUtilPct {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "%s: %.1f%%\n", id, m.VehicleUtilPct[id])
	}
	return b.String()
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
