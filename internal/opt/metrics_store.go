package opt

import "sync"

// RunMetrics summarizes one optimization run for the admin surface.
type RunMetrics struct {
	Algorithm        string  `json:"algo"`
	Orders           int     `json:"orders"`
	Vehicles         int     `json:"vehicles"`
	Routes           int     `json:"routes"`
	Unassigned       int     `json:"unassigned"`
	TotalDistanceKm  float64 `json:"totalDistanceKm"`
	ElapsedSeconds   float64 `json:"elapsedSeconds"`
	Truncated        bool    `json:"truncated"`
}

var (
	mu      sync.Mutex
	runs    = map[string]RunMetrics{}
	runEver []string
)

// RecordMetrics stores metrics for a run ID (process-local, newest last).
func RecordMetrics(runID string, m RunMetrics) {
	mu.Lock()
	if _, ok := runs[runID]; !ok {
		runEver = append(runEver, runID)
	}
	runs[runID] = m
	mu.Unlock()
}

// GetMetrics returns metrics for a single run.
func GetMetrics(runID string) (RunMetrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := runs[runID]
	return m, ok
}

// ListMetrics returns run IDs and metrics in recording order.
func ListMetrics() ([]string, []RunMetrics) {
	mu.Lock()
	defer mu.Unlock()
	ids := append([]string(nil), runEver...)
	out := make([]RunMetrics, len(ids))
	for i, id := range ids {
		out[i] = runs[id]
	}
	return ids, out
}
