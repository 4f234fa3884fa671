package api

import (
	"fmt"

	"fleetsim/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.MaxPasses < 0 {
		return fmt.Errorf("maxPasses must be >= 0")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	seen := map[string]struct{}{}
	for _, o := range req.Orders {
		if o.ID == "" {
			continue
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("duplicate order id: %s", o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// maxEndTimeMin caps a run at one year of simulated minutes.
const maxEndTimeMin = 366 * 24 * 60

func validateSimulateRequest(req *simulateRequest) error {
	if req.EndTimeMin < 0 || req.EndTimeMin > maxEndTimeMin {
		return fmt.Errorf("endTimeMin must be in [0, %d]", maxEndTimeMin)
	}
	if req.JitterPct < 0 || req.JitterPct > 100 {
		return fmt.Errorf("jitterPct must be in [0,100]")
	}
	if req.Scenario != "" && len(req.Orders) > 0 {
		return fmt.Errorf("scenario and inline orders are mutually exclusive")
	}
	if len(req.Routes) > 0 && len(req.Orders) == 0 {
		return fmt.Errorf("routes require the orders they reference")
	}
	return nil
}
