package opt

import (
	"time"

	"fleetsim/internal/model"
)

// twoOpt improves a single route's order sequence by reversing segments
// between non-adjacent edges. First-improvement strategy: the scan restarts
// after every accepted move, which bounds per-pass cost. A reversal that
// shortens distance can still break a time window, so every candidate move
// is re-validated through the full constraint set before acceptance.
//
// maxPasses <= 0 means unbounded; a zero deadline means no time budget.
// The second return value reports early termination on budget exhaustion.
func (z *Optimizer) twoOpt(v model.Vehicle, orders []model.Order, maxPasses int, deadline time.Time) ([]model.Order, bool) {
	best := append([]model.Order(nil), orders...)
	bestDist := z.pathDistance(v, best)
	passes := 0
	for {
		if maxPasses > 0 && passes >= maxPasses {
			return best, true
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return best, true
		}
		passes++
		improved := false
	scan:
		for i := 0; i < len(best)-2; i++ {
			for j := i + 2; j < len(best); j++ {
				if !deadline.IsZero() && !time.Now().Before(deadline) {
					return best, true
				}
				cand := reverseSegment(best, i+1, j)
				d := z.pathDistance(v, cand)
				if d >= bestDist {
					continue
				}
				if _, viol := z.checker.ValidateSequence(v, cand); viol != nil {
					continue
				}
				best = cand
				bestDist = d
				improved = true
				break scan
			}
		}
		if !improved {
			return best, false
		}
	}
}

// reverseSegment returns a copy of orders with [from, to] reversed.
func reverseSegment(orders []model.Order, from, to int) []model.Order {
	out := append([]model.Order(nil), orders...)
	for a, b := from, to; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}
