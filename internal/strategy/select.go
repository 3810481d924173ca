package strategy

import "math"

// SelectBest reduces one exchange's candidate list to at most one
// opportunity: the candidate with the greatest absolute funding rate strictly
// above threshold. Ties keep the first-encountered candidate.
func SelectBest(candidates []Opportunity, threshold float64) (Opportunity, bool) {
	var best Opportunity
	found := false
	maxAbs := 0.0
	for _, candidate := range candidates {
		abs := math.Abs(candidate.Rate)
		if abs > threshold && abs > maxAbs {
			maxAbs = abs
			best = candidate
			found = true
		}
	}
	return best, found
}
