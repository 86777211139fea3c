package domain

import (
	"math"
	"sort"
)

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// ClampScore bounds a score to [0,1]. NaN maps to NeutralSignal.
func ClampScore(score float64) float64 {
	if math.IsNaN(score) {
		return NeutralSignal
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
