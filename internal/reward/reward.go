// Package reward computes the coin reward granted when a task is approved.
package reward

import (
	"math"

	"coinline/internal/config"
)

// Calculate returns round(difficulty × base × multiplier), ties away from zero.
func Calculate(difficulty, base, multiplier float64) int64 {
	return int64(math.Round(difficulty * base * multiplier))
}

// ForTask applies the reward constants in force right now to a difficulty level.
func ForTask(r config.Rewards, difficulty float64) int64 {
	v := Calculate(difficulty, r.CompletionBase, r.ComplexityMultiplier)
	if v < 0 {
		return 0
	}
	return v
}
