package services

import (
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"health-competition-system/models"
)

// MixedWeights are the per-metric multipliers used for "mixed" competitions.
// The defaults weight a step at 1 point, a kilometre at 100, a burned
// calorie at 2 and an active minute at 10; deployments tune them via
// COMPETITION_MIXED_WEIGHTS.
type MixedWeights struct {
	Steps         float64
	DistanceKm    float64
	Calories      float64
	ActiveMinutes float64
}

func DefaultMixedWeights() MixedWeights {
	return MixedWeights{Steps: 1, DistanceKm: 100, Calories: 2, ActiveMinutes: 10}
}

// MixedWeightsFromEnv reads COMPETITION_MIXED_WEIGHTS, four comma-separated
// non-negative numbers ordered steps,distanceKm,calories,activeMinutes.
// Unset or malformed values fall back to the defaults.
func MixedWeightsFromEnv() MixedWeights {
	raw := os.Getenv("COMPETITION_MIXED_WEIGHTS")
	if raw == "" {
		return DefaultMixedWeights()
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		log.Printf("[SCORING] COMPETITION_MIXED_WEIGHTS needs 4 values, got %q, using defaults", raw)
		return DefaultMixedWeights()
	}

	values := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			log.Printf("[SCORING] invalid COMPETITION_MIXED_WEIGHTS value %q, using defaults", p)
			return DefaultMixedWeights()
		}
		values[i] = v
	}
	return MixedWeights{
		Steps:         values[0],
		DistanceKm:    values[1],
		Calories:      values[2],
		ActiveMinutes: values[3],
	}
}

// Score derives a competition score from a user's aggregate metrics.
// Distance is carried in meters everywhere; only the scoring function
// converts to kilometres.
func Score(competitionType string, w MixedWeights, steps int64, distance, calories float64, activeMinutes int64) int64 {
	switch competitionType {
	case models.CompetitionTypeDistance:
		return int64(math.Round(distance))
	case models.CompetitionTypeCalories:
		return int64(math.Round(calories))
	case models.CompetitionTypeMixed:
		total := float64(steps)*w.Steps +
			(distance/1000)*w.DistanceKm +
			calories*w.Calories +
			float64(activeMinutes)*w.ActiveMinutes
		return int64(math.Round(total))
	default: // steps
		return steps
	}
}

// DefaultPrizeSplits maps competition type to the percentage split across
// the top ranks. The 60/30/10 table is the product default; per-type
// overrides are configuration, not contract.
func DefaultPrizeSplits() map[string][]int {
	split := []int{60, 30, 10}
	return map[string][]int{
		models.CompetitionTypeSteps:    split,
		models.CompetitionTypeDistance: split,
		models.CompetitionTypeCalories: split,
		models.CompetitionTypeMixed:    split,
	}
}
