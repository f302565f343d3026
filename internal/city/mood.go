// District mood aggregation: collective mood vectors, the emotional
// label citizens catch through contagion, time-of-day and season
// bucketing, and the atmosphere descriptors sent to renderers.
package city

import (
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/citizens"
)

// Mood vector baselines and contribution caps.
const (
	baseValence      = 0.5
	baseArousal      = 0.3
	userBoostPer     = 0.1
	userBoostCap     = 0.5
	citizenBoostPer  = 0.05
	citizenBoostCap  = 0.3
	ritualBoostPer   = 0.2
	dominanceBoost   = 0.2
	dominantUsersMin = 5
)

// collectiveMood folds district activity into a valence/arousal/
// dominance vector. Contributions saturate so a crowd cannot push any
// component past 1.
func collectiveMood(activeUsers, activeCitizens, activeRituals int) bus.MoodVector {
	userBoost := min1(float64(activeUsers)*userBoostPer, userBoostCap)
	citizenBoost := min1(float64(activeCitizens)*citizenBoostPer, citizenBoostCap)
	ritualBoost := float64(activeRituals) * ritualBoostPer

	dominance := 0.5
	if activeUsers > dominantUsersMin {
		dominance += dominanceBoost
	}
	return bus.MoodVector{
		Valence:   min1(baseValence+userBoost+citizenBoost+ritualBoost, 1),
		Arousal:   min1(baseArousal+userBoost+ritualBoost, 1),
		Dominance: min1(dominance, 1),
	}
}

// emotionalLabel maps a mood vector to the emotional state citizens
// adopt through contagion, plus an intensity on the citizen 0-10 scale.
func emotionalLabel(m bus.MoodVector) (string, float64) {
	intensity := (m.Arousal*0.6 + m.Valence*0.4) * 10
	if intensity > 10 {
		intensity = 10
	}

	switch {
	case m.Valence >= 0.6 && m.Arousal >= 0.6:
		return citizens.MoodEnergetic, intensity
	case m.Valence >= 0.6:
		return citizens.MoodJoyful, intensity
	case m.Valence < 0.4 && m.Arousal >= 0.6:
		return citizens.MoodAnxious, intensity
	case m.Valence < 0.4:
		return citizens.MoodMelancholic, intensity
	case m.Arousal < 0.4:
		return citizens.MoodPeaceful, intensity
	default:
		return citizens.MoodContemplative, intensity
	}
}

// timeOfDay buckets an hour into morning/afternoon/evening/night.
func timeOfDay(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// season buckets a month into the four seasons.
func season(t time.Time) string {
	switch m := int(t.Month()); {
	case m >= 3 && m <= 5:
		return "spring"
	case m >= 6 && m <= 8:
		return "summer"
	case m >= 9 && m <= 11:
		return "fall"
	default:
		return "winter"
	}
}

func min1(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
