// Pattern discovery and memory-driven behavior directives.
package memory

import (
	"fmt"
	"math"
	"time"
)

// Pattern kinds.
const (
	PatternTiming     = "timing"
	PatternPreference = "preference"
	PatternEmotional  = "emotional"
)

// Pattern is a regularity discovered in a garden's records.
type Pattern struct {
	Kind         string    `json:"kind"`
	Description  string    `json:"description"`
	Confidence   float64   `json:"confidence"` // [0, 1]
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Minimum evidence before a pattern is reported.
const (
	minHourVisits    = 3
	minLocationCount = 5
	minEmotionalSkew = 0.3
)

// DiscoverPatterns scans the garden's records for a preferred hour of
// day, a favorite location, and an overall emotional tendency.
func (g *Garden) DiscoverPatterns(now time.Time) []Pattern {
	var patterns []Pattern

	// Time-of-day preference over episodic records.
	byHour := make(map[int]int)
	for _, rec := range g.Episodic {
		byHour[rec.Timestamp.Hour()]++
	}
	bestHour, bestCount := -1, 0
	for hour, count := range byHour {
		if count > bestCount || (count == bestCount && hour < bestHour) {
			bestHour, bestCount = hour, count
		}
	}
	if bestCount > minHourVisits {
		patterns = append(patterns, Pattern{
			Kind:         PatternTiming,
			Description:  fmt.Sprintf("prefers visiting around %d:00", bestHour),
			Confidence:   math.Min(1, float64(bestCount)/10),
			DiscoveredAt: now,
		})
	}

	// Location affinity over all records.
	byLocation := make(map[string]int)
	for _, rec := range g.All() {
		if loc := rec.Context["location"]; loc != "" {
			byLocation[loc]++
		}
	}
	bestLoc, bestLocCount := "", 0
	for loc, count := range byLocation {
		if count > bestLocCount || (count == bestLocCount && loc < bestLoc) {
			bestLoc, bestLocCount = loc, count
		}
	}
	if bestLocCount > minLocationCount {
		patterns = append(patterns, Pattern{
			Kind:         PatternPreference,
			Description:  fmt.Sprintf("drawn to %s", bestLoc),
			Confidence:   math.Min(1, float64(bestLocCount)/20),
			DiscoveredAt: now,
		})
	}

	// Emotional tendency.
	all := g.All()
	if len(all) > 0 {
		sum := 0.0
		for _, rec := range all {
			sum += rec.Impact
		}
		mean := sum / float64(len(all))
		if math.Abs(mean) > minEmotionalSkew {
			desc := "tends toward joy and excitement"
			if mean < 0 {
				desc = "often seeks contemplation and calm"
			}
			patterns = append(patterns, Pattern{
				Kind:         PatternEmotional,
				Description:  desc,
				Confidence:   math.Min(1, math.Abs(mean)),
				DiscoveredAt: now,
			})
		}
	}

	return patterns
}

// Directives are simple behavior suggestions derived from the
// association map and memory statistics.
type Directives struct {
	AvoidLocations  []string `json:"avoid_locations,omitempty"`
	PreferLocations []string `json:"prefer_locations,omitempty"`
	PreferredHour   int      `json:"preferred_hour"` // -1 when unknown
	RitualAffinity  bool     `json:"ritual_affinity"`
}

// Suggest derives behavior directives: shun strongly negative places,
// seek strongly positive ones, note the hour good interactions cluster
// at, and whether rituals have been rewarding.
func (g *Garden) Suggest() Directives {
	d := Directives{PreferredHour: -1}

	for loc, strength := range g.Associations {
		switch {
		case strength < -0.3:
			d.AvoidLocations = append(d.AvoidLocations, loc)
		case strength > 0.5:
			d.PreferLocations = append(d.PreferLocations, loc)
		}
	}

	var goodHours []int
	for _, rec := range g.Episodic {
		if rec.Kind == KindInteraction && rec.Impact > 0.5 {
			goodHours = append(goodHours, rec.Timestamp.Hour())
		}
	}
	if len(goodHours) > 3 {
		sum := 0
		for _, h := range goodHours {
			sum += h
		}
		d.PreferredHour = int(math.Round(float64(sum) / float64(len(goodHours))))
	}

	if len(g.Procedural) > 0 {
		sum := 0.0
		for _, rec := range g.Procedural {
			sum += rec.Impact
		}
		d.RitualAffinity = sum/float64(len(g.Procedural)) > 0.3
	}

	return d
}
