// Personality evolution — memories reshape traits over time.
package memory

import (
	"math"
	"strings"
	"time"

	"github.com/talgya/living-city/internal/config"
)

// Look-back windows for the evolution pass.
const (
	episodicWindow   = 7 * 24 * time.Hour
	proceduralWindow = 30 * 24 * time.Hour
)

const maxEvolutionHistory = 20

// traitOpposites maps a trait to the one it displaces.
var traitOpposites = map[string]string{
	"outgoing":    "shy",
	"shy":         "outgoing",
	"cautious":    "adventurous",
	"adventurous": "cautious",
}

// EvolveTraits accumulates trait deltas from recent memories and applies
// the significant ones to the trait list: the new trait is added if
// absent, its opposite removed if present, and a shift record appended
// to the garden's bounded evolution history. Returns the updated traits.
func EvolveTraits(g *Garden, traits []string, now time.Time, cfg config.Tuning) []string {
	deltas := make(map[string]float64)

	for _, rec := range g.Episodic {
		if now.Sub(rec.Timestamp) > episodicWindow {
			continue
		}
		if rec.Kind == KindInteraction && rec.Impact > 0.5 {
			deltas["outgoing"] += 0.1
			deltas["shy"] -= 0.1
		}
		if rec.Kind == KindInteraction && rec.Impact < -0.5 {
			deltas["cautious"] += 0.1
			deltas["adventurous"] -= 0.1
		}
	}

	for _, rec := range g.Procedural {
		if now.Sub(rec.Timestamp) > proceduralWindow {
			continue
		}
		if rec.Impact > 0.3 {
			deltas["confident"] += 0.05
		}
	}

	for _, rec := range g.Semantic {
		if now.Sub(rec.Timestamp) > episodicWindow {
			continue
		}
		if rec.Impact > 0 && strings.Contains(strings.ToLower(rec.Content), "new") {
			deltas["curious"] += 0.05
		}
	}

	updated := append([]string(nil), traits...)
	for trait, change := range deltas {
		if change <= cfg.EvolveThreshold {
			continue
		}
		if !contains(updated, trait) {
			updated = append(updated, trait)
		}
		if opp := traitOpposites[trait]; opp != "" {
			updated = remove(updated, opp)
		}
		g.Evolution = append(g.Evolution, TraitShift{
			Timestamp: now,
			Trait:     trait,
			Change:    math.Round(change*100) / 100,
			Trigger:   "experience_accumulation",
		})
	}

	if len(g.Evolution) > maxEvolutionHistory {
		g.Evolution = g.Evolution[len(g.Evolution)-maxEvolutionHistory:]
	}

	return updated
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	kept := list[:0]
	for _, v := range list {
		if v != s {
			kept = append(kept, v)
		}
	}
	return kept
}
