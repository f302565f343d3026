// Package memory implements the per-citizen memory garden: categorized,
// decaying memory records, emotional associations keyed by location, and
// the derived patterns that feed back into citizen personality.
//
// Emotional impact is normalized to [-1, 1] everywhere in this package.
// Mood intensity (0-10) is a separate scale; callers convert at the
// boundary.
package memory

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/living-city/internal/config"
)

// Record kinds.
const (
	KindInteraction = "interaction"
	KindEvent       = "event"
	KindObservation = "observation"
	KindRitual      = "ritual"
)

// Record is one memory held by a citizen's garden.
type Record struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Content   string            `json:"content"`
	Impact    float64           `json:"impact"` // [-1, 1]
	DecayRate float64           `json:"decay_rate"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// NewRecord creates a memory record. Emotionally heavy memories are
// assigned the slow decay rate so they both start stronger and fade
// slower.
func NewRecord(kind, content string, impact float64, ctx map[string]string, now time.Time, cfg config.Tuning) Record {
	if impact > 1 {
		impact = 1
	} else if impact < -1 {
		impact = -1
	}
	decay := cfg.DecayFast
	if math.Abs(impact) > cfg.StrongImpact {
		decay = cfg.DecaySlow
	}
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Content:   content,
		Impact:    impact,
		DecayRate: decay,
		Timestamp: now,
		Context:   ctx,
	}
}

// Strength scores a record by recency and emotional weight:
// exp(-decay * ageDays) * (1 + |impact| * 0.5).
func Strength(rec Record, now time.Time) float64 {
	ageDays := now.Sub(rec.Timestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-rec.DecayRate*ageDays) * (1 + math.Abs(rec.Impact)*0.5)
}

// TraitShift is one recorded personality change.
type TraitShift struct {
	Timestamp time.Time `json:"timestamp"`
	Trait     string    `json:"trait"`
	Change    float64   `json:"change"`
	Trigger   string    `json:"trigger"`
}

// Garden is a citizen's full memory state. Not safe for concurrent use;
// the owning simulator serializes access.
type Garden struct {
	CitizenID    string             `json:"citizen_id"`
	Episodic     []Record           `json:"episodic"`   // interactions + events, FIFO-capped
	Semantic     []Record           `json:"semantic"`   // observations, kept by |impact|
	Procedural   []Record           `json:"procedural"` // rituals, never pruned
	Associations map[string]float64 `json:"associations"`
	Evolution    []TraitShift       `json:"evolution"`
	LastUpdated  time.Time          `json:"last_updated"`
}

// NewGarden creates an empty garden for a citizen.
func NewGarden(citizenID string) *Garden {
	return &Garden{
		CitizenID:    citizenID,
		Associations: make(map[string]float64),
	}
}

// Add files a record into its bucket, enforcing the capacity policy,
// and folds its impact into the location association map.
func (g *Garden) Add(rec Record, cfg config.Tuning) {
	switch rec.Kind {
	case KindInteraction, KindEvent:
		g.Episodic = append(g.Episodic, rec)
		if len(g.Episodic) > cfg.EpisodicCap {
			// Oldest evicted first.
			g.Episodic = g.Episodic[len(g.Episodic)-cfg.EpisodicCap:]
		}
	case KindObservation:
		g.Semantic = append(g.Semantic, rec)
		if len(g.Semantic) > cfg.SemanticCap {
			g.Semantic = topByImpact(g.Semantic, cfg.SemanticCap)
		}
	case KindRitual:
		// Rituals are formative; keep all of them.
		g.Procedural = append(g.Procedural, rec)
	}

	location := rec.Context["location"]
	if location == "" {
		location = "unknown"
	}
	// Exponential moving average toward the impact experienced here.
	current := g.Associations[location]
	g.Associations[location] = current + (rec.Impact-current)*cfg.LearningRate

	g.LastUpdated = rec.Timestamp
}

// topByImpact keeps the n records with the largest absolute impact,
// preserving insertion order among the survivors.
func topByImpact(recs []Record, n int) []Record {
	if len(recs) <= n {
		return recs
	}
	// Find the cutoff by selecting the n largest |impact| values.
	impacts := make([]float64, len(recs))
	for i, r := range recs {
		impacts[i] = math.Abs(r.Impact)
	}
	sorted := append([]float64(nil), impacts...)
	// Insertion sort descending; buckets are small (≤ cap+1).
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] > sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	cutoff := sorted[n-1]

	// Records strictly above the cutoff always survive; ties fill the
	// remaining slots oldest-first.
	kept := make([]Record, 0, n)
	for _, r := range recs {
		if math.Abs(r.Impact) > cutoff {
			kept = append(kept, r)
		}
	}
	for _, r := range recs {
		if len(kept) >= n {
			break
		}
		if math.Abs(r.Impact) == cutoff {
			kept = append(kept, r)
		}
	}
	return kept
}

// All returns every record across the three buckets.
func (g *Garden) All() []Record {
	out := make([]Record, 0, len(g.Episodic)+len(g.Semantic)+len(g.Procedural))
	out = append(out, g.Episodic...)
	out = append(out, g.Semantic...)
	out = append(out, g.Procedural...)
	return out
}

// RelevantContext guides Relevant's scoring.
type RelevantContext struct {
	Location string
	Impact   float64 // desired emotional register, [-1,1]
}

// Relevant returns up to limit records scored by location match,
// recency, and emotional proximity to the requested register.
func (g *Garden) Relevant(ctx RelevantContext, limit int, now time.Time) []Record {
	type scored struct {
		rec   Record
		score float64
	}
	all := g.All()
	list := make([]scored, 0, len(all))
	for _, rec := range all {
		s := 0.0
		if ctx.Location != "" && rec.Context["location"] == ctx.Location {
			s += 0.3
		}
		ageDays := now.Sub(rec.Timestamp).Hours() / 24
		s += math.Exp(-ageDays * 0.1)
		s += (1 - math.Abs(rec.Impact-ctx.Impact)/2) * 0.2
		list = append(list, scored{rec, s})
	}
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].score > list[j-1].score; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
	if limit > len(list) {
		limit = len(list)
	}
	out := make([]Record, 0, limit)
	for _, s := range list[:limit] {
		out = append(out, s.rec)
	}
	return out
}
