// Read-only copies of citizen state for the HTTP API. Ticks and bus
// callbacks mutate citizens under the simulator lock; handlers get
// detached copies instead of live pointers.
package citizens

import "github.com/talgya/living-city/internal/memory"

// MemorySummary is the API view of a citizen's memory garden.
type MemorySummary struct {
	Episodic     int                `json:"episodic"`
	Semantic     int                `json:"semantic"`
	Procedural   int                `json:"procedural"`
	Associations map[string]float64 `json:"associations,omitempty"`
	Patterns     []memory.Pattern   `json:"patterns,omitempty"`
}

// Snapshot returns a detached copy of one citizen plus a summary of its
// garden.
func (s *Simulator) Snapshot(id string) (Citizen, MemorySummary, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.citizens[id]
	if !ok {
		return Citizen{}, MemorySummary{}, false
	}

	cp := *c
	cp.Relationships = make(map[string]float64, len(c.Relationships))
	for k, v := range c.Relationships {
		cp.Relationships[k] = v
	}
	cp.Garden = nil

	var ms MemorySummary
	if c.Garden != nil {
		ms = MemorySummary{
			Episodic:     len(c.Garden.Episodic),
			Semantic:     len(c.Garden.Semantic),
			Procedural:   len(c.Garden.Procedural),
			Associations: make(map[string]float64, len(c.Garden.Associations)),
			Patterns:     c.Garden.DiscoverPatterns(now),
		}
		for k, v := range c.Garden.Associations {
			ms.Associations[k] = v
		}
	}
	return cp, ms, true
}

// Snapshots returns detached copies of every citizen.
func (s *Simulator) Snapshots() []Citizen {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Citizen, 0, len(s.citizens))
	for _, c := range s.citizens {
		cp := *c
		// The list view drops per-citizen maps; Snapshot(id) has them.
		cp.Relationships = nil
		cp.Garden = nil
		out = append(out, cp)
	}
	return out
}
