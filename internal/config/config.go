// Package config holds the tunable simulation constants, loadable from
// a yaml file. Every probability and rate the engine branches on lives
// here rather than as a literal in the decision code.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is the full set of simulation parameters.
type Tuning struct {
	// Tick cadence. The base interval drives the citizen update tick;
	// the other layers run every N base ticks.
	TickInterval   time.Duration `yaml:"tick_interval"`
	StateEvery     int           `yaml:"state_every_ticks"`
	MoodEvery      int           `yaml:"mood_every_ticks"`
	EvolutionEvery int           `yaml:"evolution_every_ticks"`

	// One simulated "minute" for ritual durations and mood lifetimes.
	// Real time in production; shortened in tests.
	MinuteUnit time.Duration `yaml:"minute_unit"`

	Districts []string `yaml:"districts"`

	// Citizen energy deltas per tick, by activity.
	EnergyRest     float64 `yaml:"energy_rest"`
	EnergyMove     float64 `yaml:"energy_move"`
	EnergyInteract float64 `yaml:"energy_interact"`
	EnergyIdle     float64 `yaml:"energy_idle"`

	// Decision probabilities.
	ExploreChance   float64 `yaml:"explore_chance"`    // curious mood
	MoveChance      float64 `yaml:"move_chance"`       // energetic mood
	IdleChance      float64 `yaml:"idle_chance"`       // contemplative mood
	UserRespond     float64 `yaml:"user_respond"`      // react to nearby user
	RitualJoin      float64 `yaml:"ritual_join"`       // join a started ritual
	MoodContagion   float64 `yaml:"mood_contagion"`    // adopt collective mood
	ExploreSettle   float64 `yaml:"explore_settle"`    // exploring → idle per tick
	InteractionDone float64 `yaml:"interaction_done"`  // interacting → idle per tick
	LowEnergy       float64 `yaml:"low_energy"`        // forced-rest threshold
	MoveSpeed       float64 `yaml:"move_speed"`        // units per tick
	ArriveRadius    float64 `yaml:"arrive_radius"`     // snap-to-idle distance
	UserRadius      float64 `yaml:"user_radius"`       // user presence reach
	RitualRadius    float64 `yaml:"ritual_radius"`     // ritual pull reach
	GatheringSize   int     `yaml:"gathering_size"`    // citizens for a gathering
	GatheringRadius float64 `yaml:"gathering_radius"`

	// Memory garden.
	EpisodicCap     int     `yaml:"episodic_cap"`
	SemanticCap     int     `yaml:"semantic_cap"`
	DecaySlow       float64 `yaml:"decay_slow"`       // strong memories
	DecayFast       float64 `yaml:"decay_fast"`       // ordinary memories
	StrongImpact    float64 `yaml:"strong_impact"`    // |impact| above → slow decay
	LearningRate    float64 `yaml:"learning_rate"`    // association EMA
	EvolveThreshold float64 `yaml:"evolve_threshold"` // trait delta significance

	// Event bus.
	HistorySize int `yaml:"history_size"`
}

// Default returns the tuning the original city ran with.
func Default() Tuning {
	return Tuning{
		TickInterval:   5 * time.Second,
		StateEvery:     6,  // 30s
		MoodEvery:      12, // 60s — also the ritual time-trigger scan cadence
		EvolutionEvery: 17280,
		MinuteUnit:     time.Minute,

		Districts: []string{
			"innovation_district",
			"wellness_way",
			"neon_boulevard",
			"makers_sanctuary",
		},

		EnergyRest:     2,
		EnergyMove:     -1,
		EnergyInteract: -0.5,
		EnergyIdle:     -0.2,

		ExploreChance:   0.7,
		MoveChance:      0.8,
		IdleChance:      0.6,
		UserRespond:     0.3,
		RitualJoin:      0.7,
		MoodContagion:   0.4,
		ExploreSettle:   0.05,
		InteractionDone: 0.1,
		LowEnergy:       20,
		MoveSpeed:       0.1,
		ArriveRadius:    0.5,
		UserRadius:      10,
		RitualRadius:    15,
		GatheringSize:   3,
		GatheringRadius: 5,

		EpisodicCap:     100,
		SemanticCap:     50,
		DecaySlow:       0.1,
		DecayFast:       0.5,
		StrongImpact:    0.7,
		LearningRate:    0.1,
		EvolveThreshold: 0.2,

		HistorySize: 1000,
	}
}

// Load reads tuning from a yaml file, starting from defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("city.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("city.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects values the engine cannot run with.
func (t Tuning) Validate() error {
	if t.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if t.StateEvery <= 0 || t.MoodEvery <= 0 {
		return fmt.Errorf("tick layer periods must be positive")
	}
	if len(t.Districts) == 0 {
		return fmt.Errorf("at least one district required")
	}
	for _, p := range []float64{
		t.ExploreChance, t.MoveChance, t.IdleChance, t.UserRespond,
		t.RitualJoin, t.MoodContagion, t.ExploreSettle, t.InteractionDone,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("probability out of range: %v", p)
		}
	}
	if t.EpisodicCap <= 0 || t.SemanticCap <= 0 {
		return fmt.Errorf("memory caps must be positive")
	}
	return nil
}
