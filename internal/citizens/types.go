// Package citizens provides the citizen data model and the per-citizen
// decision/update loop of the living city.
package citizens

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/living-city/internal/memory"
)

// Activity types.
const (
	ActivityIdle        = "idle"
	ActivityMoving      = "moving"
	ActivityInteracting = "interacting"
	ActivityRitual      = "ritual"
	ActivityResting     = "resting"
	ActivityExploring   = "exploring"
)

// Emotional states.
const (
	MoodCurious       = "curious"
	MoodContemplative = "contemplative"
	MoodJoyful        = "joyful"
	MoodMelancholic   = "melancholic"
	MoodEnergetic     = "energetic"
	MoodAnxious       = "anxious"
	MoodPeaceful      = "peaceful"
	MoodExcited       = "excited"
)

// Position is a citizen's location in the city.
type Position struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	District string  `json:"district"`
}

// DistanceTo returns the straight-line distance to another position,
// ignoring districts.
func (p Position) DistanceTo(o Position) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Coords renders the coordinates as an activity target string.
func (p Position) Coords() string {
	return fmt.Sprintf("%g,%g,%g", p.X, p.Y, p.Z)
}

// ParseCoords reads an "x,y,z" target string.
func ParseCoords(s string) (x, y, z float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], true
}

// Personality is the fixed-ish character of a citizen; traits drift
// slowly through the memory evolution pass.
type Personality struct {
	Traits     []string `json:"traits"`
	VoiceStyle string   `json:"voice_style"`
	Interests  []string `json:"interests"`
	Fears      []string `json:"fears"`
	Goals      []string `json:"goals"`
	Backstory  string   `json:"backstory"`
}

// Mood is the current emotional state. Intensity is 0-10; Duration is
// how many minutes the mood holds before it regenerates.
type Mood struct {
	State     string    `json:"emotional_state"`
	Intensity float64   `json:"intensity"`
	Triggers  []string  `json:"triggers,omitempty"`
	Duration  int       `json:"duration"`
	SetAt     time.Time `json:"set_at"`
}

// Activity is what a citizen is currently doing. Target is a user id,
// ritual id, or "x,y,z" coordinates depending on the type.
type Activity struct {
	Type              string        `json:"type"`
	Target            string        `json:"target,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// ScheduleEntry is one slot of a citizen's daily routine.
type ScheduleEntry struct {
	Time     string `json:"time"` // HH:MM
	Activity string `json:"activity"`
	Location string `json:"location"`
	Duration int    `json:"duration"` // minutes
	Priority int    `json:"priority"`
}

// Schedule is the daily routine plus how willing the citizen is to
// deviate from it (flexibility 0-1).
type Schedule struct {
	DailyRoutine []ScheduleEntry `json:"daily_routine"`
	Flexibility  float64         `json:"flexibility"`
}

// Citizen is one autonomous resident.
type Citizen struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Personality Personality `json:"personality"`
	Mood        Mood        `json:"current_mood"`
	Position    Position    `json:"position"`
	Activity    Activity    `json:"current_activity"`
	Schedule    Schedule    `json:"schedule"`

	// Relationships maps a citizen or user id to bond strength [0,1].
	Relationships map[string]float64 `json:"relationships"`

	Energy          float64   `json:"energy"` // [0,100]
	LastInteraction time.Time `json:"last_interaction,omitempty"`

	Garden *memory.Garden `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func clampEnergy(e float64) float64 {
	if e < 0 {
		return 0
	}
	if e > 100 {
		return 100
	}
	return e
}
