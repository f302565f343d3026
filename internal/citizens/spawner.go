// Citizen spawning — personalities, names, and default schedules.
// Uses the language model when available and falls back to the word
// tables the city shipped with.
package citizens

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/talgya/living-city/internal/entropy"
	"github.com/talgya/living-city/internal/llm"
)

var (
	traitPool = []string{
		"curious", "helpful", "mysterious", "energetic", "contemplative",
		"joyful", "cautious", "creative", "scholarly", "adventurous",
	}
	voiceStyles  = []string{"warm", "mysterious", "energetic", "contemplative", "playful"}
	namePrefixes = []string{"Aria", "Kai", "Luna", "Orion", "Sage", "Terra", "Zephyr", "Nova"}
	nameSuffixes = []string{"Light", "Dream", "Echo", "Shadow", "Star", "Wind", "Wave", "Flame"}
)

// Spawner builds new citizens.
type Spawner struct {
	rng     *rand.Rand
	llm     *llm.Client     // nil = word tables only
	entropy *entropy.Client // nil = seeded rng only
}

// NewSpawner creates a spawner. Both clients may be nil.
func NewSpawner(seed int64, llmClient *llm.Client, ent *entropy.Client) *Spawner {
	return &Spawner{
		rng:     rand.New(rand.NewSource(seed + 300)),
		llm:     llmClient,
		entropy: ent,
	}
}

// draw returns a random float in [0,1), preferring the external entropy
// pool when one is configured.
func (s *Spawner) draw() float64 {
	if s.entropy != nil && s.entropy.Enabled() {
		return s.entropy.Float()
	}
	return s.rng.Float64()
}

// Personality assembles a personality, asking the language model for a
// backstory when enabled.
func (s *Spawner) Personality() Personality {
	traits := make([]string, 0, 3)
	for len(traits) < 3 {
		t := traitPool[int(s.draw()*float64(len(traitPool)))%len(traitPool)]
		if !containsStr(traits, t) {
			traits = append(traits, t)
		}
	}

	p := Personality{
		Traits:     traits,
		VoiceStyle: voiceStyles[int(s.draw()*float64(len(voiceStyles)))%len(voiceStyles)],
		Interests:  []string{"art", "technology", "nature", "community", "knowledge"},
		Fears:      []string{"isolation", "conflict", "loss"},
		Goals:      []string{"help others", "learn new things", "create beauty"},
		Backstory:  "A resident of the city who has lived here since its early days.",
	}

	if s.llm.Enabled() {
		backstory, err := s.llm.Backstory(traits, p.VoiceStyle)
		if err != nil {
			slog.Debug("backstory generation failed, using fallback", "error", err)
		} else if backstory != "" {
			p.Backstory = backstory
		}
	}

	return p
}

// Name picks a citizen name, preferring a generated one.
func (s *Spawner) Name(p Personality) string {
	if s.llm.Enabled() {
		name, err := s.llm.CitizenName(p.Traits, p.VoiceStyle)
		if err != nil {
			slog.Debug("name generation failed, using fallback", "error", err)
		} else if name != "" {
			return name
		}
	}
	prefix := namePrefixes[int(s.draw()*float64(len(namePrefixes)))%len(namePrefixes)]
	suffix := nameSuffixes[int(s.draw()*float64(len(nameSuffixes)))%len(nameSuffixes)]
	return prefix + suffix
}

// DefaultSchedule is the routine every citizen starts with.
func DefaultSchedule() Schedule {
	return Schedule{
		DailyRoutine: []ScheduleEntry{
			{Time: "06:00", Activity: ActivityRitual, Location: "dawn_square", Duration: 30, Priority: 8},
			{Time: "09:00", Activity: ActivityExploring, Location: "district_center", Duration: 120, Priority: 5},
			{Time: "12:00", Activity: ActivityIdle, Location: "central_park", Duration: 60, Priority: 3},
			{Time: "18:00", Activity: ActivityRitual, Location: "evening_gathering", Duration: 45, Priority: 7},
			{Time: "22:00", Activity: ActivityResting, Location: "home", Duration: 480, Priority: 9},
		},
		Flexibility: 0.3,
	}
}

// initialMood is the state every citizen wakes up in.
func initialMood(now time.Time) Mood {
	return Mood{
		State:     MoodCurious,
		Intensity: 5,
		Duration:  30,
		SetAt:     now,
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
