// Typed payloads for the closed set of event types. Payloads carry only
// plain values so no package above the bus is imported here.
package bus

// Citizen action names used in CitizenAction.Action.
const (
	ActionSpawned           = "spawned"
	ActionActivityChanged   = "activity_changed"
	ActionGatheringDetected = "gathering_detected"
	ActionSystemStarted     = "system_started"
)

// Ritual action names used in RitualTrigger.Action.
const (
	RitualStarted           = "started"
	RitualCompleted         = "completed"
	RitualParticipantJoined = "participant_joined"
	RitualEffectApplied     = "effect_applied"
)

// User action names used in UserAction.Action.
const (
	UserEntered = "entered"
	UserMoved   = "moved"
	UserLeft    = "left"
)

// UserAction reports user presence or movement inside a district.
type UserAction struct {
	Action   string
	UserID   string
	District string
	X, Y, Z  float64
}

// CitizenAction is published by the citizen simulator for spawns,
// activity changes, and detected gatherings.
type CitizenAction struct {
	Action           string
	CitizenID        string
	District         string
	Activity         string
	Target           string
	X, Y, Z          float64
	ParticipantCount int // set for gathering_detected
}

// RitualTrigger covers the ritual lifecycle: started, participant
// joins, per-effect application, and completion.
type RitualTrigger struct {
	Action     string
	RitualID   string
	RitualName string
	District   string
	Kind       string
	Duration   int // minutes

	// participant_joined
	ParticipantID   string
	ParticipantRole string

	// effect_applied
	EffectKind   string
	EffectTarget string
	Magnitude    float64
	EffectMins   int
}

// MoodVector is a district's collective mood in valence/arousal/dominance
// space, each component in [0,1].
type MoodVector struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// Atmosphere describes presentation hints derived from district, time of
// day, and collective mood.
type Atmosphere struct {
	Lighting        string   `json:"lighting"`
	SoundTheme      string   `json:"sound_theme"`
	ColorPalette    []string `json:"color_palette"`
	ParticleEffects []string `json:"particle_effects,omitempty"`
}

// MoodShift is published by the city orchestrator once per mood tick
// per district, and interpreted by citizens (contagion) and rituals
// (mood triggers).
type MoodShift struct {
	District       string
	Collective     MoodVector
	EmotionalState string
	Intensity      float64 // 0-10
	Atmospheric    Atmosphere
	ActiveCitizens int
	ActiveUsers    int
	TimeOfDay      string
}

// DistrictActivity is one district's live counts inside a CityState.
type DistrictActivity struct {
	District       string `json:"district"`
	ActiveUsers    int    `json:"active_users"`
	ActiveCitizens int    `json:"active_citizens"`
}

// CityState is the periodic aggregate snapshot event.
type CityState struct {
	Citizens      int
	ActiveRituals int
	Districts     []DistrictActivity
}

// MemoryUpdate notes that a citizen recorded a memory.
type MemoryUpdate struct {
	CitizenID string
	Kind      string
	Impact    float64 // normalized [-1,1]
}
