// Package rituals runs the ritual lifecycle: seeded templates, trigger
// matching, the scheduled→active→completed state machine, and effect
// fan-out over the event bus.
package rituals

import (
	"time"

	"github.com/talgya/living-city/internal/bus"
)

// Ritual kinds.
const (
	KindDaily                = "daily"
	KindSeasonal             = "seasonal"
	KindMoodTriggered        = "mood_triggered"
	KindParticipantTriggered = "participant_triggered"
)

// Ritual statuses.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Trigger tags.
const (
	TriggerTime        = "time"
	TriggerMood        = "mood"
	TriggerParticipant = "participant_count"
	TriggerManual      = "manual"
)

// Effect kinds.
const (
	EffectMoodBoost          = "mood_boost"
	EffectEnergyRestore      = "energy_restore"
	EffectMemoryCreation     = "memory_creation"
	EffectRelationshipBoost  = "relationship_boost"
	EffectDistrictAtmosphere = "district_atmosphere"
)

// Effect target scopes.
const (
	TargetParticipants = "participants"
	TargetDistrict     = "district"
	TargetAllNearby    = "all_nearby"
)

// TimeCondition fires on an exact HH:MM match.
type TimeCondition struct {
	Hour       int   `json:"hour"`
	Minute     int   `json:"minute"`
	DaysOfWeek []int `json:"days_of_week,omitempty"` // empty = every day
}

// MoodCondition fires when a district mood matches the state at or
// above the intensity threshold.
type MoodCondition struct {
	EmotionalState     string  `json:"emotional_state"`
	IntensityThreshold float64 `json:"intensity_threshold"`
	DurationMinutes    int     `json:"duration_minutes"`
}

// ParticipantCondition fires when a gathering reaches Min citizens.
type ParticipantCondition struct {
	Min int `json:"min"`
	Max int `json:"max,omitempty"` // 0 = unbounded
}

// Trigger is a tagged union; exactly the field matching Kind is set.
// A trigger whose condition pointer is missing never fires.
type Trigger struct {
	Kind        string                `json:"kind"`
	Time        *TimeCondition        `json:"time,omitempty"`
	Mood        *MoodCondition        `json:"mood,omitempty"`
	Participant *ParticipantCondition `json:"participant_count,omitempty"`
}

// Participant is a citizen or user taking part in an active ritual.
type Participant struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"` // facilitator | participant | observer
	JoinedAt time.Time `json:"joined_at"`
}

// Effect is one consequence a completed ritual publishes. The
// orchestrator only announces effects; the citizen simulator and the
// district mood aggregation interpret them.
type Effect struct {
	Kind      string  `json:"kind"`
	Target    string  `json:"target"`
	Magnitude float64 `json:"magnitude"`
	Duration  int     `json:"duration"` // minutes
}

// Script is the ceremony text attached to a ritual.
type Script struct {
	Introduction string   `json:"introduction"`
	Ceremony     []string `json:"ceremony"`
	Conclusion   string   `json:"conclusion"`
}

// Ritual is one ceremony instance. Templates are seeded per district as
// scheduled rituals; daily and seasonal ones are recreated as scheduled
// each time they complete.
type Ritual struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	District   string         `json:"district"`
	Trigger    Trigger        `json:"trigger_condition"`
	Duration   int            `json:"duration"` // minutes
	Atmosphere bus.Atmosphere `json:"atmosphere"`
	Script     Script         `json:"script"`
	Effects    []Effect       `json:"effects"`

	Participants []Participant `json:"participants"`

	Status         string     `json:"status"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
