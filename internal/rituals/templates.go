// Default ritual templates seeded into every district at startup.
package rituals

import "github.com/talgya/living-city/internal/bus"

// template is a ritual minus instance identity.
type template struct {
	Name       string
	Kind       string
	Trigger    Trigger
	Duration   int
	Atmosphere bus.Atmosphere
	Script     Script
	Effects    []Effect
}

// baseTemplates apply to every district.
var baseTemplates = []template{
	{
		Name:     "Dawn Greeting",
		Kind:     KindDaily,
		Trigger:  Trigger{Kind: TriggerTime, Time: &TimeCondition{Hour: 6, Minute: 0}},
		Duration: 15,
		Atmosphere: bus.Atmosphere{
			Lighting:     "warm",
			SoundTheme:   "gentle_bells",
			ColorPalette: []string{"#FFA500", "#FFD700", "#FFFFFF"},
		},
		Script: Script{
			Introduction: "As the sun rises, we gather to greet the new day.",
			Ceremony: []string{
				"Feel the warmth of the morning light",
				"Share your intentions for the day",
				"Connect with the city's awakening energy",
			},
			Conclusion: "May this day bring you peace and discovery.",
		},
		Effects: []Effect{
			{Kind: EffectEnergyRestore, Target: TargetParticipants, Magnitude: 20, Duration: 120},
			{Kind: EffectMoodBoost, Target: TargetDistrict, Magnitude: 5, Duration: 60},
		},
	},
	{
		Name:     "Evening Reflection",
		Kind:     KindDaily,
		Trigger:  Trigger{Kind: TriggerTime, Time: &TimeCondition{Hour: 18, Minute: 0}},
		Duration: 20,
		Atmosphere: bus.Atmosphere{
			Lighting:     "dim",
			SoundTheme:   "soft_strings",
			ColorPalette: []string{"#4B0082", "#8A2BE2", "#DA70D6"},
		},
		Script: Script{
			Introduction: "The day draws to a close. Let us reflect together.",
			Ceremony: []string{
				"Share a moment of gratitude",
				"Release what no longer serves you",
				"Prepare for the night's wisdom",
			},
			Conclusion: "May your dreams be filled with insight.",
		},
		Effects: []Effect{
			{Kind: EffectMoodBoost, Target: TargetParticipants, Magnitude: 10, Duration: 180},
		},
	},
	{
		Name:     "Spontaneous Gathering",
		Kind:     KindParticipantTriggered,
		Trigger:  Trigger{Kind: TriggerParticipant, Participant: &ParticipantCondition{Min: 3}},
		Duration: 10,
		Atmosphere: bus.Atmosphere{
			Lighting:     "soft",
			SoundTheme:   "murmured_voices",
			ColorPalette: []string{"#F5DEB3", "#DEB887", "#D2B48C"},
		},
		Script: Script{
			Introduction: "Friends have found each other. Let the moment hold.",
			Ceremony: []string{
				"Exchange stories of the day",
				"Welcome whoever wanders close",
			},
			Conclusion: "Until paths cross again.",
		},
		Effects: []Effect{
			{Kind: EffectRelationshipBoost, Target: TargetParticipants, Magnitude: 0.05, Duration: 1440},
			{Kind: EffectMemoryCreation, Target: TargetParticipants, Magnitude: 0.3, Duration: 0},
		},
	},
}

// districtTemplates hold the per-district specials.
var districtTemplates = map[string][]template{
	"innovation_district": {
		{
			Name: "Idea Storm",
			Kind: KindMoodTriggered,
			Trigger: Trigger{Kind: TriggerMood, Mood: &MoodCondition{
				EmotionalState: "energetic", IntensityThreshold: 7, DurationMinutes: 30,
			}},
			Duration: 30,
			Atmosphere: bus.Atmosphere{
				Lighting:        "bright",
				SoundTheme:      "electric_hum",
				ColorPalette:    []string{"#00FF00", "#00FFFF", "#FF00FF"},
				ParticleEffects: []string{"sparks", "data_streams"},
			},
			Script: Script{
				Introduction: "Innovation calls! Let the ideas flow!",
				Ceremony: []string{
					"Share your wildest ideas",
					"Build upon each other's visions",
					"Let creativity surge through us",
				},
				Conclusion: "May these ideas shape tomorrow.",
			},
			Effects: []Effect{
				{Kind: EffectEnergyRestore, Target: TargetParticipants, Magnitude: 30, Duration: 60},
			},
		},
	},
	"wellness_way": {
		{
			Name: "Energy Sharing",
			Kind: KindMoodTriggered,
			Trigger: Trigger{Kind: TriggerMood, Mood: &MoodCondition{
				EmotionalState: "peaceful", IntensityThreshold: 6, DurationMinutes: 20,
			}},
			Duration: 25,
			Atmosphere: bus.Atmosphere{
				Lighting:     "warm",
				SoundTheme:   "gentle_waves",
				ColorPalette: []string{"#98FB98", "#F0E68C", "#DDA0DD"},
			},
			Script: Script{
				Introduction: "Let us share our inner light with one another.",
				Ceremony: []string{
					"Breathe deeply together",
					"Visualize energy flowing between us",
					"Feel the collective harmony",
				},
				Conclusion: "Carry this peace with you.",
			},
			Effects: []Effect{
				{Kind: EffectEnergyRestore, Target: TargetParticipants, Magnitude: 25, Duration: 90},
				{Kind: EffectRelationshipBoost, Target: TargetParticipants, Magnitude: 0.05, Duration: 1440},
			},
		},
	},
}

// templatesFor lists the defaults for one district.
func templatesFor(district string) []template {
	out := make([]template, 0, len(baseTemplates)+2)
	out = append(out, baseTemplates...)
	out = append(out, districtTemplates[district]...)
	return out
}
