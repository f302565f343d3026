package city

import "github.com/talgya/living-city/internal/bus"

// baseAtmospheres are the per-district presentation defaults.
var baseAtmospheres = map[string]bus.Atmosphere{
	"innovation_district": {
		Lighting:     "bright",
		SoundTheme:   "electronic",
		ColorPalette: []string{"#00D4FF", "#7B2FFF", "#FFFFFF"},
	},
	"wellness_way": {
		Lighting:     "warm",
		SoundTheme:   "ambient",
		ColorPalette: []string{"#98FB98", "#F0E68C", "#FFE4B5"},
	},
	"neon_boulevard": {
		Lighting:     "neon",
		SoundTheme:   "urban",
		ColorPalette: []string{"#FF1493", "#00FFFF", "#FFFF00"},
	},
	"makers_sanctuary": {
		Lighting:     "focused",
		SoundTheme:   "industrial",
		ColorPalette: []string{"#CD853F", "#A0522D", "#DEB887"},
	},
}

var defaultAtmosphere = bus.Atmosphere{
	Lighting:     "soft",
	SoundTheme:   "ambient",
	ColorPalette: []string{"#C0C0C0", "#E8E8E8", "#FFFFFF"},
}

// arousal thresholds above which each district shows its particles.
var particleThresholds = map[string]struct {
	arousal float64
	effects []string
}{
	"innovation_district": {0.7, []string{"sparks", "data_streams"}},
	"neon_boulevard":      {0.6, []string{"neon_flashes"}},
	"makers_sanctuary":    {0.5, []string{"steam", "sparks"}},
}

// atmosphereFor combines the district base with time-of-day and mood
// adjustments.
func atmosphereFor(district, tod string, mood bus.MoodVector) bus.Atmosphere {
	base, ok := baseAtmospheres[district]
	if !ok {
		base = defaultAtmosphere
	}
	atm := bus.Atmosphere{
		Lighting:     base.Lighting,
		SoundTheme:   base.SoundTheme,
		ColorPalette: append([]string(nil), base.ColorPalette...),
	}

	if p, ok := particleThresholds[district]; ok && mood.Arousal > p.arousal {
		atm.ParticleEffects = append(atm.ParticleEffects, p.effects...)
	}
	if district == "wellness_way" && mood.Valence > 0.8 {
		atm.ParticleEffects = append(atm.ParticleEffects, "gentle_glow")
	}

	switch tod {
	case "morning":
		atm.Lighting = "bright"
	case "evening":
		atm.Lighting = "dim"
	case "night":
		atm.Lighting = "neon"
		atm.SoundTheme += "_night"
	}

	if mood.Valence > 0.8 {
		atm.ParticleEffects = append(atm.ParticleEffects, "joy_sparkles")
	} else if mood.Valence < 0.3 {
		atm.SoundTheme += "_calm"
	}
	return atm
}
