// Event-bus reactions: how citizens respond to users, rituals, and
// district mood changes. Handlers mutate under the simulator lock and
// publish follow-up events after releasing it; the bus queues reentrant
// publishes, so calling Publish from inside a delivery is safe.
package citizens

import (
	"fmt"
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/memory"
)

// onUserAction makes nearby citizens consider greeting a user.
func (s *Simulator) onUserAction(ev bus.Event) error {
	action, ok := ev.Payload.(bus.UserAction)
	if !ok {
		return fmt.Errorf("user action payload is %T", ev.Payload)
	}
	now := s.now()
	at := Position{X: action.X, Y: action.Y, Z: action.Z, District: action.District}

	s.mu.Lock()
	var out []bus.Event
	for _, c := range s.citizens {
		if c.Position.District != action.District {
			continue
		}
		if c.Position.DistanceTo(at) > s.cfg.UserRadius {
			continue
		}
		if c.Activity.Type == ActivityInteracting || c.Activity.Type == ActivityRitual {
			continue
		}
		if s.rng.Float64() >= s.cfg.UserRespond {
			continue
		}
		c.LastInteraction = now
		out = append(out, s.setActivity(c, ActivityInteracting, action.UserID, 0, now, s.rng)...)
	}
	s.mu.Unlock()

	for _, e := range out {
		s.bus.Publish(e)
	}
	return nil
}

// onRitualEvent handles the ritual lifecycle from the citizen side:
// joining a freshly started ritual, absorbing its effects, and
// returning to idle when it completes.
func (s *Simulator) onRitualEvent(ev bus.Event) error {
	trig, ok := ev.Payload.(bus.RitualTrigger)
	if !ok {
		return fmt.Errorf("ritual payload is %T", ev.Payload)
	}
	now := s.now()

	s.mu.Lock()
	var out []bus.Event
	switch trig.Action {
	case bus.RitualStarted:
		for _, c := range s.citizens {
			if c.Position.District != trig.District {
				continue
			}
			if c.Activity.Type == ActivityRitual || c.Activity.Type == ActivityResting {
				continue
			}
			if s.rng.Float64() >= s.cfg.RitualJoin {
				continue
			}
			dur := time.Duration(trig.Duration) * time.Minute
			out = append(out, s.setActivity(c, ActivityRitual, trig.RitualID, dur, now, s.rng)...)
		}

	case bus.RitualEffectApplied:
		for _, c := range s.affectedBy(trig) {
			out = append(out, s.applyEffect(c, trig, now)...)
		}

	case bus.RitualCompleted:
		for _, c := range s.participants(trig.RitualID) {
			out = append(out, s.setActivity(c, ActivityIdle, "", 0, now, s.rng)...)
		}
	}
	s.mu.Unlock()

	for _, e := range out {
		s.bus.Publish(e)
	}
	return nil
}

// participants lists citizens currently taking part in a ritual.
// Caller holds the lock.
func (s *Simulator) participants(ritualID string) []*Citizen {
	var out []*Citizen
	for _, c := range s.citizens {
		if c.Activity.Type == ActivityRitual && c.Activity.Target == ritualID {
			out = append(out, c)
		}
	}
	return out
}

// affectedBy selects the citizens an effect reaches, by its target
// scope: the enrolled participants, everyone in the ritual's district,
// or anyone within ritual radius of a participant. Caller holds the
// lock.
func (s *Simulator) affectedBy(trig bus.RitualTrigger) []*Citizen {
	switch trig.EffectTarget {
	case "district":
		var out []*Citizen
		for _, c := range s.citizens {
			if c.Position.District == trig.District {
				out = append(out, c)
			}
		}
		return out

	case "all_nearby":
		parts := s.participants(trig.RitualID)
		seen := make(map[string]struct{}, len(parts))
		out := make([]*Citizen, 0, len(parts))
		for _, p := range parts {
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
		for _, c := range s.citizens {
			if _, ok := seen[c.ID]; ok || c.Position.District != trig.District {
				continue
			}
			for _, p := range parts {
				if c.Position.DistanceTo(p.Position) <= s.cfg.RitualRadius {
					out = append(out, c)
					break
				}
			}
		}
		return out

	default: // participants
		return s.participants(trig.RitualID)
	}
}

// applyEffect folds one ritual effect into a citizen. Caller holds the
// lock.
func (s *Simulator) applyEffect(c *Citizen, trig bus.RitualTrigger, now time.Time) []bus.Event {
	switch trig.EffectKind {
	case "energy_restore":
		c.Energy = clampEnergy(c.Energy + trig.Magnitude)

	case "mood_boost":
		// A boost lifts intensity and refreshes the mood's lifetime; the
		// emotional state itself stays whatever the citizen already feels.
		intensity := c.Mood.Intensity + trig.Magnitude
		if intensity > 10 {
			intensity = 10
		}
		c.Mood = Mood{
			State:     c.Mood.State,
			Intensity: intensity,
			Triggers:  []string{"ritual:" + trig.RitualName},
			Duration:  trig.EffectMins,
			SetAt:     now,
		}

	case "memory_creation":
		impact := trig.Magnitude
		if impact > 1 {
			impact = 1
		}
		rec := memory.NewRecord(memory.KindRitual,
			fmt.Sprintf("took part in %s", trig.RitualName),
			impact,
			map[string]string{"location": trig.District, "ritual": trig.RitualID},
			now, s.cfg)
		c.Garden.Add(rec, s.cfg)
		return []bus.Event{{
			Type:   bus.TypeMemoryUpdate,
			Source: "citizen_simulator",
			Payload: bus.MemoryUpdate{
				CitizenID: c.ID,
				Kind:      memory.KindRitual,
				Impact:    impact,
			},
		}}

	case "relationship_boost":
		for _, other := range s.participants(trig.RitualID) {
			if other.ID == c.ID {
				continue
			}
			strength := c.Relationships[other.ID] + trig.Magnitude
			if strength > 1 {
				strength = 1
			}
			c.Relationships[other.ID] = strength
		}
	}
	return nil
}

// onMoodShift spreads a district's collective mood to some of its
// citizens.
func (s *Simulator) onMoodShift(ev bus.Event) error {
	shift, ok := ev.Payload.(bus.MoodShift)
	if !ok {
		return fmt.Errorf("mood shift payload is %T", ev.Payload)
	}
	now := s.now()

	s.mu.Lock()
	for _, c := range s.citizens {
		if c.Position.District != shift.District {
			continue
		}
		if c.Mood.State == shift.EmotionalState {
			continue
		}
		if s.rng.Float64() >= s.cfg.MoodContagion {
			continue
		}
		intensity := shift.Intensity
		if intensity > 10 {
			intensity = 10
		}
		if intensity < 0 {
			intensity = 0
		}
		c.Mood = Mood{
			State:     shift.EmotionalState,
			Intensity: intensity,
			Triggers:  []string{"district_mood"},
			Duration:  30 + s.rng.Intn(61),
			SetAt:     now,
		}
	}
	s.mu.Unlock()
	return nil
}
