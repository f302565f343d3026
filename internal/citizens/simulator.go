// The per-citizen decision loop and its event-bus reactions.
package citizens

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/config"
	"github.com/talgya/living-city/internal/memory"
)

// Simulator owns all citizen state. Each citizen is mutated only under
// the simulator lock: by its own tick, or by an event-bus callback.
type Simulator struct {
	cfg     config.Tuning
	bus     *bus.Bus
	spawner *Spawner

	mu       sync.Mutex
	citizens map[string]*Citizen
	rng      *rand.Rand
	noise    opensimplex.Noise
	tick     uint64

	// Events produced under the lock are published after it is
	// released; a subscriber may call back into the simulator.
	pending []bus.Event

	now func() time.Time
}

// NewSimulator wires a simulator to the bus and registers its event
// reactions.
func NewSimulator(cfg config.Tuning, b *bus.Bus, spawner *Spawner, seed int64) *Simulator {
	s := &Simulator{
		cfg:      cfg,
		bus:      b,
		spawner:  spawner,
		citizens: make(map[string]*Citizen),
		rng:      rand.New(rand.NewSource(seed)),
		noise:    opensimplex.New(seed),
		now:      time.Now,
	}

	b.Subscribe("citizen-user-interaction", []string{bus.TypeUserAction}, bus.PriorityNormal, s.onUserAction)
	b.Subscribe("citizen-ritual-events", []string{bus.TypeRitualTrigger}, bus.PriorityNormal, s.onRitualEvent)
	b.Subscribe("citizen-mood-changes", []string{bus.TypeMoodShift}, bus.PriorityNormal, s.onMoodShift)

	return s
}

// SetClock replaces the time source (tests).
func (s *Simulator) SetClock(now func() time.Time) { s.now = now }

// Spawn creates a citizen in the given district and publishes a spawned
// event. Citizens are only ever created here.
func (s *Simulator) Spawn(district string, x, y, z float64) string {
	now := s.now()
	c := &Citizen{
		ID:          "citizen_" + uuid.NewString(),
		Personality: s.spawner.Personality(),
		Mood:        initialMood(now),
		Position:    Position{X: x, Y: y, Z: z, District: district},
		Activity: Activity{
			Type:              ActivityIdle,
			StartedAt:         now,
			EstimatedDuration: 5 * time.Minute,
		},
		Schedule:      DefaultSchedule(),
		Relationships: make(map[string]float64),
		Energy:        80,
		Garden:        memory.NewGarden(""),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c.Name = s.spawner.Name(c.Personality)
	c.Garden.CitizenID = c.ID

	s.mu.Lock()
	s.citizens[c.ID] = c
	s.mu.Unlock()

	s.bus.Publish(bus.Event{
		Type:   bus.TypeCitizenAction,
		Source: "citizen_simulator",
		Payload: bus.CitizenAction{
			Action:    bus.ActionSpawned,
			CitizenID: c.ID,
			District:  district,
			X:         x, Y: y, Z: z,
		},
	})
	return c.ID
}

// Restore registers citizens loaded from storage. A citizen without a
// garden gets a fresh one.
func (s *Simulator) Restore(list []Citizen) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range list {
		c := list[i]
		if c.Relationships == nil {
			c.Relationships = make(map[string]float64)
		}
		if c.Garden == nil {
			c.Garden = memory.NewGarden(c.ID)
		}
		s.citizens[c.ID] = &c
	}
}

// Remove deletes a citizen. Unknown ids are a no-op.
func (s *Simulator) Remove(id string) {
	s.mu.Lock()
	delete(s.citizens, id)
	s.mu.Unlock()
}

// Get returns a copy-free pointer to a citizen, or nil when unknown.
// Callers outside the package must treat it as read-only; mutation
// belongs to the tick and the bus callbacks.
func (s *Simulator) Get(id string) *Citizen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.citizens[id]
}

// InDistrict lists citizens currently in a district.
func (s *Simulator) InDistrict(district string) []*Citizen {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Citizen
	for _, c := range s.citizens {
		if c.Position.District == district {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the live citizen count.
func (s *Simulator) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.citizens)
}

// All returns the current citizens.
func (s *Simulator) All() []*Citizen {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Citizen, 0, len(s.citizens))
	for _, c := range s.citizens {
		out = append(out, c)
	}
	return out
}

// EvolvePersonalities runs the trait evolution pass over every
// citizen's memory garden. Called on the daily cadence.
func (s *Simulator) EvolvePersonalities() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.citizens {
		c.Personality.Traits = memory.EvolveTraits(c.Garden, c.Personality.Traits, now, s.cfg)
		c.UpdatedAt = now
	}
}

// maxTickWorkers bounds the per-tick worker pool.
const maxTickWorkers = 8

// TickAll advances every citizen by one tick. Citizens are mutually
// independent, so the pass runs on a bounded worker pool; events are
// published after the lock is released.
func (s *Simulator) TickAll() {
	now := s.now()

	s.mu.Lock()
	s.tick++
	list := make([]*Citizen, 0, len(s.citizens))
	for _, c := range s.citizens {
		list = append(list, c)
	}

	workers := maxTickWorkers
	if len(list) < workers {
		workers = len(list)
	}
	if workers > 0 {
		var wg sync.WaitGroup
		jobs := make(chan *Citizen)
		results := make([]([]bus.Event), workers)
		resultIdx := make(chan int, workers)
		for i := 0; i < workers; i++ {
			resultIdx <- i
		}
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				idx := <-resultIdx
				rng := rand.New(rand.NewSource(int64(s.tick)<<8 + int64(idx)))
				for c := range jobs {
					results[idx] = append(results[idx], s.tickOne(c, rng, now)...)
				}
			}()
		}
		for _, c := range list {
			jobs <- c
		}
		close(jobs)
		wg.Wait()
		for _, evs := range results {
			s.pending = append(s.pending, evs...)
		}
	}

	s.detectGatherings(list)

	out := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range out {
		s.bus.Publish(ev)
	}
}

// Tick advances one citizen (tests and targeted updates). Unknown ids
// are a no-op.
func (s *Simulator) Tick(id string) {
	now := s.now()
	s.mu.Lock()
	c, ok := s.citizens[id]
	var out []bus.Event
	if ok {
		out = s.tickOne(c, s.rng, now)
		out = append(out, s.pending...)
		s.pending = nil
	}
	s.mu.Unlock()
	for _, ev := range out {
		s.bus.Publish(ev)
	}
}

// tickOne runs the per-tick pipeline: mood refresh, next-action
// decision, energy accounting for the adopted activity, then activity
// execution. Caller holds the lock.
func (s *Simulator) tickOne(c *Citizen, rng *rand.Rand, now time.Time) []bus.Event {
	var events []bus.Event

	s.refreshMood(c, rng, now)
	events = append(events, s.decideNextAction(c, rng, now)...)
	s.updateEnergy(c)
	events = append(events, s.executeActivity(c, rng, now)...)

	c.UpdatedAt = now
	return events
}

// updateEnergy charges or restores energy for the current activity and
// clamps to [0,100].
func (s *Simulator) updateEnergy(c *Citizen) {
	switch c.Activity.Type {
	case ActivityResting:
		c.Energy += s.cfg.EnergyRest
	case ActivityMoving, ActivityExploring:
		c.Energy += s.cfg.EnergyMove
	case ActivityInteracting, ActivityRitual:
		c.Energy += s.cfg.EnergyInteract
	default:
		c.Energy += s.cfg.EnergyIdle
	}
	c.Energy = clampEnergy(c.Energy)
}

// refreshMood regenerates the mood once its declared duration has
// elapsed, weighted by personality traits and the hour of day.
func (s *Simulator) refreshMood(c *Citizen, rng *rand.Rand, now time.Time) {
	since := c.Mood.SetAt
	if c.LastInteraction.After(since) {
		since = c.LastInteraction
	}
	if now.Sub(since) <= time.Duration(c.Mood.Duration)*time.Minute {
		return
	}

	hour := now.Hour()
	state, intensity := MoodPeaceful, 5.0
	switch {
	case containsStr(c.Personality.Traits, "energetic") && hour >= 6 && hour <= 18:
		state, intensity = MoodEnergetic, 7
	case containsStr(c.Personality.Traits, "contemplative") && hour >= 20:
		state, intensity = MoodContemplative, 6
	case containsStr(c.Personality.Traits, "joyful"):
		state, intensity = MoodJoyful, 8
	}

	c.Mood = Mood{
		State:     state,
		Intensity: intensity,
		Triggers:  []string{"time_of_day", "personality"},
		Duration:  30 + rng.Intn(61), // 30-90 minutes
		SetAt:     now,
	}
}

// decideNextAction picks the citizen's next activity in strict priority
// order: schedule, exhaustion, mood, staleness. First match wins.
func (s *Simulator) decideNextAction(c *Citizen, rng *rand.Rand, now time.Time) []bus.Event {
	// Schedule first.
	hhmm := fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())
	for _, entry := range c.Schedule.DailyRoutine {
		if entry.Time == hhmm && rng.Float64() < 1-c.Schedule.Flexibility {
			return s.setActivity(c, entry.Activity, entry.Location,
				time.Duration(entry.Duration)*time.Minute, now, rng)
		}
	}

	// Exhaustion forces rest.
	if c.Energy < s.cfg.LowEnergy {
		return s.setActivity(c, ActivityResting, "", 0, now, rng)
	}

	// Mood branch.
	switch c.Mood.State {
	case MoodCurious:
		if rng.Float64() < s.cfg.ExploreChance {
			return s.setActivity(c, ActivityExploring, "", 0, now, rng)
		}
	case MoodEnergetic:
		if rng.Float64() < s.cfg.MoveChance {
			target := s.randomPoint(rng)
			return s.setActivity(c, ActivityMoving, target.Coords(), 0, now, rng)
		}
	case MoodContemplative:
		if rng.Float64() < s.cfg.IdleChance {
			return s.setActivity(c, ActivityIdle, "", 0, now, rng)
		}
	}

	// Stale activity falls back to idle.
	if now.Sub(c.Activity.StartedAt) > c.Activity.EstimatedDuration {
		return s.setActivity(c, ActivityIdle, "", 0, now, rng)
	}
	return nil
}

// randomPoint picks an in-district destination.
func (s *Simulator) randomPoint(rng *rand.Rand) Position {
	return Position{
		X: (rng.Float64() - 0.5) * 20,
		Z: (rng.Float64() - 0.5) * 20,
	}
}

// setActivity switches the citizen's activity and queues the
// activity_changed event. Re-setting the identical activity/target is a
// no-op so a forced state does not spam the bus every tick.
func (s *Simulator) setActivity(c *Citizen, activityType, target string, duration time.Duration, now time.Time, rng *rand.Rand) []bus.Event {
	if c.Activity.Type == activityType && c.Activity.Target == target {
		return nil
	}
	if duration <= 0 {
		// 5-15 minutes by default.
		duration = time.Duration(5+rng.Intn(11)) * time.Minute
	}
	c.Activity = Activity{
		Type:              activityType,
		Target:            target,
		StartedAt:         now,
		EstimatedDuration: duration,
	}
	return []bus.Event{{
		Type:   bus.TypeCitizenAction,
		Source: "citizen_simulator",
		Payload: bus.CitizenAction{
			Action:    bus.ActionActivityChanged,
			CitizenID: c.ID,
			District:  c.Position.District,
			Activity:  activityType,
			Target:    target,
			X:         c.Position.X, Y: c.Position.Y, Z: c.Position.Z,
		},
	}}
}

// executeActivity advances the current activity one step.
func (s *Simulator) executeActivity(c *Citizen, rng *rand.Rand, now time.Time) []bus.Event {
	switch c.Activity.Type {
	case ActivityMoving:
		return s.stepToward(c, rng, now)
	case ActivityExploring:
		return s.wander(c, rng, now)
	case ActivityInteracting:
		if rng.Float64() < s.cfg.InteractionDone {
			events := s.recordInteraction(c, rng, now)
			return append(events, s.setActivity(c, ActivityIdle, "", 0, now, rng)...)
		}
	}
	return nil
}

// stepToward integrates a straight-line step toward the target and
// snaps to idle on arrival.
func (s *Simulator) stepToward(c *Citizen, rng *rand.Rand, now time.Time) []bus.Event {
	x, y, z, ok := ParseCoords(c.Activity.Target)
	if !ok {
		return s.setActivity(c, ActivityIdle, "", 0, now, rng)
	}
	dx, dy, dz := x-c.Position.X, y-c.Position.Y, z-c.Position.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist < s.cfg.ArriveRadius {
		return s.setActivity(c, ActivityIdle, "", 0, now, rng)
	}
	step := s.cfg.MoveSpeed
	c.Position.X += dx / dist * step
	c.Position.Y += dy / dist * step
	c.Position.Z += dz / dist * step
	return nil
}

// wander takes a small noise-steered step; smooth noise gives organic
// paths instead of jittering in place.
func (s *Simulator) wander(c *Citizen, rng *rand.Rand, now time.Time) []bus.Event {
	heading := s.noise.Eval3(c.Position.X*0.05, c.Position.Z*0.05, float64(s.tick)*0.01) * math.Pi * 2
	step := s.cfg.MoveSpeed
	c.Position.X += math.Cos(heading) * step
	c.Position.Z += math.Sin(heading) * step

	if rng.Float64() < s.cfg.ExploreSettle {
		return s.setActivity(c, ActivityIdle, "", 0, now, rng)
	}
	return nil
}

// recordInteraction files a memory of a finished interaction and
// nudges the relationship with the partner.
func (s *Simulator) recordInteraction(c *Citizen, rng *rand.Rand, now time.Time) []bus.Event {
	partner := c.Activity.Target
	impact := 0.1 + rng.Float64()*0.5
	rec := memory.NewRecord(memory.KindInteraction,
		fmt.Sprintf("spoke with %s in %s", partner, c.Position.District),
		impact,
		map[string]string{"location": c.Position.District, "partner": partner},
		now, s.cfg)
	c.Garden.Add(rec, s.cfg)

	if partner != "" {
		strength := c.Relationships[partner] + impact*0.1
		if strength > 1 {
			strength = 1
		}
		c.Relationships[partner] = strength
	}

	return []bus.Event{{
		Type:   bus.TypeMemoryUpdate,
		Source: "citizen_simulator",
		Payload: bus.MemoryUpdate{
			CitizenID: c.ID,
			Kind:      memory.KindInteraction,
			Impact:    impact,
		},
	}}
}

// detectGatherings finds clusters of idle citizens and reports one
// gathering per district per tick. Caller holds the lock.
func (s *Simulator) detectGatherings(list []*Citizen) {
	idleByDistrict := make(map[string][]*Citizen)
	for _, c := range list {
		if c.Activity.Type == ActivityIdle {
			idleByDistrict[c.Position.District] = append(idleByDistrict[c.Position.District], c)
		}
	}

	for district, idle := range idleByDistrict {
		if len(idle) < s.cfg.GatheringSize {
			continue
		}
		best := 0
		var at *Citizen
		for _, a := range idle {
			count := 0
			for _, b := range idle {
				if a.Position.DistanceTo(b.Position) <= s.cfg.GatheringRadius {
					count++
				}
			}
			if count > best {
				best, at = count, a
			}
		}
		if best >= s.cfg.GatheringSize {
			s.pending = append(s.pending, bus.Event{
				Type:   bus.TypeCitizenAction,
				Source: "citizen_simulator",
				Payload: bus.CitizenAction{
					Action:           bus.ActionGatheringDetected,
					District:         district,
					ParticipantCount: best,
					X:                at.Position.X, Y: at.Position.Y, Z: at.Position.Z,
				},
			})
		}
	}
}
