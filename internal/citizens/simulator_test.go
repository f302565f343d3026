package citizens

import (
	"testing"
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/config"
)

var simNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

const testDistrict = "innovation_district"

func testSim(cfg config.Tuning) (*Simulator, *bus.Bus) {
	b := bus.New(100)
	sim := NewSimulator(cfg, b, NewSpawner(1, nil, nil), 42)
	sim.SetClock(func() time.Time { return simNow })
	return sim, b
}

// calm pins a citizen into a state no decision branch will leave on its
// own: no schedule, a long-lived neutral mood, a fresh idle activity.
func calm(c *Citizen) {
	c.Schedule.DailyRoutine = nil
	c.Mood = Mood{State: MoodPeaceful, Intensity: 5, Duration: 600, SetAt: simNow}
	c.Activity = Activity{Type: ActivityIdle, StartedAt: simNow, EstimatedDuration: time.Hour}
	c.Energy = 80
}

func capture(b *bus.Bus, types ...string) *[]bus.Event {
	var got []bus.Event
	b.Subscribe("test-probe", types, bus.PriorityLow, func(ev bus.Event) error {
		got = append(got, ev)
		return nil
	})
	return &got
}

func TestLowEnergyForcesRest(t *testing.T) {
	sim, _ := testSim(config.Default())
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	calm(c)
	c.Energy = 15

	sim.Tick(id)

	if c.Activity.Type != ActivityResting {
		t.Fatalf("activity = %q, want resting", c.Activity.Type)
	}
	if c.Energy != 17 {
		t.Fatalf("energy = %v, want 17", c.Energy)
	}
}

func TestEnergyClampedToRange(t *testing.T) {
	sim, _ := testSim(config.Default())
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)

	c.Activity.Type = ActivityResting
	c.Energy = 99.5
	sim.updateEnergy(c)
	if c.Energy != 100 {
		t.Fatalf("energy = %v, want 100", c.Energy)
	}

	c.Activity.Type = ActivityIdle
	c.Energy = 0.05
	sim.updateEnergy(c)
	if c.Energy != 0 {
		t.Fatalf("energy = %v, want 0", c.Energy)
	}
}

func TestMoodRegeneratesWithinBounds(t *testing.T) {
	sim, _ := testSim(config.Default())
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	calm(c)
	c.Mood = Mood{State: MoodJoyful, Intensity: 8, Duration: 30, SetAt: simNow.Add(-2 * time.Hour)}

	sim.Tick(id)

	if !c.Mood.SetAt.Equal(simNow) {
		t.Fatalf("mood not regenerated: set at %v", c.Mood.SetAt)
	}
	if c.Mood.Duration < 30 || c.Mood.Duration > 90 {
		t.Fatalf("mood duration = %d, want 30-90", c.Mood.Duration)
	}
	if c.Mood.Intensity <= 0 || c.Mood.Intensity > 10 {
		t.Fatalf("mood intensity = %v", c.Mood.Intensity)
	}
}

func TestScheduleOverridesMood(t *testing.T) {
	sim, _ := testSim(config.Default())
	sim.SetClock(func() time.Time {
		return time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	})
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	c.Schedule.Flexibility = 0
	c.Mood = Mood{State: MoodEnergetic, Intensity: 9, Duration: 600, SetAt: simNow}
	c.Energy = 80

	sim.Tick(id)

	if c.Activity.Type != ActivityResting {
		t.Fatalf("activity = %q, want resting from 22:00 slot", c.Activity.Type)
	}
	if c.Activity.Target != "home" {
		t.Fatalf("target = %q, want home", c.Activity.Target)
	}
}

func TestActivityChangePublishesEvent(t *testing.T) {
	sim, b := testSim(config.Default())
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	calm(c)
	c.Energy = 15

	got := capture(b, bus.TypeCitizenAction)
	sim.Tick(id)

	if len(*got) != 1 {
		t.Fatalf("events = %d, want 1", len(*got))
	}
	act := (*got)[0].Payload.(bus.CitizenAction)
	if act.Action != bus.ActionActivityChanged || act.Activity != ActivityResting {
		t.Fatalf("event = %+v", act)
	}
	if act.CitizenID != id || act.District != testDistrict {
		t.Fatalf("event attribution = %+v", act)
	}
}

func TestRepeatedDecisionDoesNotRepublish(t *testing.T) {
	sim, b := testSim(config.Default())
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	calm(c)
	c.Energy = 10

	got := capture(b, bus.TypeCitizenAction)
	sim.Tick(id)
	sim.Tick(id)

	if len(*got) != 1 {
		t.Fatalf("events = %d, want 1 (resting re-chosen silently)", len(*got))
	}
}

func TestGatheringDetected(t *testing.T) {
	sim, b := testSim(config.Default())
	positions := [][3]float64{{0, 0, 0}, {1, 0, 1}, {2, 0, 0}}
	for _, p := range positions {
		id := sim.Spawn(testDistrict, p[0], p[1], p[2])
		calm(sim.Get(id))
	}

	got := capture(b, bus.TypeCitizenAction)
	sim.TickAll()

	var gathering *bus.CitizenAction
	for _, ev := range *got {
		act := ev.Payload.(bus.CitizenAction)
		if act.Action == bus.ActionGatheringDetected {
			a := act
			gathering = &a
		}
	}
	if gathering == nil {
		t.Fatal("no gathering_detected event")
	}
	if gathering.District != testDistrict || gathering.ParticipantCount != 3 {
		t.Fatalf("gathering = %+v", gathering)
	}
}

func TestNoGatheringWhenSpreadOut(t *testing.T) {
	cfg := config.Default()
	sim, b := testSim(cfg)
	positions := [][3]float64{{0, 0, 0}, {40, 0, 0}, {80, 0, 0}}
	for _, p := range positions {
		id := sim.Spawn(testDistrict, p[0], p[1], p[2])
		calm(sim.Get(id))
	}

	got := capture(b, bus.TypeCitizenAction)
	sim.TickAll()

	for _, ev := range *got {
		if ev.Payload.(bus.CitizenAction).Action == bus.ActionGatheringDetected {
			t.Fatalf("unexpected gathering: %+v", ev.Payload)
		}
	}
}

func TestUserPresenceDrawsResponse(t *testing.T) {
	cfg := config.Default()
	cfg.UserRespond = 1
	sim, b := testSim(cfg)
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	calm(c)

	b.Publish(bus.Event{
		Type:   bus.TypeUserAction,
		Source: "test",
		Payload: bus.UserAction{
			Action: "entered", UserID: "user_1", District: testDistrict,
			X: 3, Y: 0, Z: 0,
		},
	})

	if c.Activity.Type != ActivityInteracting || c.Activity.Target != "user_1" {
		t.Fatalf("activity = %+v", c.Activity)
	}
	if !c.LastInteraction.Equal(simNow) {
		t.Fatalf("last interaction = %v", c.LastInteraction)
	}
}

func TestDistantUserIgnored(t *testing.T) {
	cfg := config.Default()
	cfg.UserRespond = 1
	sim, b := testSim(cfg)
	id := sim.Spawn(testDistrict, 0, 0, 0)
	c := sim.Get(id)
	calm(c)

	b.Publish(bus.Event{
		Type:   bus.TypeUserAction,
		Source: "test",
		Payload: bus.UserAction{
			Action: "entered", UserID: "user_1", District: testDistrict,
			X: 50, Y: 0, Z: 0,
		},
	})

	if c.Activity.Type != ActivityIdle {
		t.Fatalf("activity = %q, want idle", c.Activity.Type)
	}
}

func TestRitualLifecycleReactions(t *testing.T) {
	cfg := config.Default()
	cfg.RitualJoin = 1
	sim, b := testSim(cfg)
	a := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	c := sim.Get(sim.Spawn(testDistrict, 1, 0, 0))
	calm(a)
	calm(c)

	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualStarted, RitualID: "r1", RitualName: "Dawn Greeting",
			District: testDistrict, Duration: 30,
		},
	})
	for _, cz := range []*Citizen{a, c} {
		if cz.Activity.Type != ActivityRitual || cz.Activity.Target != "r1" {
			t.Fatalf("after start: %+v", cz.Activity)
		}
	}

	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualEffectApplied, RitualID: "r1", RitualName: "Dawn Greeting",
			District: testDistrict, EffectKind: "energy_restore", Magnitude: 10,
		},
	})
	if a.Energy != 90 || c.Energy != 90 {
		t.Fatalf("energies = %v, %v, want 90", a.Energy, c.Energy)
	}

	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualEffectApplied, RitualID: "r1", RitualName: "Dawn Greeting",
			District: testDistrict, EffectKind: "memory_creation", Magnitude: 0.8,
		},
	})
	if len(a.Garden.Procedural) != 1 {
		t.Fatalf("ritual memory not recorded: %+v", a.Garden.Procedural)
	}

	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualCompleted, RitualID: "r1", District: testDistrict,
		},
	})
	for _, cz := range []*Citizen{a, c} {
		if cz.Activity.Type != ActivityIdle {
			t.Fatalf("after completion: %+v", cz.Activity)
		}
	}
}

func TestMoodBoostKeepsEmotionalState(t *testing.T) {
	cfg := config.Default()
	cfg.RitualJoin = 1
	sim, b := testSim(cfg)
	a := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	calm(a)

	b.Publish(bus.Event{
		Type:    bus.TypeRitualTrigger,
		Source:  "test",
		Payload: bus.RitualTrigger{Action: bus.RitualStarted, RitualID: "r1", District: testDistrict, Duration: 15},
	})
	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualEffectApplied, RitualID: "r1", RitualName: "Dawn Greeting",
			District: testDistrict, EffectKind: "mood_boost", EffectTarget: "participants",
			Magnitude: 10, EffectMins: 20,
		},
	})

	if a.Mood.State != MoodPeaceful {
		t.Fatalf("mood state = %q, want the pre-boost %q", a.Mood.State, MoodPeaceful)
	}
	if a.Mood.Intensity != 10 {
		t.Fatalf("intensity = %v, want capped at 10", a.Mood.Intensity)
	}
	if a.Mood.Duration != 20 {
		t.Fatalf("duration = %v, want the effect's 20 minutes", a.Mood.Duration)
	}
	if len(a.Mood.Triggers) != 1 || a.Mood.Triggers[0] != "ritual:Dawn Greeting" {
		t.Fatalf("triggers = %v", a.Mood.Triggers)
	}
}

func TestDistrictScopedEffectReachesBystanders(t *testing.T) {
	sim, b := testSim(config.Default())
	part := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	bystander := sim.Get(sim.Spawn(testDistrict, 40, 0, 0))
	elsewhere := sim.Get(sim.Spawn("wellness_way", 0, 0, 0))
	calm(part)
	calm(bystander)
	calm(elsewhere)
	part.Activity = Activity{Type: ActivityRitual, Target: "r1", StartedAt: simNow, EstimatedDuration: time.Hour}

	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualEffectApplied, RitualID: "r1", District: testDistrict,
			EffectKind: "energy_restore", EffectTarget: "district", Magnitude: 10,
		},
	})

	if part.Energy != 90 || bystander.Energy != 90 {
		t.Fatalf("district energies = %v, %v, want 90", part.Energy, bystander.Energy)
	}
	if elsewhere.Energy != 80 {
		t.Fatalf("other-district energy = %v, want untouched 80", elsewhere.Energy)
	}
}

func TestNearbyScopedEffectRespectsRadius(t *testing.T) {
	sim, b := testSim(config.Default())
	part := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	near := sim.Get(sim.Spawn(testDistrict, 5, 0, 0))
	far := sim.Get(sim.Spawn(testDistrict, 50, 0, 0))
	calm(part)
	calm(near)
	calm(far)
	part.Activity = Activity{Type: ActivityRitual, Target: "r1", StartedAt: simNow, EstimatedDuration: time.Hour}

	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualEffectApplied, RitualID: "r1", District: testDistrict,
			EffectKind: "energy_restore", EffectTarget: "all_nearby", Magnitude: 10,
		},
	})

	if part.Energy != 90 || near.Energy != 90 {
		t.Fatalf("nearby energies = %v, %v, want 90", part.Energy, near.Energy)
	}
	if far.Energy != 80 {
		t.Fatalf("out-of-radius energy = %v, want untouched 80", far.Energy)
	}
}

func TestRelationshipBoostLinksParticipants(t *testing.T) {
	cfg := config.Default()
	cfg.RitualJoin = 1
	sim, b := testSim(cfg)
	a := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	c := sim.Get(sim.Spawn(testDistrict, 1, 0, 0))
	calm(a)
	calm(c)

	b.Publish(bus.Event{
		Type:    bus.TypeRitualTrigger,
		Source:  "test",
		Payload: bus.RitualTrigger{Action: bus.RitualStarted, RitualID: "r1", District: testDistrict, Duration: 30},
	})
	b.Publish(bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "test",
		Payload: bus.RitualTrigger{
			Action: bus.RitualEffectApplied, RitualID: "r1",
			EffectKind: "relationship_boost", Magnitude: 0.15,
		},
	})

	if a.Relationships[c.ID] != 0.15 {
		t.Fatalf("relationship a→c = %v", a.Relationships[c.ID])
	}
	if c.Relationships[a.ID] != 0.15 {
		t.Fatalf("relationship c→a = %v", c.Relationships[a.ID])
	}
}

func TestMoodContagion(t *testing.T) {
	cfg := config.Default()
	cfg.MoodContagion = 1
	sim, b := testSim(cfg)
	c := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	calm(c)

	b.Publish(bus.Event{
		Type:   bus.TypeMoodShift,
		Source: "test",
		Payload: bus.MoodShift{
			District: testDistrict, EmotionalState: MoodJoyful, Intensity: 7,
		},
	})

	if c.Mood.State != MoodJoyful || c.Mood.Intensity != 7 {
		t.Fatalf("mood = %+v", c.Mood)
	}
	if c.Mood.Duration < 30 || c.Mood.Duration > 90 {
		t.Fatalf("mood duration = %d", c.Mood.Duration)
	}
}

func TestContagionSkipsOtherDistricts(t *testing.T) {
	cfg := config.Default()
	cfg.MoodContagion = 1
	sim, b := testSim(cfg)
	c := sim.Get(sim.Spawn("wellness_way", 0, 0, 0))
	calm(c)

	b.Publish(bus.Event{
		Type:    bus.TypeMoodShift,
		Source:  "test",
		Payload: bus.MoodShift{District: testDistrict, EmotionalState: MoodJoyful, Intensity: 7},
	})

	if c.Mood.State != MoodPeaceful {
		t.Fatalf("mood leaked across districts: %+v", c.Mood)
	}
}

func TestMovingArrivesAndIdles(t *testing.T) {
	cfg := config.Default()
	sim, _ := testSim(cfg)
	c := sim.Get(sim.Spawn(testDistrict, 0, 0, 0))
	calm(c)
	c.Activity = Activity{
		Type: ActivityMoving, Target: "5,0,0",
		StartedAt: simNow, EstimatedDuration: time.Hour,
	}

	start := c.Position
	sim.Tick(c.ID)
	if c.Position.X <= start.X {
		t.Fatalf("no progress toward target: %v", c.Position)
	}

	c.Position = Position{X: 4.8, District: testDistrict}
	sim.Tick(c.ID)
	if c.Activity.Type != ActivityIdle {
		t.Fatalf("did not settle on arrival: %+v", c.Activity)
	}
}

func TestSpawnPublishesAndRegisters(t *testing.T) {
	sim, b := testSim(config.Default())
	got := capture(b, bus.TypeCitizenAction)

	id := sim.Spawn(testDistrict, 1, 0, 2)

	if sim.Count() != 1 {
		t.Fatalf("count = %d", sim.Count())
	}
	c := sim.Get(id)
	if c == nil || c.Name == "" || len(c.Personality.Traits) != 3 {
		t.Fatalf("citizen malformed: %+v", c)
	}
	if c.Garden == nil || c.Garden.CitizenID != id {
		t.Fatal("memory garden not attached")
	}
	if len(*got) != 1 || (*got)[0].Payload.(bus.CitizenAction).Action != bus.ActionSpawned {
		t.Fatalf("spawn events = %+v", *got)
	}
	if len(sim.InDistrict(testDistrict)) != 1 {
		t.Fatal("district index missed the citizen")
	}
}
