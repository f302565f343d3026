package city

import (
	"sync"
	"testing"
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/citizens"
	"github.com/talgya/living-city/internal/config"
	"github.com/talgya/living-city/internal/memory"
	"github.com/talgya/living-city/internal/rituals"
)

var cityNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	citizens  int
	gardens   int
	snapshots []MoodSnapshot
	events    int
}

func (f *fakeStore) SaveCitizen(citizens.Citizen) error { f.mu.Lock(); defer f.mu.Unlock(); f.citizens++; return nil }
func (f *fakeStore) SaveGarden(memory.Garden) error     { f.mu.Lock(); defer f.mu.Unlock(); f.gardens++; return nil }
func (f *fakeStore) SaveEvent(bus.Event) error          { f.mu.Lock(); defer f.mu.Unlock(); f.events++; return nil }
func (f *fakeStore) SaveMoodSnapshot(s MoodSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}

func testCity(cfg config.Tuning, store Store) (*Orchestrator, *citizens.Simulator, *bus.Bus) {
	b := bus.New(cfg.HistorySize)
	sim := citizens.NewSimulator(cfg, b, citizens.NewSpawner(1, nil, nil), 42)
	sim.SetClock(func() time.Time { return cityNow })
	rit := rituals.NewOrchestrator(cfg, b, nil)
	rit.SetClock(func() time.Time { return cityNow })
	o := New(cfg, b, sim, rit, store)
	o.SetClock(func() time.Time { return cityNow })
	return o, sim, b
}

func TestCollectiveMoodSaturates(t *testing.T) {
	quiet := collectiveMood(0, 0, 0)
	if quiet.Valence != 0.5 || quiet.Arousal != 0.3 || quiet.Dominance != 0.5 {
		t.Fatalf("baseline mood = %+v", quiet)
	}

	busy := collectiveMood(10, 10, 2)
	if busy.Valence != 1 || busy.Arousal != 1 {
		t.Fatalf("crowded mood = %+v, want saturated valence/arousal", busy)
	}
	if busy.Dominance != 0.7 {
		t.Fatalf("dominance = %v, want 0.7 above 5 users", busy.Dominance)
	}
}

func TestEmotionalLabelQuadrants(t *testing.T) {
	cases := []struct {
		valence, arousal float64
		want             string
	}{
		{0.9, 0.7, citizens.MoodEnergetic},
		{0.7, 0.3, citizens.MoodJoyful},
		{0.3, 0.7, citizens.MoodAnxious},
		{0.3, 0.2, citizens.MoodMelancholic},
		{0.5, 0.3, citizens.MoodPeaceful},
		{0.5, 0.5, citizens.MoodContemplative},
	}
	for _, c := range cases {
		state, intensity := emotionalLabel(bus.MoodVector{Valence: c.valence, Arousal: c.arousal})
		if state != c.want {
			t.Errorf("label(%v, %v) = %q, want %q", c.valence, c.arousal, state, c.want)
		}
		if intensity < 0 || intensity > 10 {
			t.Errorf("intensity(%v, %v) = %v", c.valence, c.arousal, intensity)
		}
	}
}

func TestTimeOfDayBuckets(t *testing.T) {
	cases := map[int]string{0: "night", 5: "night", 6: "morning", 11: "morning",
		12: "afternoon", 17: "afternoon", 18: "evening", 21: "evening", 22: "night"}
	for hour, want := range cases {
		if got := timeOfDay(hour); got != want {
			t.Errorf("timeOfDay(%d) = %q, want %q", hour, got, want)
		}
	}
}

func TestSeasonBuckets(t *testing.T) {
	cases := map[time.Month]string{
		time.January: "winter", time.March: "spring", time.July: "summer",
		time.October: "fall", time.December: "winter",
	}
	for month, want := range cases {
		at := time.Date(2026, month, 10, 0, 0, 0, 0, time.UTC)
		if got := season(at); got != want {
			t.Errorf("season(%v) = %q, want %q", month, got, want)
		}
	}
}

func TestAtmosphereAdjustments(t *testing.T) {
	night := atmosphereFor("innovation_district", "night", bus.MoodVector{Valence: 0.5, Arousal: 0.2})
	if night.Lighting != "neon" || night.SoundTheme != "electronic_night" {
		t.Fatalf("night atmosphere = %+v", night)
	}

	gloomy := atmosphereFor("wellness_way", "afternoon", bus.MoodVector{Valence: 0.2})
	if gloomy.SoundTheme != "ambient_calm" {
		t.Fatalf("low-valence sound = %q", gloomy.SoundTheme)
	}

	joyful := atmosphereFor("neon_boulevard", "afternoon", bus.MoodVector{Valence: 0.9, Arousal: 0.7})
	if !containsStr(joyful.ParticleEffects, "joy_sparkles") || !containsStr(joyful.ParticleEffects, "neon_flashes") {
		t.Fatalf("particles = %v", joyful.ParticleEffects)
	}

	unknown := atmosphereFor("uncharted", "morning", bus.MoodVector{})
	if unknown.SoundTheme != "ambient" || unknown.Lighting != "bright" {
		t.Fatalf("unknown district atmosphere = %+v", unknown)
	}
}

func TestPresenceTracking(t *testing.T) {
	o, _, b := testCity(config.Default(), nil)

	b.Publish(bus.Event{Type: bus.TypeUserAction, Source: "test",
		Payload: bus.UserAction{Action: bus.UserEntered, UserID: "u1", District: "wellness_way"}})
	b.Publish(bus.Event{Type: bus.TypeUserAction, Source: "test",
		Payload: bus.UserAction{Action: bus.UserEntered, UserID: "u2", District: "wellness_way"}})
	if o.UsersIn("wellness_way") != 2 {
		t.Fatalf("users = %d", o.UsersIn("wellness_way"))
	}

	// Moving relocates, never duplicates.
	b.Publish(bus.Event{Type: bus.TypeUserAction, Source: "test",
		Payload: bus.UserAction{Action: bus.UserMoved, UserID: "u1", District: "neon_boulevard"}})
	if o.UsersIn("wellness_way") != 1 || o.UsersIn("neon_boulevard") != 1 {
		t.Fatalf("after move: wellness=%d neon=%d", o.UsersIn("wellness_way"), o.UsersIn("neon_boulevard"))
	}

	b.Publish(bus.Event{Type: bus.TypeUserAction, Source: "test",
		Payload: bus.UserAction{Action: bus.UserLeft, UserID: "u1", District: "neon_boulevard"}})
	if o.UsersIn("neon_boulevard") != 0 {
		t.Fatal("user not removed on leave")
	}
}

func TestMoodTickPublishesShiftsAndSnapshots(t *testing.T) {
	cfg := config.Default()
	cfg.StateEvery = 1
	cfg.MoodEvery = 1
	store := &fakeStore{}
	o, sim, b := testCity(cfg, store)
	sim.Spawn("innovation_district", 0, 0, 0)

	var shifts []bus.MoodShift
	var states []bus.CityState
	b.Subscribe("test-probe", []string{bus.TypeMoodShift, bus.TypeCityState}, bus.PriorityLow,
		func(ev bus.Event) error {
			switch p := ev.Payload.(type) {
			case bus.MoodShift:
				shifts = append(shifts, p)
			case bus.CityState:
				states = append(states, p)
			}
			return nil
		})

	o.step()

	if len(shifts) != len(cfg.Districts) {
		t.Fatalf("mood shifts = %d, want %d", len(shifts), len(cfg.Districts))
	}
	if len(states) != 1 || states[0].Citizens != 1 {
		t.Fatalf("city states = %+v", states)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.snapshots) != len(cfg.Districts) {
		t.Fatalf("snapshots = %d", len(store.snapshots))
	}
	if store.snapshots[0].Season != "spring" || store.snapshots[0].TimeOfDay != "morning" {
		t.Fatalf("snapshot = %+v", store.snapshots[0])
	}
	if store.events == 0 {
		t.Fatal("wildcard event log recorded nothing")
	}
}

func TestStopFlushesExactlyOnce(t *testing.T) {
	store := &fakeStore{}
	o, sim, _ := testCity(config.Default(), store)
	sim.Spawn("innovation_district", 0, 0, 0)
	sim.Spawn("wellness_way", 0, 0, 0)

	o.Start()
	if !o.Status().IsRunning {
		t.Fatal("not running after Start")
	}

	o.Stop()
	o.Stop() // second stop is a no-op

	store.mu.Lock()
	citizensSaved, gardensSaved := store.citizens, store.gardens
	store.mu.Unlock()
	if citizensSaved != 2 || gardensSaved != 2 {
		t.Fatalf("flushed %d citizens / %d gardens, want 2/2", citizensSaved, gardensSaved)
	}

	st := o.Status()
	if st.IsRunning {
		t.Fatal("still running after Stop")
	}
	if st.Citizens != 2 {
		t.Fatalf("status citizens = %d", st.Citizens)
	}
}

func TestStartSeedsRitualTemplates(t *testing.T) {
	cfg := config.Default()
	o, _, _ := testCity(cfg, nil)

	o.Start()
	defer o.Stop()

	// 3 base templates per district plus the two district specials.
	want := 3*len(cfg.Districts) + 2
	if got := len(o.rituals.All()); got != want {
		t.Fatalf("seeded rituals = %d, want %d", got, want)
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
