package rituals

import (
	"sync"
	"testing"
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/config"
)

var ritNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func testOrch(cfg config.Tuning) (*Orchestrator, *bus.Bus) {
	b := bus.New(100)
	o := NewOrchestrator(cfg, b, nil)
	o.SetClock(func() time.Time { return ritNow })
	return o, b
}

// recorder collects ritual events across goroutines; completion timers
// publish from their own goroutine.
type recorder struct {
	mu     sync.Mutex
	events []bus.RitualTrigger
}

func (r *recorder) attach(b *bus.Bus) {
	b.Subscribe("test-recorder", []string{bus.TypeRitualTrigger}, bus.PriorityLow, func(ev bus.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev.Payload.(bus.RitualTrigger))
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func findRitual(o *Orchestrator, district, name, status string) *Ritual {
	for _, r := range o.All() {
		if r.District == district && r.Name == name && r.Status == status {
			q := r
			return &q
		}
	}
	return nil
}

func TestSeedTemplatesIdempotent(t *testing.T) {
	o, _ := testOrch(config.Default())
	districts := []string{"innovation_district", "wellness_way"}

	o.SeedTemplates(districts)
	first := len(o.All())
	if first != 8 {
		t.Fatalf("seeded %d rituals, want 8 (3 base + 1 special per district)", first)
	}

	o.SeedTemplates(districts)
	if len(o.All()) != first {
		t.Fatalf("reseeding changed count: %d -> %d", first, len(o.All()))
	}
}

func TestTimeTriggerFiresOnExactMinute(t *testing.T) {
	o, _ := testOrch(config.Default())
	o.SeedTemplates([]string{"neon_boulevard"})

	o.SetClock(func() time.Time {
		return time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	})
	o.CheckScheduled()
	if findRitual(o, "neon_boulevard", "Dawn Greeting", StatusActive) == nil {
		t.Fatal("Dawn Greeting not active at 06:00")
	}
	if findRitual(o, "neon_boulevard", "Evening Reflection", StatusScheduled) == nil {
		t.Fatal("Evening Reflection should stay scheduled")
	}

	o.SetClock(func() time.Time {
		return time.Date(2026, 3, 1, 6, 1, 0, 0, time.UTC)
	})
	o.CheckScheduled()
	if n := o.ActiveCount(); n != 1 {
		t.Fatalf("active = %d after off-minute scan, want 1", n)
	}
}

func TestMoodShiftActivatesSynchronously(t *testing.T) {
	o, b := testOrch(config.Default())
	o.SeedTemplates([]string{"innovation_district"})
	rec := &recorder{}
	rec.attach(b)

	b.Publish(bus.Event{
		Type:   bus.TypeMoodShift,
		Source: "test",
		Payload: bus.MoodShift{
			District: "innovation_district", EmotionalState: "energetic", Intensity: 8,
		},
	})

	// The started event is delivered before Publish returns.
	if rec.count(bus.RitualStarted) != 1 {
		t.Fatalf("started events = %d, want 1", rec.count(bus.RitualStarted))
	}
	if findRitual(o, "innovation_district", "Idea Storm", StatusActive) == nil {
		t.Fatal("Idea Storm not active")
	}
}

func TestMoodBelowThresholdIgnored(t *testing.T) {
	o, b := testOrch(config.Default())
	o.SeedTemplates([]string{"innovation_district"})

	b.Publish(bus.Event{
		Type:   bus.TypeMoodShift,
		Source: "test",
		Payload: bus.MoodShift{
			District: "innovation_district", EmotionalState: "energetic", Intensity: 6.5,
		},
	})

	if o.ActiveCount() != 0 {
		t.Fatal("ritual fired below intensity threshold")
	}
}

func TestGatheringTriggersParticipantRitual(t *testing.T) {
	o, b := testOrch(config.Default())
	o.SeedTemplates([]string{"makers_sanctuary"})

	b.Publish(bus.Event{
		Type:   bus.TypeCitizenAction,
		Source: "test",
		Payload: bus.CitizenAction{
			Action: bus.ActionGatheringDetected, District: "makers_sanctuary", ParticipantCount: 3,
		},
	})

	if findRitual(o, "makers_sanctuary", "Spontaneous Gathering", StatusActive) == nil {
		t.Fatal("Spontaneous Gathering not active after gathering")
	}
}

func TestSmallGatheringIgnored(t *testing.T) {
	o, b := testOrch(config.Default())
	o.SeedTemplates([]string{"makers_sanctuary"})

	b.Publish(bus.Event{
		Type:   bus.TypeCitizenAction,
		Source: "test",
		Payload: bus.CitizenAction{
			Action: bus.ActionGatheringDetected, District: "makers_sanctuary", ParticipantCount: 2,
		},
	})

	if o.ActiveCount() != 0 {
		t.Fatal("participant ritual fired below minimum")
	}
}

func TestCompletionAppliesEffectsExactlyOnce(t *testing.T) {
	cfg := config.Default()
	cfg.MinuteUnit = time.Millisecond
	o, b := testOrch(cfg)
	o.SeedTemplates([]string{"wellness_way"})
	rec := &recorder{}
	rec.attach(b)

	r := findRitual(o, "wellness_way", "Dawn Greeting", StatusScheduled)
	if err := o.TriggerManually(r.ID); err != nil {
		t.Fatalf("manual trigger: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec.count(bus.RitualCompleted) > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	if got := rec.count(bus.RitualCompleted); got != 1 {
		t.Fatalf("completed events = %d, want 1", got)
	}
	if got := rec.count(bus.RitualEffectApplied); got != 2 {
		t.Fatalf("effect_applied events = %d, want 2 (energy restore + mood boost)", got)
	}
	done, _ := o.Get(r.ID)
	if done.Status != StatusCompleted || done.ActualEnd == nil {
		t.Fatalf("ritual = %+v", done)
	}
	if findRitual(o, "wellness_way", "Dawn Greeting", StatusScheduled) == nil {
		t.Fatal("daily ritual not recreated as scheduled")
	}
}

func TestManualTriggerOnlyFromScheduled(t *testing.T) {
	o, _ := testOrch(config.Default())
	o.SeedTemplates([]string{"neon_boulevard"})
	r := findRitual(o, "neon_boulevard", "Dawn Greeting", StatusScheduled)

	if err := o.TriggerManually(r.ID); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if err := o.TriggerManually(r.ID); err == nil {
		t.Fatal("second trigger of active ritual should fail")
	}
	if err := o.TriggerManually("ritual_missing"); err == nil {
		t.Fatal("unknown id should fail")
	}
}

func TestParticipantsJoinOnlyWhileActive(t *testing.T) {
	o, b := testOrch(config.Default())
	o.SeedTemplates([]string{"neon_boulevard"})
	rec := &recorder{}
	rec.attach(b)
	r := findRitual(o, "neon_boulevard", "Evening Reflection", StatusScheduled)

	if err := o.AddParticipant(r.ID, "citizen_1", "participant"); err == nil {
		t.Fatal("joined a scheduled ritual")
	}

	o.TriggerManually(r.ID)
	if err := o.AddParticipant(r.ID, "citizen_1", "participant"); err != nil {
		t.Fatalf("join active: %v", err)
	}
	if err := o.AddParticipant(r.ID, "citizen_1", "participant"); err != nil {
		t.Fatalf("rejoin should be a quiet no-op: %v", err)
	}
	if got := rec.count(bus.RitualParticipantJoined); got != 1 {
		t.Fatalf("participant_joined events = %d, want 1", got)
	}
	active, _ := o.Get(r.ID)
	if len(active.Participants) != 1 {
		t.Fatalf("participants = %+v", active.Participants)
	}
}

func TestCitizenActivityChangeEnrollsParticipant(t *testing.T) {
	o, b := testOrch(config.Default())
	o.SeedTemplates([]string{"neon_boulevard"})
	r := findRitual(o, "neon_boulevard", "Dawn Greeting", StatusScheduled)
	o.TriggerManually(r.ID)

	b.Publish(bus.Event{
		Type:   bus.TypeCitizenAction,
		Source: "test",
		Payload: bus.CitizenAction{
			Action: bus.ActionActivityChanged, CitizenID: "citizen_7",
			District: "neon_boulevard", Activity: "ritual", Target: r.ID,
		},
	})

	active, _ := o.Get(r.ID)
	if len(active.Participants) != 1 || active.Participants[0].ID != "citizen_7" {
		t.Fatalf("participants = %+v", active.Participants)
	}
}

func TestMalformedTriggerIsNoOp(t *testing.T) {
	o, b := testOrch(config.Default())
	o.Restore([]Ritual{
		{ID: "r_bad_time", Name: "Broken Clock", District: "d", Status: StatusScheduled,
			Trigger: Trigger{Kind: TriggerTime}},
		{ID: "r_bad_mood", Name: "Broken Mood", District: "d", Status: StatusScheduled,
			Trigger: Trigger{Kind: TriggerMood}},
	})

	o.CheckScheduled()
	b.Publish(bus.Event{
		Type:    bus.TypeMoodShift,
		Source:  "test",
		Payload: bus.MoodShift{District: "d", EmotionalState: "energetic", Intensity: 10},
	})

	if o.ActiveCount() != 0 {
		t.Fatal("malformed trigger fired")
	}
}

func TestCancelStopsCompletion(t *testing.T) {
	cfg := config.Default()
	cfg.MinuteUnit = 100 * time.Millisecond
	o, b := testOrch(cfg)
	o.SeedTemplates([]string{"neon_boulevard"})
	rec := &recorder{}
	rec.attach(b)
	r := findRitual(o, "neon_boulevard", "Dawn Greeting", StatusScheduled)

	o.TriggerManually(r.ID)
	if err := o.Cancel(r.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Outlive the would-be completion timer (15 units at 100ms).
	time.Sleep(2 * time.Second)
	got, _ := o.Get(r.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
	if rec.count(bus.RitualCompleted) != 0 {
		t.Fatal("cancelled ritual still completed")
	}
}

type ritualStore struct {
	mu    sync.Mutex
	saved map[string]string // ritual id → last persisted status
}

func (s *ritualStore) SaveRitual(r Ritual) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[r.ID] = r.Status
	return nil
}

func TestStopPersistsEveryRitual(t *testing.T) {
	store := &ritualStore{}
	b := bus.New(100)
	o := NewOrchestrator(config.Default(), b, store)
	o.SetClock(func() time.Time { return ritNow })
	o.SeedTemplates([]string{"innovation_district"})

	r := findRitual(o, "innovation_district", "Dawn Greeting", StatusScheduled)
	if err := o.TriggerManually(r.ID); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	o.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saved) != len(o.All()) {
		t.Fatalf("persisted %d rituals, want all %d", len(store.saved), len(o.All()))
	}
	if store.saved[r.ID] != StatusActive {
		t.Fatalf("triggered ritual persisted as %q, want active", store.saved[r.ID])
	}
}

func TestRestoreCompletesExpiredRitual(t *testing.T) {
	o, b := testOrch(config.Default())
	rec := &recorder{}
	rec.attach(b)

	started := ritNow.Add(-20 * time.Minute)
	o.Restore([]Ritual{{
		ID:          "ritual_test_expired",
		Name:        "Dawn Greeting",
		Kind:        KindDaily,
		District:    "innovation_district",
		Duration:    15,
		Effects:     []Effect{{Kind: "energy_restore", Target: "participants", Magnitude: 20}},
		Status:      StatusActive,
		ActualStart: &started,
	}})

	got, _ := o.Get("ritual_test_expired")
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed on restore past duration", got.Status)
	}
	if rec.count(bus.RitualCompleted) != 1 || rec.count(bus.RitualEffectApplied) != 1 {
		t.Fatalf("completed=%d effects=%d, want 1/1",
			rec.count(bus.RitualCompleted), rec.count(bus.RitualEffectApplied))
	}
}

func TestRestoreArmsRemainingDuration(t *testing.T) {
	o, _ := testOrch(config.Default())

	started := ritNow.Add(-5 * time.Minute)
	o.Restore([]Ritual{{
		ID:          "ritual_test_running",
		Name:        "Evening Reflection",
		Kind:        KindDaily,
		District:    "wellness_way",
		Duration:    20,
		Status:      StatusActive,
		ActualStart: &started,
	}})

	got, _ := o.Get("ritual_test_running")
	if got.Status != StatusActive {
		t.Fatalf("status = %q, want still active mid-duration", got.Status)
	}
	o.mu.Lock()
	_, armed := o.timers["ritual_test_running"]
	o.mu.Unlock()
	if !armed {
		t.Fatal("no completion timer armed for restored active ritual")
	}
	o.Stop()
}
