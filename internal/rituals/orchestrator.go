package rituals

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/config"
)

// Store persists ritual state changes. Writes are best-effort: the
// in-memory ritual map stays authoritative even when a write fails.
type Store interface {
	SaveRitual(r Ritual) error
}

// Orchestrator owns every ritual and drives the
// scheduled→active→completed state machine. One timer per active
// ritual fires its completion; scheduled time triggers are matched by
// the minute scan in CheckScheduled.
type Orchestrator struct {
	cfg   config.Tuning
	bus   *bus.Bus
	store Store // may be nil

	mu      sync.Mutex
	rituals map[string]*Ritual
	timers  map[string]*time.Timer

	now func() time.Time
}

// NewOrchestrator wires an orchestrator to the bus: mood shifts feed
// mood triggers, gatherings feed participant triggers, and citizens
// announcing a ritual activity are enrolled as participants.
func NewOrchestrator(cfg config.Tuning, b *bus.Bus, store Store) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		bus:     b,
		store:   store,
		rituals: make(map[string]*Ritual),
		timers:  make(map[string]*time.Timer),
		now:     time.Now,
	}
	b.Subscribe("ritual-mood-triggers", []string{bus.TypeMoodShift}, bus.PriorityNormal, o.onMoodShift)
	b.Subscribe("ritual-citizen-triggers", []string{bus.TypeCitizenAction}, bus.PriorityNormal, o.onCitizenAction)
	return o
}

// SetClock replaces the time source (tests).
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// SeedTemplates creates the default rituals for each district that does
// not already carry them. Keyed by district+name, so reseeding is a
// no-op.
func (o *Orchestrator) SeedTemplates(districts []string) {
	now := o.now()
	var created []Ritual

	o.mu.Lock()
	for _, district := range districts {
		for _, t := range templatesFor(district) {
			if o.find(district, t.Name) != nil {
				continue
			}
			r := &Ritual{
				ID:         "ritual_" + district + "_" + uuid.NewString(),
				Name:       t.Name,
				Kind:       t.Kind,
				District:   district,
				Trigger:    t.Trigger,
				Duration:   t.Duration,
				Atmosphere: t.Atmosphere,
				Script:     t.Script,
				Effects:    t.Effects,
				Status:     StatusScheduled,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			o.rituals[r.ID] = r
			created = append(created, *r)
		}
	}
	o.mu.Unlock()

	for i := range created {
		o.persist(created[i])
	}
}

// Restore loads previously persisted rituals. An active ritual's
// completion timer is re-armed for whatever remains of its duration;
// one whose duration ran out while the process was down completes
// immediately.
func (o *Orchestrator) Restore(list []Ritual) {
	now := o.now()
	var expired []string

	o.mu.Lock()
	for i := range list {
		r := list[i]
		o.rituals[r.ID] = &r
		if r.Status != StatusActive {
			continue
		}
		remaining := time.Duration(r.Duration) * o.cfg.MinuteUnit
		if r.ActualStart != nil {
			remaining -= now.Sub(*r.ActualStart)
		}
		if remaining <= 0 {
			expired = append(expired, r.ID)
			continue
		}
		o.armTimerAfter(r.ID, remaining)
	}
	o.mu.Unlock()

	for _, id := range expired {
		o.complete(id)
	}
}

// find returns the ritual with a district+name key. Caller holds the
// lock.
func (o *Orchestrator) find(district, name string) *Ritual {
	for _, r := range o.rituals {
		if r.District == district && r.Name == name {
			return r
		}
	}
	return nil
}

// CheckScheduled is the minute scan: every scheduled ritual with a time
// trigger fires on an exact HH:MM match.
func (o *Orchestrator) CheckScheduled() {
	now := o.now()

	o.mu.Lock()
	var events []bus.Event
	var changed []Ritual
	for _, r := range o.rituals {
		if r.Status != StatusScheduled || r.Trigger.Kind != TriggerTime {
			continue
		}
		tc := r.Trigger.Time
		if tc == nil {
			continue // malformed trigger never fires
		}
		if tc.Hour != now.Hour() || tc.Minute != now.Minute() {
			continue
		}
		if len(tc.DaysOfWeek) > 0 && !containsInt(tc.DaysOfWeek, int(now.Weekday())) {
			continue
		}
		events = append(events, o.activate(r, now)...)
		changed = append(changed, *r)
	}
	o.mu.Unlock()

	o.publishAndPersist(events, changed)
}

// TriggerManually performs the scheduled→active transition outside of
// automatic conditions.
func (o *Orchestrator) TriggerManually(id string) error {
	now := o.now()

	o.mu.Lock()
	r, ok := o.rituals[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("ritual %s not found", id)
	}
	if r.Status != StatusScheduled {
		o.mu.Unlock()
		return fmt.Errorf("ritual %s is %s, not scheduled", id, r.Status)
	}
	events := o.activate(r, now)
	changed := *r
	o.mu.Unlock()

	o.publishAndPersist(events, []Ritual{changed})
	return nil
}

// Cancel terminates a scheduled or active ritual without effects.
func (o *Orchestrator) Cancel(id string) error {
	now := o.now()

	o.mu.Lock()
	r, ok := o.rituals[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("ritual %s not found", id)
	}
	if r.Status != StatusScheduled && r.Status != StatusActive {
		o.mu.Unlock()
		return fmt.Errorf("ritual %s is %s", id, r.Status)
	}
	if t := o.timers[id]; t != nil {
		t.Stop()
		delete(o.timers, id)
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	changed := *r
	o.mu.Unlock()

	o.publishAndPersist(nil, []Ritual{changed})
	return nil
}

// AddParticipant enrolls a citizen or user in an active ritual.
// Joining any other state is an error; joining twice is a no-op.
func (o *Orchestrator) AddParticipant(ritualID, participantID, role string) error {
	now := o.now()

	o.mu.Lock()
	r, ok := o.rituals[ritualID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("ritual %s not found", ritualID)
	}
	if r.Status != StatusActive {
		o.mu.Unlock()
		return fmt.Errorf("ritual %s is %s, participants join active rituals only", ritualID, r.Status)
	}
	for _, p := range r.Participants {
		if p.ID == participantID {
			o.mu.Unlock()
			return nil
		}
	}
	r.Participants = append(r.Participants, Participant{ID: participantID, Role: role, JoinedAt: now})
	r.UpdatedAt = now
	changed := *r
	name, district, kind := r.Name, r.District, r.Kind
	o.mu.Unlock()

	o.publishAndPersist([]bus.Event{{
		Type:   bus.TypeRitualTrigger,
		Source: "ritual_orchestrator",
		Payload: bus.RitualTrigger{
			Action: bus.RitualParticipantJoined, RitualID: ritualID, RitualName: name,
			District: district, Kind: kind,
			ParticipantID: participantID, ParticipantRole: role,
		},
	}}, []Ritual{changed})
	return nil
}

// activate moves a scheduled ritual to active, arms its completion
// timer, and builds the started event. Caller holds the lock.
func (o *Orchestrator) activate(r *Ritual, now time.Time) []bus.Event {
	r.Status = StatusActive
	r.ActualStart = &now
	r.UpdatedAt = now
	o.armTimer(r)

	return []bus.Event{{
		Type:   bus.TypeRitualTrigger,
		Source: "ritual_orchestrator",
		Payload: bus.RitualTrigger{
			Action: bus.RitualStarted, RitualID: r.ID, RitualName: r.Name,
			District: r.District, Kind: r.Kind, Duration: r.Duration,
		},
	}}
}

// armTimer schedules the single completion timer for an active ritual.
// Caller holds the lock.
func (o *Orchestrator) armTimer(r *Ritual) {
	o.armTimerAfter(r.ID, time.Duration(r.Duration)*o.cfg.MinuteUnit)
}

func (o *Orchestrator) armTimerAfter(id string, d time.Duration) {
	o.timers[id] = time.AfterFunc(d, func() {
		o.complete(id)
	})
}

// complete finishes an active ritual: publishes one effect_applied per
// declared effect, then the completed event. Daily and seasonal rituals
// are recreated as scheduled so they fire again.
func (o *Orchestrator) complete(id string) {
	now := o.now()

	o.mu.Lock()
	r, ok := o.rituals[id]
	if !ok || r.Status != StatusActive {
		o.mu.Unlock()
		return
	}
	delete(o.timers, id)
	r.Status = StatusCompleted
	r.ActualEnd = &now
	r.UpdatedAt = now

	var events []bus.Event
	for _, e := range r.Effects {
		events = append(events, bus.Event{
			Type:   bus.TypeRitualTrigger,
			Source: "ritual_orchestrator",
			Payload: bus.RitualTrigger{
				Action: bus.RitualEffectApplied, RitualID: r.ID, RitualName: r.Name,
				District: r.District, Kind: r.Kind,
				EffectKind: e.Kind, EffectTarget: e.Target,
				Magnitude: e.Magnitude, EffectMins: e.Duration,
			},
		})
	}
	events = append(events, bus.Event{
		Type:   bus.TypeRitualTrigger,
		Source: "ritual_orchestrator",
		Payload: bus.RitualTrigger{
			Action: bus.RitualCompleted, RitualID: r.ID, RitualName: r.Name,
			District: r.District, Kind: r.Kind,
		},
	})
	changed := []Ritual{*r}

	if r.Kind == KindDaily || r.Kind == KindSeasonal {
		next := &Ritual{
			ID:         "ritual_" + r.District + "_" + uuid.NewString(),
			Name:       r.Name,
			Kind:       r.Kind,
			District:   r.District,
			Trigger:    r.Trigger,
			Duration:   r.Duration,
			Atmosphere: r.Atmosphere,
			Script:     r.Script,
			Effects:    r.Effects,
			Status:     StatusScheduled,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		// The completed instance stays in history under its own id.
		o.rituals[next.ID] = next
		changed = append(changed, *next)
	}
	o.mu.Unlock()

	o.publishAndPersist(events, changed)
}

// onMoodShift matches district mood against scheduled mood triggers.
func (o *Orchestrator) onMoodShift(ev bus.Event) error {
	shift, ok := ev.Payload.(bus.MoodShift)
	if !ok {
		return fmt.Errorf("mood shift payload is %T", ev.Payload)
	}
	now := o.now()

	o.mu.Lock()
	var events []bus.Event
	var changed []Ritual
	for _, r := range o.rituals {
		if r.Status != StatusScheduled || r.Trigger.Kind != TriggerMood || r.District != shift.District {
			continue
		}
		mc := r.Trigger.Mood
		if mc == nil {
			continue
		}
		if shift.EmotionalState != mc.EmotionalState || shift.Intensity < mc.IntensityThreshold {
			continue
		}
		events = append(events, o.activate(r, now)...)
		changed = append(changed, *r)
	}
	o.mu.Unlock()

	o.publishAndPersist(events, changed)
	return nil
}

// onCitizenAction feeds participant-count triggers from detected
// gatherings, and enrolls citizens whose activity switched to a ritual.
func (o *Orchestrator) onCitizenAction(ev bus.Event) error {
	act, ok := ev.Payload.(bus.CitizenAction)
	if !ok {
		return fmt.Errorf("citizen action payload is %T", ev.Payload)
	}

	switch act.Action {
	case bus.ActionGatheringDetected:
		now := o.now()
		o.mu.Lock()
		var events []bus.Event
		var changed []Ritual
		for _, r := range o.rituals {
			if r.Status != StatusScheduled || r.Trigger.Kind != TriggerParticipant || r.District != act.District {
				continue
			}
			pc := r.Trigger.Participant
			if pc == nil {
				continue
			}
			if act.ParticipantCount < pc.Min {
				continue
			}
			if pc.Max > 0 && act.ParticipantCount > pc.Max {
				continue
			}
			events = append(events, o.activate(r, now)...)
			changed = append(changed, *r)
		}
		o.mu.Unlock()
		o.publishAndPersist(events, changed)

	case bus.ActionActivityChanged:
		// A citizen announcing a ritual activity names the ritual id as
		// its target. Joins racing a completion are expected; ignore.
		if act.Activity == "ritual" && act.Target != "" {
			_ = o.AddParticipant(act.Target, act.CitizenID, "participant")
		}
	}
	return nil
}

// Get returns a copy of one ritual.
func (o *Orchestrator) Get(id string) (Ritual, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rituals[id]
	if !ok {
		return Ritual{}, false
	}
	return *r, true
}

// All returns copies of every ritual.
func (o *Orchestrator) All() []Ritual {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Ritual, 0, len(o.rituals))
	for _, r := range o.rituals {
		out = append(out, *r)
	}
	return out
}

// Active returns copies of the currently active rituals.
func (o *Orchestrator) Active() []Ritual {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Ritual
	for _, r := range o.rituals {
		if r.Status == StatusActive {
			out = append(out, *r)
		}
	}
	return out
}

// ActiveCount returns how many rituals are active.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, r := range o.rituals {
		if r.Status == StatusActive {
			n++
		}
	}
	return n
}

// Stop disarms every completion timer and writes a final snapshot of
// every ritual, so stored state matches what the process shut down
// with.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	final := make([]Ritual, 0, len(o.rituals))
	for _, r := range o.rituals {
		final = append(final, *r)
	}
	o.mu.Unlock()

	for i := range final {
		o.persist(final[i])
	}
}

// publishAndPersist emits events and writes ritual snapshots outside
// the lock. Persistence failures are logged and ignored.
func (o *Orchestrator) publishAndPersist(events []bus.Event, changed []Ritual) {
	for _, ev := range events {
		o.bus.Publish(ev)
	}
	for i := range changed {
		o.persist(changed[i])
	}
}

func (o *Orchestrator) persist(r Ritual) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveRitual(r); err != nil {
		slog.Warn("ritual persist failed", "ritual", r.ID, "status", r.Status, "error", err)
	}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
