// Package city provides the top-level orchestrator: the layered tick
// loop, district mood aggregation, and lifecycle control over the
// citizen simulator and ritual orchestrator.
package city

import (
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/citizens"
	"github.com/talgya/living-city/internal/config"
	"github.com/talgya/living-city/internal/memory"
	"github.com/talgya/living-city/internal/rituals"
)

// MoodSnapshot is one district mood observation written per mood tick.
type MoodSnapshot struct {
	District       string         `json:"district"`
	Collective     bus.MoodVector `json:"collective_mood"`
	Atmosphere     bus.Atmosphere `json:"atmospheric_data"`
	ActiveCitizens int            `json:"active_citizens"`
	ActiveUsers    int            `json:"active_users"`
	RitualActive   bool           `json:"ritual_active"`
	TimeOfDay      string         `json:"time_of_day"`
	Season         string         `json:"season"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

// Store is the persistence the orchestrator writes to. All writes are
// best-effort; in-memory state stays authoritative.
type Store interface {
	SaveCitizen(c citizens.Citizen) error
	SaveGarden(g memory.Garden) error
	SaveMoodSnapshot(s MoodSnapshot) error
	SaveEvent(ev bus.Event) error
}

// Status is the live snapshot served by the API.
type Status struct {
	IsRunning     bool      `json:"is_running"`
	Citizens      int       `json:"citizens"`
	ActiveRituals int       `json:"active_rituals"`
	Timestamp     time.Time `json:"timestamp"`
}

// Orchestrator runs the city. One loop drives everything on layered
// cadences: citizen ticks every interval, the city-state aggregate
// every StateEvery ticks, district moods and the ritual minute scan
// every MoodEvery ticks, and the personality evolution pass daily.
type Orchestrator struct {
	cfg     config.Tuning
	bus     *bus.Bus
	sim     *citizens.Simulator
	rituals *rituals.Orchestrator
	store   Store // may be nil

	mu       sync.Mutex
	presence map[string]map[string]struct{} // district → user ids
	running  bool
	tick     uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	now func() time.Time
}

// New wires the orchestrator to its collaborators and subscribes the
// presence tracker and the event log.
func New(cfg config.Tuning, b *bus.Bus, sim *citizens.Simulator, rit *rituals.Orchestrator, store Store) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		bus:      b,
		sim:      sim,
		rituals:  rit,
		store:    store,
		presence: make(map[string]map[string]struct{}),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	b.Subscribe("city-presence", []string{bus.TypeUserAction}, bus.PriorityHigh, o.trackPresence)
	b.Subscribe("city-event-log", []string{bus.Wildcard}, bus.PriorityLow, o.logEvent)
	return o
}

// SetClock replaces the time source (tests).
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Start seeds ritual templates and launches the tick loop. Starting a
// running city is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()

	o.rituals.SeedTemplates(o.cfg.Districts)

	slog.Info("city engine starting",
		"districts", len(o.cfg.Districts),
		"tick_interval", o.cfg.TickInterval,
		"citizens", o.sim.Count())

	o.bus.Publish(bus.Event{
		Type:    bus.TypeCitizenAction,
		Source:  "city_engine",
		Payload: bus.CitizenAction{Action: bus.ActionSystemStarted},
	})

	o.wg.Add(1)
	go o.run()
}

// Stop halts the loop, lets in-flight work finish, and flushes state
// exactly once. Safe to call repeatedly.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stop)
		o.wg.Wait()
		o.rituals.Stop()

		o.mu.Lock()
		o.running = false
		o.mu.Unlock()

		o.flush()
		slog.Info("city engine stopped", "ticks", o.tick)
	})
}

func (o *Orchestrator) run() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.step()
		}
	}
}

// step advances one tick and fires whichever layers are due.
func (o *Orchestrator) step() {
	o.mu.Lock()
	o.tick++
	tick := o.tick
	o.mu.Unlock()

	o.sim.TickAll()

	if o.cfg.StateEvery > 0 && tick%uint64(o.cfg.StateEvery) == 0 {
		o.publishCityState()
	}
	if o.cfg.MoodEvery > 0 && tick%uint64(o.cfg.MoodEvery) == 0 {
		o.updateDistrictMoods()
		o.rituals.CheckScheduled()
	}
	if o.cfg.EvolutionEvery > 0 && tick%uint64(o.cfg.EvolutionEvery) == 0 {
		slog.Info("running personality evolution pass", "citizens", o.sim.Count())
		o.sim.EvolvePersonalities()
	}
}

// publishCityState emits the periodic aggregate snapshot.
func (o *Orchestrator) publishCityState() {
	districts := make([]bus.DistrictActivity, 0, len(o.cfg.Districts))
	for _, d := range o.cfg.Districts {
		districts = append(districts, bus.DistrictActivity{
			District:       d,
			ActiveUsers:    o.UsersIn(d),
			ActiveCitizens: len(o.sim.InDistrict(d)),
		})
	}
	o.bus.Publish(bus.Event{
		Type:   bus.TypeCityState,
		Source: "city_engine",
		Payload: bus.CityState{
			Citizens:      o.sim.Count(),
			ActiveRituals: o.rituals.ActiveCount(),
			Districts:     districts,
		},
	})
}

// updateDistrictMoods recomputes each district's collective mood,
// publishes the shift, and records a snapshot.
func (o *Orchestrator) updateDistrictMoods() {
	now := o.now()
	tod := timeOfDay(now.Hour())
	activeRituals := o.rituals.Active()

	for _, district := range o.cfg.Districts {
		users := o.UsersIn(district)
		cits := len(o.sim.InDistrict(district))
		rits := 0
		for _, r := range activeRituals {
			if r.District == district {
				rits++
			}
		}

		mood := collectiveMood(users, cits, rits)
		state, intensity := emotionalLabel(mood)
		atm := atmosphereFor(district, tod, mood)

		o.bus.Publish(bus.Event{
			Type:   bus.TypeMoodShift,
			Source: "city_engine",
			Payload: bus.MoodShift{
				District:       district,
				Collective:     mood,
				EmotionalState: state,
				Intensity:      intensity,
				Atmospheric:    atm,
				ActiveCitizens: cits,
				ActiveUsers:    users,
				TimeOfDay:      tod,
			},
		})

		if o.store != nil {
			snap := MoodSnapshot{
				District:       district,
				Collective:     mood,
				Atmosphere:     atm,
				ActiveCitizens: cits,
				ActiveUsers:    users,
				RitualActive:   rits > 0,
				TimeOfDay:      tod,
				Season:         season(now),
				RecordedAt:     now,
			}
			if err := o.store.SaveMoodSnapshot(snap); err != nil {
				slog.Warn("mood snapshot write failed", "district", district, "error", err)
			}
		}
	}
}

// trackPresence maintains the per-district user sets from presence
// events.
func (o *Orchestrator) trackPresence(ev bus.Event) error {
	action, ok := ev.Payload.(bus.UserAction)
	if !ok || action.UserID == "" {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// A user occupies one district at a time.
	for _, set := range o.presence {
		delete(set, action.UserID)
	}
	if action.Action != bus.UserLeft {
		set := o.presence[action.District]
		if set == nil {
			set = make(map[string]struct{})
			o.presence[action.District] = set
		}
		set[action.UserID] = struct{}{}
	}
	return nil
}

// UsersIn reports how many users are currently present in a district.
func (o *Orchestrator) UsersIn(district string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.presence[district])
}

// logEvent is the wildcard diagnostics subscriber: debug log plus the
// append-only event table.
func (o *Orchestrator) logEvent(ev bus.Event) error {
	slog.Debug("city event", "type", ev.Type, "source", ev.Source)
	if o.store != nil {
		if err := o.store.SaveEvent(ev); err != nil {
			slog.Debug("event log write failed", "type", ev.Type, "error", err)
		}
	}
	return nil
}

// Status reports the live snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	return Status{
		IsRunning:     running,
		Citizens:      o.sim.Count(),
		ActiveRituals: o.rituals.ActiveCount(),
		Timestamp:     o.now(),
	}
}

// flush writes every citizen and garden. Failures are logged; the
// process is exiting anyway.
func (o *Orchestrator) flush() {
	if o.store == nil {
		return
	}
	for _, c := range o.sim.All() {
		if err := o.store.SaveCitizen(*c); err != nil {
			slog.Warn("citizen flush failed", "citizen", c.ID, "error", err)
			continue
		}
		if c.Garden != nil {
			if err := o.store.SaveGarden(*c.Garden); err != nil {
				slog.Warn("garden flush failed", "citizen", c.ID, "error", err)
			}
		}
	}
	slog.Info("state flushed", "citizens", o.sim.Count())
}
