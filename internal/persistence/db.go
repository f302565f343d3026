// Package persistence provides SQLite-based city state storage.
// Nested structures are stored as JSON columns; in-memory state stays
// authoritative and every caller treats write failures as
// log-and-continue.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/citizens"
	"github.com/talgya/living-city/internal/city"
	"github.com/talgya/living-city/internal/memory"
	"github.com/talgya/living-city/internal/rituals"
)

// DB wraps a SQLite connection for city state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS citizens (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		district TEXT NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		pos_z REAL NOT NULL,
		energy REAL NOT NULL,
		personality_json TEXT NOT NULL,
		mood_json TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		schedule_json TEXT NOT NULL,
		relationships_json TEXT NOT NULL,
		last_interaction TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memory_gardens (
		citizen_id TEXT PRIMARY KEY,
		episodic_json TEXT NOT NULL,
		semantic_json TEXT NOT NULL,
		procedural_json TEXT NOT NULL,
		associations_json TEXT NOT NULL,
		evolution_json TEXT NOT NULL,
		last_updated TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rituals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		district TEXT NOT NULL,
		status TEXT NOT NULL,
		duration INTEGER NOT NULL,
		trigger_json TEXT NOT NULL,
		atmosphere_json TEXT NOT NULL,
		script_json TEXT NOT NULL,
		effects_json TEXT NOT NULL,
		participants_json TEXT NOT NULL,
		actual_start TIMESTAMP,
		actual_end TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS district_moods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		district TEXT NOT NULL,
		mood_json TEXT NOT NULL,
		atmosphere_json TEXT NOT NULL,
		active_citizens INTEGER NOT NULL,
		active_users INTEGER NOT NULL,
		ritual_active INTEGER NOT NULL,
		time_of_day TEXT NOT NULL,
		season TEXT NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		source TEXT NOT NULL,
		priority INTEGER NOT NULL,
		payload_json TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_citizens_district ON citizens(district);
	CREATE INDEX IF NOT EXISTS idx_rituals_district ON rituals(district, status);
	CREATE INDEX IF NOT EXISTS idx_moods_district ON district_moods(district, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveCitizen upserts one citizen.
func (db *DB) SaveCitizen(c citizens.Citizen) error {
	personality, _ := json.Marshal(c.Personality)
	mood, _ := json.Marshal(c.Mood)
	activity, _ := json.Marshal(c.Activity)
	schedule, _ := json.Marshal(c.Schedule)
	relationships, _ := json.Marshal(c.Relationships)

	_, err := db.conn.Exec(`INSERT OR REPLACE INTO citizens
		(id, name, district, pos_x, pos_y, pos_z, energy,
		 personality_json, mood_json, activity_json, schedule_json, relationships_json,
		 last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Position.District, c.Position.X, c.Position.Y, c.Position.Z,
		c.Energy, string(personality), string(mood), string(activity),
		string(schedule), string(relationships),
		c.LastInteraction, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save citizen %s: %w", c.ID, err)
	}
	return nil
}

// SaveCitizens writes a batch of citizens in one transaction.
func (db *DB) SaveCitizens(list []citizens.Citizen) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO citizens
		(id, name, district, pos_x, pos_y, pos_z, energy,
		 personality_json, mood_json, activity_json, schedule_json, relationships_json,
		 last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range list {
		personality, _ := json.Marshal(c.Personality)
		mood, _ := json.Marshal(c.Mood)
		activity, _ := json.Marshal(c.Activity)
		schedule, _ := json.Marshal(c.Schedule)
		relationships, _ := json.Marshal(c.Relationships)

		if _, err := stmt.Exec(
			c.ID, c.Name, c.Position.District, c.Position.X, c.Position.Y, c.Position.Z,
			c.Energy, string(personality), string(mood), string(activity),
			string(schedule), string(relationships),
			c.LastInteraction, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert citizen %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

type citizenRow struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	District          string    `db:"district"`
	PosX              float64   `db:"pos_x"`
	PosY              float64   `db:"pos_y"`
	PosZ              float64   `db:"pos_z"`
	Energy            float64   `db:"energy"`
	PersonalityJSON   string    `db:"personality_json"`
	MoodJSON          string    `db:"mood_json"`
	ActivityJSON      string    `db:"activity_json"`
	ScheduleJSON      string    `db:"schedule_json"`
	RelationshipsJSON string    `db:"relationships_json"`
	LastInteraction   time.Time `db:"last_interaction"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// LoadCitizens reads every persisted citizen.
func (db *DB) LoadCitizens() ([]citizens.Citizen, error) {
	var rows []citizenRow
	if err := db.conn.Select(&rows, "SELECT * FROM citizens"); err != nil {
		return nil, fmt.Errorf("load citizens: %w", err)
	}

	out := make([]citizens.Citizen, 0, len(rows))
	for _, r := range rows {
		c := citizens.Citizen{
			ID:   r.ID,
			Name: r.Name,
			Position: citizens.Position{
				X: r.PosX, Y: r.PosY, Z: r.PosZ, District: r.District,
			},
			Energy:          r.Energy,
			LastInteraction: r.LastInteraction,
			CreatedAt:       r.CreatedAt,
			UpdatedAt:       r.UpdatedAt,
		}
		json.Unmarshal([]byte(r.PersonalityJSON), &c.Personality)
		json.Unmarshal([]byte(r.MoodJSON), &c.Mood)
		json.Unmarshal([]byte(r.ActivityJSON), &c.Activity)
		json.Unmarshal([]byte(r.ScheduleJSON), &c.Schedule)
		json.Unmarshal([]byte(r.RelationshipsJSON), &c.Relationships)
		if c.Relationships == nil {
			c.Relationships = make(map[string]float64)
		}
		out = append(out, c)
	}
	return out, nil
}

// SaveGarden upserts one citizen's memory garden.
func (db *DB) SaveGarden(g memory.Garden) error {
	episodic, _ := json.Marshal(g.Episodic)
	semantic, _ := json.Marshal(g.Semantic)
	procedural, _ := json.Marshal(g.Procedural)
	associations, _ := json.Marshal(g.Associations)
	evolution, _ := json.Marshal(g.Evolution)

	_, err := db.conn.Exec(`INSERT OR REPLACE INTO memory_gardens
		(citizen_id, episodic_json, semantic_json, procedural_json,
		 associations_json, evolution_json, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.CitizenID, string(episodic), string(semantic), string(procedural),
		string(associations), string(evolution), g.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save garden %s: %w", g.CitizenID, err)
	}
	return nil
}

// LoadGarden reads one citizen's memory garden; a citizen without a
// stored garden gets a fresh one.
func (db *DB) LoadGarden(citizenID string) (*memory.Garden, error) {
	var row struct {
		CitizenID        string    `db:"citizen_id"`
		EpisodicJSON     string    `db:"episodic_json"`
		SemanticJSON     string    `db:"semantic_json"`
		ProceduralJSON   string    `db:"procedural_json"`
		AssociationsJSON string    `db:"associations_json"`
		EvolutionJSON    string    `db:"evolution_json"`
		LastUpdated      time.Time `db:"last_updated"`
	}
	err := db.conn.Get(&row, "SELECT * FROM memory_gardens WHERE citizen_id = ?", citizenID)
	if err == sql.ErrNoRows {
		return memory.NewGarden(citizenID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load garden %s: %w", citizenID, err)
	}

	g := memory.NewGarden(citizenID)
	g.LastUpdated = row.LastUpdated
	json.Unmarshal([]byte(row.EpisodicJSON), &g.Episodic)
	json.Unmarshal([]byte(row.SemanticJSON), &g.Semantic)
	json.Unmarshal([]byte(row.ProceduralJSON), &g.Procedural)
	json.Unmarshal([]byte(row.AssociationsJSON), &g.Associations)
	json.Unmarshal([]byte(row.EvolutionJSON), &g.Evolution)
	if g.Associations == nil {
		g.Associations = make(map[string]float64)
	}
	return g, nil
}

// SaveRitual upserts one ritual.
func (db *DB) SaveRitual(r rituals.Ritual) error {
	trigger, _ := json.Marshal(r.Trigger)
	atmosphere, _ := json.Marshal(r.Atmosphere)
	script, _ := json.Marshal(r.Script)
	effects, _ := json.Marshal(r.Effects)
	participants, _ := json.Marshal(r.Participants)

	_, err := db.conn.Exec(`INSERT OR REPLACE INTO rituals
		(id, name, kind, district, status, duration,
		 trigger_json, atmosphere_json, script_json, effects_json, participants_json,
		 actual_start, actual_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Kind, r.District, r.Status, r.Duration,
		string(trigger), string(atmosphere), string(script), string(effects),
		string(participants), r.ActualStart, r.ActualEnd, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save ritual %s: %w", r.ID, err)
	}
	return nil
}

type ritualRow struct {
	ID               string     `db:"id"`
	Name             string     `db:"name"`
	Kind             string     `db:"kind"`
	District         string     `db:"district"`
	Status           string     `db:"status"`
	Duration         int        `db:"duration"`
	TriggerJSON      string     `db:"trigger_json"`
	AtmosphereJSON   string     `db:"atmosphere_json"`
	ScriptJSON       string     `db:"script_json"`
	EffectsJSON      string     `db:"effects_json"`
	ParticipantsJSON string     `db:"participants_json"`
	ActualStart      *time.Time `db:"actual_start"`
	ActualEnd        *time.Time `db:"actual_end"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// LoadRituals reads every persisted ritual.
func (db *DB) LoadRituals() ([]rituals.Ritual, error) {
	var rows []ritualRow
	if err := db.conn.Select(&rows, "SELECT * FROM rituals"); err != nil {
		return nil, fmt.Errorf("load rituals: %w", err)
	}

	out := make([]rituals.Ritual, 0, len(rows))
	for _, row := range rows {
		r := rituals.Ritual{
			ID:          row.ID,
			Name:        row.Name,
			Kind:        row.Kind,
			District:    row.District,
			Status:      row.Status,
			Duration:    row.Duration,
			ActualStart: row.ActualStart,
			ActualEnd:   row.ActualEnd,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		}
		json.Unmarshal([]byte(row.TriggerJSON), &r.Trigger)
		json.Unmarshal([]byte(row.AtmosphereJSON), &r.Atmosphere)
		json.Unmarshal([]byte(row.ScriptJSON), &r.Script)
		json.Unmarshal([]byte(row.EffectsJSON), &r.Effects)
		json.Unmarshal([]byte(row.ParticipantsJSON), &r.Participants)
		out = append(out, r)
	}
	return out, nil
}

// SaveMoodSnapshot appends one district mood observation.
func (db *DB) SaveMoodSnapshot(s city.MoodSnapshot) error {
	mood, _ := json.Marshal(s.Collective)
	atmosphere, _ := json.Marshal(s.Atmosphere)

	ritualActive := 0
	if s.RitualActive {
		ritualActive = 1
	}

	_, err := db.conn.Exec(`INSERT INTO district_moods
		(district, mood_json, atmosphere_json, active_citizens, active_users,
		 ritual_active, time_of_day, season, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.District, string(mood), string(atmosphere), s.ActiveCitizens,
		s.ActiveUsers, ritualActive, s.TimeOfDay, s.Season, s.RecordedAt,
	)
	return err
}

// SaveEvent appends one bus event to the diagnostic log.
func (db *DB) SaveEvent(ev bus.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", fmt.Sprintf("%+v", ev.Payload)))
	}
	_, err = db.conn.Exec(
		"INSERT INTO events (type, source, priority, payload_json, created_at) VALUES (?, ?, ?, ?, ?)",
		ev.Type, ev.Source, int(ev.Priority), string(payload), ev.Timestamp,
	)
	return err
}

// RecentEvents returns the most recent N logged events of a type;
// empty type means any.
func (db *DB) RecentEvents(eventType string, limit int) ([]bus.Event, error) {
	var rows []struct {
		Type        string    `db:"type"`
		Source      string    `db:"source"`
		Priority    int       `db:"priority"`
		PayloadJSON string    `db:"payload_json"`
		CreatedAt   time.Time `db:"created_at"`
	}
	var err error
	if eventType == "" {
		err = db.conn.Select(&rows,
			"SELECT type, source, priority, payload_json, created_at FROM events ORDER BY id DESC LIMIT ?",
			limit)
	} else {
		err = db.conn.Select(&rows,
			"SELECT type, source, priority, payload_json, created_at FROM events WHERE type = ? ORDER BY id DESC LIMIT ?",
			eventType, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	out := make([]bus.Event, 0, len(rows))
	for _, r := range rows {
		var payload any
		json.Unmarshal([]byte(r.PayloadJSON), &payload)
		out = append(out, bus.Event{
			Type:      r.Type,
			Source:    r.Source,
			Priority:  bus.Priority(r.Priority),
			Payload:   payload,
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in city metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	return value, err
}
