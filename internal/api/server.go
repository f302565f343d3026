// Package api provides the HTTP API for observing the city.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/citizens"
	"github.com/talgya/living-city/internal/city"
	"github.com/talgya/living-city/internal/config"
	"github.com/talgya/living-city/internal/persistence"
	"github.com/talgya/living-city/internal/rituals"
)

// Server serves the city state over HTTP.
type Server struct {
	City     *city.Orchestrator
	Sim      *citizens.Simulator
	Rituals  *rituals.Orchestrator
	Bus      *bus.Bus
	DB       *persistence.DB // may be nil
	Cfg      config.Tuning
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	triggerLimiter := NewRateLimiter(30, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only — anyone can check in on the city).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/citizens", s.handleCitizens)
	mux.HandleFunc("/api/v1/citizen/", s.handleCitizenDetail)
	mux.HandleFunc("/api/v1/rituals", s.handleRituals)
	mux.HandleFunc("/api/v1/districts", s.handleDistricts)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/ritual/", s.adminOnly(RateLimitMiddleware(triggerLimiter, s.handleRitualTrigger)))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins;
// localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return auth == "Bearer "+s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CITYSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.City.Status())
}

type citizenSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	District string  `json:"district"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Activity string  `json:"activity"`
	Target   string  `json:"target,omitempty"`
	Mood     string  `json:"mood"`
	Energy   float64 `json:"energy"`
}

func (s *Server) handleCitizens(w http.ResponseWriter, r *http.Request) {
	district := r.URL.Query().Get("district")

	list := s.Sim.Snapshots()
	out := make([]citizenSummary, 0, len(list))
	for _, c := range list {
		if district != "" && c.Position.District != district {
			continue
		}
		out = append(out, citizenSummary{
			ID:       c.ID,
			Name:     c.Name,
			District: c.Position.District,
			X:        c.Position.X, Y: c.Position.Y, Z: c.Position.Z,
			Activity: c.Activity.Type,
			Target:   c.Activity.Target,
			Mood:     c.Mood.State,
			Energy:   c.Energy,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeJSON(w, map[string]any{
		"count":    len(out),
		"citizens": out,
	})
}

func (s *Server) handleCitizenDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/citizen/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	c, mem, ok := s.Sim.Snapshot(id)
	if !ok {
		http.Error(w, "citizen not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"citizen": c,
		"memory":  mem,
	})
}

func (s *Server) handleRituals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	district := r.URL.Query().Get("district")

	all := s.Rituals.All()
	out := all[:0:0]
	for _, rit := range all {
		if status != "" && rit.Status != status {
			continue
		}
		if district != "" && rit.District != district {
			continue
		}
		out = append(out, rit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].District != out[j].District {
			return out[i].District < out[j].District
		}
		return out[i].Name < out[j].Name
	})

	writeJSON(w, map[string]any{
		"count":   len(out),
		"rituals": out,
	})
}

// handleRitualTrigger serves POST /api/v1/ritual/{id}/trigger.
func (s *Server) handleRitualTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/ritual/")
	id, action, found := strings.Cut(rest, "/")
	if !found || action != "trigger" || id == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := s.Rituals.TriggerManually(id); err != nil {
		code := http.StatusConflict
		if strings.Contains(err.Error(), "not found") {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}

	slog.Info("ritual triggered manually", "ritual", id, "remote", r.RemoteAddr)
	rit, _ := s.Rituals.Get(id)
	writeJSON(w, map[string]any{
		"triggered": id,
		"status":    rit.Status,
	})
}

func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	type districtEntry struct {
		District       string `json:"district"`
		ActiveCitizens int    `json:"active_citizens"`
		ActiveUsers    int    `json:"active_users"`
		ActiveRituals  int    `json:"active_rituals"`
	}

	active := s.Rituals.Active()
	out := make([]districtEntry, 0, len(s.Cfg.Districts))
	for _, d := range s.Cfg.Districts {
		rits := 0
		for _, rit := range active {
			if rit.District == d {
				rits++
			}
		}
		out = append(out, districtEntry{
			District:       d,
			ActiveCitizens: len(s.Sim.InDistrict(d)),
			ActiveUsers:    s.City.UsersIn(d),
			ActiveRituals:  rits,
		})
	}
	writeJSON(w, map[string]any{"districts": out})
}

// handleEvents serves the in-memory event history; ?type= filters and
// ?n= bounds the count (default 50, max 500).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 50
	if raw := r.URL.Query().Get("n"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n = v
		}
	}
	if n > 500 {
		n = 500
	}

	var events []bus.Event
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		events = s.Bus.ByType(eventType, n)
	} else {
		events = s.Bus.Recent(n)
	}

	writeJSON(w, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
