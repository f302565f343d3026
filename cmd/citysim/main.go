// Command citysim runs the living city simulation engine.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/talgya/living-city/internal/api"
	"github.com/talgya/living-city/internal/bus"
	"github.com/talgya/living-city/internal/citizens"
	"github.com/talgya/living-city/internal/city"
	"github.com/talgya/living-city/internal/config"
	"github.com/talgya/living-city/internal/entropy"
	"github.com/talgya/living-city/internal/llm"
	"github.com/talgya/living-city/internal/persistence"
	"github.com/talgya/living-city/internal/rituals"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	var (
		cfgPath  = flag.String("config", os.Getenv("CITY_CONFIG"), "path to city.yaml (empty = built-in defaults)")
		dbPath   = flag.String("db", envOr("CITY_DB", "data/city.db"), "sqlite database path")
		apiPort  = flag.Int("port", envInt("CITY_PORT", 3001), "HTTP API port")
		seed     = flag.Int64("seed", 42, "simulation seed")
		citizenN = flag.Int("citizens", 12, "citizens to spawn into a fresh city")
	)
	flag.Parse()

	slog.Info("Living City — autonomous city simulation")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", *cfgPath, "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll("data", 0755)
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", *dbPath)

	// ── Optional external services ────────────────────────────────────
	llmClient := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
	if llmClient != nil {
		slog.Info("LLM client enabled (Haiku)")
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — generated names and backstories use word tables")
	}

	ent := entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY"))
	if ent.Enabled() {
		slog.Info("random.org entropy enabled for citizen trait draws")
	}

	// ── Engine wiring ─────────────────────────────────────────────────
	eventBus := bus.New(cfg.HistorySize)
	spawner := citizens.NewSpawner(*seed, llmClient, ent)
	sim := citizens.NewSimulator(cfg, eventBus, spawner, *seed)
	ritualOrch := rituals.NewOrchestrator(cfg, eventBus, db)
	cityOrch := city.New(cfg, eventBus, sim, ritualOrch, db)

	// ── Load or generate city state ───────────────────────────────────
	saved, err := db.LoadCitizens()
	if err != nil {
		slog.Error("failed to load citizens", "error", err)
		os.Exit(1)
	}

	if len(saved) > 0 {
		slog.Info("found saved city state, loading...", "citizens", len(saved))
		for i := range saved {
			g, err := db.LoadGarden(saved[i].ID)
			if err != nil {
				slog.Warn("garden load failed, starting fresh", "citizen", saved[i].ID, "error", err)
				continue
			}
			saved[i].Garden = g
		}
		sim.Restore(saved)

		ritualState, err := db.LoadRituals()
		if err != nil {
			slog.Error("failed to load rituals", "error", err)
			os.Exit(1)
		}
		ritualOrch.Restore(ritualState)
		slog.Info("city state restored", "citizens", sim.Count(), "rituals", len(ritualState))
	} else {
		slog.Info("no saved state found, populating a new city...", "citizens", *citizenN)
		rng := rand.New(rand.NewSource(*seed + 100))
		for i := 0; i < *citizenN; i++ {
			district := cfg.Districts[i%len(cfg.Districts)]
			sim.Spawn(district, rng.Float64()*20-10, 0, rng.Float64()*20-10)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("CITYSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("CITYSIM_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		City:     cityOrch,
		Sim:      sim,
		Rituals:  ritualOrch,
		Bus:      eventBus,
		DB:       db,
		Cfg:      cfg,
		Port:     *apiPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	cityOrch.Start()

	fmt.Printf("\nThe city is alive: %d citizens across %d districts.\n", sim.Count(), len(cfg.Districts))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", *apiPort)
	fmt.Println("Running... (Ctrl+C to stop)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	cityOrch.Stop()
	fmt.Println("Simulation stopped. City state saved.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
