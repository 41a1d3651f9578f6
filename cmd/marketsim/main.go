// Command marketsim runs the weekly market price simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-market/internal/api"
	"github.com/talgya/mini-market/internal/catalog"
	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	level, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("Mini Market: weekly price simulation",
		"game_weeks", cfg.GameWeeks,
		"trend_switch_week", cfg.TrendSwitchWeek,
		"max_change", cfg.PriceChangeMaxRatio,
	)

	// ── Catalog ───────────────────────────────────────────────────────
	// A malformed catalog is the one condition the market cannot run with.
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			slog.Error("catalog rejected", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("catalog loaded", "products", len(cat.Products), "locations", len(cat.Locations), "categories", len(cat.Categories()))

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Market ────────────────────────────────────────────────────────
	market, err := economy.NewMarket(cfg.Economy(), economy.NewPriceCache(cfg.CacheSize, cfg.CacheRetention))
	if err != nil {
		slog.Error("invalid economy configuration", "error", err)
		os.Exit(1)
	}
	sim := engine.NewSimulation(cat, market)

	hasState, err := db.HasMarketState()
	if err != nil {
		slog.Error("failed to check saved state", "error", err)
		os.Exit(1)
	}
	if hasState {
		slog.Info("found saved market state, loading...")
		st, err := db.LoadMarketState()
		if err != nil {
			slog.Error("failed to load market state", "error", err)
			os.Exit(1)
		}
		if err := sim.Restore(st); err != nil {
			slog.Error("failed to restore market state", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("no saved state found, opening a fresh market")
		if err := db.SaveMarketState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(cfg.GameWeeks)
	eng.Interval = cfg.WeekEvery
	sim.Attach(eng, cfg.EventChance)

	// Persist every week after the simulation has processed it.
	onWeek := eng.OnWeek
	eng.OnWeek = func(week int) {
		onWeek(week)
		if err := db.SaveChanges(week, sim.Changes()); err != nil {
			slog.Error("change log save failed", "week", week, "error", err)
		}
		if err := db.SaveEvents(weekEvents(sim, week)); err != nil {
			slog.Error("event save failed", "week", week, "error", err)
		}
		if err := db.SaveMarketState(sim); err != nil {
			slog.Error("weekly save failed", "week", week, "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("MARKET_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:           sim,
		Eng:           eng,
		DB:            db,
		Port:          cfg.APIPort,
		AdminKey:      cfg.AdminKey,
		EventsPerHour: cfg.EventsPerHr,
		TrustProxy:    cfg.TrustProxy,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
		close(done)
	}()

	stats := sim.Stats()
	fmt.Printf("\nThe market is open: %d goods across %d towns, worth %s crowns.\n",
		len(cat.Products), len(cat.Locations), humanize.Comma(stats.TotalValue))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if w := sim.Week(); w > 0 {
		fmt.Printf("Resuming after week %d (%s)\n", w, engine.GameTime(w))
	}
	if eng.Finished() {
		fmt.Println("This game is already over; serving its final prices. (Ctrl+C to stop)")
		<-done
	} else {
		fmt.Println("Starting simulation... (Ctrl+C to stop)")
		eng.Run()
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveMarketState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Market state saved.")
}

// weekEvents returns the events recorded for week.
func weekEvents(sim *engine.Simulation, week int) []engine.Event {
	var out []engine.Event
	for _, ev := range sim.Events(0) {
		if ev.Week == week {
			out = append(out, ev)
		}
	}
	return out
}
