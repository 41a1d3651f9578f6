// Package api provides the HTTP API for querying market state.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/persistence"
)

// Server serves the market state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; snapshot and change history need it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	EventsPerHour int  // Admin event rate per client. 0 = 30.
	TrustProxy    bool // Key the rate limit on X-Forwarded-For
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	rate := s.EventsPerHour
	if rate <= 0 {
		rate = 30
	}
	eventLimiter := NewRateLimiter(rate, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/locations", s.handleLocations)
	mux.HandleFunc("GET /api/v1/location/{id}/prices", s.handleLocationPrices)
	mux.HandleFunc("GET /api/v1/quote", s.handleQuote)
	mux.HandleFunc("GET /api/v1/prices", s.handlePrices)
	mux.HandleFunc("GET /api/v1/modifiers", s.handleModifiers)
	mux.HandleFunc("GET /api/v1/changes", s.handleChanges)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("POST /api/v1/event", s.adminOnly(RateLimitMiddleware(eventLimiter, s.TrustProxy, s.handleEvent)))
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/advance", s.adminOnly(s.handleAdvance))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
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
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no MARKET_ADMIN_KEY set)", http.StatusForbidden)
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
	week := s.Sim.Week()
	stats := s.Sim.Stats()

	status := map[string]any{
		"name":              "Mini Market",
		"week":              week,
		"game_time":         engine.GameTime(week),
		"season":            engine.SeasonName(engine.SeasonOf(week)),
		"game_weeks":        s.Eng.GameWeeks,
		"finished":          s.Eng.Finished(),
		"speed":             s.Eng.Speed(),
		"running":           s.Eng.Running(),
		"products":          len(s.Sim.Catalog().Products),
		"locations":         len(s.Sim.Catalog().Locations),
		"market_value":      stats.TotalValue,
		"market_value_text": humanize.Comma(stats.TotalValue) + " crowns",
		"rising":            stats.Rising,
		"falling":           stats.Falling,
		"volatile":          stats.Volatile,
		"failures":          stats.Failures,
		"active_modifiers":  stats.ActiveModifiers,
		"cached_prices":     s.Sim.Market().Cache().Len(),
	}
	writeJSON(w, status)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	type locationSummary struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Factor   float64 `json:"factor"`
		Products int     `json:"products"`
	}

	cat := s.Sim.Catalog()
	result := make([]locationSummary, 0, len(cat.Locations))
	for _, loc := range cat.Locations {
		n := 0
		for _, p := range cat.Products {
			if p.SoldAt(loc.ID) {
				n++
			}
		}
		result = append(result, locationSummary{ID: loc.ID, Name: loc.Name, Factor: loc.Factor, Products: n})
	}
	writeJSON(w, result)
}

// listing is one priced row as served to clients.
type listing struct {
	ProductID     string             `json:"product_id"`
	Name          string             `json:"name"`
	Category      string             `json:"category"`
	Price         int64              `json:"price"`
	Trend         economy.TrendLabel `json:"trend"`
	ChangePercent float64            `json:"change_percent"`
	Error         string             `json:"error,omitempty"`
}

func toListing(lp economy.LocationPrice) listing {
	l := listing{
		ProductID:     lp.Product.ID,
		Name:          lp.Product.Name,
		Category:      lp.Product.Category,
		Price:         lp.Result.Price,
		Trend:         lp.Result.Trend,
		ChangePercent: lp.Result.ChangePercent,
	}
	if lp.Err != nil {
		l.Error = lp.Err.Error()
	}
	return l
}

// writeLookupError maps read-side errors to HTTP statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownLocation), errors.Is(err, engine.ErrUnknownProduct):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrNotSoldHere), errors.Is(err, engine.ErrMarketClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleLocationPrices(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rows, err := s.Sim.PricesAt(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	prices := make([]listing, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, toListing(row))
	}
	writeJSON(w, map[string]any{
		"location": id,
		"week":     s.Sim.Week(),
		"prices":   prices,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	product, location := q.Get("product"), q.Get("location")
	if product == "" || location == "" {
		http.Error(w, "product and location required", http.StatusBadRequest)
		return
	}

	quote, err := s.Sim.Quote(product, location)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"location": location,
		"week":     s.Sim.Week(),
		"quote":    toListing(quote),
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	type priceSummary struct {
		ProductID     string             `json:"product_id"`
		Name          string             `json:"name"`
		Price         int64              `json:"price"`
		Trend         economy.TrendLabel `json:"trend"`
		ChangePercent float64            `json:"change_percent"`
		History       []int64            `json:"history"`
		Week          int                `json:"week"`
	}

	history := s.Sim.History()
	products := s.Sim.Catalog().Products
	result := make([]priceSummary, 0, len(products))
	for _, p := range products {
		rec, ok := history[p.ID]
		if !ok {
			continue
		}
		result = append(result, priceSummary{
			ProductID:     p.ID,
			Name:          p.Name,
			Price:         rec.Price,
			Trend:         rec.Trend,
			ChangePercent: rec.ChangePercent,
			History:       rec.History,
			Week:          rec.Week,
		})
	}
	writeJSON(w, result)
}

func (s *Server) handleModifiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Modifiers())
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	if s.DB != nil {
		rows, err := s.DB.RecentChanges(limit)
		if err != nil {
			slog.Error("change history query failed", "error", err)
			http.Error(w, "change history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows)
		return
	}

	// No database: serve the last week's log from memory.
	week := s.Sim.Week()
	changes := s.Sim.Changes()
	rows := make([]persistence.ChangeRow, 0, len(changes))
	for _, c := range changes {
		row := persistence.ChangeRow{
			Week:      week,
			ProductID: c.ProductID,
			OldPrice:  c.OldPrice,
			NewPrice:  c.NewPrice,
			Trend:     c.Trend.String(),
		}
		if c.Err != nil {
			row.Error = c.Err.Error()
		}
		rows = append(rows, row)
		if len(rows) == limit {
			break
		}
	}
	writeJSON(w, rows)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Events(queryInt(r, "limit", 50)))
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev engine.MarketEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if ev.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	ev.Source = engine.SourceAdmin

	added, err := s.Sim.ApplyEvent(ev)
	if err != nil {
		if errors.Is(err, economy.ErrConfiguration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("market event failed", "name", ev.Name, "error", err)
		http.Error(w, "event failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"success":   true,
		"week":      s.Sim.Week(),
		"modifiers": added,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Eng.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleAdvance ends the current turn: exactly one week is processed.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	stepped, err := s.Eng.Advance()
	if errors.Is(err, engine.ErrEngineRunning) {
		http.Error(w, "engine is advancing on its own; pause it first", http.StatusConflict)
		return
	}
	if !stepped {
		http.Error(w, "game over", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{
		"week":      s.Sim.Week(),
		"game_time": engine.GameTime(s.Sim.Week()),
		"finished":  s.Eng.Finished(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveMarketState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"week":    s.Sim.Week(),
		"message": "snapshot saved",
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
