// Package engine provides the week-based game loop and the simulation state it drives.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Calendar constants.
const (
	WeeksPerSeason   = 13
	SeasonsPerYear   = 4
	DefaultGameWeeks = WeeksPerSeason * SeasonsPerYear
)

// ErrEngineRunning is returned by Advance while Run is stepping on its own.
var ErrEngineRunning = errors.New("engine is advancing on its own")

// Engine drives the simulation forward one week at a time. Run and Step may be
// called from different goroutines; weeks are processed one at a time.
type Engine struct {
	GameWeeks int           // Game ends after this week
	Interval  time.Duration // Base time per week when running on its own

	mu    sync.Mutex // Guards week and speed
	week  int        // Last processed week (0 = not started)
	speed float64    // Multiplier: 1.0 = one week per Interval, 0 = paused

	stepMu  sync.Mutex // Held for the whole of a step, callbacks included
	running atomic.Bool

	// Callbacks, populated during setup.
	OnSeason   func(week int) // First week of each season, before OnWeek
	OnWeek     func(week int) // Every week
	OnGameOver func(week int) // After the final week
}

// NewEngine creates an engine for a game of gameWeeks weeks.
func NewEngine(gameWeeks int) *Engine {
	if gameWeeks < 1 {
		gameWeeks = DefaultGameWeeks
	}
	return &Engine{
		GameWeeks: gameWeeks,
		Interval:  time.Second,
		speed:     1.0,
	}
}

// Week returns the last processed week.
func (e *Engine) Week() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.week
}

// SetWeek positions the engine after week, for resuming a saved game.
func (e *Engine) SetWeek(week int) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	e.mu.Lock()
	e.week = week
	e.mu.Unlock()
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier; 0 pauses Run.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Finished reports whether the final week has been processed.
func (e *Engine) Finished() bool {
	return e.Week() >= e.GameWeeks
}

// Run advances weeks on a timer until Stop is called or the game ends.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("market engine started", "week", e.Week(), "game_weeks", e.GameWeeks, "speed", e.Speed())

	for e.running.Load() && !e.Finished() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.stepMu.Lock()
		// A turn may have been taken, or the engine paused, while waiting.
		if e.Speed() > 0 {
			e.step()
		}
		e.stepMu.Unlock()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	e.running.Store(false)
	slog.Info("market engine stopped", "week", e.Week())
}

// Stop halts the loop after the current week.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step processes exactly one week. Returns false once the game is over.
func (e *Engine) Step() bool {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	return e.step()
}

// Advance takes one turn: it processes a week unless Run is stepping on its
// own, in which case it returns ErrEngineRunning. The check and the step are
// one operation with respect to Run.
func (e *Engine) Advance() (bool, error) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	if e.running.Load() && e.Speed() > 0 {
		return false, ErrEngineRunning
	}
	return e.step(), nil
}

// step must be called with stepMu held.
func (e *Engine) step() bool {
	e.mu.Lock()
	if e.week >= e.GameWeeks {
		e.mu.Unlock()
		return false
	}
	e.week++
	week := e.week
	e.mu.Unlock()

	if (week-1)%WeeksPerSeason == 0 && e.OnSeason != nil {
		e.OnSeason(week)
	}
	if e.OnWeek != nil {
		e.OnWeek(week)
	}
	if week >= e.GameWeeks && e.OnGameOver != nil {
		e.OnGameOver(week)
	}
	return true
}

// GameTime returns a human-readable label for a week number.
func GameTime(week int) string {
	if week <= 0 {
		return "Before the market opens"
	}
	weekOfSeason := (week-1)%WeeksPerSeason + 1
	year := (week-1)/(WeeksPerSeason*SeasonsPerYear) + 1
	return fmt.Sprintf("%s Week %d, Year %d", SeasonName(SeasonOf(week)), weekOfSeason, year)
}
