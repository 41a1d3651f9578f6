// Package persistence provides SQLite-based market state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/engine"
)

// Record kinds and modifier scopes.
const (
	kindCurrent  = "current"
	kindPrevious = "previous"

	scopeActive  = "active"
	scopeApplied = "applied"

	metaWeek = "last_week"
)

// DB wraps a SQLite connection for market state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path, creating its
// directory if needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
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
	CREATE TABLE IF NOT EXISTS price_records (
		kind TEXT NOT NULL,
		product_id TEXT NOT NULL,
		price INTEGER NOT NULL,
		trend TEXT NOT NULL,
		change_percent REAL NOT NULL,
		week INTEGER NOT NULL,
		history_json TEXT NOT NULL,
		PRIMARY KEY (kind, product_id)
	);

	CREATE TABLE IF NOT EXISTS modifiers (
		scope TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		tier TEXT NOT NULL,
		target TEXT NOT NULL,
		multiplier REAL NOT NULL,
		remaining INTEGER NOT NULL,
		starts_at INTEGER NOT NULL,
		PRIMARY KEY (scope, id)
	);

	CREATE TABLE IF NOT EXISTS price_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		week INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		old_price INTEGER NOT NULL,
		new_price INTEGER NOT NULL,
		trend TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		week INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS market_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_changes_week ON price_changes(week);
	CREATE INDEX IF NOT EXISTS idx_events_week ON events(week);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type recordRow struct {
	Kind          string  `db:"kind"`
	ProductID     string  `db:"product_id"`
	Price         int64   `db:"price"`
	Trend         string  `db:"trend"`
	ChangePercent float64 `db:"change_percent"`
	Week          int     `db:"week"`
	HistoryJSON   string  `db:"history_json"`
}

type modifierRow struct {
	Scope      string  `db:"scope"`
	Seq        int     `db:"seq"`
	ID         string  `db:"id"`
	Name       string  `db:"name"`
	Tier       string  `db:"tier"`
	Target     string  `db:"target"`
	Multiplier float64 `db:"multiplier"`
	Remaining  int     `db:"remaining"`
	StartsAt   int     `db:"starts_at"`
}

// ChangeRow is one persisted change-log entry.
type ChangeRow struct {
	Week      int    `db:"week" json:"week"`
	ProductID string `db:"product_id" json:"product_id"`
	OldPrice  int64  `db:"old_price" json:"old_price"`
	NewPrice  int64  `db:"new_price" json:"new_price"`
	Trend     string `db:"trend" json:"trend"`
	Error     string `db:"error" json:"error,omitempty"`
}

// savePriceHistory replaces every record of one kind.
func savePriceHistory(tx *sqlx.Tx, kind string, history economy.PriceHistory) error {
	if _, err := tx.Exec("DELETE FROM price_records WHERE kind = ?", kind); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO price_records
		(kind, product_id, price, trend, change_percent, week, history_json)
		VALUES (:kind, :product_id, :price, :trend, :change_percent, :week, :history_json)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, rec := range history {
		historyJSON, err := json.Marshal(rec.History)
		if err != nil {
			return fmt.Errorf("encode history %s: %w", id, err)
		}
		row := recordRow{
			Kind:          kind,
			ProductID:     id,
			Price:         rec.Price,
			Trend:         rec.Trend.String(),
			ChangePercent: rec.ChangePercent,
			Week:          rec.Week,
			HistoryJSON:   string(historyJSON),
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert %s record %s: %w", kind, id, err)
		}
	}
	return nil
}

// saveModifiers replaces every modifier of one scope, keeping insertion order.
func saveModifiers(tx *sqlx.Tx, scope string, mods []economy.Modifier) error {
	if _, err := tx.Exec("DELETE FROM modifiers WHERE scope = ?", scope); err != nil {
		return err
	}
	for i, m := range mods {
		_, err := tx.NamedExec(`INSERT INTO modifiers
			(scope, seq, id, name, tier, target, multiplier, remaining, starts_at)
			VALUES (:scope, :seq, :id, :name, :tier, :target, :multiplier, :remaining, :starts_at)`,
			modifierRow{
				Scope:      scope,
				Seq:        i,
				ID:         m.ID.String(),
				Name:       m.Name,
				Tier:       m.Tier.String(),
				Target:     m.Target,
				Multiplier: m.Multiplier,
				Remaining:  m.Remaining,
				StartsAt:   m.StartsAt,
			})
		if err != nil {
			return fmt.Errorf("insert %s modifier %s: %w", scope, m.ID, err)
		}
	}
	return nil
}

// SaveMarketState performs a full save of the session in one transaction.
func (db *DB) SaveMarketState(sim *engine.Simulation) error {
	st := sim.Snapshot()
	slog.Info("saving market state", "week", st.Week, "products", len(st.History), "modifiers", len(st.Modifiers))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := savePriceHistory(tx, kindCurrent, st.History); err != nil {
		return fmt.Errorf("save price history: %w", err)
	}
	if err := savePriceHistory(tx, kindPrevious, st.Previous); err != nil {
		return fmt.Errorf("save previous prices: %w", err)
	}
	if err := saveModifiers(tx, scopeActive, st.Modifiers); err != nil {
		return fmt.Errorf("save modifiers: %w", err)
	}
	if err := saveModifiers(tx, scopeApplied, st.Applied); err != nil {
		return fmt.Errorf("save applied modifiers: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO market_meta (key, value) VALUES (?, ?)",
		metaWeek, strconv.Itoa(st.Week)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("market state saved", "week", st.Week)
	return nil
}

// HasMarketState reports whether a saved session exists.
func (db *DB) HasMarketState() (bool, error) {
	_, err := db.GetMeta(metaWeek)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// LoadMarketState reads a saved session back into a restorable state.
func (db *DB) LoadMarketState() (engine.State, error) {
	var st engine.State

	raw, err := db.GetMeta(metaWeek)
	if err != nil {
		return st, fmt.Errorf("load week: %w", err)
	}
	if st.Week, err = strconv.Atoi(raw); err != nil {
		return st, fmt.Errorf("parse week %q: %w", raw, err)
	}
	if st.History, err = db.LoadPriceHistory(); err != nil {
		return st, err
	}
	if st.Previous, err = db.loadPriceHistory(kindPrevious); err != nil {
		return st, err
	}
	if st.Modifiers, err = db.LoadModifiers(); err != nil {
		return st, err
	}
	if st.Applied, err = db.loadModifiers(scopeApplied); err != nil {
		return st, err
	}
	return st, nil
}

// LoadPriceHistory returns the committed records of the saved session.
func (db *DB) LoadPriceHistory() (economy.PriceHistory, error) {
	return db.loadPriceHistory(kindCurrent)
}

func (db *DB) loadPriceHistory(kind string) (economy.PriceHistory, error) {
	var rows []recordRow
	if err := db.conn.Select(&rows, "SELECT * FROM price_records WHERE kind = ?", kind); err != nil {
		return nil, fmt.Errorf("load %s records: %w", kind, err)
	}

	history := make(economy.PriceHistory, len(rows))
	for _, r := range rows {
		trend, err := economy.ParseTrend(r.Trend)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ProductID, err)
		}
		var h economy.History
		if err := json.Unmarshal([]byte(r.HistoryJSON), &h); err != nil {
			return nil, fmt.Errorf("record %s history: %w", r.ProductID, err)
		}
		history[r.ProductID] = economy.PriceRecord{
			Price:         r.Price,
			Trend:         trend,
			ChangePercent: r.ChangePercent,
			History:       h,
			Week:          r.Week,
		}
	}
	return history, nil
}

// LoadModifiers returns the live modifiers of the saved session in insertion order.
func (db *DB) LoadModifiers() ([]economy.Modifier, error) {
	return db.loadModifiers(scopeActive)
}

func (db *DB) loadModifiers(scope string) ([]economy.Modifier, error) {
	var rows []modifierRow
	if err := db.conn.Select(&rows, "SELECT * FROM modifiers WHERE scope = ? ORDER BY seq", scope); err != nil {
		return nil, fmt.Errorf("load %s modifiers: %w", scope, err)
	}

	mods := make([]economy.Modifier, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("modifier id %q: %w", r.ID, err)
		}
		tier, err := economy.ParseTier(r.Tier)
		if err != nil {
			return nil, fmt.Errorf("modifier %s: %w", r.ID, err)
		}
		mods = append(mods, economy.Modifier{
			ID:         id,
			Name:       r.Name,
			Tier:       tier,
			Target:     r.Target,
			Multiplier: r.Multiplier,
			Remaining:  r.Remaining,
			StartsAt:   r.StartsAt,
		})
	}
	return mods, nil
}

// SaveChanges appends one week's change log.
func (db *DB) SaveChanges(week int, changes []economy.ChangeEntry) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range changes {
		errText := ""
		if c.Err != nil {
			errText = c.Err.Error()
		}
		_, err := tx.Exec(
			"INSERT INTO price_changes (week, product_id, old_price, new_price, trend, error) VALUES (?, ?, ?, ?, ?, ?)",
			week, c.ProductID, c.OldPrice, c.NewPrice, c.Trend.String(), errText,
		)
		if err != nil {
			return fmt.Errorf("insert change %s: %w", c.ProductID, err)
		}
	}

	return tx.Commit()
}

// RecentChanges returns the most recent N change-log entries, newest first.
func (db *DB) RecentChanges(limit int) ([]ChangeRow, error) {
	var rows []ChangeRow
	err := db.conn.Select(&rows,
		"SELECT week, product_id, old_price, new_price, trend, error FROM price_changes ORDER BY id DESC LIMIT ?",
		limit,
	)
	return rows, err
}

// ProductChanges returns a product's change log, oldest first.
func (db *DB) ProductChanges(productID string) ([]ChangeRow, error) {
	var rows []ChangeRow
	err := db.conn.Select(&rows,
		"SELECT week, product_id, old_price, new_price, trend, error FROM price_changes WHERE product_id = ? ORDER BY id",
		productID,
	)
	return rows, err
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (week, description, category) VALUES (?, ?, ?)",
			e.Week, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT week, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in market metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO market_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM market_meta WHERE key = ?", key)
	return value, err
}
