package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/economy"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, economy.DefaultConfig(), cfg.Economy())
	assert.Equal(t, 52, cfg.GameWeeks)
	assert.Equal(t, 10*time.Second, cfg.WeekEvery)
	assert.Equal(t, "data/market.db", cfg.DBPath)
	assert.Empty(t, cfg.CatalogPath)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MARKET_GAME_WEEKS", "104")
	t.Setenv("TREND_SWITCH_WEEK", "52")
	t.Setenv("PRICE_CHANGE_MAX_RATIO", "0.2")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MARKET_WEEK_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 104, cfg.GameWeeks)
	assert.Equal(t, 52, cfg.Economy().TrendSwitchWeek)
	assert.Equal(t, 0.2, cfg.Economy().PriceChangeMaxRatio)
	assert.Equal(t, 250*time.Millisecond, cfg.WeekEvery)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.env")
	require.NoError(t, os.WriteFile(path, []byte("MARKET_ADMIN_KEY=s3cret\nMARKET_EVENT_CHANCE=0.5\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("MARKET_ADMIN_KEY")
		os.Unsetenv("MARKET_EVENT_CHANCE")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.AdminKey)
	assert.Equal(t, 0.5, cfg.EventChance)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"switch week outside game", "TREND_SWITCH_WEEK", "60"},
		{"ratio too large", "PRICE_CHANGE_MAX_RATIO", "1.5"},
		{"event chance", "MARKET_EVENT_CHANCE", "2"},
		{"log format", "LOG_FORMAT", "xml"},
		{"log level", "LOG_LEVEL", "loud"},
		{"history too short", "PRICE_HISTORY_LENGTH", "2"},
		{"zero interval", "MARKET_WEEK_INTERVAL", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.ErrorIs(t, err, economy.ErrConfiguration)
		})
	}
}

func TestLoad_MalformedValue(t *testing.T) {
	t.Setenv("MARKET_GAME_WEEKS", "many")
	_, err := Load()
	assert.Error(t, err)
}
