package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
)

func parseMap(m map[string]string) (Config, error) {
	return parse(env.Options{Environment: m})
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parseMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.EmptyRoomGrace)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, engine.DefaultRules(), cfg.Rules())
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := parseMap(map[string]string{
		"MAX_PLAYERS":     "8",
		"TOTAL_ROUNDS":    "3",
		"ROUND_DURATION":  "45s",
		"PAYOUTS":         "500,250",
		"HOST_SUCCESSION": "none",
		"ALLOWED_ORIGINS": "localhost:*,example.com",
		"DATABASE_URL":    "postgres://localhost/tracks",
		"GUESS_RATE":      "2.5",
	})
	require.NoError(t, err)

	rules := cfg.Rules()
	assert.Equal(t, 8, rules.MaxPlayers)
	assert.Equal(t, 3, rules.TotalRounds)
	assert.Equal(t, 45*time.Second, rules.RoundDuration)
	assert.Equal(t, []int{500, 250}, rules.Payouts)
	assert.Equal(t, engine.SuccessionNone, rules.HostSuccession)
	assert.Equal(t, []string{"localhost:*", "example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.GuessRate)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"zero players":      {"MAX_PLAYERS": "0"},
		"zero rounds":       {"TOTAL_ROUNDS": "0"},
		"negative payout":   {"PAYOUTS": "100,-1"},
		"unknown host mode": {"HOST_SUCCESSION": "random"},
		"bad duration":      {"ROUND_DURATION": "soon"},
		"zero rate":         {"GUESS_RATE": "0"},
	}
	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseMap(environ)
			require.Error(t, err)
		})
	}
}

func TestParse_ValidationIsSentinel(t *testing.T) {
	_, err := parseMap(map[string]string{"MAX_PLAYERS": "0"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TOTAL_ROUNDS=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TOTAL_ROUNDS") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.TotalRounds)
}

func TestLoad_MissingFileTolerated(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
