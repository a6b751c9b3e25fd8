package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`

	MaxPlayers     int           `env:"MAX_PLAYERS" envDefault:"4"`
	TotalRounds    int           `env:"TOTAL_ROUNDS" envDefault:"5"`
	RoundDuration  time.Duration `env:"ROUND_DURATION" envDefault:"20s"`
	Payouts        []int         `env:"PAYOUTS" envSeparator:"," envDefault:"1000,700,400,200"`
	HostSuccession string        `env:"HOST_SUCCESSION" envDefault:"promote"`
	EmptyRoomGrace time.Duration `env:"EMPTY_ROOM_GRACE" envDefault:"60s"`

	// Optional. When empty the built-in track list is used.
	DatabaseURL string `env:"DATABASE_URL"`

	GuessRate  float64 `env:"GUESS_RATE" envDefault:"10"`
	GuessBurst int     `env:"GUESS_BURST" envDefault:"20"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads files (default ".env") into the environment, then parses it.
// Missing files are fine; variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

func Parse() (Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.MaxPlayers < 1:
		return fmt.Errorf("%w: MAX_PLAYERS must be positive", ErrInvalid)
	case c.TotalRounds < 1:
		return fmt.Errorf("%w: TOTAL_ROUNDS must be positive", ErrInvalid)
	case c.RoundDuration <= 0:
		return fmt.Errorf("%w: ROUND_DURATION must be positive", ErrInvalid)
	case len(c.Payouts) == 0:
		return fmt.Errorf("%w: PAYOUTS must not be empty", ErrInvalid)
	case c.EmptyRoomGrace < 0:
		return fmt.Errorf("%w: EMPTY_ROOM_GRACE must not be negative", ErrInvalid)
	case c.GuessRate <= 0 || c.GuessBurst < 1:
		return fmt.Errorf("%w: GUESS_RATE and GUESS_BURST must be positive", ErrInvalid)
	}
	for _, p := range c.Payouts {
		if p < 0 {
			return fmt.Errorf("%w: PAYOUTS must not be negative", ErrInvalid)
		}
	}
	switch engine.HostSuccession(c.HostSuccession) {
	case engine.SuccessionPromote, engine.SuccessionNone:
	default:
		return fmt.Errorf("%w: HOST_SUCCESSION %q", ErrInvalid, c.HostSuccession)
	}
	return nil
}

func (c Config) Rules() engine.Rules {
	return engine.Rules{
		MaxPlayers:     c.MaxPlayers,
		TotalRounds:    c.TotalRounds,
		RoundDuration:  c.RoundDuration,
		Payouts:        append([]int(nil), c.Payouts...),
		HostSuccession: engine.HostSuccession(c.HostSuccession),
	}
}
