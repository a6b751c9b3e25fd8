// Package catalog supplies the items rounds are played with.
//
// Rooms draw from a Catalog while holding their state, so Next must never
// block on I/O. Tracks stored in postgres are loaded once at startup and
// served from memory.
package catalog

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
)

var ErrEmptyCatalog = errors.New("catalog has no items")

type Catalog interface {
	Next() engine.Item
}

// Static hands out its items in shuffled order and reshuffles once every
// item has been played, so a track does not repeat within a pass.
type Static struct {
	mu    sync.Mutex
	items []engine.Item
	bag   []int
	rng   *rand.Rand
}

type Option func(*Static)

func WithRand(rng *rand.Rand) Option {
	return func(s *Static) { s.rng = rng }
}

func NewStatic(items []engine.Item, opts ...Option) (*Static, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}
	s := &Static{
		items: append([]engine.Item(nil), items...),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Static) Next() engine.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bag) == 0 {
		s.bag = s.rng.Perm(len(s.items))
	}
	i := s.bag[len(s.bag)-1]
	s.bag = s.bag[:len(s.bag)-1]
	return s.items[i]
}

func (s *Static) Len() int { return len(s.items) }

// DefaultTracks is the built-in set used when no database is configured.
func DefaultTracks() []engine.Item {
	return []engine.Item{
		{ID: "flashing-lights", Title: "Flashing Lights", AnswerKey: "flashing lights", MediaRef: "/songs/flashing lights-kanye west Explicit version.mp3"},
		{ID: "heartless", Title: "Heartless", AnswerKey: "heartless", MediaRef: "/songs/kanye-west-heartless-128-ytshorts.savetube.me.mp3"},
		{ID: "runaway", Title: "Runaway", AnswerKey: "runaway", MediaRef: "/songs/kanye-west-runaway-video-version-ft-pusha-t-128-ytshorts.savetube.me.mp3"},
	}
}
