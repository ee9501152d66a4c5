package registry

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/game"
	"github.com/park285/chess-arena/internal/obslog"
)

var (
	ErrFull          = errors.New("registry at capacity")
	ErrDuplicateGame = errors.New("game id already registered")
	ErrPlayerInGame  = errors.New("player already in a game")
)

// Registry tracks live sessions by game ID and by participant.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*game.Session
	byPlayer map[int64]*game.Session
	max      int
}

func New(maxGames int) *Registry {
	return &Registry{
		byID:     make(map[string]*game.Session),
		byPlayer: make(map[int64]*game.Session),
		max:      maxGames,
	}
}

func (r *Registry) Register(s *game.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.byID) >= r.max {
		return ErrFull
	}
	if _, ok := r.byID[s.ID()]; ok {
		return ErrDuplicateGame
	}
	for _, pid := range participants(s) {
		if _, ok := r.byPlayer[pid]; ok {
			return ErrPlayerInGame
		}
	}

	r.byID[s.ID()] = s
	for _, pid := range participants(s) {
		r.byPlayer[pid] = s
	}
	obslog.L().Info("session_registered",
		zap.String("game_id", s.ID()),
		zap.String("mode", string(s.Mode())),
		zap.Int("live", len(r.byID)),
	)
	return nil
}

func (r *Registry) Get(gameID string) (*game.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[gameID]
	return s, ok
}

func (r *Registry) ByPlayer(playerID int64) (*game.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byPlayer[playerID]
	return s, ok
}

// Unregister removes a session and returns it. A second call for the
// same game is a no-op returning false.
func (r *Registry) Unregister(gameID string) (*game.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[gameID]
	if !ok {
		return nil, false
	}
	delete(r.byID, gameID)
	for _, pid := range participants(s) {
		if r.byPlayer[pid] == s {
			delete(r.byPlayer, pid)
		}
	}
	obslog.L().Info("session_unregistered",
		zap.String("game_id", gameID),
		zap.Int("live", len(r.byID)),
	)
	return s, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot lists the live sessions, for the ops endpoint.
func (r *Registry) Snapshot() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*game.Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// participants skips the zero ID that solo sessions use for the
// engine side.
func participants(s *game.Session) []int64 {
	var out []int64
	if s.WhiteID() != 0 {
		out = append(out, s.WhiteID())
	}
	if s.BlackID() != 0 {
		out = append(out, s.BlackID())
	}
	return out
}
