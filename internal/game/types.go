package game

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a session. Terminal states are
// final: no transition ever leaves them.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCheckmate Status = "CHECKMATE"
	StatusDraw      Status = "DRAW"
	StatusAborted   Status = "ABORTED"
)

func (s Status) Terminal() bool { return s != StatusActive }

// Mode distinguishes human-vs-human sessions from solo games against
// the engine.
type Mode string

const (
	ModePvP  Mode = "pvp"
	ModeSolo Mode = "solo"
)

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrIllegalMove       = errors.New("illegal move")
	ErrStaleSession      = errors.New("stale session state")
	ErrSessionBusy       = errors.New("session busy")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrAlreadyTerminal   = errors.New("session already terminal")
)

// Result strings for finished games.
const (
	ResultWhiteWon = "white_won"
	ResultBlackWon = "black_won"
	ResultDraw     = "draw"
	ResultAborted  = "aborted"
)

// MoveResult describes the session state after a successfully applied
// human move.
type MoveResult struct {
	UCI      string
	SAN      string
	FEN      string
	Turn     string
	Status   Status
	Result   string
	Method   string
	GameOver bool
}

// AIMoveResult describes the outcome of an engine move request. Move
// is empty when the position was already decided before the engine ran
// or when the engine had nothing to play. Thinking is the generator's
// wall-clock time.
type AIMoveResult struct {
	Move     string
	SAN      string
	FEN      string
	Status   Status
	Result   string
	Method   string
	GameOver bool
	Thinking time.Duration
}
