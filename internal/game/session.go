package game

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/internal/engine"
)

var uciMoveRx = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Session owns one board and its lifecycle. Mutating operations are
// serialized per session: a second caller gets ErrSessionBusy instead
// of queueing. Abort takes only the state lock, so it is never blocked
// by an in-flight engine search.
type Session struct {
	id         string
	matchID    int64
	mode       Mode
	difficulty string
	whiteID    int64
	blackID    int64
	createdAt  time.Time

	opMu sync.Mutex

	mu      sync.RWMutex
	game    *nchess.Game
	moves   []string
	status  Status
	result  string
	method  string
	endedAt time.Time
}

func NewSession(id string, matchID int64, mode Mode, difficulty string, whiteID, blackID int64) *Session {
	return &Session{
		id:         id,
		matchID:    matchID,
		mode:       mode,
		difficulty: difficulty,
		whiteID:    whiteID,
		blackID:    blackID,
		createdAt:  time.Now(),
		game:       nchess.NewGame(),
		status:     StatusActive,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) MatchID() int64 { return s.matchID }

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) Difficulty() string { return s.difficulty }

func (s *Session) WhiteID() int64 { return s.whiteID }

func (s *Session) BlackID() int64 { return s.blackID }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Result() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Session) Method() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.method
}

func (s *Session) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

func (s *Session) FEN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.game.FEN()
}

func (s *Session) Moves() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.moves))
	copy(out, s.moves)
	return out
}

// Turn reports whose move it is, "white" or "black".
func (s *Session) Turn() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return turnString(s.game)
}

// Opponent returns the other player's ID, or 0 when playerID is not a
// participant.
func (s *Session) Opponent(playerID int64) int64 {
	switch playerID {
	case s.whiteID:
		return s.blackID
	case s.blackID:
		return s.whiteID
	default:
		return 0
	}
}

// ColorOf reports "white" or "black" for a participant, "" otherwise.
func (s *Session) ColorOf(playerID int64) string {
	switch playerID {
	case s.whiteID:
		return "white"
	case s.blackID:
		return "black"
	default:
		return ""
	}
}

// ApplyMove validates and applies a UCI move from a human. clientFEN,
// when non-empty, is the board the client believes it is playing on:
// it must equal the tracked position (solo clients may also run one
// legal move ahead), otherwise the session is stale. A rejected move
// leaves the session untouched.
func (s *Session) ApplyMove(moveUCI, clientFEN string) (MoveResult, error) {
	if !s.opMu.TryLock() {
		return MoveResult{}, ErrSessionBusy
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return MoveResult{}, ErrAlreadyTerminal
	}

	moveUCI = strings.ToLower(strings.TrimSpace(moveUCI))
	if !uciMoveRx.MatchString(moveUCI) {
		return MoveResult{}, fmt.Errorf("%w: move %q is not coordinate notation", ErrMalformedInput, moveUCI)
	}

	g, moves, err := s.reconciledLocked(clientFEN)
	if err != nil {
		return MoveResult{}, err
	}
	if g.Outcome() != nchess.NoOutcome {
		return MoveResult{}, ErrAlreadyTerminal
	}

	pos := g.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, moveUCI)
	if err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, moveUCI)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := g.Move(mv, nil); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, moveUCI)
	}
	s.game = g
	s.moves = append(moves, moveUCI)
	s.settleOutcomeLocked()

	return MoveResult{
		UCI:      moveUCI,
		SAN:      san,
		FEN:      s.game.FEN(),
		Turn:     turnString(s.game),
		Status:   s.status,
		Result:   s.result,
		Method:   s.method,
		GameOver: s.status.Terminal(),
	}, nil
}

// RequestAIMove runs the engine for the current position. The state
// lock is dropped while the generator thinks, then the session status
// is re-checked: a result arriving after an abort is discarded.
func (s *Session) RequestAIMove(ctx context.Context, gen engine.Generator, clientFEN string) (AIMoveResult, error) {
	if !s.opMu.TryLock() {
		return AIMoveResult{}, ErrSessionBusy
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return AIMoveResult{}, ErrAlreadyTerminal
	}
	g, moves, err := s.reconciledLocked(clientFEN)
	if err != nil {
		s.mu.Unlock()
		return AIMoveResult{}, err
	}
	// The catch-up move, if any, is the client's own and commits here.
	s.game = g
	s.moves = moves
	s.settleOutcomeLocked()
	if s.status.Terminal() {
		// The client's last move ended the game; report it without
		// consulting the engine.
		res := AIMoveResult{
			FEN:      s.game.FEN(),
			Status:   s.status,
			Result:   s.result,
			Method:   s.method,
			GameOver: true,
		}
		s.mu.Unlock()
		return res, nil
	}
	fen := s.game.FEN()
	s.mu.Unlock()

	profile, _ := engine.ProfileFor(s.difficulty)
	started := time.Now()
	moveUCI, err := safeBestMove(ctx, gen, fen, profile)
	thinking := time.Since(started)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return AIMoveResult{}, err
		}
		return AIMoveResult{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return AIMoveResult{}, ErrAlreadyTerminal
	}

	if moveUCI == "" {
		// The engine declined to move; leave the position as is.
		return AIMoveResult{
			FEN:      s.game.FEN(),
			Status:   s.status,
			Thinking: thinking,
		}, nil
	}

	pos := s.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, moveUCI)
	if err != nil {
		return AIMoveResult{}, fmt.Errorf("%w: engine move %q rejected", ErrEngineUnavailable, moveUCI)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := s.game.Move(mv, nil); err != nil {
		return AIMoveResult{}, fmt.Errorf("%w: engine move %q rejected", ErrEngineUnavailable, moveUCI)
	}
	s.moves = append(s.moves, moveUCI)
	s.settleOutcomeLocked()

	return AIMoveResult{
		Move:     moveUCI,
		SAN:      san,
		FEN:      s.game.FEN(),
		Status:   s.status,
		Result:   s.result,
		Method:   s.method,
		GameOver: s.status.Terminal(),
		Thinking: thinking,
	}, nil
}

// Abort moves an active session to ABORTED. It returns false when the
// session is already terminal, so repeated aborts are harmless.
func (s *Session) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = StatusAborted
	s.result = ResultAborted
	s.method = "abort"
	s.endedAt = time.Now()
	return true
}

// reconciledLocked aligns the tracked board with the client's FEN and
// returns the game plus move list to operate on, touching nothing on
// the session itself: the caller commits only once its whole operation
// has succeeded, so a rejected move never leaves a half-applied board.
//
// Equal boards pass through. Solo sessions additionally adopt the
// client's starting position while no moves were made, and fast-forward
// a board exactly one legal move ahead of ours. Room clients replay
// every move through the relay, so a room board that differs from the
// tracked one is stale, never ahead.
func (s *Session) reconciledLocked(clientFEN string) (*nchess.Game, []string, error) {
	clientFEN = strings.TrimSpace(clientFEN)
	if clientFEN == "" || fenEqual(s.game.FEN(), clientFEN) {
		return s.game, s.moves, nil
	}

	if s.mode != ModeSolo {
		return nil, nil, fmt.Errorf("%w: client board diverged", ErrStaleSession)
	}

	if g, uci, ok := fastForwarded(s.game, clientFEN); ok {
		moves := append(append([]string(nil), s.moves...), uci)
		return g, moves, nil
	}
	if len(s.moves) == 0 {
		opt, err := nchess.FEN(clientFEN)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad FEN %q", ErrMalformedInput, clientFEN)
		}
		return nchess.NewGame(opt), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: client board diverged", ErrStaleSession)
}

// fastForwarded looks for the single legal move that turns g's position
// into clientFEN and returns the advanced board without touching g.
func fastForwarded(g *nchess.Game, clientFEN string) (*nchess.Game, string, bool) {
	valid := g.ValidMoves()
	for i := range valid {
		mv := valid[i]
		probe := g.Clone()
		if err := probe.Move(&mv, nil); err != nil {
			continue
		}
		if !fenEqual(probe.FEN(), clientFEN) {
			continue
		}
		return probe, nchess.UCINotation{}.Encode(g.Position(), &mv), true
	}
	return nil, "", false
}

func (s *Session) settleOutcomeLocked() {
	switch s.game.Outcome() {
	case nchess.WhiteWon:
		s.status = StatusCheckmate
		s.result = ResultWhiteWon
	case nchess.BlackWon:
		s.status = StatusCheckmate
		s.result = ResultBlackWon
	case nchess.Draw:
		s.status = StatusDraw
		s.result = ResultDraw
	default:
		return
	}
	s.method = strings.ToLower(s.game.Method().String())
	s.endedAt = time.Now()
}

func safeBestMove(ctx context.Context, gen engine.Generator, fen string, profile engine.SearchProfile) (mv string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return gen.BestMove(ctx, fen, profile)
}

func turnString(g *nchess.Game) string {
	if g.Position().Turn() == nchess.White {
		return "white"
	}
	return "black"
}

// fenEqual compares piece placement, side to move, castling rights and
// en-passant square, ignoring the move counters clients often drop.
func fenEqual(a, b string) bool {
	fa := strings.Fields(strings.TrimSpace(a))
	fb := strings.Fields(strings.TrimSpace(b))
	if len(fa) < 4 || len(fb) < 4 {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	for i := 0; i < 4; i++ {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
