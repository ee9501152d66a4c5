package relay

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/domain"
	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/game"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// Conn is one connected player. Send must be safe for concurrent use.
type Conn interface {
	PlayerID() int64
	Send(env arenadto.Envelope) error
}

// Recorder archives finished games. Implementations must tolerate
// being called for aborted sessions.
type Recorder interface {
	Record(ctx context.Context, s *game.Session)
}

// Relay routes player messages to their sessions and session events
// back to the right connections. A player's own move is echoed back as
// move_accepted; only the opponent gets opponent_move.
type Relay struct {
	queue     *matchqueue.Queue
	registry  *registry.Registry
	generator engine.Generator
	recorder  Recorder

	defaultDifficulty string

	mu    sync.RWMutex
	conns map[int64]Conn
	wake  func()
}

// SetWake installs a callback fired after every enqueue, so the
// matchmaker can attempt a pairing without waiting for its tick.
func (r *Relay) SetWake(fn func()) {
	r.mu.Lock()
	r.wake = fn
	r.mu.Unlock()
}

func (r *Relay) kickMatcher() {
	r.mu.RLock()
	fn := r.wake
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func New(q *matchqueue.Queue, reg *registry.Registry, gen engine.Generator, rec Recorder, defaultDifficulty string) *Relay {
	if strings.TrimSpace(defaultDifficulty) == "" {
		defaultDifficulty = "medium"
	}
	return &Relay{
		queue:             q,
		registry:          reg,
		generator:         gen,
		recorder:          rec,
		defaultDifficulty: defaultDifficulty,
		conns:             make(map[int64]Conn),
	}
}

// Attach registers a live connection for the player.
func (r *Relay) Attach(c Conn) {
	r.mu.Lock()
	r.conns[c.PlayerID()] = c
	r.mu.Unlock()
}

// Detach tears down everything the player owns: their queue slot and,
// if they are mid-game, the session itself. Safe to call twice.
func (r *Relay) Detach(playerID int64) {
	r.mu.Lock()
	delete(r.conns, playerID)
	r.mu.Unlock()

	r.queue.Remove(playerID)

	if s, ok := r.registry.ByPlayer(playerID); ok {
		r.endSession(s, playerID)
	}
}

func (r *Relay) conn(playerID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[playerID]
	return c, ok
}

// OnMatch is the matchmaking engine's callback: it turns a pairing
// into a registered session and tells both players.
func (r *Relay) OnMatch(m domain.Match, white, black domain.QueueEntry) {
	s := game.NewSession(uuid.NewString(), m.MatchID, game.ModePvP, "", white.Player.ID, black.Player.ID)
	if err := r.registry.Register(s); err != nil {
		obslog.L().Warn("match_register_failed", zap.Int64("match_id", m.MatchID), zap.Error(err))
		// Give both players their slots back rather than dropping them.
		r.queue.Requeue(white)
		r.queue.Requeue(black)
		return
	}

	r.sendTo(white.Player.ID, arenadto.EvtMatchStarted, arenadto.MatchStartedPayload{
		GameID:        s.ID(),
		MatchID:       m.MatchID,
		Color:         "white",
		OpponentID:    black.Player.ID,
		OpponentName:  black.Player.DisplayName,
		OpponentSkill: black.Player.Skill,
		FEN:           s.FEN(),
	})
	r.sendTo(black.Player.ID, arenadto.EvtMatchStarted, arenadto.MatchStartedPayload{
		GameID:        s.ID(),
		MatchID:       m.MatchID,
		Color:         "black",
		OpponentID:    white.Player.ID,
		OpponentName:  white.Player.DisplayName,
		OpponentSkill: white.Player.Skill,
		FEN:           s.FEN(),
	})
}

func (r *Relay) HandleJoinQueue(c Conn, p arenadto.JoinQueuePayload) {
	if _, ok := r.activeSession(c.PlayerID()); ok {
		r.sendErr(c, arenadto.CodeNotInGame, "finish the current game first")
		return
	}
	// Re-joining while queued just refreshes the advertised skill;
	// the original wait position is kept.
	r.queue.Enqueue(domain.Player{ID: c.PlayerID(), Skill: p.Skill, DisplayName: strings.TrimSpace(p.DisplayName)})
	r.send(c, arenadto.EvtQueueJoined, arenadto.QueueJoinedPayload{Position: r.queue.Len()})
	obslog.L().Info("queue_join", zap.Int64("player", c.PlayerID()), zap.Int("skill", p.Skill))
	r.kickMatcher()
}

func (r *Relay) HandleLeaveQueue(c Conn) {
	if r.queue.Remove(c.PlayerID()) {
		obslog.L().Info("queue_leave", zap.Int64("player", c.PlayerID()))
	}
}

// HandleStartSolo creates a session against the engine. The player is
// white; there is no opponent connection.
func (r *Relay) HandleStartSolo(c Conn, p arenadto.StartSoloPayload) {
	if _, ok := r.activeSession(c.PlayerID()); ok {
		r.sendErr(c, arenadto.CodeNotInGame, "finish the current game first")
		return
	}
	difficulty := strings.TrimSpace(p.Difficulty)
	if difficulty == "" {
		difficulty = r.defaultDifficulty
	}
	s := game.NewSession(uuid.NewString(), 0, game.ModeSolo, difficulty, c.PlayerID(), 0)
	if err := r.registry.Register(s); err != nil {
		if errors.Is(err, registry.ErrFull) {
			r.sendErr(c, arenadto.CodeServerFull, "no capacity for new games")
			return
		}
		r.sendErr(c, arenadto.CodeNotInGame, err.Error())
		return
	}
	r.send(c, arenadto.EvtMatchStarted, arenadto.MatchStartedPayload{
		GameID:     s.ID(),
		Color:      "white",
		Difficulty: difficulty,
		FEN:        s.FEN(),
	})
	obslog.L().Info("solo_started", zap.Int64("player", c.PlayerID()), zap.String("difficulty", difficulty))
}

func (r *Relay) HandleMove(c Conn, p arenadto.MovePayload) {
	s, ok := r.sessionFor(c, p.GameID)
	if !ok {
		return
	}

	color := s.ColorOf(c.PlayerID())
	if s.Mode() == game.ModePvP && s.Status() == game.StatusActive && color != s.Turn() {
		r.reject(c, p.GameID, p.Move, arenadto.CodeNotYourTurn, "opponent to move")
		return
	}

	res, err := s.ApplyMove(p.Move, p.FEN)
	if err != nil {
		r.reject(c, p.GameID, p.Move, codeFor(err), err.Error())
		return
	}

	r.send(c, arenadto.EvtMoveAccepted, arenadto.MoveAcceptedPayload{
		GameID: s.ID(), Move: res.UCI, SAN: res.SAN, FEN: res.FEN, Turn: res.Turn,
	})
	if peer := s.Opponent(c.PlayerID()); peer != 0 {
		r.sendTo(peer, arenadto.EvtOpponentMove, arenadto.OpponentMovePayload{
			GameID: s.ID(), Move: res.UCI, SAN: res.SAN, FEN: res.FEN, Turn: res.Turn,
		})
	}

	obslog.L().Info("move_applied",
		zap.String("game_id", s.ID()),
		zap.Int64("player", c.PlayerID()),
		zap.String("move", res.UCI),
		zap.Bool("game_over", res.GameOver),
	)

	if res.GameOver {
		r.finish(s)
	}
}

// HandleAIMoveRequest runs the engine for a solo session. Every request
// gets exactly one reply, ai_move_result or a rejection. The one
// exception is a request that lost to a concurrent abort: the session
// is gone from the registry and the abort path already sent game_over.
func (r *Relay) HandleAIMoveRequest(ctx context.Context, c Conn, p arenadto.AIMoveRequestPayload) {
	s, ok := r.sessionFor(c, p.GameID)
	if !ok {
		return
	}
	if s.Mode() != game.ModeSolo {
		r.sendErr(c, arenadto.CodeNotInGame, "not an engine game")
		return
	}

	res, err := s.RequestAIMove(ctx, r.generator, p.FEN)
	if err != nil {
		if errors.Is(err, game.ErrAlreadyTerminal) {
			if _, live := r.registry.Get(s.ID()); !live {
				return
			}
		}
		r.reject(c, p.GameID, "", codeFor(err), err.Error())
		return
	}

	r.send(c, arenadto.EvtAIMoveResult, arenadto.AIMoveResultPayload{
		GameID:     s.ID(),
		Move:       res.Move,
		SAN:        res.SAN,
		FEN:        res.FEN,
		Status:     string(res.Status),
		GameOver:   res.GameOver,
		Result:     res.Result,
		Method:     res.Method,
		ThinkingMS: res.Thinking.Milliseconds(),
	})
	if res.GameOver {
		r.finish(s)
	}
}

func (r *Relay) HandleResign(c Conn, gameID string) {
	s, ok := r.sessionFor(c, gameID)
	if !ok {
		return
	}
	r.endSession(s, c.PlayerID())
}

// finish reports and archives a session that ended on the board. The
// session stays registered so a late move or engine request still finds
// it and gets already_terminal; teardown happens on disconnect or when
// the player starts their next game.
func (r *Relay) finish(s *game.Session) {
	over := arenadto.GameOverPayload{
		GameID: s.ID(),
		Status: string(s.Status()),
		Result: s.Result(),
		Method: s.Method(),
	}
	r.sendTo(s.WhiteID(), arenadto.EvtGameOver, over)
	r.sendTo(s.BlackID(), arenadto.EvtGameOver, over)
	r.record(s)
}

// endSession aborts a session on behalf of leaver (resign or
// disconnect) and notifies the peer exactly once. Unregister gates the
// notification, so racing disconnects cannot double-send.
func (r *Relay) endSession(s *game.Session, leaver int64) {
	if _, ok := r.registry.Unregister(s.ID()); !ok {
		return
	}
	if !s.Abort() {
		// The game already ended on the board; finish reported and
		// archived it, so this is a plain teardown.
		return
	}

	over := arenadto.GameOverPayload{
		GameID: s.ID(),
		Status: string(s.Status()),
		Result: s.Result(),
		Method: s.Method(),
	}
	if peer := s.Opponent(leaver); peer != 0 {
		r.sendTo(peer, arenadto.EvtOpponentLeft, arenadto.OpponentLeftPayload{GameID: s.ID()})
		r.sendTo(peer, arenadto.EvtGameOver, over)
	}
	r.sendTo(leaver, arenadto.EvtGameOver, over)

	obslog.L().Info("session_ended",
		zap.String("game_id", s.ID()),
		zap.Int64("leaver", leaver),
		zap.String("status", string(s.Status())),
	)
	r.record(s)
}

func (r *Relay) record(s *game.Session) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(context.Background(), s)
}

// activeSession reports the player's current in-progress session.
// A finished session still registered for late lookups does not count;
// asking for something new is the explicit reset, so it is torn down
// here.
func (r *Relay) activeSession(playerID int64) (*game.Session, bool) {
	s, ok := r.registry.ByPlayer(playerID)
	if !ok {
		return nil, false
	}
	if s.Status().Terminal() {
		r.registry.Unregister(s.ID())
		return nil, false
	}
	return s, true
}

func (r *Relay) sessionFor(c Conn, gameID string) (*game.Session, bool) {
	s, ok := r.registry.Get(strings.TrimSpace(gameID))
	if !ok || s.ColorOf(c.PlayerID()) == "" {
		r.sendErr(c, arenadto.CodeNotInGame, "no such game for player")
		return nil, false
	}
	return s, true
}

func (r *Relay) reject(c Conn, gameID, move, code, detail string) {
	r.send(c, arenadto.EvtMoveRejected, arenadto.MoveRejectedPayload{
		GameID: gameID, Move: move, Code: code, Detail: detail,
	})
}

func (r *Relay) sendErr(c Conn, code, detail string) {
	r.send(c, arenadto.EvtError, arenadto.ErrorPayload{Code: code, Detail: detail})
}

func (r *Relay) send(c Conn, typ string, payload any) {
	env, err := arenadto.NewEnvelope(typ, payload)
	if err != nil {
		obslog.L().Error("envelope_marshal_failed", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := c.Send(env); err != nil {
		obslog.L().Warn("send_failed", zap.Int64("player", c.PlayerID()), zap.String("type", typ), zap.Error(err))
	}
}

func (r *Relay) sendTo(playerID int64, typ string, payload any) {
	if c, ok := r.conn(playerID); ok {
		r.send(c, typ, payload)
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, game.ErrMalformedInput):
		return arenadto.CodeMalformedInput
	case errors.Is(err, game.ErrIllegalMove):
		return arenadto.CodeIllegalMove
	case errors.Is(err, game.ErrStaleSession):
		return arenadto.CodeStaleSession
	case errors.Is(err, game.ErrSessionBusy):
		return arenadto.CodeSessionBusy
	case errors.Is(err, game.ErrEngineUnavailable):
		return arenadto.CodeEngineUnavailable
	case errors.Is(err, game.ErrAlreadyTerminal):
		return arenadto.CodeAlreadyTerminal
	default:
		return arenadto.CodeEngineUnavailable
	}
}
