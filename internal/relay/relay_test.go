package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/pkg/arenadto"
)

type fakeConn struct {
	id int64
	mu sync.Mutex
	// received envelopes in order
	evs []arenadto.Envelope
}

func (f *fakeConn) PlayerID() int64 { return f.id }

func (f *fakeConn) Send(env arenadto.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evs = append(f.evs, env)
	return nil
}

func (f *fakeConn) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (f *fakeConn) last(t *testing.T, typ string, out any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.evs) - 1; i >= 0; i-- {
		if f.evs[i].Type == typ {
			if out != nil {
				if err := json.Unmarshal(f.evs[i].Payload, out); err != nil {
					t.Fatalf("decode %s: %v", typ, err)
				}
			}
			return
		}
	}
	t.Fatalf("conn %d never received %s", f.id, typ)
}

func fixedGen(move string) engine.Generator {
	return engine.GeneratorFunc(func(ctx context.Context, fen string, p engine.SearchProfile) (string, error) {
		return move, nil
	})
}

func newArena(t *testing.T, gen engine.Generator) (*Relay, *matchmaking.Engine, *matchqueue.Queue, *registry.Registry) {
	t.Helper()
	q := matchqueue.New()
	reg := registry.New(100)
	r := New(q, reg, gen, nil, "medium")
	mm := matchmaking.NewEngine(q, matchmaking.Policy{BaseGap: 150}, r.OnMatch)
	return r, mm, q, reg
}

func pairTwo(t *testing.T, r *Relay, mm *matchmaking.Engine) (white, black *fakeConn, gameID string) {
	t.Helper()
	a := &fakeConn{id: 1}
	b := &fakeConn{id: 2}
	r.Attach(a)
	r.Attach(b)
	r.HandleJoinQueue(a, arenadto.JoinQueuePayload{Skill: 1200})
	r.HandleJoinQueue(b, arenadto.JoinQueuePayload{Skill: 1210})
	if !mm.TryPair() {
		t.Fatalf("pairing failed")
	}
	var pa, pb arenadto.MatchStartedPayload
	a.last(t, arenadto.EvtMatchStarted, &pa)
	b.last(t, arenadto.EvtMatchStarted, &pb)
	if pa.GameID != pb.GameID {
		t.Fatalf("players got different games")
	}
	if pa.Color != "white" || pb.Color != "black" {
		t.Fatalf("first to queue must be white: %q/%q", pa.Color, pb.Color)
	}
	return a, b, pa.GameID
}

func TestMatchStartedBothSides(t *testing.T) {
	r, mm, q, reg := newArena(t, nil)
	a, b, _ := pairTwo(t, r, mm)
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after pairing")
	}
	if reg.Count() != 1 {
		t.Fatalf("one live session expected")
	}
	var pa arenadto.MatchStartedPayload
	a.last(t, arenadto.EvtMatchStarted, &pa)
	if pa.OpponentID != b.id {
		t.Fatalf("opponent id=%d want %d", pa.OpponentID, b.id)
	}
	if pa.OpponentSkill != 1210 {
		t.Fatalf("opponent skill=%d want 1210", pa.OpponentSkill)
	}
}

func TestMoveForwardedToPeerOnly(t *testing.T) {
	r, mm, _, _ := newArena(t, nil)
	a, b, gameID := pairTwo(t, r, mm)

	r.HandleMove(a, arenadto.MovePayload{GameID: gameID, Move: "e2e4"})

	if a.count(arenadto.EvtMoveAccepted) != 1 {
		t.Fatalf("sender must get move_accepted")
	}
	if a.count(arenadto.EvtOpponentMove) != 0 {
		t.Fatalf("sender must not get their own move echoed")
	}
	var om arenadto.OpponentMovePayload
	b.last(t, arenadto.EvtOpponentMove, &om)
	if om.Move != "e2e4" || om.SAN != "e4" || om.Turn != "black" {
		t.Fatalf("opponent_move=%+v", om)
	}
}

func TestRejectionGoesToSenderOnly(t *testing.T) {
	r, mm, _, _ := newArena(t, nil)
	a, b, gameID := pairTwo(t, r, mm)

	r.HandleMove(a, arenadto.MovePayload{GameID: gameID, Move: "e2e5"})

	var rej arenadto.MoveRejectedPayload
	a.last(t, arenadto.EvtMoveRejected, &rej)
	if rej.Code != arenadto.CodeIllegalMove {
		t.Fatalf("code=%q want illegal_move", rej.Code)
	}
	if b.count(arenadto.EvtOpponentMove) != 0 || b.count(arenadto.EvtMoveRejected) != 0 {
		t.Fatalf("peer must not hear about rejected moves")
	}
}

func TestNotYourTurn(t *testing.T) {
	r, mm, _, _ := newArena(t, nil)
	_, b, gameID := pairTwo(t, r, mm)

	r.HandleMove(b, arenadto.MovePayload{GameID: gameID, Move: "e7e5"})

	var rej arenadto.MoveRejectedPayload
	b.last(t, arenadto.EvtMoveRejected, &rej)
	if rej.Code != arenadto.CodeNotYourTurn {
		t.Fatalf("code=%q want not_your_turn", rej.Code)
	}
}

func TestMalformedMoveCode(t *testing.T) {
	r, mm, _, _ := newArena(t, nil)
	a, _, gameID := pairTwo(t, r, mm)

	r.HandleMove(a, arenadto.MovePayload{GameID: gameID, Move: "knight takes"})

	var rej arenadto.MoveRejectedPayload
	a.last(t, arenadto.EvtMoveRejected, &rej)
	if rej.Code != arenadto.CodeMalformedInput {
		t.Fatalf("code=%q want malformed_input", rej.Code)
	}
}

func TestCheckmateSendsGameOverToBoth(t *testing.T) {
	r, mm, _, reg := newArena(t, nil)
	a, b, gameID := pairTwo(t, r, mm)

	moves := []struct {
		c  *fakeConn
		mv string
	}{
		{a, "f2f3"}, {b, "e7e5"}, {a, "g2g4"}, {b, "d8h4"},
	}
	for _, m := range moves {
		r.HandleMove(m.c, arenadto.MovePayload{GameID: gameID, Move: m.mv})
	}

	var over arenadto.GameOverPayload
	a.last(t, arenadto.EvtGameOver, &over)
	if over.Status != "CHECKMATE" || over.Result != "black_won" {
		t.Fatalf("game_over=%+v", over)
	}
	if b.count(arenadto.EvtGameOver) != 1 {
		t.Fatalf("both players must get game_over exactly once")
	}
	// The finished session stays registered so late requests can still
	// be answered with a precise code instead of not_in_game.
	if reg.Count() != 1 {
		t.Fatalf("finished session must stay registered until teardown")
	}

	r.HandleMove(a, arenadto.MovePayload{GameID: gameID, Move: "a2a3"})
	var rej arenadto.MoveRejectedPayload
	a.last(t, arenadto.EvtMoveRejected, &rej)
	if rej.Code != arenadto.CodeAlreadyTerminal {
		t.Fatalf("code=%q want already_terminal", rej.Code)
	}
}

func TestDisconnectAfterCheckmateIsSilentTeardown(t *testing.T) {
	r, mm, _, reg := newArena(t, nil)
	a, b, gameID := pairTwo(t, r, mm)

	for _, m := range []struct {
		c  *fakeConn
		mv string
	}{{a, "f2f3"}, {b, "e7e5"}, {a, "g2g4"}, {b, "d8h4"}} {
		r.HandleMove(m.c, arenadto.MovePayload{GameID: gameID, Move: m.mv})
	}

	r.Detach(a.id)

	if b.count(arenadto.EvtOpponentLeft) != 0 {
		t.Fatalf("leaving a decided game must not look like a resignation")
	}
	if b.count(arenadto.EvtGameOver) != 1 {
		t.Fatalf("game_over must not repeat on teardown")
	}
	if reg.Count() != 0 {
		t.Fatalf("teardown must clear the registry")
	}
}

func TestRejoinQueueAfterFinishedGame(t *testing.T) {
	r, mm, q, reg := newArena(t, nil)
	a, b, gameID := pairTwo(t, r, mm)

	for _, m := range []struct {
		c  *fakeConn
		mv string
	}{{a, "f2f3"}, {b, "e7e5"}, {a, "g2g4"}, {b, "d8h4"}} {
		r.HandleMove(m.c, arenadto.MovePayload{GameID: gameID, Move: m.mv})
	}

	// Starting the next game is the explicit reset of the finished one.
	r.HandleJoinQueue(a, arenadto.JoinQueuePayload{Skill: 1200})

	if a.count(arenadto.EvtError) != 0 {
		t.Fatalf("a decided game must not block re-queueing")
	}
	if !q.Contains(a.id) {
		t.Fatalf("player must be back in the queue")
	}
	if reg.Count() != 0 {
		t.Fatalf("finished session must be torn down on re-queue")
	}
}

func TestDisconnectNotifiesPeerOnce(t *testing.T) {
	r, mm, _, reg := newArena(t, nil)
	a, b, _ := pairTwo(t, r, mm)

	r.Detach(a.id)
	r.Detach(a.id)

	if b.count(arenadto.EvtOpponentLeft) != 1 {
		t.Fatalf("opponent_left must be sent exactly once, got %d", b.count(arenadto.EvtOpponentLeft))
	}
	var over arenadto.GameOverPayload
	b.last(t, arenadto.EvtGameOver, &over)
	if over.Status != "ABORTED" {
		t.Fatalf("status=%q want ABORTED", over.Status)
	}
	if reg.Count() != 0 {
		t.Fatalf("aborted session must leave the registry")
	}
}

func TestDisconnectWhileQueuedRemovesSlot(t *testing.T) {
	r, _, q, _ := newArena(t, nil)
	a := &fakeConn{id: 1}
	r.Attach(a)
	r.HandleJoinQueue(a, arenadto.JoinQueuePayload{Skill: 1000})
	if q.Len() != 1 {
		t.Fatalf("player should be queued")
	}
	r.Detach(a.id)
	if q.Len() != 0 {
		t.Fatalf("disconnect must vacate the queue slot")
	}
}

func TestJoinQueueTwiceRefreshesSkill(t *testing.T) {
	r, _, q, _ := newArena(t, nil)
	a := &fakeConn{id: 1}
	r.Attach(a)
	r.HandleJoinQueue(a, arenadto.JoinQueuePayload{Skill: 1000})
	r.HandleJoinQueue(a, arenadto.JoinQueuePayload{Skill: 1500})
	if q.Len() != 1 {
		t.Fatalf("len=%d want 1", q.Len())
	}
	if got := q.Candidates()[0].Player.Skill; got != 1500 {
		t.Fatalf("skill=%d want refreshed 1500", got)
	}
	if a.count(arenadto.EvtQueueJoined) != 2 {
		t.Fatalf("both joins must be acknowledged")
	}
}

func TestJoinQueueWhileInGameRejected(t *testing.T) {
	r, mm, _, _ := newArena(t, nil)
	a, _, _ := pairTwo(t, r, mm)
	r.HandleJoinQueue(a, arenadto.JoinQueuePayload{Skill: 1200})
	var ep arenadto.ErrorPayload
	a.last(t, arenadto.EvtError, &ep)
	if ep.Code != arenadto.CodeNotInGame {
		t.Fatalf("code=%q want not_in_game", ep.Code)
	}
}

func TestSoloFlow(t *testing.T) {
	r, _, _, _ := newArena(t, fixedGen("e7e5"))
	a := &fakeConn{id: 9}
	r.Attach(a)

	r.HandleStartSolo(a, arenadto.StartSoloPayload{Difficulty: "easy"})
	var ms arenadto.MatchStartedPayload
	a.last(t, arenadto.EvtMatchStarted, &ms)
	if ms.Color != "white" || ms.Difficulty != "easy" {
		t.Fatalf("match_started=%+v", ms)
	}

	r.HandleMove(a, arenadto.MovePayload{GameID: ms.GameID, Move: "e2e4"})
	r.HandleAIMoveRequest(context.Background(), a, arenadto.AIMoveRequestPayload{GameID: ms.GameID})

	if got := a.count(arenadto.EvtAIMoveResult); got != 1 {
		t.Fatalf("exactly one ai_move_result expected, got %d", got)
	}
	var ai arenadto.AIMoveResultPayload
	a.last(t, arenadto.EvtAIMoveResult, &ai)
	if ai.Move != "e7e5" || ai.GameOver {
		t.Fatalf("ai_move_result=%+v", ai)
	}
}

func seqGen(moves ...string) engine.Generator {
	i := 0
	return engine.GeneratorFunc(func(ctx context.Context, fen string, p engine.SearchProfile) (string, error) {
		if i >= len(moves) {
			return "", nil
		}
		mv := moves[i]
		i++
		return mv, nil
	})
}

func TestLateAIRequestAfterGameOverGetsAlreadyTerminal(t *testing.T) {
	r, _, _, reg := newArena(t, seqGen("e7e5", "d8h4"))
	a := &fakeConn{id: 9}
	r.Attach(a)

	r.HandleStartSolo(a, arenadto.StartSoloPayload{Difficulty: "easy"})
	var ms arenadto.MatchStartedPayload
	a.last(t, arenadto.EvtMatchStarted, &ms)

	r.HandleMove(a, arenadto.MovePayload{GameID: ms.GameID, Move: "f2f3"})
	r.HandleAIMoveRequest(context.Background(), a, arenadto.AIMoveRequestPayload{GameID: ms.GameID})
	r.HandleMove(a, arenadto.MovePayload{GameID: ms.GameID, Move: "g2g4"})
	r.HandleAIMoveRequest(context.Background(), a, arenadto.AIMoveRequestPayload{GameID: ms.GameID})

	var ai arenadto.AIMoveResultPayload
	a.last(t, arenadto.EvtAIMoveResult, &ai)
	if ai.Move != "d8h4" || !ai.GameOver {
		t.Fatalf("ai_move_result=%+v want mating move", ai)
	}
	if a.count(arenadto.EvtGameOver) != 1 {
		t.Fatalf("game_over expected once")
	}
	if reg.Count() != 1 {
		t.Fatalf("decided session must stay registered")
	}

	// A request on the decided game must be answered, not dropped.
	r.HandleAIMoveRequest(context.Background(), a, arenadto.AIMoveRequestPayload{GameID: ms.GameID})
	var rej arenadto.MoveRejectedPayload
	a.last(t, arenadto.EvtMoveRejected, &rej)
	if rej.Code != arenadto.CodeAlreadyTerminal {
		t.Fatalf("code=%q want already_terminal", rej.Code)
	}
	if got := a.count(arenadto.EvtAIMoveResult); got != 2 {
		t.Fatalf("ai_move_result count=%d want 2", got)
	}
}

func TestAIRequestOnPvPGameRejected(t *testing.T) {
	r, mm, _, _ := newArena(t, fixedGen("e7e5"))
	a, _, gameID := pairTwo(t, r, mm)

	r.HandleAIMoveRequest(context.Background(), a, arenadto.AIMoveRequestPayload{GameID: gameID})
	var ep arenadto.ErrorPayload
	a.last(t, arenadto.EvtError, &ep)
	if ep.Code != arenadto.CodeNotInGame {
		t.Fatalf("code=%q", ep.Code)
	}
}

func TestMoveOnForeignGameRejected(t *testing.T) {
	r, mm, _, _ := newArena(t, nil)
	_, _, gameID := pairTwo(t, r, mm)

	outsider := &fakeConn{id: 77}
	r.Attach(outsider)
	r.HandleMove(outsider, arenadto.MovePayload{GameID: gameID, Move: "e2e4"})
	var ep arenadto.ErrorPayload
	outsider.last(t, arenadto.EvtError, &ep)
	if ep.Code != arenadto.CodeNotInGame {
		t.Fatalf("code=%q want not_in_game", ep.Code)
	}
}

func TestResignAbortsAndNotifies(t *testing.T) {
	r, mm, _, reg := newArena(t, nil)
	a, b, gameID := pairTwo(t, r, mm)

	r.HandleResign(a, gameID)

	if b.count(arenadto.EvtOpponentLeft) != 1 || b.count(arenadto.EvtGameOver) != 1 {
		t.Fatalf("peer must learn of the resignation once")
	}
	if a.count(arenadto.EvtGameOver) != 1 {
		t.Fatalf("resigner must get game_over too")
	}
	if reg.Count() != 0 {
		t.Fatalf("session must be gone")
	}
}
