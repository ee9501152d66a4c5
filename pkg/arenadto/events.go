package arenadto

import "encoding/json"

// Client -> server event types.
const (
	EvtJoinQueue     = "join_queue"
	EvtLeaveQueue    = "leave_queue"
	EvtStartSolo     = "start_solo"
	EvtMove          = "move"
	EvtAIMoveRequest = "ai_move_request"
	EvtResign        = "resign"
)

// Server -> client event types.
const (
	EvtQueueJoined  = "queue_joined"
	EvtMatchStarted = "match_started"
	EvtMoveAccepted = "move_accepted"
	EvtOpponentMove = "opponent_move"
	EvtMoveRejected = "move_rejected"
	EvtAIMoveResult = "ai_move_result"
	EvtGameOver     = "game_over"
	EvtOpponentLeft = "opponent_left"
	EvtError        = "error"
)

// Error codes carried by move_rejected and error payloads.
const (
	CodeMalformedInput    = "malformed_input"
	CodeIllegalMove       = "illegal_move"
	CodeStaleSession      = "stale_session"
	CodeSessionBusy       = "session_busy"
	CodeEngineUnavailable = "engine_unavailable"
	CodeAlreadyTerminal   = "already_terminal"
	CodeNotYourTurn       = "not_your_turn"
	CodeNotInGame         = "not_in_game"
	CodeServerFull        = "server_full"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(typ string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

type JoinQueuePayload struct {
	Skill       int    `json:"skill"`
	DisplayName string `json:"display_name,omitempty"`
}

type StartSoloPayload struct {
	Difficulty string `json:"difficulty,omitempty"`
}

type MovePayload struct {
	GameID string `json:"game_id"`
	Move   string `json:"move"`
	FEN    string `json:"fen,omitempty"`
}

type AIMoveRequestPayload struct {
	GameID string `json:"game_id"`
	FEN    string `json:"fen,omitempty"`
}

type QueueJoinedPayload struct {
	Position int `json:"position"`
}

type MatchStartedPayload struct {
	GameID        string `json:"game_id"`
	MatchID       int64  `json:"match_id"`
	Color         string `json:"color"`
	OpponentID    int64  `json:"opponent_id,omitempty"`
	OpponentName  string `json:"opponent_name,omitempty"`
	OpponentSkill int    `json:"opponent_skill,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	FEN           string `json:"fen"`
}

type MoveAcceptedPayload struct {
	GameID string `json:"game_id"`
	Move   string `json:"move"`
	SAN    string `json:"san"`
	FEN    string `json:"fen"`
	Turn   string `json:"turn"`
}

type OpponentMovePayload struct {
	GameID string `json:"game_id"`
	Move   string `json:"move"`
	SAN    string `json:"san"`
	FEN    string `json:"fen"`
	Turn   string `json:"turn"`
}

type MoveRejectedPayload struct {
	GameID string `json:"game_id"`
	Move   string `json:"move,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

type AIMoveResultPayload struct {
	GameID     string `json:"game_id"`
	Move       string `json:"move,omitempty"`
	SAN        string `json:"san,omitempty"`
	FEN        string `json:"fen"`
	Status     string `json:"status"`
	GameOver   bool   `json:"game_over"`
	Result     string `json:"result,omitempty"`
	Method     string `json:"method,omitempty"`
	ThinkingMS int64  `json:"thinking_ms"`
}

type GameOverPayload struct {
	GameID string `json:"game_id"`
	Status string `json:"status"`
	Result string `json:"result"`
	Method string `json:"method,omitempty"`
}

type OpponentLeftPayload struct {
	GameID string `json:"game_id"`
}

type ErrorPayload struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
