package domain

import "time"

// Player is the matchmaking unit. One player holds at most one queue entry
// and at most one active game session at a time.
type Player struct {
	ID          int64
	Skill       int
	DisplayName string
}

// QueueEntry is a waiting player's matchmaking record.
type QueueEntry struct {
	Player     Player
	EnqueuedAt time.Time
}

// Match is the immutable output of the pairing engine. Player1 is the entry
// that waited longer and takes white.
type Match struct {
	Player1 int64
	Player2 int64
	MatchID int64
}

// GameRecord is the archived result of a finished session.
type GameRecord struct {
	GameID     string    `json:"game_id"`
	MatchID    int64     `json:"match_id,omitempty"`
	Mode       string    `json:"mode"`
	WhiteID    int64     `json:"white_id"`
	BlackID    int64     `json:"black_id,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	Result     string    `json:"result"`
	Method     string    `json:"method,omitempty"`
	MovesUCI   []string  `json:"moves_uci"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}
