package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/park285/chess-arena/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS arena_games (
    game_id    TEXT PRIMARY KEY,
    match_id   BIGINT,
    mode       TEXT NOT NULL,
    white_id   BIGINT,
    black_id   BIGINT,
    difficulty TEXT,
    result     TEXT NOT NULL,
    method     TEXT,
    moves_uci  TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS arena_games_white_idx ON arena_games (white_id);
CREATE INDEX IF NOT EXISTS arena_games_black_idx ON arena_games (black_id);
`

const upsertSQL = `
INSERT INTO arena_games
    (game_id, match_id, mode, white_id, black_id, difficulty, result, method, moves_uci, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (game_id) DO UPDATE SET
    result = EXCLUDED.result,
    method = EXCLUDED.method,
    moves_uci = EXCLUDED.moves_uci,
    ended_at = EXCLUDED.ended_at
`

// PGRepository is the durable half of the archive. The redis store is
// the hot window; this one keeps everything.
type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(ctx context.Context, databaseURL string) (*PGRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PGRepository{db: db}, nil
}

func (r *PGRepository) Upsert(ctx context.Context, rec domain.GameRecord) error {
	_, err := r.db.ExecContext(ctx, upsertSQL,
		rec.GameID,
		rec.MatchID,
		rec.Mode,
		rec.WhiteID,
		rec.BlackID,
		rec.Difficulty,
		rec.Result,
		rec.Method,
		strings.Join(rec.MovesUCI, " "),
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", rec.GameID, err)
	}
	return nil
}

func (r *PGRepository) Close() error { return r.db.Close() }
