package archive

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/domain"
	"github.com/park285/chess-arena/internal/game"
	"github.com/park285/chess-arena/internal/obslog"
)

// Recorder persists finished sessions. Either backend may be nil;
// archiving is best effort and never fails the game flow.
type Recorder struct {
	store *RedisStore
	repo  *PGRepository
}

func NewRecorder(store *RedisStore, repo *PGRepository) *Recorder {
	return &Recorder{store: store, repo: repo}
}

func (r *Recorder) Record(ctx context.Context, s *game.Session) {
	if r == nil || (r.store == nil && r.repo == nil) {
		return
	}
	rec := recordOf(s)
	if r.store != nil {
		if err := r.store.Save(ctx, rec); err != nil {
			obslog.L().Warn("archive_redis_failed", zap.String("game_id", rec.GameID), zap.Error(err))
		}
	}
	if r.repo != nil {
		if err := r.repo.Upsert(ctx, rec); err != nil {
			obslog.L().Warn("archive_pg_failed", zap.String("game_id", rec.GameID), zap.Error(err))
		}
	}
}

func recordOf(s *game.Session) domain.GameRecord {
	return domain.GameRecord{
		GameID:     s.ID(),
		MatchID:    s.MatchID(),
		Mode:       string(s.Mode()),
		WhiteID:    s.WhiteID(),
		BlackID:    s.BlackID(),
		Difficulty: s.Difficulty(),
		Result:     s.Result(),
		Method:     s.Method(),
		MovesUCI:   s.Moves(),
		StartedAt:  s.CreatedAt(),
		EndedAt:    s.EndedAt(),
	}
}
