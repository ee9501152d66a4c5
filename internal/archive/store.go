package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-arena/internal/domain"
)

const (
	gameKeyPrefix   = "arena:game:"
	playerKeyPrefix = "arena:player:"
	playerIndexCap  = 50
)

// RedisStore keeps finished games for a sliding window, with a small
// per-player index of recent game IDs.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func gameKey(gameID string) string    { return gameKeyPrefix + gameID }
func playerKey(playerID int64) string { return fmt.Sprintf("%s%d:games", playerKeyPrefix, playerID) }

func (s *RedisStore) Save(ctx context.Context, rec domain.GameRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game record: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(rec.GameID), raw, s.ttl)
	for _, pid := range []int64{rec.WhiteID, rec.BlackID} {
		if pid == 0 {
			continue
		}
		key := playerKey(pid)
		pipe.LPush(ctx, key, rec.GameID)
		pipe.LTrim(ctx, key, 0, playerIndexCap-1)
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store game %s: %w", rec.GameID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, gameID string) (domain.GameRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameRecord{}, false, nil
	}
	if err != nil {
		return domain.GameRecord{}, false, fmt.Errorf("load game %s: %w", gameID, err)
	}
	var rec domain.GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.GameRecord{}, false, fmt.Errorf("decode game %s: %w", gameID, err)
	}
	return rec, true, nil
}

// RecentByPlayer returns up to limit of the player's newest archived
// games. Games whose record already expired are skipped.
func (s *RedisStore) RecentByPlayer(ctx context.Context, playerID int64, limit int) ([]domain.GameRecord, error) {
	if limit <= 0 || limit > playerIndexCap {
		limit = playerIndexCap
	}
	ids, err := s.rdb.LRange(ctx, playerKey(playerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("player index %d: %w", playerID, err)
	}
	out := make([]domain.GameRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
