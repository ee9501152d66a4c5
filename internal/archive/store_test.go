package archive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-arena/internal/domain"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, 24*time.Hour), mr
}

func sampleRecord(gameID string) domain.GameRecord {
	return domain.GameRecord{
		GameID:    gameID,
		MatchID:   7,
		Mode:      "pvp",
		WhiteID:   100,
		BlackID:   200,
		Result:    "white_won",
		Method:    "checkmate",
		MovesUCI:  []string{"e2e4", "f7f6", "d2d4", "g7g5", "d1h5"},
		StartedAt: time.Now().Add(-time.Minute).UTC().Truncate(time.Second),
		EndedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("g-1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Get(ctx, "g-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Result != rec.Result || got.MatchID != rec.MatchID {
		t.Fatalf("got %+v", got)
	}
	if len(got.MovesUCI) != len(rec.MovesUCI) {
		t.Fatalf("moves=%v", got.MovesUCI)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("missing game must report ok=false")
	}
}

func TestRecordsExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleRecord("g-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(25 * time.Hour)

	_, ok, err := store.Get(ctx, "g-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("record must expire after the window")
	}
}

func TestRecentByPlayerNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"g-1", "g-2", "g-3"} {
		if err := store.Save(ctx, sampleRecord(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	recs, err := store.RecentByPlayer(ctx, 100, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len=%d want 2", len(recs))
	}
	if recs[0].GameID != "g-3" || recs[1].GameID != "g-2" {
		t.Fatalf("order=%s,%s want g-3,g-2", recs[0].GameID, recs[1].GameID)
	}
}

func TestSoloIndexSkipsEngineSide(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("g-solo")
	rec.Mode = "solo"
	rec.BlackID = 0
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.Exists(playerKey(0)) {
		t.Fatalf("engine side must not get a player index")
	}
	recs, err := store.RecentByPlayer(ctx, 100, 10)
	if err != nil || len(recs) != 1 {
		t.Fatalf("recent: %v len=%d", err, len(recs))
	}
}
