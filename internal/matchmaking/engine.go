package matchmaking

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/domain"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/obslog"
)

// Policy tunes how far apart in skill two players may be paired.
// The gap starts at BaseGap and widens as the longer-waiting player
// keeps waiting; after ForceAfter that player is paired with whoever
// is nearest, regardless of gap.
type Policy struct {
	BaseGap     int
	WidenPerSec int
	ForceAfter  time.Duration
	Tick        time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.BaseGap <= 0 {
		p.BaseGap = 150
	}
	if p.Tick <= 0 {
		p.Tick = 500 * time.Millisecond
	}
	return p
}

// allowedGap is the widest acceptable skill difference for a player
// who has been waiting the given time.
func (p Policy) allowedGap(waited time.Duration) int {
	gap := p.BaseGap
	if p.WidenPerSec > 0 {
		gap += p.WidenPerSec * int(waited/time.Second)
	}
	return gap
}

func (p Policy) forced(waited time.Duration) bool {
	return p.ForceAfter > 0 && waited >= p.ForceAfter
}

// Engine drains the queue into matches. Pair selection and removal
// happen inside a single queue reservation, so a player can never be
// claimed by two matches.
type Engine struct {
	queue   *matchqueue.Queue
	policy  Policy
	counter atomic.Int64
	wake    chan struct{}
	onMatch func(domain.Match, domain.QueueEntry, domain.QueueEntry)
}

func NewEngine(q *matchqueue.Queue, policy Policy, onMatch func(domain.Match, domain.QueueEntry, domain.QueueEntry)) *Engine {
	return &Engine{
		queue:   q,
		policy:  policy.withDefaults(),
		wake:    make(chan struct{}, 1),
		onMatch: onMatch,
	}
}

// Wake nudges Run to pair immediately instead of waiting for the next
// tick. Never blocks; repeated calls coalesce.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// TryPair attempts one pairing and reports whether a match was made.
// The longer-waiting player becomes Player1 and takes white.
func (e *Engine) TryPair() bool {
	return e.tryPairAt(time.Now())
}

func (e *Engine) tryPairAt(now time.Time) bool {
	ea, eb, ok := e.queue.Reserve(func(entries []domain.QueueEntry) (int64, int64, bool) {
		return e.selectPair(entries, now)
	})
	if !ok {
		return false
	}

	m := domain.Match{
		MatchID: e.counter.Add(1),
		Player1: ea.Player.ID,
		Player2: eb.Player.ID,
	}
	obslog.L().Info("match_made",
		zap.Int64("match_id", m.MatchID),
		zap.Int64("white", m.Player1),
		zap.Int64("black", m.Player2),
		zap.Int("skill_gap", absInt(ea.Player.Skill-eb.Player.Skill)),
		zap.Duration("waited", now.Sub(ea.EnqueuedAt)),
	)
	if e.onMatch != nil {
		e.onMatch(m, ea, eb)
	}
	return true
}

// selectPair walks the queue in arrival order and, for each player,
// looks for the nearest-skill partner among later arrivals. The first
// player with an acceptable partner wins.
func (e *Engine) selectPair(entries []domain.QueueEntry, now time.Time) (int64, int64, bool) {
	for i := 0; i < len(entries)-1; i++ {
		waited := now.Sub(entries[i].EnqueuedAt)
		gap := e.policy.allowedGap(waited)
		forced := e.policy.forced(waited)

		best := -1
		bestDiff := 0
		for j := i + 1; j < len(entries); j++ {
			diff := absInt(entries[i].Player.Skill - entries[j].Player.Skill)
			if !forced && diff > gap {
				continue
			}
			if best == -1 || diff < bestDiff {
				best = j
				bestDiff = diff
			}
		}
		if best != -1 {
			return entries[i].Player.ID, entries[best].Player.ID, true
		}
	}
	return 0, 0, false
}

// Run pairs on every tick, and immediately on Wake, until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.policy.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
		for e.TryPair() {
		}
	}
}

// Matches reports how many matches have been made so far.
func (e *Engine) Matches() int64 { return e.counter.Load() }

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
