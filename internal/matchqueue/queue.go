package matchqueue

import (
	"sync"
	"time"

	"github.com/park285/chess-arena/internal/domain"
)

// Queue holds players waiting for an opponent, in arrival order.
// All operations are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries []domain.QueueEntry
	index   map[int64]int
}

func New() *Queue {
	return &Queue{index: make(map[int64]int)}
}

// Enqueue appends a player to the tail of the queue. Re-enqueueing a
// waiting player updates their skill in place: the latest value wins,
// but the original slot and arrival time are kept.
func (q *Queue) Enqueue(p domain.Player) bool {
	return q.enqueueAt(p, time.Now())
}

// Requeue puts a player back preserving an earlier arrival time, so a
// failed pairing does not reset their waiting clock.
func (q *Queue) Requeue(e domain.QueueEntry) bool {
	return q.enqueueAt(e.Player, e.EnqueuedAt)
}

// enqueueAt inserts in arrival order, so the slice stays oldest first
// even when a requeued entry carries an old timestamp.
func (q *Queue) enqueueAt(p domain.Player, at time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i, ok := q.index[p.ID]; ok {
		q.entries[i].Player = p
		return false
	}
	i := len(q.entries)
	for i > 0 && q.entries[i-1].EnqueuedAt.After(at) {
		i--
	}
	q.entries = append(q.entries, domain.QueueEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = domain.QueueEntry{Player: p, EnqueuedAt: at}
	for j := i; j < len(q.entries); j++ {
		q.index[q.entries[j].Player.ID] = j
	}
	return true
}

// Remove takes a player out of the queue, e.g. on disconnect or cancel.
func (q *Queue) Remove(playerID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, ok := q.index[playerID]
	if !ok {
		return false
	}
	q.removeAt(i)
	return true
}

// removeAt must be called with q.mu held.
func (q *Queue) removeAt(i int) {
	delete(q.index, q.entries[i].Player.ID)
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	for j := i; j < len(q.entries); j++ {
		q.index[q.entries[j].Player.ID] = j
	}
}

// Contains reports whether the player is currently waiting.
func (q *Queue) Contains(playerID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[playerID]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Candidates returns a copy of the waiting entries, oldest first.
func (q *Queue) Candidates() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Reserve runs pick against a snapshot of the queue and, if pick selects
// a pair, removes both players in the same critical section. This keeps
// the select-and-take step atomic: no other caller can pair either
// player in between.
func (q *Queue) Reserve(pick func(entries []domain.QueueEntry) (a, b int64, ok bool)) (domain.QueueEntry, domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := make([]domain.QueueEntry, len(q.entries))
	copy(snap, q.entries)

	aID, bID, ok := pick(snap)
	if !ok || aID == bID {
		return domain.QueueEntry{}, domain.QueueEntry{}, false
	}
	ai, aok := q.index[aID]
	bi, bok := q.index[bID]
	if !aok || !bok {
		return domain.QueueEntry{}, domain.QueueEntry{}, false
	}

	ea := q.entries[ai]
	eb := q.entries[bi]
	// Remove the higher index first so the lower one stays valid.
	if ai > bi {
		q.removeAt(ai)
		q.removeAt(bi)
	} else {
		q.removeAt(bi)
		q.removeAt(ai)
	}
	return ea, eb, true
}
