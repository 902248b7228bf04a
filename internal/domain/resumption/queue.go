package resumption

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/timer"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

type pendingEntry struct {
	scheduledAt time.Time
	handle      timer.Handle
	seq         uint64
}

// pendingQueue holds applications waiting for their HMI level. Each entry
// owns a one-shot timer; seq identifies the timer that may consume it, so a
// stale timer firing after a reschedule or cancellation finds nothing.
type pendingQueue struct {
	mu      sync.Mutex
	seq     uint64
	entries map[uint32]pendingEntry
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{entries: make(map[uint32]pendingEntry)}
}

// schedule inserts or replaces the entry of appID. arm creates the timer for
// the given sequence number and runs with the lock held; it must not block.
func (q *pendingQueue) schedule(appID uint32, at time.Time, arm func(seq uint64) timer.Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if prev, ok := q.entries[appID]; ok && prev.handle != nil {
		prev.handle.Stop()
	}
	q.seq++
	seq := q.seq
	q.entries[appID] = pendingEntry{scheduledAt: at, handle: arm(seq), seq: seq}
}

// reschedule re-arms the entry of appID only if it still belongs to the
// timer seq. A cancelled or replaced entry is left alone.
func (q *pendingQueue) reschedule(appID uint32, seq uint64, at time.Time, arm func(seq uint64) timer.Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[appID]
	if !ok || e.seq != seq {
		return false
	}
	if e.handle != nil {
		e.handle.Stop()
	}
	q.seq++
	next := q.seq
	q.entries[appID] = pendingEntry{scheduledAt: at, handle: arm(next), seq: next}
	return true
}

// take removes the entry if it still belongs to the timer seq
func (q *pendingQueue) take(appID uint32, seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[appID]
	if !ok || e.seq != seq {
		return false
	}
	delete(q.entries, appID)
	return true
}

// remove cancels the entry of appID
func (q *pendingQueue) remove(appID uint32) bool {
	q.mu.Lock()
	e, ok := q.entries[appID]
	delete(q.entries, appID)
	q.mu.Unlock()

	if ok && e.handle != nil {
		e.handle.Stop()
	}
	return ok
}

// clear cancels every entry and returns the affected application ids
func (q *pendingQueue) clear() []uint32 {
	q.mu.Lock()
	entries := q.entries
	q.entries = make(map[uint32]pendingEntry)
	q.mu.Unlock()

	ids := make([]uint32, 0, len(entries))
	for id, e := range entries {
		if e.handle != nil {
			e.handle.Stop()
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (q *pendingQueue) contains(appID uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[appID]
	return ok
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// snapshot returns the entries ordered by scheduled time
func (q *pendingQueue) snapshot() []types.PendingResumption {
	q.mu.Lock()
	out := make([]types.PendingResumption, 0, len(q.entries))
	for id, e := range q.entries {
		out = append(out, types.PendingResumption{AppID: id, ScheduledAt: e.scheduledAt})
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].AppID < out[j].AppID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}
