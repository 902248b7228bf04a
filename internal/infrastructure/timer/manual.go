package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Clock. Callbacks run synchronously on the
// goroutine calling Advance, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	id       uint64
	deadline time.Time
	period   time.Duration
	f        func()
}

// NewManual creates a manual clock starting at now
func NewManual(now time.Time) *Manual {
	return &Manual{now: now, timers: make(map[uint64]*manualTimer)}
}

// Now returns the manual clock's current time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f once at now+d
func (m *Manual) AfterFunc(d time.Duration, f func()) Handle {
	return m.add(d, 0, f)
}

// Every schedules f at every multiple of d
func (m *Manual) Every(d time.Duration, f func()) Handle {
	return m.add(d, d, f)
}

// Pending returns the number of scheduled callbacks
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, firing every callback whose deadline
// is reached. Callbacks may schedule or stop other callbacks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		if next.period > 0 {
			next.deadline = next.deadline.Add(next.period)
		} else {
			delete(m.timers, next.id)
		}
		f := next.f
		m.mu.Unlock()

		f()
	}
}

// nextDue returns the earliest timer due at or before target. Must hold mu.
func (m *Manual) nextDue(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

func (m *Manual) add(d, period time.Duration, f func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{id: m.seq, deadline: m.now.Add(d), period: period, f: f}
	m.timers[t.id] = t
	return &manualHandle{m: m, id: t.id}
}

type manualHandle struct {
	m  *Manual
	id uint64
}

func (h *manualHandle) Stop() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if _, ok := h.m.timers[h.id]; !ok {
		return false
	}
	delete(h.m.timers, h.id)
	return true
}
