package timer

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback
type Handle interface {
	// Stop prevents the callback from firing again. It reports whether the
	// call stopped a callback that had not yet fired or was still periodic.
	Stop() bool
}

// Clock schedules callbacks
type Clock interface {
	AfterFunc(d time.Duration, f func()) Handle
	Every(d time.Duration, f func()) Handle
	Now() time.Time
}

// Scheduler schedules callbacks on wall-clock time
type Scheduler struct{}

// New creates a scheduler backed by the runtime timers
func New() *Scheduler {
	return &Scheduler{}
}

// Now returns the current time
func (s *Scheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f once after d on its own goroutine
func (s *Scheduler) AfterFunc(d time.Duration, f func()) Handle {
	return &oneShot{t: time.AfterFunc(d, f)}
}

// Every runs f every d until stopped. Ticks are skipped while f is running.
func (s *Scheduler) Every(d time.Duration, f func()) Handle {
	p := &periodic{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go p.run(f)
	return p
}

type oneShot struct {
	t *time.Timer
}

func (o *oneShot) Stop() bool {
	return o.t.Stop()
}

type periodic struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (p *periodic) run(f func()) {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			select {
			case <-p.done:
				return
			default:
			}
			f()
		}
	}
}

func (p *periodic) Stop() bool {
	stopped := false
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.done)
		stopped = true
	})
	return stopped
}
