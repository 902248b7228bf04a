package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before a probe is allowed
	Cooldown time.Duration
	// OnStateChange is called whenever the state changes, outside the lock
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock, used by tests
	Now func() time.Time
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Calls               uint32
	Failures            uint32
	ConsecutiveFailures uint32
	Rejected            uint32
}

// Breaker guards calls to a backing resource that may become unavailable,
// such as the persistent store. While open, calls fail fast with
// ErrCircuitOpen; after the cooldown a single probe call decides whether the
// breaker closes again.
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probing  bool
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 3
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{name: name, settings: settings, state: StateClosed}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker accepts the call and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	succeeded := false
	defer func() {
		if !succeeded {
			// Also reached when fn panics
			b.after(false)
		}
	}()

	if err := fn(); err != nil {
		return err
	}
	succeeded = true
	b.after(true)
	return nil
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case StateOpen:
		b.counts.Rejected++
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			b.counts.Rejected++
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.counts.Calls++
	return nil
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	from := b.currentState()
	b.probing = false

	to := from
	if success {
		b.counts.ConsecutiveFailures = 0
		if from == StateHalfOpen {
			to = StateClosed
		}
	} else {
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		if from == StateHalfOpen || b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
			to = StateOpen
			b.openedAt = b.settings.Now()
		}
	}
	b.state = to
	b.mu.Unlock()

	b.notify(from, to)
}

// currentState promotes an expired open state to half-open. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.settings.Now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.state = StateHalfOpen
		if b.settings.OnStateChange != nil {
			go b.settings.OnStateChange(b.name, StateOpen, StateHalfOpen)
		}
	}
	return b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
