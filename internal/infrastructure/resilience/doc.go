/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern used in front of the
persistent store: when the store keeps failing, periodic flushes fail fast and
the in-memory data simply stays dirty until the store recovers.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Consecutive-failure threshold and cooldown
- Single probe call in half-open state
- State change callbacks for logging

# Usage

	// Create a circuit breaker
	breaker := resilience.New("persistence", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	err := breaker.Do(func() error {
		return store.Save(ctx, records)
	})

# States

- Closed: Normal operation, calls pass through
- Open: Store unavailable, calls fail immediately with ErrCircuitOpen
- Half-Open: One probe call decides between Closed and Open

# Pattern

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
