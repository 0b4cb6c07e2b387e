/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern to stop outbound calls to a
downstream that keeps failing, so request handlers fail fast instead of
waiting on it.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Configurable failure thresholds and timeouts
- Automatic state transitions
- Generation counter so late results never count against a new state
- Cancelled callers are not counted as target failures
- State change callbacks for monitoring

# Usage

	// One breaker per downstream host
	breaker := resilience.New("relay", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker", zap.String("name", name), zap.Stringer("to", to))
		},
	})

	err := breaker.Do(ctx, func(ctx context.Context) error {
		_, err := client.R().SetContext(ctx).Get(url)
		return err
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
