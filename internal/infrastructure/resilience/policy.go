package resilience

import "time"

// Config tunes the per-operation circuit breakers. Calls are never retried; a tripped
// breaker fails fast so the caller can degrade instead of waiting on a dead collaborator.
type Config struct {
	BreakerEnabled bool
	// BreakerMinRequests is the sample size before the failure ratio is considered.
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// OnStateChange is told about every breaker transition, e.g. to export it as a metric.
	OnStateChange StateListener
}

// StateListener receives breaker transitions as "closed", "half-open" or "open".
type StateListener func(operation, from, to string)

func DefaultConfig() Config {
	return Config{
		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// normalize replaces unset or out-of-range fields with their defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if !(c.BreakerFailureRatio > 0 && c.BreakerFailureRatio <= 1) {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return c
}
