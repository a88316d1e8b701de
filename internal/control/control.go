// Package control bounds the generation call: a wall-clock timeout, capped
// exponential retry, and a circuit breaker so a flapping generation API
// degrades to fallback text instead of being hammered.
package control

import "time"

// Policy defines limits and retry behavior for one generation attempt.
type Policy struct {
	GenerateTimeout time.Duration
	MaxRetries      int
}

// DefaultPolicy returns the defaults used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		GenerateTimeout: 30 * time.Second,
		MaxRetries:      2,
	}
}

// RetryBackoff computes exponential backoff with a fixed cap.
func RetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	seconds := 1 << (attempt - 1)
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

// ShouldRetry returns whether a failed attempt should be retried.
func ShouldRetry(p Policy, attempts int) bool {
	return attempts <= p.MaxRetries
}
