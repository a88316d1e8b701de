package control

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	now := time.Now()
	c := NewCircuitBreaker(3, 30*time.Second)

	for i := 0; i < 2; i++ {
		c.RecordFailure(now)
		if !c.Allow(now) {
			t.Fatalf("breaker opened early after %d failures", i+1)
		}
	}
	c.RecordFailure(now)
	if c.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", c.State())
	}
	if c.Allow(now) {
		t.Fatal("open breaker must reject calls before cooldown")
	}
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	c := NewCircuitBreaker(1, 10*time.Second)
	c.RecordFailure(now)

	if c.Allow(now.Add(5 * time.Second)) {
		t.Fatal("cooldown not elapsed yet")
	}
	if !c.Allow(now.Add(11 * time.Second)) {
		t.Fatal("expected half-open probe to be allowed")
	}
	if c.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", c.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	c := NewCircuitBreaker(1, 10*time.Second)
	c.RecordFailure(now)
	c.Allow(now.Add(11 * time.Second))

	c.RecordFailure(now.Add(12 * time.Second))
	if c.State() != CircuitOpen {
		t.Fatalf("expected reopened breaker, got %s", c.State())
	}
	if c.Allow(now.Add(13 * time.Second)) {
		t.Fatal("reopened breaker must reject until a fresh cooldown elapses")
	}
}

func TestCircuitBreaker_SuccessCloses(t *testing.T) {
	now := time.Now()
	c := NewCircuitBreaker(1, 10*time.Second)
	c.RecordFailure(now)
	c.Allow(now.Add(11 * time.Second))

	c.RecordSuccess()
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed breaker, got %s", c.State())
	}
	c.RecordFailure(now)
	if c.State() != CircuitOpen {
		t.Fatal("threshold=1 breaker should reopen on next failure")
	}
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	now := time.Now()
	c := NewCircuitBreaker(100, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Allow(now)
				c.RecordFailure(now)
				c.RecordSuccess()
				c.State()
			}
		}()
	}
	wg.Wait()

	// Every RecordFailure is followed by a RecordSuccess, so the breaker
	// must settle closed with a consistent failure count.
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed breaker after paired failures, got %s", c.State())
	}
	c.mu.Lock()
	failures := c.failures
	c.mu.Unlock()
	if failures != 0 {
		t.Fatalf("expected failure count reset by final success, got %d", failures)
	}
}
