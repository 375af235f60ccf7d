package orgsession

import (
	"sync"
	"testing"
	"time"
)

func testBreaker(threshold int, cooldown time.Duration) *breaker {
	return newBreaker(BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := testBreaker(3, time.Minute)
	now := time.Now()

	if b.Failure(now) {
		t.Fatal("opened below threshold")
	}
	if b.Failure(now) {
		t.Fatal("opened below threshold")
	}
	if !b.Failure(now) {
		t.Fatal("threshold failure must open the breaker")
	}
	if b.State() != breakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if b.Allow(now) {
		t.Fatal("open breaker must reject")
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := testBreaker(3, time.Minute)
	now := time.Now()

	b.Failure(now)
	b.Failure(now)
	b.Success()

	// Streak restarted: two more failures stay under the threshold.
	if b.Failure(now) || b.Failure(now) {
		t.Fatal("breaker opened despite reset streak")
	}
	if b.State() != breakerClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := testBreaker(1, 100*time.Millisecond)
	now := time.Now()

	if !b.Failure(now) {
		t.Fatal("expected transition to open")
	}
	if b.Allow(now) {
		t.Fatal("must reject during cooldown")
	}

	after := now.Add(150 * time.Millisecond)
	if !b.Allow(after) {
		t.Fatal("cooldown elapsed, probe must be admitted")
	}
	if b.State() != breakerHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if b.Allow(after) {
		t.Fatal("only one probe may be in flight")
	}
}

func TestBreakerProbeOutcomes(t *testing.T) {
	b := testBreaker(1, 10*time.Millisecond)
	now := time.Now()

	b.Failure(now)
	probe := now.Add(20 * time.Millisecond)

	if !b.Allow(probe) {
		t.Fatal("probe not admitted")
	}
	if !b.Failure(probe) {
		t.Fatal("failed probe must reopen")
	}
	if b.State() != breakerOpen {
		t.Fatalf("expected open after failed probe, got %s", b.State())
	}

	probe = probe.Add(20 * time.Millisecond)
	if !b.Allow(probe) {
		t.Fatal("probe not admitted after second cooldown")
	}
	if !b.Success() {
		t.Fatal("successful probe must report the half-open recovery")
	}
	if b.State() != breakerClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
	if !b.Allow(probe) {
		t.Fatal("closed breaker must admit")
	}
}

func TestBreakerConcurrentProbeRace(t *testing.T) {
	b := testBreaker(1, time.Millisecond)
	now := time.Now()
	b.Failure(now)

	after := now.Add(10 * time.Millisecond)
	const goroutines = 32

	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if b.Allow(after) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("expected exactly one admitted probe, got %d", admitted)
	}
}
