// Package resilience keeps transcription running when a speech-to-text
// endpoint misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// stops hammering an endpoint after repeated failures. [Group] orders several
// endpoints of the same kind, each behind its own breaker, and tries them in
// turn. [STTFallback] applies a Group to batch transcription.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cool-down
	// has passed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successful probes close the breaker; a single failure re-opens it.
	StateHalfOpen
)

// String returns the lower-case state name used in logs.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values select the defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is the number of consecutive failures that open the
	// breaker. Default: 5.
	MaxFailures int

	// Cooldown is how long an open breaker waits before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close
	// the breaker. Default: 1.
	Probes int

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	// Counts reports whether a call error says something about the
	// endpoint's health. Errors it rejects, such as invalid input, neither
	// trip the breaker nor trigger failover. Default: every error counts.
	Counts func(error) bool
}

// Breaker implements the circuit breaker pattern around arbitrary calls.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	now         func() time.Time
	counts      func(error) bool

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inflight  int
	successes int
}

// NewBreaker returns a closed [Breaker] configured by cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Counts == nil {
		cfg.Counts = func(error) bool { return true }
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		now:         cfg.Clock,
		counts:      cfg.Counts,
	}
}

// Do runs fn unless the breaker is open. fn's error is returned unchanged
// and counts as a failure unless [BreakerConfig.Counts] rejects it; a
// rejected call returns [ErrCircuitOpen] without running fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe && b.inflight > 0 {
		b.inflight--
	}
	switch {
	case err == nil:
		b.succeed(probe)
	case b.counts(err):
		b.fail(probe)
	}
	return err
}

// Counts reports whether err would be recorded as a failure by [Breaker.Do].
func (b *Breaker) Counts(err error) bool {
	return err != nil && b.counts(err)
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.inflight = 0
		slog.Info("circuit half-open", "name", b.name)
	}
	if b.state != StateHalfOpen {
		return false, nil
	}
	// Only as many concurrent probes as successes still needed.
	if b.inflight >= b.probes-b.successes {
		return false, ErrCircuitOpen
	}
	b.inflight++
	return true, nil
}

// fail records a failed call. Callers hold b.mu.
func (b *Breaker) fail(probe bool) {
	if probe || b.state == StateHalfOpen {
		b.open()
		slog.Warn("circuit re-opened by failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.open()
		slog.Warn("circuit opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// succeed records a successful call. Callers hold b.mu.
func (b *Breaker) succeed(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.probes {
		b.state = StateClosed
		b.failures = 0
		slog.Info("circuit closed", "name", b.name)
	}
}

// open trips the breaker. Callers hold b.mu.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.successes = 0
}

// State returns the breaker's state. An open breaker whose cool-down has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call to [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.inflight = 0
}
