package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", b.cooldown)
	}
	if b.probes != 1 {
		t.Errorf("probes = %d, want 1", b.probes)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("initial state = %v, want closed", got)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, Clock: newFakeClock().Now})
	for range 3 {
		if err := b.Do(fail); !errors.Is(err, errTest) {
			t.Fatalf("Do = %v, want errTest", err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Do = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while the circuit was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})
	_ = b.Do(fail)
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	_ = b.Do(fail)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestBreaker_CooldownThenProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{name: "successful probe closes", probe: succeed, want: StateClosed},
		{name: "failed probe re-opens", probe: fail, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Minute, Clock: clock.Now})
			_ = b.Do(fail)

			clock.Advance(59 * time.Second)
			if got := b.State(); got != StateOpen {
				t.Fatalf("state before cooldown = %v, want open", got)
			}
			clock.Advance(time.Second)
			if got := b.State(); got != StateHalfOpen {
				t.Fatalf("state after cooldown = %v, want half-open", got)
			}

			_ = b.Do(tt.probe)
			if got := b.State(); got != tt.want {
				t.Fatalf("state after probe = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_HalfOpenNeedsAllProbes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Second, Probes: 2, Clock: clock.Now})
	_ = b.Do(fail)
	clock.Advance(time.Second)

	_ = b.Do(succeed)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after one probe = %v, want half-open", got)
	}
	_ = b.Do(succeed)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after two probes = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Second, Clock: clock.Now})
	_ = b.Do(fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe = %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestBreaker_UncountedErrorsLeaveStateAlone(t *testing.T) {
	t.Parallel()

	errInput := errors.New("bad input")
	b := NewBreaker(BreakerConfig{
		Name:        "test",
		MaxFailures: 2,
		Cooldown:    time.Hour,
		Counts:      func(err error) bool { return !errors.Is(err, errInput) },
	})
	for range 5 {
		if err := b.Do(func() error { return errInput }); !errors.Is(err, errInput) {
			t.Fatalf("Do = %v, want errInput", err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
	if b.Counts(errInput) || !b.Counts(errTest) || b.Counts(nil) {
		t.Error("Counts does not follow the configured classifier")
	}
	_ = b.Do(fail)
	_ = b.Do(fail)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after counted failures = %v, want open", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Do(fail)
	b.Reset()
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
	if err := b.Do(succeed); err != nil {
		t.Fatalf("Do after Reset = %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
