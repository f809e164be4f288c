package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [Group] produced a result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// member pairs a value with the breaker guarding it.
type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary value and ordered fallbacks of the same type, each
// guarded by its own [Breaker].
//
// Members are added before the group is shared; [Do] may then be called
// concurrently.
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup creates a [Group] with primary as its first member. cfg is the
// template for every member's breaker; its Name is replaced by the member
// name.
func NewGroup[T any](primary T, name string, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. Fallbacks are tried in the order they were added.
func (g *Group[T]) Add(name string, v T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: v, breaker: NewBreaker(cfg)})
}

// Names returns the member names in try order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// Breaker returns the breaker guarding the named member, or nil.
func (g *Group[T]) Breaker(name string) *Breaker {
	for _, m := range g.members {
		if m.name == name {
			return m.breaker
		}
	}
	return nil
}

// Do calls fn with each member in order until one succeeds. Members whose
// breaker is open are skipped. Cancellation of ctx ends the attempt
// immediately and returns ctx's error unwrapped, and so does an error the
// breaker does not count (see [BreakerConfig.Counts]). When every member
// fails the error wraps [ErrAllFailed] and the last member's error.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var res R
		err := m.breaker.Do(func() error {
			var callErr error
			res, callErr = fn(m.value)
			return callErr
		})
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", m.name)
			continue
		}
		if !m.breaker.Counts(err) {
			return zero, err
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
