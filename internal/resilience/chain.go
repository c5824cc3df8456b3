package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when every entry in a [Chain] fails or has an
// open breaker.
var ErrChainExhausted = errors.New("all providers in chain failed")

// Entry pairs a named provider with its dedicated breaker.
type Entry[T any] struct {
	Name  string
	Value T

	breaker *Breaker
}

// Chain tries an ordered list of providers until one succeeds. Entries with an
// open breaker are skipped; entries returning a [Permanent] error are skipped
// for the current call without affecting their breaker.
//
// Chain is safe for concurrent use after construction.
type Chain[T any] struct {
	entries []Entry[T]
}

// NewChain builds a [Chain] over the given entries, in order. Each entry gets
// its own breaker configured from cfg with the entry's name.
func NewChain[T any](cfg BreakerConfig, entries ...Entry[T]) *Chain[T] {
	c := &Chain[T]{entries: entries}
	for i := range c.entries {
		ecfg := cfg
		ecfg.Name = c.entries[i].Name
		c.entries[i].breaker = NewBreaker(ecfg)
	}
	return c
}

// Len returns the number of entries in the chain.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Names returns the entry names in chain order.
func (c *Chain[T]) Names() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Name
	}
	return out
}

// Do runs fn against each entry in order until one succeeds, or the context is
// done. The last error is wrapped with [ErrChainExhausted] when every entry
// fails.
func Do[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, string, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e := &c.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(ctx, e.Name, e.Value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrBreakerOpen):
			slog.Debug("skipping provider, breaker open", "provider", e.Name)
		case IsPermanent(err):
			slog.Warn("provider rejected request, trying next", "provider", e.Name, "err", err)
		default:
			slog.Warn("provider failed, trying next", "provider", e.Name, "err", err)
		}
	}
	if lastErr == nil {
		return zero, ErrChainExhausted
	}
	return zero, fmt.Errorf("%w: %w", ErrChainExhausted, lastErr)
}
