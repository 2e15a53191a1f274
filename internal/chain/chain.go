// Package chain implements the ordered handler pipelines the endpoint runs
// messages and authentication attempts through. A chain is three groups:
// a fixed built-in prefix, caller-supplied handlers that may change at
// runtime, and a fixed built-in suffix. Callers can only extend behavior
// between the mandatory stages, never bypass them.
package chain

import (
	"context"
	"errors"
	"sync"
)

// ErrStop terminates a chain run cleanly: remaining stages are skipped and
// Run returns nil. Any other non-nil error aborts the run and is returned.
var ErrStop = errors.New("chain: stop")

// Handler processes one request and decides whether the chain continues.
type Handler[T any] interface {
	Handle(ctx context.Context, req T) error
}

// Func adapts a function to the Handler interface.
type Func[T any] func(ctx context.Context, req T) error

func (f Func[T]) Handle(ctx context.Context, req T) error { return f(ctx, req) }

// entry wraps a user handler so removal can match by identity even when the
// handler value itself is not comparable.
type entry[T any] struct {
	h Handler[T]
}

// Chain is an ordered handler pipeline. The zero value is not usable; build
// one with New.
type Chain[T any] struct {
	mu     sync.RWMutex
	prefix []Handler[T]
	user   []*entry[T]
	suffix []Handler[T]
}

// New builds a chain with the given mandatory prefix and suffix stages.
func New[T any](prefix, suffix []Handler[T]) *Chain[T] {
	return &Chain[T]{prefix: prefix, suffix: suffix}
}

// Append adds a caller-supplied handler after the existing user handlers and
// before the suffix. The returned function removes it again; calling it more
// than once is a no-op.
func (c *Chain[T]) Append(h Handler[T]) (remove func()) {
	e := &entry[T]{h: h}
	c.mu.Lock()
	c.user = append(c.user, e)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, have := range c.user {
				if have == e {
					c.user = append(c.user[:i:i], c.user[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the total number of stages.
func (c *Chain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prefix) + len(c.user) + len(c.suffix)
}

// Run invokes every stage in order until one stops or fails.
func (c *Chain[T]) Run(ctx context.Context, req T) error {
	c.mu.RLock()
	stages := make([]Handler[T], 0, len(c.prefix)+len(c.user)+len(c.suffix))
	stages = append(stages, c.prefix...)
	for _, e := range c.user {
		stages = append(stages, e.h)
	}
	stages = append(stages, c.suffix...)
	c.mu.RUnlock()

	for _, h := range stages {
		if err := h.Handle(ctx, req); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
