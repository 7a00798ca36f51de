package generator

import (
	"context"
	"fmt"
)

// Slots bounds how many generation calls may be in flight at once.
//
// It is a buffered channel of tokens: Acquire takes one (blocking while the
// pool is empty), Release puts it back.
type Slots struct {
	tokens chan struct{}
}

// NewSlots creates a pool with n slots. n < 1 is treated as 1.
func NewSlots(n int) *Slots {
	if n < 1 {
		n = 1
	}
	s := &Slots{tokens: make(chan struct{}, n)}
	for i := 0; i < n; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Slots) Acquire(ctx context.Context) error {
	select {
	case <-s.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (s *Slots) Release() {
	s.tokens <- struct{}{}
}

// Available reports how many slots are currently free.
func (s *Slots) Available() int {
	return len(s.tokens)
}

type bounded struct {
	next  Generator
	slots *Slots
}

// Bounded wraps g so that at most n calls run concurrently. Callers that
// cannot get a slot before their context ends fail without calling g.
func Bounded(g Generator, n int) Generator {
	return &bounded{next: g, slots: NewSlots(n)}
}

func (b *bounded) Generate(ctx context.Context, prompt string) (*Result, error) {
	if err := b.slots.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("generator: waiting for a free slot: %w", err)
	}
	defer b.slots.Release()

	return b.next.Generate(ctx, prompt)
}

// Unavailable is the Generator used when no provider is configured. Every
// call fails, which the insight workflow reports as a generation failure.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (*Result, error) {
	return nil, fmt.Errorf("generator: no text-generation provider configured")
}
