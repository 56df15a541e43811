// Package future implements the cooperative, single-shot result type
// the engine uses to represent in-flight exchanges such as an ARP
// resolution. It is deliberately not built on goroutines or channels:
// the only way a Handle advances is an explicit poll call supplying
// the current instant, mirroring how the engine itself only makes
// progress on poll/receive calls.
package future

import (
	"time"

	"github.com/soypat/corelink"
)

// cell is the shared state a Handle observes. Exactly one owner, the
// component that created the future (e.g. the ARP resolver), ever
// mutates it; Handles only read.
type cell[T any] struct {
	done    bool
	value   T
	err     corelink.ErrorKind
	advance func(time.Time)
}

// Handle is a shared, read-only view of a cooperative single-shot
// computation. Multiple Handles may share one underlying cell;
// whichever is polled last observes the same terminal value as any
// other, since the cell is engine-owned and Handles never write it.
type Handle[T any] struct {
	c *cell[T]
}

// New creates a fresh pending Handle and returns it alongside the
// Resolver used by the owner to advance it. Resolver is not part of
// the public Handle so callers cannot forge completions.
func New[T any]() (Handle[T], *Resolver[T]) {
	c := &cell[T]{}
	return Handle[T]{c: c}, &Resolver[T]{c: c}
}

// Poll returns (value, err, true) if the computation has reached a
// terminal state, or the zero value and false while pending. Per the
// deferred-result contract, calling Poll again after a terminal state
// returns the same value. If the owner wired an advance hook (see
// Resolver.SetAdvance), a pending Poll first drives it with now so a
// caller that only ever polls the Handle, never the engine's own
// Poll, still observes retries and eventual timeout. The hook is
// idempotent for a repeated now, so this never double-fires a retry.
func (h Handle[T]) Poll(now time.Time) (value T, err corelink.ErrorKind, ok bool) {
	if !h.c.done && h.c.advance != nil {
		h.c.advance(now)
	}
	if !h.c.done {
		var zero T
		return zero, 0, false
	}
	return h.c.value, h.c.err, true
}

// Done reports whether the handle has reached a terminal state
// without requiring a time argument.
func (h Handle[T]) Done() bool { return h.c.done }

// Attach returns another Handle sharing the same underlying cell,
// used when a second caller asks for the same in-flight result
// (e.g. a duplicate ArpQuery for a target already being resolved).
func (h Handle[T]) Attach() Handle[T] { return Handle[T]{c: h.c} }

// Resolver is the write side of a Handle's cell, held only by the
// component that owns the computation (e.g. arp.Resolver).
type Resolver[T any] struct {
	c *cell[T]
}

// Complete transitions the cell to Ok(value). A no-op if already terminal.
func (r *Resolver[T]) Complete(value T) {
	if r.c.done {
		return
	}
	r.c.done = true
	r.c.value = value
}

// Fail transitions the cell to Err(kind). A no-op if already terminal.
func (r *Resolver[T]) Fail(kind corelink.ErrorKind) {
	if r.c.done {
		return
	}
	r.c.done = true
	r.c.err = kind
}

// Done reports whether the underlying cell has already reached a
// terminal state.
func (r *Resolver[T]) Done() bool { return r.c.done }

// SetAdvance wires the hook every Handle sharing this cell invokes
// from a pending Poll, passing through the caller's now. The owner
// uses this to fold its own timer-driven state transitions (e.g. an
// ARP retry/timeout sweep) into the Handle's poll point without the
// Handle holding a back-reference to the owner itself; a bound method
// value is enough.
func (r *Resolver[T]) SetAdvance(fn func(time.Time)) { r.c.advance = fn }
