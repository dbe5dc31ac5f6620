package peerboard

import (
	"context"
	"fmt"
	"sync"
)

var ErrRejected = fmt.Errorf("signal rejected")

// Signal is a one-shot deferred result. It is settled exactly once, either
// with a value via Resolve or with an error via Reject. There is no
// cancellation: abandoning Wait does not stop whatever will settle it.
type Signal[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{
		done: make(chan struct{}),
	}
}

// Resolved returns a signal already settled with v.
func Resolved[T any](v T) *Signal[T] {
	s := NewSignal[T]()
	s.Resolve(v)
	return s
}

// Rejected returns a signal already settled with err.
func Rejected[T any](err error) *Signal[T] {
	s := NewSignal[T]()
	s.Reject(err)
	return s
}

// Resolve settles the signal with v. It reports false if the signal was
// already settled.
func (s *Signal[T]) Resolve(v T) (settled bool) {
	s.once.Do(func() {
		s.val = v
		settled = true
		close(s.done)
	})
	return
}

// Reject settles the signal with err, or ErrRejected when err is nil. It
// reports false if the signal was already settled.
func (s *Signal[T]) Reject(err error) (settled bool) {
	if err == nil {
		err = ErrRejected
	}
	s.once.Do(func() {
		s.err = err
		settled = true
		close(s.done)
	})
	return
}

func (s *Signal[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Signal[T]) Settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal settles or ctx is done.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.val, s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
