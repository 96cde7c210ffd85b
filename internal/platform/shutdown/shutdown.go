// Package shutdown ties process signals to a context and releases resources in reverse
// order of acquisition.
package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Stack collects cleanup funcs. Close runs them last-in first-out and joins their errors.
type Stack struct {
	mu      sync.Mutex
	closers []closer
	closed  bool
}

func (s *Stack) Push(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, closer{name: name, fn: fn})
}

// Close is idempotent; later calls return nil.
func (s *Stack) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(ctx); err != nil {
			errs = append(errs, &Error{Name: closers[i].name, Err: err})
		}
	}
	return errors.Join(errs...)
}

type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string { return "close " + e.Name + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
