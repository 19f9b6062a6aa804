// Package xerrors adds call-site information to errors without changing how
// they compare. Wrappers keep errors.Is / errors.As working through Unwrap and
// expose either a single caller PC (Wrap) or a captured stack (New, WithStack)
// for the logger to render.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries a captured stack alongside the wrapped error.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated prefixes a message and records the single frame that added it.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

// callers skips runtime.Callers, callers itself and skip more frames.
func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func withStack(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: callers(skip + 1)}
}

// New returns an error with msg and the caller's stack.
func New(msg string) error { return withStack(errors.New(msg), 1) }

// Newf is New with fmt formatting. %w is honored.
func Newf(format string, args ...any) error { return withStack(fmt.Errorf(format, args...), 1) }

// WithStack attaches the caller's stack to err unconditionally.
func WithStack(err error) error { return withStack(err, 1) }

// EnsureTrace attaches a stack only when nothing in the chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return withStack(err, 1)
}

// Wrap prefixes err with msg, recording the caller. Nil in, nil out.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: callerPC(1)}
}

// Wrapf is Wrap with fmt formatting of the prefix.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}
