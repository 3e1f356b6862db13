// Package logctx scopes variables to logged invocations and collects the
// records of nested invocations until the outermost one completes.
//
// A Stack belongs to a single call chain and is carried by its
// context.Context. It is not safe for concurrent use: goroutines spawned by a
// logged call must not share the caller's stack.
package logctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getmockd/bizlog/pkg/logging"
	"github.com/getmockd/bizlog/pkg/record"
)

// ErrEmptyStack is returned when an operation needs a frame and none is open.
var ErrEmptyStack = errors.New("logctx: no open frame")

// Frame holds the variables and pending records of one logged invocation.
type Frame struct {
	vars    map[string]any
	parent  *Frame
	pending []record.Record
}

// Lookup resolves name in this frame, then in each enclosing frame.
func (f *Frame) Lookup(name string) (any, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Pending returns a copy of the records queued in this frame.
func (f *Frame) Pending() []record.Record {
	out := make([]record.Record, len(f.pending))
	copy(out, f.pending)
	return out
}

// Stack is a LIFO of frames plus the sink that receives the records of the
// outermost frame.
type Stack struct {
	top   *Frame
	depth int
	sink  record.Sink
	log   *slog.Logger
}

// NewStack creates an empty stack. A nil sink discards records and a nil
// logger disables logging.
func NewStack(sink record.Sink, log *slog.Logger) *Stack {
	if sink == nil {
		sink = record.Discard
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Stack{sink: sink, log: log}
}

// Push opens a new innermost frame.
func (s *Stack) Push() *Frame {
	f := &Frame{vars: make(map[string]any), parent: s.top}
	s.top = f
	s.depth++
	return f
}

// Pop closes the innermost frame. The records of a nested frame move to its
// parent in order. Closing the outermost frame delivers all collected records
// to the sink in one batch; an empty batch is not delivered.
//
// The flush runs even if ctx was cancelled by the logged call.
func (s *Stack) Pop(ctx context.Context) error {
	f := s.top
	if f == nil {
		return ErrEmptyStack
	}
	s.top = f.parent
	s.depth--

	if f.parent != nil {
		f.parent.pending = append(f.parent.pending, f.pending...)
		return nil
	}
	if len(f.pending) == 0 {
		return nil
	}

	last := f.pending[len(f.pending)-1]
	s.log.Debug("flushing audit records",
		"bizNo", last.BizNo,
		"type", last.Type,
		"count", len(f.pending),
	)
	if err := s.sink.Flush(context.WithoutCancel(ctx), last.BizNo, last.Type, f.pending); err != nil {
		return fmt.Errorf("logctx: flush %d records for %s/%s: %w", len(f.pending), last.Type, last.BizNo, err)
	}
	return nil
}

// Put binds name in the innermost frame.
func (s *Stack) Put(name string, v any) error {
	if s.top == nil {
		return ErrEmptyStack
	}
	s.top.vars[name] = v
	return nil
}

// Lookup resolves name from the innermost frame outward.
func (s *Stack) Lookup(name string) (any, bool) {
	if s.top == nil {
		return nil, false
	}
	return s.top.Lookup(name)
}

// Enqueue appends rec to the innermost frame.
func (s *Stack) Enqueue(rec record.Record) error {
	if s.top == nil {
		return ErrEmptyStack
	}
	s.top.pending = append(s.top.pending, rec)
	return nil
}

// Depth returns the number of open frames.
func (s *Stack) Depth() int {
	return s.depth
}

// Top returns the innermost frame, or nil.
func (s *Stack) Top() *Frame {
	return s.top
}
