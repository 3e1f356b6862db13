// Package formatter holds the named display functions shared by message
// templates and field descriptors.
//
// A formatter maps one or more raw values to a display string. Templates call
// them by name ({{ upper(order.name) }}) and descriptors reference them so the
// diff engine can render both sides of a change the same way.
//
// Registries are populated during initialization and only read afterwards.
package formatter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Func renders its arguments as a display string.
type Func func(args ...any) (string, error)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("formatter: duplicate registration")

// UnknownError reports a formatter name that was never registered.
type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string {
	return "formatter: unknown formatter " + strconv.Quote(e.Name)
}

// CallError reports a formatter that failed or panicked while rendering.
// Field is set when the call was made on behalf of a field descriptor.
type CallError struct {
	Name  string
	Field string
	Err   error
}

func (e *CallError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("formatter: %q failed on field %q: %v", e.Name, e.Field, e.Err)
	}
	return fmt.Sprintf("formatter: %q failed: %v", e.Name, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

type registered struct {
	fn     Func
	before bool
}

// Registry maps formatter names to functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]registered
}

// NewRegistry returns a registry preloaded with the built-in formatters.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for name, fn := range builtins() {
		r.funcs[name] = registered{fn: fn}
	}
	return r
}

// NewEmptyRegistry returns a registry without any formatters.
func NewEmptyRegistry() *Registry {
	return &Registry{funcs: make(map[string]registered)}
}

// Register adds fn under name.
func (r *Registry) Register(name string, fn Func) error {
	return r.add(name, fn, false)
}

// RegisterBefore adds fn under name and marks it to be evaluated before the
// logged call runs, so it observes the state the call is about to change.
func (r *Registry) RegisterBefore(name string, fn Func) error {
	return r.add(name, fn, true)
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) add(name string, fn Func, before bool) error {
	if name == "" {
		return errors.New("formatter: empty name")
	}
	if fn == nil {
		return fmt.Errorf("formatter: nil function for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	r.funcs[name] = registered{fn: fn, before: before}
	return nil
}

// Resolve returns the formatter registered under name.
func (r *Registry) Resolve(name string) (Func, error) {
	r.mu.RLock()
	reg, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownError{Name: name}
	}
	return reg.fn, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// IsBefore reports whether name was registered with RegisterBefore.
func (r *Registry) IsBefore(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.funcs[name].before
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Call resolves name and invokes it. Errors and panics raised by the
// formatter come back as *CallError.
func (r *Registry) Call(name string, args ...any) (out string, err error) {
	fn, err := r.Resolve(name)
	if err != nil {
		return "", err
	}
	defer func() {
		if p := recover(); p != nil {
			out = ""
			err = &CallError{Name: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	out, err = fn(args...)
	if err != nil {
		return "", &CallError{Name: name, Err: err}
	}
	return out, nil
}

// Unary adapts a single-argument function. Missing arguments are passed as nil.
func Unary(fn func(v any) (string, error)) Func {
	return func(args ...any) (string, error) {
		if len(args) == 0 {
			return fn(nil)
		}
		return fn(args[0])
	}
}

// Simple adapts a single-argument function that cannot fail.
func Simple(fn func(v any) string) Func {
	return Unary(func(v any) (string, error) {
		return fn(v), nil
	})
}
