package expression

import (
	"errors"
	"strings"
	"sync"

	"github.com/getmockd/bizlog/pkg/formatter"
)

// Formatters is the formatter surface the evaluator needs.
// *formatter.Registry satisfies it.
type Formatters interface {
	Has(name string) bool
	IsBefore(name string) bool
	Call(name string, args ...any) (string, error)
}

// Evaluator compiles and renders templates. Compiled templates and
// conditions are cached by source text; the cache is safe for concurrent
// use.
type Evaluator struct {
	funcs    Formatters
	optional map[string]any

	mu         sync.RWMutex
	templates  map[string]*Template
	conditions map[string]*Condition
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithOptional declares a root variable that may be missing from the scope.
// A missing optional variable evaluates to def instead of failing.
func WithOptional(name string, def any) Option {
	return func(e *Evaluator) {
		e.optional[name] = def
	}
}

// New creates an evaluator that resolves formatter calls through funcs.
func New(funcs Formatters, opts ...Option) *Evaluator {
	e := &Evaluator{
		funcs:      funcs,
		optional:   make(map[string]any),
		templates:  make(map[string]*Template),
		conditions: make(map[string]*Condition),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses src, or returns the cached template for it.
func (e *Evaluator) Compile(src string) (*Template, error) {
	e.mu.RLock()
	t, ok := e.templates[src]
	e.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := parseTemplate(src, e.funcs)
	if err != nil {
		return nil, withSource(err, src)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.templates[src]; ok {
		return cached, nil
	}
	e.templates[src] = t
	return t, nil
}

// MustCompile is like Compile but panics on error.
func (e *Evaluator) MustCompile(src string) *Template {
	t, err := e.Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

// CompileCondition parses a bare boolean expression or a single {{ }}
// segment, or returns the cached condition for src.
func (e *Evaluator) CompileCondition(src string) (*Condition, error) {
	e.mu.RLock()
	c, ok := e.conditions[src]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := parseCondition(src, e.funcs)
	if err != nil {
		return nil, withSource(err, src)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.conditions[src]; ok {
		return cached, nil
	}
	e.conditions[src] = c
	return c, nil
}

// RenderOption configures a single Render call.
type RenderOption func(*evalContext)

// WithPrecomputed supplies values produced by Precompute. Calls found in
// values are not evaluated again.
func WithPrecomputed(values map[string]string) RenderOption {
	return func(c *evalContext) {
		c.pre = values
	}
}

func (e *Evaluator) context(scope Scope, opts []RenderOption) *evalContext {
	c := &evalContext{scope: scope, funcs: e.funcs, optional: e.optional}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render evaluates every expression of t against scope and concatenates
// the results with the literal text.
func (e *Evaluator) Render(t *Template, scope Scope, opts ...RenderOption) (string, error) {
	c := e.context(scope, opts)
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			b.WriteString(seg.literal)
			continue
		}
		v, err := seg.expr.eval(c)
		if err != nil {
			return "", err
		}
		b.WriteString(formatter.Display(v))
	}
	return b.String(), nil
}

// Execute compiles src and renders it.
func (e *Evaluator) Execute(src string, scope Scope, opts ...RenderOption) (string, error) {
	t, err := e.Compile(src)
	if err != nil {
		return "", err
	}
	return e.Render(t, scope, opts...)
}

// Test evaluates cond against scope. Evaluation failures and non-bool
// results are reported as *ConditionError.
func (e *Evaluator) Test(cond *Condition, scope Scope, opts ...RenderOption) (bool, error) {
	v, err := cond.expr.eval(e.context(scope, opts))
	if err != nil {
		return false, &ConditionError{Source: cond.src, Err: err}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ConditionError{Source: cond.src, Result: v}
	}
	return b, nil
}

// Precompute evaluates the calls in t to formatters registered with
// RegisterBefore. Pass the result to Render with WithPrecomputed.
func (e *Evaluator) Precompute(t *Template, scope Scope) (map[string]string, error) {
	if len(t.before) == 0 {
		return nil, nil
	}
	c := e.context(scope, nil)
	out := make(map[string]string, len(t.before))
	for _, call := range t.before {
		if _, ok := out[call.key]; ok {
			continue
		}
		v, err := call.eval(c)
		if err != nil {
			return nil, err
		}
		out[call.key] = formatter.Display(v)
	}
	return out, nil
}

func withSource(err error, src string) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Source = src
	}
	return err
}
