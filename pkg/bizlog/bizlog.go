// Package bizlog wires the formatter registry, descriptor registry,
// expression evaluator, diff engine and record assembler together and wraps
// business calls so that each one produces an audit record.
//
//	log, _ := bizlog.New(bizlog.WithSink(store), bizlog.WithStyle(diff.Chinese))
//	plan := log.MustRegister(assembler.Operation{
//		Type:    "ORDER",
//		BizNo:   "{{ order.orderNo }}",
//		Success: "修改了订单{{_diff}}",
//		Entity:  "order",
//		Before:  &assembler.SnapshotSource{Arg: "old"},
//		After:   &assembler.SnapshotSource{Arg: "order"},
//	})
//
//	err := bizlog.Run(ctx, log, plan, map[string]any{"old": old, "order": o},
//		func(ctx context.Context) error { return repo.Save(ctx, o) })
package bizlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/getmockd/bizlog/pkg/assembler"
	"github.com/getmockd/bizlog/pkg/config"
	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/diff"
	"github.com/getmockd/bizlog/pkg/expression"
	"github.com/getmockd/bizlog/pkg/formatter"
	"github.com/getmockd/bizlog/pkg/logging"
	"github.com/getmockd/bizlog/pkg/record"
	"github.com/getmockd/bizlog/pkg/store"
)

// Logger is the entry point for business code.
type Logger struct {
	formatters  *formatter.Registry
	descriptors *descriptor.Registry
	eval        *expression.Evaluator
	engine      *diff.Engine
	asm         *assembler.Assembler
	sink        record.Sink
	log         *slog.Logger

	mu    sync.RWMutex
	plans map[string]*assembler.Plan
}

type options struct {
	formatters      *formatter.Registry
	descriptors     *descriptor.Registry
	entities        map[string]*descriptor.Table
	sink            record.Sink
	style           diff.Style
	logger          *slog.Logger
	observer        assembler.ErrorObserver
	failureTemplate string
	defaultOperator string
	optional        []expression.Option
	now             func() time.Time
	lookups         map[string]assembler.LookupFunc
}

// Option configures a Logger.
type Option func(*options)

// WithFormatters uses reg instead of a registry holding only the built-ins.
func WithFormatters(reg *formatter.Registry) Option {
	return func(o *options) { o.formatters = reg }
}

// WithDescriptors uses reg as the descriptor registry. Its formatter checks
// must agree with the formatter registry.
func WithDescriptors(reg *descriptor.Registry) Option {
	return func(o *options) { o.descriptors = reg }
}

// WithEntity registers table under entity in the Logger's descriptor
// registry.
func WithEntity(entity string, table *descriptor.Table) Option {
	return func(o *options) {
		if o.entities == nil {
			o.entities = make(map[string]*descriptor.Table)
		}
		o.entities[entity] = table
	}
}

// WithSink sets where record batches are delivered. Defaults to
// record.Discard.
func WithSink(sink record.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithStyle sets the diff rendering style. Defaults to diff.English.
func WithStyle(style diff.Style) Option {
	return func(o *options) { o.style = style }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithObserver receives errors raised while assembling records.
func WithObserver(obs assembler.ErrorObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithFailureTemplate sets the template used for failed calls whose
// operation has no Fail template.
func WithFailureTemplate(src string) Option {
	return func(o *options) { o.failureTemplate = src }
}

// WithOptional declares a template variable that may be missing.
func WithOptional(name string, def any) Option {
	return func(o *options) { o.optional = append(o.optional, expression.WithOptional(name, def)) }
}

// WithDefaultOperator sets the operator recorded when none is known.
func WithDefaultOperator(op string) Option {
	return func(o *options) { o.defaultOperator = op }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLookup makes fn available to configured operations as the snapshot
// lookup called name.
func WithLookup(name string, fn assembler.LookupFunc) Option {
	return func(o *options) {
		if o.lookups == nil {
			o.lookups = make(map[string]assembler.LookupFunc)
		}
		o.lookups[name] = fn
	}
}

// New builds a Logger.
func New(opts ...Option) (*Logger, error) {
	o := options{style: diff.English}
	for _, opt := range opts {
		opt(&o)
	}
	if o.formatters == nil {
		o.formatters = formatter.NewRegistry()
	}
	if o.descriptors == nil {
		o.descriptors = descriptor.NewRegistry(o.formatters)
	}
	if o.sink == nil {
		o.sink = record.Discard
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	for entity, table := range o.entities {
		if err := o.descriptors.Register(entity, table); err != nil {
			return nil, err
		}
	}

	eval := expression.New(o.formatters, o.optional...)
	engine := diff.NewEngine(o.formatters, o.style)
	asm, err := assembler.New(eval, engine, o.descriptors, assembler.Config{
		FailureTemplate: o.failureTemplate,
		DefaultOperator: o.defaultOperator,
		Now:             o.now,
		Observer:        o.observer,
		Logger:          o.logger,
		Sink:            o.sink,
	})
	if err != nil {
		return nil, err
	}

	return &Logger{
		formatters:  o.formatters,
		descriptors: o.descriptors,
		eval:        eval,
		engine:      engine,
		asm:         asm,
		sink:        o.sink,
		log:         o.logger,
		plans:       make(map[string]*assembler.Plan),
	}, nil
}

// NewFromConfig builds a Logger from a configuration file. Unless opts
// provide them, the store, the diagnostics logger and the formatter registry
// come from cfg. Configured operations are available through Plan.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	base := []Option{
		WithStyle(cfg.Style()),
		WithFailureTemplate(cfg.FailureTemplate),
		WithDefaultOperator(cfg.DefaultOperator),
	}
	for name, def := range cfg.Optional {
		base = append(base, WithOptional(name, def))
	}
	if o.logger == nil {
		base = append(base, WithLogger(logging.New(cfg.LoggingConfig(os.Stderr))))
	}
	if o.formatters == nil {
		o.formatters = formatter.NewRegistry()
		base = append(base, WithFormatters(o.formatters))
	}

	if o.descriptors == nil {
		reg, err := cfg.Descriptors(o.formatters)
		if err != nil {
			return nil, err
		}
		base = append(base, WithDescriptors(reg))
	} else {
		tables, err := cfg.Tables()
		if err != nil {
			return nil, err
		}
		for _, entity := range sortedKeys(tables) {
			if err := o.descriptors.Register(entity, tables[entity]); err != nil {
				return nil, err
			}
		}
	}

	var opened store.Store
	if o.sink == nil {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return nil, err
		}
		opened = st
		base = append(base, WithSink(st))
	}

	l, err := New(append(base, opts...)...)
	if err == nil {
		err = l.registerConfigured(cfg.Operations, o.lookups)
	}
	if err != nil {
		if opened != nil {
			_ = opened.Close()
		}
		return nil, err
	}
	return l, nil
}

func (l *Logger) registerConfigured(ops []config.OperationConfig, lookups map[string]assembler.LookupFunc) error {
	for i, oc := range ops {
		op, err := oc.Operation(lookups)
		if err != nil {
			return fmt.Errorf("bizlog: operations[%d]: %w", i, err)
		}
		plan, err := l.Register(op)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.plans[plan.Name()] = plan
		l.mu.Unlock()
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plan returns the configured operation called name.
func (l *Logger) Plan(name string) (*assembler.Plan, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.plans[name]
	return p, ok
}

// Plans returns the names of the configured operations in lexical order.
func (l *Logger) Plans() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedKeys(l.plans)
}

// Store returns the sink as a queryable store, if it is one.
func (l *Logger) Store() (store.Store, bool) {
	st, ok := l.sink.(store.Store)
	return st, ok
}

// Register compiles op.
func (l *Logger) Register(op assembler.Operation) (*assembler.Plan, error) {
	return l.asm.Compile(op)
}

// MustRegister is like Register but panics on error. It is meant for
// package-level plan variables.
func (l *Logger) MustRegister(op assembler.Operation) *assembler.Plan {
	p, err := l.Register(op)
	if err != nil {
		panic(err)
	}
	return p
}

// Formatters returns the formatter registry.
func (l *Logger) Formatters() *formatter.Registry { return l.formatters }

// Descriptors returns the descriptor registry.
func (l *Logger) Descriptors() *descriptor.Registry { return l.descriptors }

// Evaluator returns the template evaluator.
func (l *Logger) Evaluator() *expression.Evaluator { return l.eval }

// Engine returns the diff engine.
func (l *Logger) Engine() *diff.Engine { return l.engine }

// Assembler returns the record assembler.
func (l *Logger) Assembler() *assembler.Assembler { return l.asm }

// Close closes the sink when it implements io.Closer.
func (l *Logger) Close() error {
	if c, ok := l.sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Do runs fn as a logged invocation of plan. fn receives a context carrying
// the invocation frame; nested logged calls must use it. The result and
// error of fn are returned unchanged. A panic in fn is recorded as a failure
// and then re-raised.
func Do[T any](ctx context.Context, l *Logger, plan *assembler.Plan, args map[string]any, fn func(ctx context.Context) (T, error)) (result T, err error) {
	ctx, inv := l.asm.Enter(ctx, plan, args)
	defer func() {
		if p := recover(); p != nil {
			l.asm.Exit(ctx, inv, assembler.Outcome{Err: &PanicError{Value: p}})
			panic(p)
		}
		l.asm.Exit(ctx, inv, assembler.Outcome{Return: result, Err: err})
	}()
	return fn(ctx)
}

// Run is Do for functions that only return an error.
func Run(ctx context.Context, l *Logger, plan *assembler.Plan, args map[string]any, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, l, plan, args, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// PanicError is the failure recorded for a call that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// IsPanic reports whether err records a panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
