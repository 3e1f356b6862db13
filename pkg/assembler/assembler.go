// Package assembler turns a logged invocation into an audit record. It binds
// the call's variables, evaluates the gating condition, computes the diff
// and renders the success or failure message.
package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/diff"
	"github.com/getmockd/bizlog/pkg/expression"
	"github.com/getmockd/bizlog/pkg/logctx"
	"github.com/getmockd/bizlog/pkg/logging"
	"github.com/getmockd/bizlog/pkg/record"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

// DefaultFailureTemplate renders failures of operations without a Fail
// template.
const DefaultFailureTemplate = "{{ _errorMsg }}"

// Config holds the assembler settings.
type Config struct {
	// FailureTemplate replaces DefaultFailureTemplate.
	FailureTemplate string
	// DefaultOperator is used when neither the operation nor the context
	// names an operator.
	DefaultOperator string
	// Now returns the record timestamp. Defaults to time.Now.
	Now      func() time.Time
	Observer ErrorObserver
	Logger   *slog.Logger
	// Sink receives the records of stacks the assembler creates.
	Sink record.Sink
}

// Assembler builds records for logged invocations. It is safe for
// concurrent use; per-call state lives in the context's stack.
type Assembler struct {
	eval        *expression.Evaluator
	engine      *diff.Engine
	descriptors *descriptor.Registry
	failure     *expression.Template
	operator    string
	now         func() time.Time
	observer    ErrorObserver
	log         *slog.Logger
	sink        record.Sink
}

// New creates an assembler. descriptors may be nil when no operation diffs
// entities.
func New(eval *expression.Evaluator, engine *diff.Engine, descriptors *descriptor.Registry, cfg Config) (*Assembler, error) {
	if eval == nil {
		return nil, errors.New("assembler: nil evaluator")
	}
	if engine == nil {
		return nil, errors.New("assembler: nil diff engine")
	}
	if cfg.FailureTemplate == "" {
		cfg.FailureTemplate = DefaultFailureTemplate
	}
	failure, err := eval.Compile(cfg.FailureTemplate)
	if err != nil {
		return nil, fmt.Errorf("assembler: failure template: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Observer == nil {
		cfg.Observer = LogObserver(cfg.Logger)
	}
	if cfg.Sink == nil {
		cfg.Sink = record.Discard
	}
	return &Assembler{
		eval:        eval,
		engine:      engine,
		descriptors: descriptors,
		failure:     failure,
		operator:    cfg.DefaultOperator,
		now:         cfg.Now,
		observer:    cfg.Observer,
		log:         cfg.Logger,
		sink:        cfg.Sink,
	}, nil
}

// Invocation is the state of one logged call between Enter and Exit.
type Invocation struct {
	plan   *Plan
	stack  *logctx.Stack
	args   map[string]any
	before snapshot.Snapshot
	pre    map[string]string
	// err is the before-snapshot failure. It only matters when the diff
	// is computed.
	err error
	// failed holds templates whose pre-invocation formatters failed. They
	// must not be rendered against the post-call state.
	failed map[*expression.Template]error
}

// observed reports whether err was already passed to the observer by Enter.
func (inv *Invocation) observed(err error) bool {
	if inv.err != nil && errors.Is(err, inv.err) {
		return true
	}
	for _, e := range inv.failed {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// Outcome is the result of the logged call.
type Outcome struct {
	Return any
	Err    error
}

// Enter opens a frame for a call of plan with the given named arguments.
// When ctx carries no stack a new one is created and attached to the
// returned context, which the logged call must use for nested calls to be
// aggregated.
func (a *Assembler) Enter(ctx context.Context, plan *Plan, args map[string]any) (context.Context, *Invocation) {
	s := logctx.FromContext(ctx)
	if s == nil {
		s = logctx.NewStack(a.sink, a.log)
		ctx = logctx.WithStack(ctx, s)
	}
	s.Push()
	for name, v := range args {
		_ = s.Put(name, v)
	}

	inv := &Invocation{plan: plan, stack: s, args: args}
	if src := plan.op.Before; src != nil {
		var before snapshot.Snapshot
		err := safely(func() (err error) {
			before, err = a.resolve(ctx, src, s)
			return err
		})
		if err != nil {
			inv.err = fmt.Errorf("before snapshot: %w", err)
			a.observer.ObserveError(ctx, plan.op.Name, inv.err)
		}
		inv.before = before
	}

	for _, t := range plan.templates() {
		var values map[string]string
		err := safely(func() (err error) {
			values, err = a.eval.Precompute(t, s)
			return err
		})
		if err != nil {
			err = fmt.Errorf("assembler: pre-invocation formatter: %w", err)
			a.observer.ObserveError(ctx, plan.op.Name, err)
			if inv.failed == nil {
				inv.failed = make(map[*expression.Template]error)
			}
			inv.failed[t] = err
			continue
		}
		if len(values) > 0 && inv.pre == nil {
			inv.pre = make(map[string]string)
		}
		maps.Copy(inv.pre, values)
	}
	return ctx, inv
}

// safely runs fn, turning a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

// Exit builds the record for inv from the call's outcome, queues it in the
// frame and closes the frame. It never panics and never returns an error:
// failures produce a degraded record and an observer notification.
func (a *Assembler) Exit(ctx context.Context, inv *Invocation, out Outcome) {
	name := inv.plan.op.Name
	defer func() {
		if err := inv.stack.Pop(ctx); err != nil {
			a.observer.ObserveError(ctx, name, err)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("assembler: panic: %v", p)
			a.observer.ObserveError(ctx, name, err)
			_ = inv.stack.Enqueue(a.degraded(ctx, inv, out, err))
		}
	}()

	rec, ok, err := a.build(ctx, inv, out)
	if err != nil {
		if !inv.observed(err) {
			a.observer.ObserveError(ctx, name, err)
		}
		rec, ok = a.degraded(ctx, inv, out, err), true
	}
	if ok {
		_ = inv.stack.Enqueue(rec)
	}
}

func (a *Assembler) build(ctx context.Context, inv *Invocation, out Outcome) (record.Record, bool, error) {
	p, s := inv.plan, inv.stack
	opts := []expression.RenderOption{expression.WithPrecomputed(inv.pre)}

	var tpl *expression.Template
	_ = s.Put(VarReturn, out.Return)
	if out.Err == nil {
		if p.condition != nil {
			ok, err := a.eval.Test(p.condition, s, opts...)
			if err != nil {
				return record.Record{}, false, err
			}
			if !ok {
				return record.Record{}, false, nil
			}
		}
		if p.table != nil {
			if inv.err != nil {
				return record.Record{}, false, inv.err
			}
			if err := a.bindDiff(ctx, inv); err != nil {
				return record.Record{}, false, err
			}
		}
		tpl = p.success
	} else {
		_ = s.Put(VarError, out.Err.Error())
		tpl = p.fail
		if tpl == nil {
			tpl = a.failure
		}
	}

	action, err := a.render(inv, tpl, opts)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("action: %w", err)
	}
	typ, err := a.render(inv, p.typ, opts)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("type: %w", err)
	}
	bizNo, err := a.render(inv, p.bizNo, opts)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("bizNo: %w", err)
	}
	subType, err := a.render(inv, p.subType, opts)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("subType: %w", err)
	}
	operator, err := a.render(inv, p.operator, opts)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("operator: %w", err)
	}
	extra, err := a.render(inv, p.extra, opts)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("extra: %w", err)
	}
	if p.extra == nil {
		extra = a.defaultExtra(ctx, inv)
	}
	if operator == "" {
		operator = a.defaultOperator(ctx)
	}

	return record.New(bizNo, typ, subType, action, operator, extra, out.Err != nil, a.now()), true, nil
}

func (a *Assembler) bindDiff(ctx context.Context, inv *Invocation) error {
	after, err := a.resolve(ctx, inv.plan.op.After, inv.stack)
	if err != nil {
		return fmt.Errorf("after snapshot: %w", err)
	}
	res, err := a.engine.Compute(inv.before, after, inv.plan.table)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	_ = inv.stack.Put(VarDiff, a.engine.Render(res))
	_ = inv.stack.Put(VarChanges, res)
	return nil
}

func (a *Assembler) render(inv *Invocation, t *expression.Template, opts []expression.RenderOption) (string, error) {
	if t == nil {
		return "", nil
	}
	if err := inv.failed[t]; err != nil {
		return "", err
	}
	return a.eval.Render(t, inv.stack, opts...)
}

// resolve reads the snapshot named by src from scope.
func (a *Assembler) resolve(ctx context.Context, src *SnapshotSource, scope expression.Scope) (snapshot.Snapshot, error) {
	v, ok := scope.Lookup(src.Arg)
	if !ok {
		return nil, &expression.UnresolvedReferenceError{Path: src.Arg}
	}
	if src.Lookup != nil {
		return src.Lookup(ctx, v)
	}
	if snapshot.IsNil(v) {
		return nil, nil
	}
	s, ok := snapshot.From(v)
	if !ok {
		return nil, fmt.Errorf("argument %q of type %T is not a snapshot", src.Arg, v)
	}
	return s, nil
}

func (a *Assembler) defaultOperator(ctx context.Context) string {
	if op := logctx.Operator(ctx); op != "" {
		return op
	}
	return a.operator
}

// defaultExtra serializes the call arguments.
func (a *Assembler) defaultExtra(ctx context.Context, inv *Invocation) string {
	if len(inv.args) == 0 {
		return ""
	}
	data, err := json.Marshal(toJSON(inv.args))
	if err != nil {
		a.log.DebugContext(ctx, "arguments not serializable", "operation", inv.plan.op.Name, "error", err)
		return ""
	}
	return string(data)
}

func toJSON(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if m, ok := v.(snapshot.Map); ok {
			v = map[string]any(m)
		}
		out[k] = v
	}
	return out
}

// degraded builds a record field by field, keeping whatever still renders.
func (a *Assembler) degraded(ctx context.Context, inv *Invocation, out Outcome, cause error) record.Record {
	p := inv.plan
	opts := []expression.RenderOption{expression.WithPrecomputed(inv.pre)}
	field := func(t *expression.Template) string {
		v, err := a.render(inv, t, opts)
		if err != nil {
			return ""
		}
		return v
	}

	typ := field(p.typ)
	if typ == "" {
		typ = p.op.Type
	}
	operator := field(p.operator)
	if operator == "" {
		operator = a.defaultOperator(ctx)
	}
	action := fmt.Sprintf("%s: audit message unavailable (%v)", p.op.Name, cause)
	return record.New(field(p.bizNo), typ, field(p.subType), action, operator, a.defaultExtra(ctx, inv), out.Err != nil, a.now())
}
