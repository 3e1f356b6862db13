package assembler

import (
	"context"
	"errors"
	"fmt"

	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/expression"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

// Names bound in the invocation scope in addition to the call arguments.
const (
	VarReturn  = "_ret"
	VarError   = "_errorMsg"
	VarDiff    = "_diff"
	VarChanges = "_changes"
)

// LookupFunc loads the snapshot identified by key, typically by reading the
// current state of an entity from storage.
type LookupFunc func(ctx context.Context, key any) (snapshot.Snapshot, error)

// SnapshotSource says where a diff snapshot comes from: the value bound to
// Arg, optionally passed through Lookup. Arg may be VarReturn.
type SnapshotSource struct {
	Arg    string
	Lookup LookupFunc
}

// Operation declares how one business method is logged. Every string except
// Name and Entity is a template evaluated against the call's variables;
// Condition is a boolean expression.
type Operation struct {
	Name string
	// Type is the business category of the record. Required.
	Type  string
	BizNo string
	// SubType distinguishes records of the same Type, for example the
	// screen or API that triggered the change.
	SubType string
	// Success renders the action text when the call returns without error.
	// Required.
	Success string
	// Fail renders the action text when the call fails. Empty means the
	// assembler's failure template.
	Fail      string
	Condition string
	Operator  string
	Extra     string
	// Entity names the descriptor table used to diff Before and After.
	Entity string
	Before *SnapshotSource
	// After defaults to the return value when Entity is set.
	After *SnapshotSource
}

// Plan is a compiled Operation. Plans are immutable and may be shared by
// concurrent invocations.
type Plan struct {
	op        Operation
	typ       *expression.Template
	bizNo     *expression.Template
	subType   *expression.Template
	success   *expression.Template
	fail      *expression.Template
	operator  *expression.Template
	extra     *expression.Template
	condition *expression.Condition
	table     *descriptor.Table
}

// Operation returns the declaration the plan was compiled from.
func (p *Plan) Operation() Operation {
	return p.op
}

// Name returns the operation name.
func (p *Plan) Name() string {
	return p.op.Name
}

func (p *Plan) templates() []*expression.Template {
	var out []*expression.Template
	for _, t := range []*expression.Template{p.typ, p.bizNo, p.subType, p.success, p.fail, p.operator, p.extra} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Compile parses every template of op and resolves its entity table, so that
// syntax errors, unknown formatters and unknown entities surface before the
// operation is first used.
func (a *Assembler) Compile(op Operation) (*Plan, error) {
	if op.Name == "" {
		op.Name = op.Type
	}
	if op.Type == "" {
		return nil, fmt.Errorf("assembler: operation %q: type is required", op.Name)
	}
	if op.Success == "" {
		return nil, fmt.Errorf("assembler: operation %q: success template is required", op.Name)
	}
	if (op.Before != nil || op.After != nil) && op.Entity == "" {
		return nil, fmt.Errorf("assembler: operation %q: snapshots require an entity", op.Name)
	}
	if op.Entity != "" && op.After == nil {
		op.After = &SnapshotSource{Arg: VarReturn}
	}
	for _, src := range []*SnapshotSource{op.Before, op.After} {
		if src != nil && src.Arg == "" {
			return nil, fmt.Errorf("assembler: operation %q: snapshot source without argument name", op.Name)
		}
	}

	p := &Plan{op: op}
	var errs []error
	compile := func(field, src string) *expression.Template {
		if src == "" {
			return nil
		}
		t, err := a.eval.Compile(src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return t
	}
	p.typ = compile("type", op.Type)
	p.bizNo = compile("bizNo", op.BizNo)
	p.subType = compile("subType", op.SubType)
	p.success = compile("success", op.Success)
	p.fail = compile("fail", op.Fail)
	p.operator = compile("operator", op.Operator)
	p.extra = compile("extra", op.Extra)

	if op.Condition != "" {
		c, err := a.eval.CompileCondition(op.Condition)
		if err != nil {
			errs = append(errs, fmt.Errorf("condition: %w", err))
		}
		p.condition = c
	}
	if op.Entity != "" {
		if a.descriptors == nil {
			errs = append(errs, fmt.Errorf("entity %q: %w", op.Entity, descriptor.ErrUnknownEntity))
		} else {
			t, err := a.descriptors.Lookup(op.Entity)
			if err != nil {
				errs = append(errs, err)
			}
			p.table = t
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("assembler: operation %q: %w", op.Name, err)
	}
	return p, nil
}
