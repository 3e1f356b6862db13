package expression

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/getmockd/bizlog/pkg/formatter"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

type node interface {
	eval(c *evalContext) (any, error)
	String() string
}

// evalContext carries the per-evaluation state. Nodes never mutate it.
type evalContext struct {
	scope    Scope
	funcs    Formatters
	optional map[string]any
	pre      map[string]string
}

type literalNode struct {
	val any
}

func (n *literalNode) eval(*evalContext) (any, error) {
	return n.val, nil
}

func (n *literalNode) String() string {
	switch v := n.val.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return formatter.Display(v)
	}
}

type identNode struct {
	name string
}

func (n *identNode) eval(c *evalContext) (any, error) {
	if c.scope != nil {
		if v, ok := c.scope.Lookup(n.name); ok {
			return v, nil
		}
	}
	if v, ok := c.optional[n.name]; ok {
		return v, nil
	}
	return nil, &UnresolvedReferenceError{Path: n.name}
}

func (n *identNode) String() string {
	return n.name
}

type memberNode struct {
	x    node
	name string
	safe bool
}

func (n *memberNode) eval(c *evalContext) (any, error) {
	v, err := n.x.eval(c)
	if err != nil {
		return nil, err
	}
	if snapshot.IsNil(v) {
		if n.safe {
			return nil, nil
		}
		return nil, &UnresolvedReferenceError{Path: n.String()}
	}
	out, ok := field(v, n.name)
	if !ok {
		return nil, &UnresolvedReferenceError{Path: n.String()}
	}
	return out, nil
}

func (n *memberNode) String() string {
	sep := "."
	if n.safe {
		sep = "?."
	}
	return n.x.String() + sep + n.name
}

type indexNode struct {
	x     node
	index node
}

func (n *indexNode) eval(c *evalContext) (any, error) {
	v, err := n.x.eval(c)
	if err != nil {
		return nil, err
	}
	idx, err := n.index.eval(c)
	if err != nil {
		return nil, err
	}
	if snapshot.IsNil(v) {
		return nil, &UnresolvedReferenceError{Path: n.String()}
	}

	if key, ok := idx.(string); ok {
		out, ok := field(v, key)
		if !ok {
			return nil, &UnresolvedReferenceError{Path: n.String()}
		}
		return out, nil
	}

	elems, ok := snapshot.Elements(v)
	if !ok {
		return nil, &EvalError{Expr: n.String(), Msg: "cannot index " + reflect.TypeOf(v).String()}
	}
	f, ok := snapshot.AsFloat(idx)
	if !ok || f != float64(int(f)) {
		return nil, &EvalError{Expr: n.String(), Msg: "index is not an integer"}
	}
	i := int(f)
	if i < 0 || i >= len(elems) {
		return nil, &UnresolvedReferenceError{Path: n.String()}
	}
	return elems[i], nil
}

func (n *indexNode) String() string {
	return n.x.String() + "[" + n.index.String() + "]"
}

type callNode struct {
	name string
	args []node
	key  string
}

func (n *callNode) eval(c *evalContext) (any, error) {
	if s, ok := c.pre[n.key]; ok {
		return s, nil
	}
	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(c)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return c.funcs.Call(n.name, args...)
}

func (n *callNode) String() string {
	parts := make([]string, len(n.args))
	for i, a := range n.args {
		parts[i] = a.String()
	}
	return n.name + "(" + strings.Join(parts, ", ") + ")"
}

type unaryNode struct {
	op string
	x  node
}

func (n *unaryNode) eval(c *evalContext) (any, error) {
	v, err := n.x.eval(c)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, &EvalError{Expr: n.String(), Msg: "operand of ! is not a bool"}
		}
		return !b, nil
	default:
		switch x := v.(type) {
		case int64:
			return -x, nil
		case int:
			return -int64(x), nil
		}
		f, ok := snapshot.AsFloat(v)
		if !ok {
			return nil, &EvalError{Expr: n.String(), Msg: "operand of - is not a number"}
		}
		return -f, nil
	}
}

func (n *unaryNode) String() string {
	return n.op + n.x.String()
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(c *evalContext) (any, error) {
	l, err := n.left.eval(c)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "&&", "||":
		lb, ok := l.(bool)
		if !ok {
			return nil, &EvalError{Expr: n.String(), Msg: "left operand of " + n.op + " is not a bool"}
		}
		if (n.op == "&&" && !lb) || (n.op == "||" && lb) {
			return lb, nil
		}
		r, err := n.right.eval(c)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, &EvalError{Expr: n.String(), Msg: "right operand of " + n.op + " is not a bool"}
		}
		return rb, nil
	}

	r, err := n.right.eval(c)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	}

	cmp, ok := compare(l, r)
	if !ok {
		return nil, &EvalError{Expr: n.String(), Msg: "cannot compare " + typeName(l) + " with " + typeName(r)}
	}
	switch n.op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func (n *binaryNode) String() string {
	return n.left.String() + " " + n.op + " " + n.right.String()
}

func equal(a, b any) bool {
	if snapshot.IsNil(a) || snapshot.IsNil(b) {
		return snapshot.IsNil(a) && snapshot.IsNil(b)
	}
	return snapshot.Equal(a, b)
}

func compare(a, b any) (int, bool) {
	if af, ok := snapshot.AsFloat(a); ok {
		bf, ok := snapshot.AsFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}

// field reads a named member off v through its snapshot view.
func field(v any, name string) (any, bool) {
	s, ok := snapshot.From(v)
	if !ok {
		return nil, false
	}
	return s.Field(name)
}
