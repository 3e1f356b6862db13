package expression

import (
	"fmt"
	"strconv"
)

// ParseError reports malformed template or expression syntax, or a call to
// an unregistered formatter. Pos is a byte offset into Source.
type ParseError struct {
	Source string
	Pos    int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("expression: parse error at offset %d in %s: %s", e.Pos, strconv.Quote(e.Source), e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// UnresolvedReferenceError reports a variable or member path that does not
// exist in the evaluation scope.
type UnresolvedReferenceError struct {
	Path string
}

func (e *UnresolvedReferenceError) Error() string {
	return "expression: unresolved reference " + strconv.Quote(e.Path)
}

// ConditionError reports a condition that failed to evaluate or did not
// produce a bool.
type ConditionError struct {
	Source string
	Result any
	Err    error
}

func (e *ConditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("expression: condition %q: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("expression: condition %q evaluated to %T, want bool", e.Source, e.Result)
}

func (e *ConditionError) Unwrap() error {
	return e.Err
}

// EvalError reports an operator applied to values it cannot handle.
type EvalError struct {
	Expr string
	Msg  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("expression: %s: %s", e.Expr, e.Msg)
}
