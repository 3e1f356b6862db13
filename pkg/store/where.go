package store

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/bizlog/pkg/record"
)

var (
	whereMu    sync.RWMutex
	whereCache = make(map[string]*predicate)
)

type predicate struct {
	src     string
	program *vm.Program
}

// recordEnv exposes r to Where expressions. The record type is published as
// category because type is an expr-lang builtin.
func recordEnv(r record.Record) map[string]any {
	return map[string]any{
		"id":        r.ID,
		"bizNo":     r.BizNo,
		"category":  r.Type,
		"subType":   r.SubType,
		"action":    r.Action,
		"operator":  r.Operator,
		"extra":     r.Extra,
		"fail":      r.Fail,
		"createdAt": r.CreatedAt,
	}
}

// compileWhere compiles src once and caches the program. An empty src
// yields a nil predicate.
func compileWhere(src string) (*predicate, error) {
	if src == "" {
		return nil, nil
	}

	whereMu.RLock()
	if p, ok := whereCache[src]; ok {
		whereMu.RUnlock()
		return p, nil
	}
	whereMu.RUnlock()

	program, err := expr.Compile(src, expr.Env(recordEnv(record.Record{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("store: invalid where expression %q: %w", src, err)
	}

	whereMu.Lock()
	defer whereMu.Unlock()
	if existing, ok := whereCache[src]; ok {
		return existing, nil
	}
	p := &predicate{src: src, program: program}
	whereCache[src] = p
	return p, nil
}

func (p *predicate) match(r record.Record) (bool, error) {
	out, err := expr.Run(p.program, recordEnv(r))
	if err != nil {
		return false, fmt.Errorf("store: where %q: %w", p.src, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// ValidateWhere reports whether src compiles as a Where expression.
func ValidateWhere(src string) error {
	_, err := compileWhere(src)
	return err
}
