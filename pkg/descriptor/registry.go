package descriptor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/getmockd/bizlog/pkg/formatter"
)

var (
	// ErrDuplicate is returned when an entity type is registered twice.
	ErrDuplicate = errors.New("descriptor: duplicate entity type")
	// ErrUnknownEntity is returned by Lookup for unregistered entity types.
	ErrUnknownEntity = errors.New("descriptor: unknown entity type")
)

// FieldError reports an invalid descriptor found during registration.
type FieldError struct {
	Entity string
	Path   string
	Msg    string
	Err    error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("descriptor: %s.%s: %s", e.Entity, e.Path, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Checker reports whether a formatter name is known.
// *formatter.Registry satisfies it.
type Checker interface {
	Has(name string) bool
}

// Registry maps entity type names to descriptor tables.
type Registry struct {
	mu         sync.RWMutex
	formatters Checker
	tables     map[string]*Table
}

// NewRegistry creates a registry that validates formatter names against
// formatters. A nil checker skips that validation.
func NewRegistry(formatters Checker) *Registry {
	return &Registry{
		formatters: formatters,
		tables:     make(map[string]*Table),
	}
}

// Register validates table and stores it under entity.
func (r *Registry) Register(entity string, table *Table) error {
	if entity == "" {
		return errors.New("descriptor: empty entity type")
	}
	if table == nil {
		return fmt.Errorf("descriptor: nil table for %q", entity)
	}
	if err := r.validate(entity, "", table, map[*Table]bool{}); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[entity]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, entity)
	}
	r.tables[entity] = table
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(entity string, table *Table) {
	if err := r.Register(entity, table); err != nil {
		panic(err)
	}
}

func (r *Registry) validate(entity, prefix string, table *Table, visiting map[*Table]bool) error {
	if visiting[table] {
		return &FieldError{Entity: entity, Path: prefix, Msg: "nested table refers to itself"}
	}
	visiting[table] = true
	defer delete(visiting, table)

	seen := make(map[string]bool, len(table.fields))
	for _, f := range table.fields {
		path := f.Path
		if prefix != "" {
			path = prefix + "." + f.Path
		}
		if f.Path == "" {
			return &FieldError{Entity: entity, Path: prefix, Msg: "empty field path"}
		}
		if f.Label == "" {
			return &FieldError{Entity: entity, Path: path, Msg: "empty label"}
		}
		if seen[f.Path] {
			return &FieldError{Entity: entity, Path: path, Msg: "duplicate field path"}
		}
		seen[f.Path] = true

		switch f.Kind {
		case Scalar, Collection:
			if f.Nested != nil {
				return &FieldError{Entity: entity, Path: path, Msg: f.Kind.String() + " field has a nested table"}
			}
		case Object:
			if f.Nested == nil {
				return &FieldError{Entity: entity, Path: path, Msg: "object field without nested table"}
			}
			if f.Formatter != "" {
				return &FieldError{Entity: entity, Path: path, Msg: "object field cannot have a formatter"}
			}
			if err := r.validate(entity, path, f.Nested, visiting); err != nil {
				return err
			}
		default:
			return &FieldError{Entity: entity, Path: path, Msg: "invalid kind " + f.Kind.String()}
		}

		if f.Formatter != "" && r.formatters != nil && !r.formatters.Has(f.Formatter) {
			return &FieldError{Entity: entity, Path: path, Msg: "invalid formatter", Err: &formatter.UnknownError{Name: f.Formatter}}
		}
	}
	return nil
}

// Lookup returns the table registered for entity.
func (r *Registry) Lookup(entity string) (*Table, error) {
	r.mu.RLock()
	t, ok := r.tables[entity]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return t, nil
}

// Entities returns the registered entity types in lexical order.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.tables))
	for name := range r.tables {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
