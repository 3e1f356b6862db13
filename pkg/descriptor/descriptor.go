// Package descriptor declares which fields of an entity take part in a diff,
// how they are labelled, and how their values are displayed.
package descriptor

import (
	"fmt"
	"strings"
)

// Kind selects how the diff engine treats a field.
type Kind int

const (
	// Scalar fields are compared by their display strings.
	Scalar Kind = iota
	// Object fields hold a nested snapshot described by a nested table.
	Object
	// Collection fields hold a list compared as a set of values.
	Collection
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Object:
		return "object"
	case Collection:
		return "collection"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the lower-case kind names used in configuration files.
// An empty string means Scalar.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scalar":
		return Scalar, nil
	case "object":
		return Object, nil
	case "collection":
		return Collection, nil
	}
	return 0, fmt.Errorf("descriptor: unknown kind %q", s)
}

// Field describes one diff-relevant field.
type Field struct {
	// Path is the field name, or a dotted path into nested snapshots.
	Path string
	// Label is the human-readable name used in change lists.
	Label string
	// Formatter names the display formatter. For collections it is applied to
	// each element.
	Formatter string
	Kind      Kind
	// Nested describes the fields of an Object.
	Nested *Table
}

// ScalarField declares a scalar field.
func ScalarField(path, label, formatter string) Field {
	return Field{Path: path, Label: label, Formatter: formatter, Kind: Scalar}
}

// ObjectField declares a nested object described by nested.
func ObjectField(path, label string, nested *Table) Field {
	return Field{Path: path, Label: label, Kind: Object, Nested: nested}
}

// CollectionField declares a list field whose elements are rendered with
// elementFormatter.
func CollectionField(path, label, elementFormatter string) Field {
	return Field{Path: path, Label: label, Formatter: elementFormatter, Kind: Collection}
}

// Table is an ordered, immutable list of field descriptors.
type Table struct {
	fields []Field
}

// NewTable returns a table holding a copy of fields in the given order.
func NewTable(fields ...Field) *Table {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return &Table{fields: cp}
}

// Fields returns the descriptors in registration order.
func (t *Table) Fields() []Field {
	if t == nil {
		return nil
	}
	cp := make([]Field, len(t.fields))
	copy(cp, t.fields)
	return cp
}

// Len returns the number of top-level descriptors.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.fields)
}
