// Package diff compares two snapshots of a business entity field by field,
// driven by a descriptor table, and renders the changes as readable text.
package diff

import (
	"fmt"
	"strings"

	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/formatter"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

// ChangeKind classifies a change entry.
type ChangeKind int

const (
	Modified ChangeKind = iota
	Added
	Removed
	// Created and Deleted are used when the whole before or after snapshot
	// is absent.
	Created
	Deleted
)

var kindNames = [...]string{"MODIFIED", "ADDED", "REMOVED", "CREATED", "DELETED"}

func (k ChangeKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ChangeKind) UnmarshalText(b []byte) error {
	s := strings.ToUpper(string(b))
	for i, name := range kindNames {
		if name == s {
			*k = ChangeKind(i)
			return nil
		}
	}
	return fmt.Errorf("diff: unknown change kind %q", b)
}

// Entry is one detected change.
type Entry struct {
	// Path is the full dotted descriptor path ("creator.userId").
	Path string `json:"path"`
	// Label is the full display label, with parent labels joined in.
	Label string     `json:"label"`
	Kind  ChangeKind `json:"kind"`
	Old   string     `json:"old"`
	New   string     `json:"new"`
	// Added and Removed hold formatted elements of collection changes.
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Collection bool     `json:"collection,omitempty"`
}

// NotObjectError reports a value under an object field that cannot be read
// as a snapshot.
type NotObjectError struct {
	Path  string
	Value any
}

func (e *NotObjectError) Error() string {
	return fmt.Sprintf("diff: %s: %T is not an object", e.Path, e.Value)
}

// Result is the ordered list of changes. Order follows descriptor
// registration order, depth first.
type Result []Entry

// Caller invokes a named formatter. *formatter.Registry satisfies it.
type Caller interface {
	Call(name string, args ...any) (string, error)
}

// Engine computes diffs. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	formatters Caller
	style      Style
}

// NewEngine returns an engine that formats values through formatters and
// labels nested fields with style.
func NewEngine(formatters Caller, style Style) *Engine {
	return &Engine{formatters: formatters, style: style}
}

// Style returns the rendering style of the engine.
func (e *Engine) Style() Style {
	return e.style
}

// Compute compares before and after according to table. Either snapshot may
// be absent (nil or a typed nil); both absent yields an empty result.
func (e *Engine) Compute(before, after snapshot.Snapshot, table *descriptor.Table) (Result, error) {
	beforeAbsent, afterAbsent := snapshot.Absent(before), snapshot.Absent(after)
	var out Result
	var err error
	switch {
	case beforeAbsent && afterAbsent:
		return Result{}, nil
	case beforeAbsent:
		out, err = e.side(out, after, table, "", "", Created, false)
	case afterAbsent:
		out, err = e.side(out, before, table, "", "", Deleted, true)
	default:
		out, err = e.compare(out, before, after, table, "", "")
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = Result{}
	}
	return out, nil
}

func (e *Engine) compare(out Result, before, after snapshot.Snapshot, table *descriptor.Table, pathPrefix, labelPrefix string) (Result, error) {
	for _, f := range table.Fields() {
		path, label := e.join(pathPrefix, labelPrefix, f)
		oldV, _ := snapshot.Get(before, f.Path)
		newV, _ := snapshot.Get(after, f.Path)

		var err error
		switch f.Kind {
		case descriptor.Object:
			out, err = e.compareObject(out, oldV, newV, f, path, label)
		case descriptor.Collection:
			out, err = e.compareCollection(out, oldV, newV, f, path, label)
		default:
			out, err = e.compareScalar(out, oldV, newV, f, path, label)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) compareScalar(out Result, oldV, newV any, f descriptor.Field, path, label string) (Result, error) {
	oldS, err := e.display(f.Formatter, path, oldV)
	if err != nil {
		return nil, err
	}
	newS, err := e.display(f.Formatter, path, newV)
	if err != nil {
		return nil, err
	}
	if oldS == newS {
		return out, nil
	}
	return append(out, Entry{Path: path, Label: label, Kind: Modified, Old: oldS, New: newS}), nil
}

func (e *Engine) compareObject(out Result, oldV, newV any, f descriptor.Field, path, label string) (Result, error) {
	oldS, oldOK := snapshot.From(oldV)
	newS, newOK := snapshot.From(newV)
	if !oldOK && !snapshot.IsNil(oldV) {
		return nil, &NotObjectError{Path: path, Value: oldV}
	}
	if !newOK && !snapshot.IsNil(newV) {
		return nil, &NotObjectError{Path: path, Value: newV}
	}
	switch {
	case !oldOK && !newOK:
		return out, nil
	case !oldOK:
		return e.side(out, newS, f.Nested, path, label, Added, false)
	case !newOK:
		return e.side(out, oldS, f.Nested, path, label, Removed, true)
	}
	return e.compare(out, oldS, newS, f.Nested, path, label)
}

func (e *Engine) compareCollection(out Result, oldV, newV any, f descriptor.Field, path, label string) (Result, error) {
	oldElems := elements(oldV)
	newElems := elements(newV)
	added := difference(newElems, oldElems)
	removed := difference(oldElems, newElems)
	if len(added) == 0 && len(removed) == 0 {
		return out, nil
	}

	addedS, err := e.displayAll(f.Formatter, path, added)
	if err != nil {
		return nil, err
	}
	removedS, err := e.displayAll(f.Formatter, path, removed)
	if err != nil {
		return nil, err
	}

	kind := Modified
	switch {
	case len(removed) == 0:
		kind = Added
	case len(added) == 0:
		kind = Removed
	}
	return append(out, Entry{
		Path:       path,
		Label:      label,
		Kind:       kind,
		Old:        strings.Join(removedS, e.style.ListSeparator),
		New:        strings.Join(addedS, e.style.ListSeparator),
		Added:      addedS,
		Removed:    removedS,
		Collection: true,
	}), nil
}

// side emits one entry per present leaf of s, used when the other side of
// the comparison is absent. Nested objects always yield Added or Removed
// leaves; kind applies to the top level.
func (e *Engine) side(out Result, s snapshot.Snapshot, table *descriptor.Table, pathPrefix, labelPrefix string, kind ChangeKind, removal bool) (Result, error) {
	nestedKind := Added
	if removal {
		nestedKind = Removed
	}
	for _, f := range table.Fields() {
		path, label := e.join(pathPrefix, labelPrefix, f)
		v, ok := snapshot.Get(s, f.Path)
		if !ok || snapshot.IsNil(v) {
			continue
		}

		switch f.Kind {
		case descriptor.Object:
			nested, ok := snapshot.From(v)
			if !ok {
				return nil, &NotObjectError{Path: path, Value: v}
			}
			var err error
			out, err = e.side(out, nested, f.Nested, path, label, nestedKind, removal)
			if err != nil {
				return nil, err
			}

		case descriptor.Collection:
			elems, err := e.displayAll(f.Formatter, path, dedupe(elements(v)))
			if err != nil {
				return nil, err
			}
			if len(elems) == 0 {
				continue
			}
			entry := Entry{Path: path, Label: label, Kind: kind, Collection: true}
			joined := strings.Join(elems, e.style.ListSeparator)
			if removal {
				entry.Removed, entry.Old = elems, joined
			} else {
				entry.Added, entry.New = elems, joined
			}
			out = append(out, entry)

		default:
			text, err := e.display(f.Formatter, path, v)
			if err != nil {
				return nil, err
			}
			entry := Entry{Path: path, Label: label, Kind: kind, Old: e.style.Empty, New: text}
			if removal {
				entry.Old, entry.New = text, e.style.Empty
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (e *Engine) join(pathPrefix, labelPrefix string, f descriptor.Field) (string, string) {
	if pathPrefix == "" {
		return f.Path, f.Label
	}
	return pathPrefix + "." + f.Path, e.style.NestedLabel(labelPrefix, f.Label)
}

// display renders v with the named formatter. Absent values render as the
// style's empty sentinel without calling the formatter.
func (e *Engine) display(name, path string, v any) (string, error) {
	if snapshot.IsNil(v) {
		return e.style.Empty, nil
	}
	if name == "" || e.formatters == nil {
		return formatter.Display(v), nil
	}
	s, err := e.formatters.Call(name, v)
	if err != nil {
		return "", withField(err, name, path)
	}
	return s, nil
}

func (e *Engine) displayAll(name, path string, vs []any) ([]string, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		s, err := e.display(name, path, v)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func withField(err error, name, path string) error {
	if ce, ok := err.(*formatter.CallError); ok {
		cp := *ce
		cp.Field = path
		return &cp
	}
	return &formatter.CallError{Name: name, Field: path, Err: err}
}

// elements returns the members of a collection value. A non-list value is a
// single-element collection; nil is empty.
func elements(v any) []any {
	if snapshot.IsNil(v) {
		return nil
	}
	if elems, ok := snapshot.Elements(v); ok {
		return elems
	}
	return []any{v}
}

// difference returns the members of a that are not in b, in a's order and
// without duplicates.
func difference(a, b []any) []any {
	var out []any
	for _, x := range a {
		if contains(b, x) || contains(out, x) {
			continue
		}
		out = append(out, x)
	}
	return out
}

func dedupe(a []any) []any {
	return difference(a, nil)
}

func contains(list []any, v any) bool {
	for _, x := range list {
		if snapshot.Equal(x, v) {
			return true
		}
	}
	return false
}
