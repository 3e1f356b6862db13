package config

import (
	"fmt"
	"io"
	"sort"

	"github.com/getmockd/bizlog/pkg/assembler"
	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/diff"
	"github.com/getmockd/bizlog/pkg/logging"
)

// Style returns the diff rendering style for the configured locale.
func (c *Config) Style() diff.Style {
	return diff.StyleFor(c.Locale)
}

// LoggingConfig returns the logging configuration writing to w.
func (c *Config) LoggingConfig(w io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Logging.Level),
		Format: logging.ParseFormat(c.Logging.Format),
		Output: w,
	}
}

// Tables converts the entity declarations into descriptor tables.
func (c *Config) Tables() (map[string]*descriptor.Table, error) {
	tables := make(map[string]*descriptor.Table, len(c.Entities))
	for name, fields := range c.Entities {
		t, err := table(fields)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", name, err)
		}
		tables[name] = t
	}
	return tables, nil
}

// Descriptors builds a descriptor registry holding every configured entity.
// checker rejects fields naming unknown formatters.
func (c *Config) Descriptors(checker descriptor.Checker) (*descriptor.Registry, error) {
	tables, err := c.Tables()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := descriptor.NewRegistry(checker)
	for _, name := range names {
		if err := reg.Register(name, tables[name]); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func table(fields []FieldConfig) (*descriptor.Table, error) {
	out := make([]descriptor.Field, 0, len(fields))
	for _, f := range fields {
		kind, err := descriptor.ParseKind(f.Kind)
		if err != nil {
			return nil, err
		}
		field := descriptor.Field{Path: f.Path, Label: f.Label, Formatter: f.Formatter, Kind: kind}
		if kind == descriptor.Object {
			nested, err := table(f.Fields)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Path, err)
			}
			field.Nested = nested
		}
		out = append(out, field)
	}
	return descriptor.NewTable(out...), nil
}

// Operation converts op into an assembler operation. lookups resolves the
// lookup names of its snapshot sources.
func (op OperationConfig) Operation(lookups map[string]assembler.LookupFunc) (assembler.Operation, error) {
	out := assembler.Operation{
		Name:      op.Name,
		Type:      op.Type,
		BizNo:     op.BizNo,
		SubType:   op.SubType,
		Success:   op.Success,
		Fail:      op.Fail,
		Condition: op.Condition,
		Operator:  op.Operator,
		Extra:     op.Extra,
		Entity:    op.Entity,
	}
	var err error
	if out.Before, err = source(op.Before, lookups); err != nil {
		return assembler.Operation{}, fmt.Errorf("before: %w", err)
	}
	if out.After, err = source(op.After, lookups); err != nil {
		return assembler.Operation{}, fmt.Errorf("after: %w", err)
	}
	return out, nil
}

func source(s *SnapshotConfig, lookups map[string]assembler.LookupFunc) (*assembler.SnapshotSource, error) {
	if s == nil {
		return nil, nil
	}
	src := &assembler.SnapshotSource{Arg: s.Arg}
	if s.Lookup != "" {
		fn, ok := lookups[s.Lookup]
		if !ok {
			return nil, fmt.Errorf("unknown lookup %q", s.Lookup)
		}
		src.Lookup = fn
	}
	return src, nil
}
