package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/store"
)

// ValidationError represents a single config validation error.
type ValidationError struct {
	Path    string `json:"path"` // Config path, e.g., "operations[0].type"
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationResult contains all validation errors for a Config.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message.
func (r *ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(path, message string) {
	r.Errors = append(r.Errors, ValidationError{Path: path, Message: message})
}

// Validate checks the configuration for semantic errors the schema cannot
// express. Formatter names are checked when the descriptors are built.
func (c *Config) Validate() error {
	result := &ValidationResult{}

	switch c.Version {
	case "":
		result.AddError("version", "required")
	case CurrentVersion:
	default:
		result.AddError("version", fmt.Sprintf("unsupported version %q, expected %q", c.Version, CurrentVersion))
	}

	if c.Locale != "" {
		if _, err := language.Parse(strings.ReplaceAll(c.Locale, "_", "-")); err != nil {
			result.AddError("locale", fmt.Sprintf("invalid locale %q", c.Locale))
		}
	}

	if err := c.Store.Validate(); err != nil {
		var ce *store.ConfigError
		if errors.As(err, &ce) {
			result.AddError("store."+ce.Field, ce.Message)
		} else {
			result.AddError("store", err.Error())
		}
	}

	entities := make([]string, 0, len(c.Entities))
	for name := range c.Entities {
		entities = append(entities, name)
	}
	sort.Strings(entities)
	for _, name := range entities {
		fields := c.Entities[name]
		if len(fields) == 0 {
			result.AddError("entities."+name, "at least one field is required")
		}
		validateFields(fields, "entities."+name, result)
	}

	names := make(map[string]bool)
	for i, op := range c.Operations {
		validateOperation(op, fmt.Sprintf("operations[%d]", i), names, c.Entities, result)
	}

	if result.IsValid() {
		return nil
	}
	return result
}

func validateFields(fields []FieldConfig, path string, result *ValidationResult) {
	seen := make(map[string]bool)
	for i, f := range fields {
		p := fmt.Sprintf("%s[%d]", path, i)
		if f.Path == "" {
			result.AddError(p+".path", "required")
		} else if seen[f.Path] {
			result.AddError(p+".path", fmt.Sprintf("duplicate field %q", f.Path))
		}
		seen[f.Path] = true
		if f.Label == "" {
			result.AddError(p+".label", "required")
		}

		kind, err := descriptor.ParseKind(f.Kind)
		if err != nil {
			result.AddError(p+".kind", fmt.Sprintf("must be scalar, object or collection, got %q", f.Kind))
			continue
		}
		switch {
		case kind == descriptor.Object && len(f.Fields) == 0:
			result.AddError(p+".fields", "object fields need nested fields")
		case kind != descriptor.Object && len(f.Fields) > 0:
			result.AddError(p+".fields", "only object fields may have nested fields")
		}
		if kind == descriptor.Object && f.Formatter != "" {
			result.AddError(p+".formatter", "object fields are displayed through their nested fields")
		}
		validateFields(f.Fields, p+".fields", result)
	}
}

func validateOperation(op OperationConfig, path string, names map[string]bool, entities map[string][]FieldConfig, result *ValidationResult) {
	if op.Type == "" {
		result.AddError(path+".type", "required")
	}
	if op.Success == "" {
		result.AddError(path+".success", "required")
	}

	name := op.Name
	if name == "" {
		name = op.Type
	}
	if name != "" {
		if names[name] {
			result.AddError(path+".name", fmt.Sprintf("duplicate operation %q", name))
		}
		names[name] = true
	}

	if op.Entity != "" {
		if _, ok := entities[op.Entity]; !ok {
			result.AddError(path+".entity", fmt.Sprintf("unknown entity %q", op.Entity))
		}
	} else if op.Before != nil || op.After != nil {
		result.AddError(path+".entity", "required when before or after is set")
	}
	if op.Before != nil && op.Before.Arg == "" {
		result.AddError(path+".before.arg", "required")
	}
	if op.After != nil && op.After.Arg == "" {
		result.AddError(path+".after.arg", "required")
	}
}
