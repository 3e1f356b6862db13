package config

import (
	"github.com/getmockd/bizlog/pkg/store"
)

// CurrentVersion is the configuration format version this package reads.
const CurrentVersion = "1"

// Config is the root of a bizlog.yaml file.
type Config struct {
	// Version of the file format. Must be "1".
	Version string `json:"version" yaml:"version"`

	// Locale selects the diff rendering style, e.g. "zh-CN" or "en".
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty"`

	// DefaultOperator is recorded when neither the operation nor the
	// caller's context names one.
	DefaultOperator string `json:"defaultOperator,omitempty" yaml:"defaultOperator,omitempty"`

	// FailureTemplate renders failures of operations without a fail
	// template.
	FailureTemplate string `json:"failureTemplate,omitempty" yaml:"failureTemplate,omitempty"`

	// Optional declares template variables that may be missing, with the
	// value used in their place.
	Optional map[string]any `json:"optional,omitempty" yaml:"optional,omitempty"`

	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	Store   store.Config  `json:"store,omitempty" yaml:"store,omitempty"`

	// Entities maps an entity name to its diff-relevant fields, in the
	// order changes are reported.
	Entities map[string][]FieldConfig `json:"entities,omitempty" yaml:"entities,omitempty"`

	Operations []OperationConfig `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// FieldConfig declares one field of an entity.
type FieldConfig struct {
	Path      string `json:"path" yaml:"path"`
	Label     string `json:"label" yaml:"label"`
	Formatter string `json:"formatter,omitempty" yaml:"formatter,omitempty"`
	// Kind is scalar (default), object or collection.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
	// Fields describes the members of an object field.
	Fields []FieldConfig `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// OperationConfig declares a logged operation. All text fields except Name
// and Entity are templates.
type OperationConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Type      string `json:"type" yaml:"type"`
	BizNo     string `json:"bizNo,omitempty" yaml:"bizNo,omitempty"`
	SubType   string `json:"subType,omitempty" yaml:"subType,omitempty"`
	Success   string `json:"success" yaml:"success"`
	Fail      string `json:"fail,omitempty" yaml:"fail,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Operator  string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Extra     string `json:"extra,omitempty" yaml:"extra,omitempty"`
	Entity    string `json:"entity,omitempty" yaml:"entity,omitempty"`

	Before *SnapshotConfig `json:"before,omitempty" yaml:"before,omitempty"`
	After  *SnapshotConfig `json:"after,omitempty" yaml:"after,omitempty"`
}

// SnapshotConfig names the argument holding a snapshot, and optionally a
// lookup function registered in code that loads it.
type SnapshotConfig struct {
	Arg    string `json:"arg" yaml:"arg"`
	Lookup string `json:"lookup,omitempty" yaml:"lookup,omitempty"`
}

// Default returns a configuration that logs to memory in English.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Locale:  "en",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Store:   store.DefaultConfig(),
	}
}
