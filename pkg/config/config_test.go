package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/bizlog/pkg/assembler"
	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/diff"
	"github.com/getmockd/bizlog/pkg/logging"
	"github.com/getmockd/bizlog/pkg/snapshot"
	"github.com/getmockd/bizlog/pkg/store"
)

const orderYAML = `
version: "1"
locale: zh_CN
defaultOperator: ${BIZLOG_TEST_OPERATOR:-system}
logging:
  level: debug
  format: json
store:
  backend: sqlite
  path: records.db
entities:
  order:
    - {path: orderId, label: 订单ID, formatter: ORDER}
    - {path: orderNo, label: 订单号}
    - path: creator
      label: 创建人
      kind: object
      fields:
        - {path: userId, label: 用户ID}
        - {path: userName, label: 用户姓名}
    - {path: items, label: 列表项, kind: collection, formatter: ORDER}
operations:
  - name: updateOrder
    type: ORDER
    bizNo: "{{ order.orderNo }}"
    success: "修改了订单{{ _diff }}"
    entity: order
    before: {arg: order, lookup: orderByNo}
    after: {arg: order}
  - type: USER
    success: "{{ user.name }}"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type names map[string]bool

func (n names) Has(name string) bool { return n[name] }

func TestLoadFromFile_YAML(t *testing.T) {
	cfg, err := LoadFromFile(writeFile(t, "bizlog.yaml", orderYAML))
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, "system", cfg.DefaultOperator)
	assert.Equal(t, store.BackendSQLite, cfg.Store.Backend)
	require.Len(t, cfg.Operations, 2)
	assert.Equal(t, "orderByNo", cfg.Operations[0].Before.Lookup)
	require.Len(t, cfg.Entities["order"], 4)
	assert.Equal(t, "object", cfg.Entities["order"][2].Kind)
	assert.Len(t, cfg.Entities["order"][2].Fields, 2)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("BIZLOG_TEST_OPERATOR", "auditor")
	cfg, err := LoadFromFile(writeFile(t, "bizlog.yml", orderYAML))
	require.NoError(t, err)
	assert.Equal(t, "auditor", cfg.DefaultOperator)
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeFile(t, "bizlog.json", `{
		"version": "1",
		"locale": "en",
		"operations": [{"type": "ORDER", "success": "created {{ order.orderNo }}"}]
	}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, "ORDER", cfg.Operations[0].Type)
}

func TestLoadFromFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"invalid json", "c.json", `{ invalid json }`, ErrInvalidJSON},
		{"invalid yaml", "c.yaml", "version: [1", ErrInvalidYAML},
		{"empty", "c.yaml", "  \n", ErrEmptyFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFile(writeFile(t, tt.file, tt.content))
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := LoadFromFile(t.TempDir())
		assert.ErrorContains(t, err, "directory")
	})
}

func TestParseYAML_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"unknown top-level key", "version: \"1\"\nmocks: []\n", ""},
		{"wrong version", "version: \"2\"\n", "version"},
		{"missing success", "version: \"1\"\noperations:\n  - type: ORDER\n", "operations[0]"},
		{"bad kind", "version: \"1\"\nentities:\n  order:\n    - {path: a, label: A, kind: list}\n", "entities.order[0].kind"},
		{"negative capacity", "version: \"1\"\nstore: {capacity: -1}\n", "store.capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.doc))
			require.Error(t, err)
			var result *ValidationResult
			require.True(t, errors.As(err, &result), "got %v", err)
			paths := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				paths = append(paths, e.Path)
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		path string
	}{
		{"missing version", Config{}, "version"},
		{"bad locale", Config{Version: "1", Locale: "not a locale!"}, "locale"},
		{"bad store", Config{Version: "1", Store: store.Config{Backend: "jsonl"}}, "store.path"},
		{"object without fields", Config{Version: "1", Entities: map[string][]FieldConfig{
			"order": {{Path: "creator", Label: "创建人", Kind: "object"}},
		}}, "entities.order[0].fields"},
		{"scalar with fields", Config{Version: "1", Entities: map[string][]FieldConfig{
			"order": {{Path: "id", Label: "ID", Fields: []FieldConfig{{Path: "x", Label: "X"}}}},
		}}, "entities.order[0].fields"},
		{"duplicate field", Config{Version: "1", Entities: map[string][]FieldConfig{
			"order": {{Path: "id", Label: "ID"}, {Path: "id", Label: "ID2"}},
		}}, "entities.order[1].path"},
		{"duplicate operation", Config{Version: "1", Operations: []OperationConfig{
			{Type: "ORDER", Success: "a"}, {Name: "ORDER", Type: "X", Success: "b"},
		}}, "operations[1].name"},
		{"unknown entity", Config{Version: "1", Operations: []OperationConfig{
			{Type: "ORDER", Success: "a", Entity: "order"},
		}}, "operations[0].entity"},
		{"snapshot without entity", Config{Version: "1", Operations: []OperationConfig{
			{Type: "ORDER", Success: "a", After: &SnapshotConfig{Arg: "order"}},
		}}, "operations[0].entity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			var result *ValidationResult
			require.True(t, errors.As(err, &result), "got %v", err)
			assert.Equal(t, tt.path, result.Errors[0].Path, result.Error())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestConfig_Descriptors(t *testing.T) {
	cfg, err := ParseYAML([]byte(orderYAML))
	require.NoError(t, err)

	reg, err := cfg.Descriptors(names{"ORDER": true})
	require.NoError(t, err)
	table, err := reg.Lookup("order")
	require.NoError(t, err)

	fields := table.Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, descriptor.ScalarField("orderId", "订单ID", "ORDER"), fields[0])
	assert.Equal(t, descriptor.Object, fields[2].Kind)
	require.NotNil(t, fields[2].Nested)
	assert.Equal(t, "userName", fields[2].Nested.Fields()[1].Path)
	assert.Equal(t, descriptor.Collection, fields[3].Kind)

	_, err = cfg.Descriptors(names{})
	var fe *descriptor.FieldError
	assert.True(t, errors.As(err, &fe), "unknown formatter is rejected, got %v", err)
}

func TestConfig_StyleAndLogging(t *testing.T) {
	cfg, err := ParseYAML([]byte(orderYAML))
	require.NoError(t, err)

	assert.Equal(t, diff.Chinese.Locale, cfg.Style().Locale)
	assert.Equal(t, diff.English.Locale, Default().Style().Locale)

	lc := cfg.LoggingConfig(os.Stderr)
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
}

func TestOperationConfig_Operation(t *testing.T) {
	lookup := func(context.Context, any) (snapshot.Snapshot, error) { return snapshot.Map{}, nil }
	cfg, err := ParseYAML([]byte(orderYAML))
	require.NoError(t, err)

	op, err := cfg.Operations[0].Operation(map[string]assembler.LookupFunc{"orderByNo": lookup})
	require.NoError(t, err)
	assert.Equal(t, "updateOrder", op.Name)
	assert.Equal(t, "order", op.Before.Arg)
	assert.NotNil(t, op.Before.Lookup)
	assert.Nil(t, op.After.Lookup)

	_, err = cfg.Operations[0].Operation(nil)
	assert.ErrorContains(t, err, `before: unknown lookup "orderByNo"`)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	for _, name := range []string{"bizlog.yaml", "bizlog.json"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := ParseYAML([]byte(orderYAML))
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveToFile(path, cfg))

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Operations, loaded.Operations)
			assert.Equal(t, cfg.Entities, loaded.Entities)
			assert.Equal(t, cfg.Store, loaded.Store)
		})
	}
	assert.Error(t, SaveToFile(filepath.Join(t.TempDir(), "x.yaml"), nil))
}

func TestLoad_Discovery(t *testing.T) {
	t.Setenv(EnvConfig, "")
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bizlog.yaml"), []byte(orderYAML), 0644))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Len(t, cfg.Operations, 2)

	t.Setenv(EnvConfig, filepath.Join(dir, "missing.yaml"))
	_, err = Load("")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("BIZLOG_TEST_VAR", "value")
	assert.Equal(t, "a value b", ExpandEnvVars("a ${BIZLOG_TEST_VAR} b"))
	assert.Equal(t, "fallback", ExpandEnvVars("${BIZLOG_TEST_UNSET:-fallback}"))
	assert.Equal(t, "10$,/666", ExpandEnvVars("10$,/666"))
	assert.Equal(t, "{{ a }}", ExpandEnvVars("{{ a }}"))
}

func TestPointerToPath(t *testing.T) {
	assert.Equal(t, "", pointerToPath(""))
	assert.Equal(t, "operations[0].type", pointerToPath("/operations/0/type"))
	assert.Equal(t, "entities.order[2].fields[0]", pointerToPath("/entities/order/2/fields/0"))
}
