package formatter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"github.com/getmockd/bizlog/pkg/snapshot"
)

// DefaultDateLayout is used by the date formatter when no layout is given.
const DefaultDateLayout = "2006-01-02 15:04:05"

func builtins() map[string]Func {
	return map[string]Func{
		"upper":    Simple(func(v any) string { return strings.ToUpper(Display(v)) }),
		"lower":    Simple(func(v any) string { return strings.ToLower(Display(v)) }),
		"trim":     Simple(func(v any) string { return strings.TrimSpace(Display(v)) }),
		"default":  funcDefault,
		"join":     funcJoin,
		"json":     Unary(funcJSON),
		"jsonpath": funcJSONPath,
		"date":     funcDate,
	}
}

// funcDefault returns the first argument unless it renders empty,
// in which case the second argument is rendered instead.
func funcDefault(args ...any) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("default takes 2 arguments, got %d", len(args))
	}
	if s := Display(args[0]); s != "" {
		return s, nil
	}
	return Display(args[1]), nil
}

// funcJoin joins the elements of a list with an optional separator (default ",").
func funcJoin(args ...any) (string, error) {
	if len(args) == 0 || len(args) > 2 {
		return "", fmt.Errorf("join takes 1 or 2 arguments, got %d", len(args))
	}
	sep := ","
	if len(args) == 2 {
		sep = Display(args[1])
	}
	if args[0] == nil {
		return "", nil
	}
	elems, ok := snapshot.Elements(args[0])
	if !ok {
		return "", fmt.Errorf("join: %T is not a list", args[0])
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = Display(e)
	}
	return strings.Join(parts, sep), nil
}

func funcJSON(v any) (string, error) {
	if m, ok := v.(snapshot.Map); ok {
		v = map[string]any(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// funcJSONPath extracts the first match of a JSONPath expression.
func funcJSONPath(args ...any) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("jsonpath takes 2 arguments, got %d", len(args))
	}
	x, err := jp.ParseString(Display(args[1]))
	if err != nil {
		return "", fmt.Errorf("invalid JSONPath: %w", err)
	}
	data := args[0]
	if m, ok := data.(snapshot.Map); ok {
		data = map[string]any(m)
	}
	results := x.Get(data)
	if len(results) == 0 {
		return "", nil
	}
	return Display(results[0]), nil
}

// funcDate formats a time.Time or a Unix timestamp in seconds.
func funcDate(args ...any) (string, error) {
	if len(args) == 0 || len(args) > 2 {
		return "", fmt.Errorf("date takes 1 or 2 arguments, got %d", len(args))
	}
	layout := DefaultDateLayout
	if len(args) == 2 {
		layout = Display(args[1])
	}
	switch t := args[0].(type) {
	case nil:
		return "", nil
	case time.Time:
		return t.Format(layout), nil
	case int64:
		return time.Unix(t, 0).Format(layout), nil
	case int:
		return time.Unix(int64(t), 0).Format(layout), nil
	case float64:
		return time.Unix(int64(t), 0).Format(layout), nil
	default:
		return "", fmt.Errorf("date: unsupported value %T", args[0])
	}
}
