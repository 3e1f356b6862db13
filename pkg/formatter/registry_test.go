package formatter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/bizlog/pkg/snapshot"
)

func TestRegistry_Register(t *testing.T) {
	r := NewEmptyRegistry()
	require.NoError(t, r.Register("ORDER", Simple(func(v any) string { return "xxxx(" + Display(v) + ")" })))
	require.NoError(t, r.RegisterBefore("NAME", Simple(func(v any) string { return "n" })))

	assert.True(t, r.Has("ORDER"))
	assert.False(t, r.IsBefore("ORDER"))
	assert.True(t, r.IsBefore("NAME"))
	assert.False(t, r.IsBefore("missing"))
	assert.Equal(t, []string{"NAME", "ORDER"}, r.Names())

	err := r.Register("ORDER", Simple(func(v any) string { return "" }))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Error(t, r.Register("", Simple(func(v any) string { return "" })))
	assert.Error(t, r.Register("nil", nil))
	assert.Panics(t, func() { r.MustRegister("NAME", Simple(func(v any) string { return "" })) })
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	_, err := NewEmptyRegistry().Resolve("nope")
	var ue *UnknownError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "nope", ue.Name)
	assert.Equal(t, `formatter: unknown formatter "nope"`, err.Error())
}

func TestRegistry_Call(t *testing.T) {
	boom := errors.New("boom")
	r := NewEmptyRegistry()
	r.MustRegister("ORDER", Simple(func(v any) string { return "xxxx(" + Display(v) + ")" }))
	r.MustRegister("fails", Unary(func(any) (string, error) { return "partial", boom }))
	r.MustRegister("panics", Simple(func(any) string { panic("kaboom") }))

	out, err := r.Call("ORDER", 99)
	require.NoError(t, err)
	assert.Equal(t, "xxxx(99)", out)

	out, err = r.Call("fails", 1)
	assert.Empty(t, out)
	assert.ErrorIs(t, err, boom)
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "fails", ce.Name)

	out, err = r.Call("panics")
	assert.Empty(t, out)
	require.True(t, errors.As(err, &ce))
	assert.ErrorContains(t, err, "panic: kaboom")

	_, err = r.Call("missing")
	var ue *UnknownError
	assert.True(t, errors.As(err, &ue))
}

func TestCallError_Error(t *testing.T) {
	err := &CallError{Name: "ORDER", Field: "orderId", Err: errors.New("bad")}
	assert.Equal(t, `formatter: "ORDER" failed on field "orderId": bad`, err.Error())
	err.Field = ""
	assert.Equal(t, `formatter: "ORDER" failed: bad`, err.Error())
}

func TestUnary_NoArguments(t *testing.T) {
	fn := Simple(func(v any) string { return Display(v) + "!" })
	out, err := fn()
	require.NoError(t, err)
	assert.Equal(t, "!", out)
}

func TestBuiltins(t *testing.T) {
	r := NewRegistry()
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	doc := snapshot.Map{"user": map[string]any{"name": "用户1", "tags": []any{"a", "b"}}}

	tests := []struct {
		name string
		fn   string
		args []any
		want string
	}{
		{"upper", "upper", []any{"mt001"}, "MT001"},
		{"lower", "lower", []any{"MT001"}, "mt001"},
		{"trim", "trim", []any{"  x  "}, "x"},
		{"default keeps value", "default", []any{"v", "d"}, "v"},
		{"default on nil", "default", []any{nil, "d"}, "d"},
		{"default on empty", "default", []any{"", 0}, "0"},
		{"join default sep", "join", []any{[]string{"a", "b"}}, "a,b"},
		{"join sep", "join", []any{[]int{1, 2, 3}, " | "}, "1 | 2 | 3"},
		{"join nil", "join", []any{nil}, ""},
		{"json map", "json", []any{snapshot.Map{"a": 1}}, `{"a":1}`},
		{"json string", "json", []any{"x"}, `"x"`},
		{"jsonpath", "jsonpath", []any{doc, "$.user.name"}, "用户1"},
		{"jsonpath list", "jsonpath", []any{doc, "$.user.tags[1]"}, "b"},
		{"jsonpath miss", "jsonpath", []any{doc, "$.user.age"}, ""},
		{"date default layout", "date", []any{at}, "2024-05-01 10:30:00"},
		{"date layout", "date", []any{at, "2006/01/02"}, "2024/05/01"},
		{"date nil", "date", []any{nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Call(tt.fn, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltins_Errors(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		fn   string
		args []any
	}{
		{"default arity", "default", []any{"a"}},
		{"join arity", "join", nil},
		{"join not a list", "join", []any{42}},
		{"json unsupported", "json", []any{func() {}}},
		{"jsonpath syntax", "jsonpath", []any{snapshot.Map{}, "$.a[1"}},
		{"date arity", "date", nil},
		{"date type", "date", []any{"yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Call(tt.fn, tt.args...)
			var ce *CallError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

type status int

func (s status) String() string { return [...]string{"draft", "paid"}[s] }

func TestDisplay(t *testing.T) {
	var nilPtr *int
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"typed nil", nilPtr, ""},
		{"string", "测试刀了符号10$,/666哈哈哈", "测试刀了符号10$,/666哈哈哈"},
		{"bytes", []byte("raw"), "raw"},
		{"bool", true, "true"},
		{"int", 9001, "9001"},
		{"int64", int64(-7), "-7"},
		{"uint8", uint8(7), "7"},
		{"float", 1.5, "1.5"},
		{"float integral", float64(88), "88"},
		{"float32", float32(0.25), "0.25"},
		{"time", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), "2024-05-01T10:00:00Z"},
		{"error", errors.New("oops"), "oops"},
		{"stringer", status(1), "paid"},
		{"slice", []string{"123", "aaa"}, "123,aaa"},
		{"struct", struct{ A int }{1}, "{1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Display(tt.in))
		})
	}
}
