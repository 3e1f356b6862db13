package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/diff"
	"github.com/getmockd/bizlog/pkg/expression"
	"github.com/getmockd/bizlog/pkg/formatter"
	"github.com/getmockd/bizlog/pkg/logctx"
	"github.com/getmockd/bizlog/pkg/record"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type captureSink struct {
	batches [][]record.Record
}

func (c *captureSink) Flush(_ context.Context, _, _ string, records []record.Record) error {
	c.batches = append(c.batches, records)
	return nil
}

type observed struct {
	op  string
	err error
}

type fixture struct {
	asm      *Assembler
	sink     *captureSink
	observed []observed
	names    map[int]string
	nameErr  error
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{sink: &captureSink{}, names: map[int]string{42: "old name"}}

	reg := formatter.NewRegistry()
	require.NoError(t, reg.Register("ORDER", formatter.Simple(func(v any) string {
		return "xxxx(" + formatter.Display(v) + ")"
	})))
	require.NoError(t, reg.RegisterBefore("NAME", formatter.Unary(func(v any) (string, error) {
		if f.nameErr != nil {
			return "", f.nameErr
		}
		id, _ := v.(int)
		return f.names[id], nil
	})))

	user := descriptor.NewTable(
		descriptor.ScalarField("userId", "用户ID", ""),
		descriptor.ScalarField("userName", "用户姓名", ""),
	)
	descs := descriptor.NewRegistry(reg)
	require.NoError(t, descs.Register("order", descriptor.NewTable(
		descriptor.ObjectField("creator", "创建人", user),
		descriptor.CollectionField("items", "列表项", "ORDER"),
		descriptor.ScalarField("orderId", "订单ID", "ORDER"),
		descriptor.ScalarField("orderNo", "订单号", ""),
	)))

	cfg.Sink = f.sink
	cfg.Now = func() time.Time { return fixedNow }
	cfg.Observer = ObserverFunc(func(_ context.Context, op string, err error) {
		f.observed = append(f.observed, observed{op: op, err: err})
	})
	asm, err := New(expression.New(reg), diff.NewEngine(reg, diff.Chinese), descs, cfg)
	require.NoError(t, err)
	f.asm = asm
	return f
}

func (f *fixture) plan(t *testing.T, op Operation) *Plan {
	t.Helper()
	p, err := f.asm.Compile(op)
	require.NoError(t, err)
	return p
}

func (f *fixture) call(ctx context.Context, p *Plan, args map[string]any, out Outcome) {
	ctx, inv := f.asm.Enter(ctx, p, args)
	f.asm.Exit(ctx, inv, out)
}

func (f *fixture) only(t *testing.T) record.Record {
	t.Helper()
	require.Len(t, f.sink.batches, 1)
	require.Len(t, f.sink.batches[0], 1)
	return f.sink.batches[0][0]
}

func TestAssembler_SuccessWithDiff(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{
		Name:    "updateOrder",
		Type:    "ORDER",
		BizNo:   "{{ order.orderNo }}",
		Success: "更新了订单{{_diff}}",
		Entity:  "order",
		Before:  &SnapshotSource{Arg: "old"},
		After:   &SnapshotSource{Arg: "order"},
	})

	before := snapshot.Map{
		"orderId": 99, "orderNo": "MT0000011", "items": []string{"123", "bbb"},
		"creator": snapshot.Map{"userId": 9001, "userName": "用户1"},
	}
	after := snapshot.Map{
		"orderId": 88, "orderNo": "MT0000011", "items": []string{"123", "aaa"},
		"creator": snapshot.Map{"userId": 9002, "userName": "用户2"},
	}
	f.call(context.Background(), p, map[string]any{"old": before, "order": after}, Outcome{})

	rec := f.only(t)
	assert.Equal(t,
		"更新了订单【创建人的用户ID】从【9001】修改为【9002】；【创建人的用户姓名】从【用户1】修改为【用户2】；"+
			"【列表项】添加了【xxxx(aaa)】删除了【xxxx(bbb)】；【订单ID】从【xxxx(99)】修改为【xxxx(88)】",
		rec.Action)
	assert.Equal(t, "MT0000011", rec.BizNo)
	assert.Equal(t, "ORDER", rec.Type)
	assert.False(t, rec.Fail)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	assert.NotEmpty(t, rec.ID)
	assert.Empty(t, f.observed)
}

func TestAssembler_NullBeforeFromReturnValue(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{
		Type:    "ORDER",
		Success: "创建了订单{{_diff}}",
		Entity:  "order",
		Before:  &SnapshotSource{Arg: "old"},
	})

	ret := snapshot.Map{"orderId": 88, "orderNo": "MT0000099"}
	f.call(context.Background(), p, map[string]any{"old": nil}, Outcome{Return: ret})

	rec := f.only(t)
	assert.Equal(t, "创建了订单【订单ID】从【空】修改为【xxxx(88)】；【订单号】从【空】修改为【MT0000099】", rec.Action)
}

func TestAssembler_BeforeViaLookup(t *testing.T) {
	f := newFixture(t, Config{})
	db := map[string]snapshot.Map{"MT1": {"orderNo": "MT1", "orderId": 1}}
	p := f.plan(t, Operation{
		Type:    "ORDER",
		Success: "{{_diff}}",
		Entity:  "order",
		Before: &SnapshotSource{Arg: "orderNo", Lookup: func(_ context.Context, key any) (snapshot.Snapshot, error) {
			return db[key.(string)], nil
		}},
	})

	f.call(context.Background(), p, map[string]any{"orderNo": "MT1"}, Outcome{Return: snapshot.Map{"orderNo": "MT1", "orderId": 2}})
	assert.Equal(t, "【订单ID】从【xxxx(1)】修改为【xxxx(2)】", f.only(t).Action)
}

func TestAssembler_Failure(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{
		Type:    "ORDER",
		BizNo:   "{{ order.orderNo }}",
		Success: "创建了订单",
		Fail:    "创建订单失败，失败原因：「{{_errorMsg}}」",
	})

	f.call(context.Background(), p, map[string]any{"order": snapshot.Map{"orderNo": "MT1"}}, Outcome{Err: errors.New("测试fail")})

	rec := f.only(t)
	assert.True(t, rec.Fail)
	assert.Equal(t, "创建订单失败，失败原因：「测试fail」", rec.Action)
	assert.Equal(t, "MT1", rec.BizNo)
}

func TestAssembler_Failure_DefaultTemplate(t *testing.T) {
	f := newFixture(t, Config{FailureTemplate: "操作失败：{{_errorMsg}}"})
	p := f.plan(t, Operation{Type: "ORDER", Success: "ok"})
	f.call(context.Background(), p, nil, Outcome{Err: errors.New("boom")})
	assert.Equal(t, "操作失败：boom", f.only(t).Action)
}

func TestAssembler_ConditionFalse(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{
		Type:      "ORDER",
		Success:   "{{ order.missing }}",
		Condition: "{{ condition == null }}",
	})

	f.call(context.Background(), p, map[string]any{"condition": "on"}, Outcome{})
	assert.Empty(t, f.sink.batches)
	assert.Empty(t, f.observed, "the success template is not rendered")
}

func TestAssembler_ConditionTrue(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{Type: "ORDER", Success: "done", Condition: "_ret > 0"})
	f.call(context.Background(), p, nil, Outcome{Return: 3})
	assert.Equal(t, "done", f.only(t).Action)
}

func TestAssembler_NestedCalls(t *testing.T) {
	f := newFixture(t, Config{})
	outer := f.plan(t, Operation{Name: "outer", Type: "ORDER", BizNo: "{{no}}", Success: "outer {{no}}"})
	inner := f.plan(t, Operation{Name: "inner", Type: "USER", BizNo: "{{no}}", Success: "inner {{no}} via {{parent}}"})

	ctx, outerInv := f.asm.Enter(context.Background(), outer, map[string]any{"no": "O1", "parent": "outer-frame"})
	innerCtx, innerInv := f.asm.Enter(ctx, inner, map[string]any{"no": "I1"})
	assert.Equal(t, 2, logctx.FromContext(innerCtx).Depth())
	f.asm.Exit(innerCtx, innerInv, Outcome{})
	assert.Empty(t, f.sink.batches)
	f.asm.Exit(ctx, outerInv, Outcome{})

	require.Len(t, f.sink.batches, 1)
	batch := f.sink.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "inner I1 via outer-frame", batch[0].Action)
	assert.Equal(t, "outer O1", batch[1].Action)
}

func TestAssembler_Operator(t *testing.T) {
	t.Run("from template", func(t *testing.T) {
		f := newFixture(t, Config{DefaultOperator: "system"})
		p := f.plan(t, Operation{Type: "T", Success: "x", Operator: "{{ user }}"})
		f.call(logctx.WithOperator(context.Background(), "ctx-user"), p, map[string]any{"user": "tmpl-user"}, Outcome{})
		assert.Equal(t, "tmpl-user", f.only(t).Operator)
	})
	t.Run("from context", func(t *testing.T) {
		f := newFixture(t, Config{DefaultOperator: "system"})
		p := f.plan(t, Operation{Type: "T", Success: "x"})
		f.call(logctx.WithOperator(context.Background(), "ctx-user"), p, nil, Outcome{})
		assert.Equal(t, "ctx-user", f.only(t).Operator)
	})
	t.Run("default", func(t *testing.T) {
		f := newFixture(t, Config{DefaultOperator: "system"})
		p := f.plan(t, Operation{Type: "T", Success: "x"})
		f.call(context.Background(), p, nil, Outcome{})
		assert.Equal(t, "system", f.only(t).Operator)
	})
}

func TestAssembler_Extra(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{Type: "T", Success: "x"})
	f.call(context.Background(), p, map[string]any{"b": 2, "a": snapshot.Map{"k": "v"}}, Outcome{})
	assert.JSONEq(t, `{"a":{"k":"v"},"b":2}`, f.only(t).Extra)

	f = newFixture(t, Config{})
	p = f.plan(t, Operation{Type: "T", Success: "x", Extra: "custom {{b}}"})
	f.call(context.Background(), p, map[string]any{"b": 2}, Outcome{})
	assert.Equal(t, "custom 2", f.only(t).Extra)
}

func TestAssembler_RenderErrorDegrades(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{Name: "update", Type: "ORDER", BizNo: "{{no}}", Success: "{{ order.creator.name }}"})

	f.call(context.Background(), p, map[string]any{"no": "N1", "order": snapshot.Map{"creator": snapshot.Map{}}}, Outcome{})

	rec := f.only(t)
	assert.Equal(t, "N1", rec.BizNo)
	assert.Equal(t, "ORDER", rec.Type)
	assert.Contains(t, rec.Action, "update: audit message unavailable")
	assert.Contains(t, rec.Action, "order.creator.name")

	require.Len(t, f.observed, 1)
	assert.Equal(t, "update", f.observed[0].op)
	var ue *expression.UnresolvedReferenceError
	assert.True(t, errors.As(f.observed[0].err, &ue))
}

func TestAssembler_PanicInLookupDegrades(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{
		Name:    "explode",
		Type:    "ORDER",
		Success: "{{_diff}}",
		Entity:  "order",
		After: &SnapshotSource{Arg: "id", Lookup: func(context.Context, any) (snapshot.Snapshot, error) {
			panic("lookup exploded")
		}},
	})

	require.NotPanics(t, func() {
		f.call(context.Background(), p, map[string]any{"id": 1}, Outcome{})
	})
	rec := f.only(t)
	assert.Contains(t, rec.Action, "lookup exploded")
	require.Len(t, f.observed, 1)
}

func TestAssembler_PanicInBeforeLookup(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{
		Name:    "explode",
		Type:    "ORDER",
		BizNo:   "{{ orderNo }}",
		Success: "{{_diff}}",
		Entity:  "order",
		Before: &SnapshotSource{Arg: "orderNo", Lookup: func(context.Context, any) (snapshot.Snapshot, error) {
			panic("lookup exploded")
		}},
	})

	s := logctx.NewStack(f.sink, nil)
	ctx := logctx.WithStack(context.Background(), s)
	var inv *Invocation
	require.NotPanics(t, func() {
		ctx, inv = f.asm.Enter(ctx, p, map[string]any{"orderNo": "MT1"})
	})
	assert.Equal(t, 1, s.Depth())
	f.asm.Exit(ctx, inv, Outcome{Return: snapshot.Map{"orderNo": "MT1"}})
	assert.Equal(t, 0, s.Depth())

	rec := f.only(t)
	assert.Equal(t, "MT1", rec.BizNo)
	assert.Contains(t, rec.Action, "explode: audit message unavailable")
	assert.Contains(t, rec.Action, "lookup exploded")
	require.Len(t, f.observed, 1, "the failure is reported once")
	assert.ErrorContains(t, f.observed[0].err, "before snapshot: panic: lookup exploded")
}

func TestAssembler_BeforeLookupError(t *testing.T) {
	dbDown := errors.New("db down")
	lookup := func(context.Context, any) (snapshot.Snapshot, error) { return nil, dbDown }

	t.Run("condition false suppresses the record", func(t *testing.T) {
		f := newFixture(t, Config{})
		p := f.plan(t, Operation{
			Type:      "ORDER",
			Success:   "{{_diff}}",
			Condition: "false",
			Entity:    "order",
			Before:    &SnapshotSource{Arg: "orderNo", Lookup: lookup},
		})
		f.call(context.Background(), p, map[string]any{"orderNo": "MT1"}, Outcome{Return: snapshot.Map{}})
		assert.Empty(t, f.sink.batches)
	})

	t.Run("failure keeps the failure template", func(t *testing.T) {
		f := newFixture(t, Config{})
		p := f.plan(t, Operation{
			Type:    "ORDER",
			BizNo:   "{{ orderNo }}",
			Success: "{{_diff}}",
			Fail:    "修改订单失败：{{_errorMsg}}",
			Entity:  "order",
			Before:  &SnapshotSource{Arg: "orderNo", Lookup: lookup},
		})
		f.call(context.Background(), p, map[string]any{"orderNo": "MT1"}, Outcome{Err: errors.New("库存不足")})

		rec := f.only(t)
		assert.True(t, rec.Fail)
		assert.Equal(t, "修改订单失败：库存不足", rec.Action)
		assert.Equal(t, "MT1", rec.BizNo)
	})

	t.Run("success degrades", func(t *testing.T) {
		f := newFixture(t, Config{})
		p := f.plan(t, Operation{
			Name:    "update",
			Type:    "ORDER",
			Success: "{{_diff}}",
			Entity:  "order",
			Before:  &SnapshotSource{Arg: "orderNo", Lookup: lookup},
		})
		f.call(context.Background(), p, map[string]any{"orderNo": "MT1"}, Outcome{Return: snapshot.Map{}})

		rec := f.only(t)
		assert.False(t, rec.Fail)
		assert.Contains(t, rec.Action, "db down")
		require.Len(t, f.observed, 1)
		assert.ErrorIs(t, f.observed[0].err, dbDown)
	})
}

func TestAssembler_BeforeFormatterFailureDegrades(t *testing.T) {
	f := newFixture(t, Config{})
	dbDown := errors.New("db down")
	f.nameErr = dbDown
	p := f.plan(t, Operation{Name: "rename", Type: "USER", BizNo: "{{ id }}", Success: "名称从{{NAME(id)}}修改为{{name}}"})

	ctx, inv := f.asm.Enter(context.Background(), p, map[string]any{"id": 42, "name": "new name"})
	f.nameErr = nil
	f.names[42] = "new name"
	f.asm.Exit(ctx, inv, Outcome{})

	rec := f.only(t)
	assert.NotContains(t, rec.Action, "名称从new name")
	assert.Contains(t, rec.Action, "rename: audit message unavailable")
	assert.Contains(t, rec.Action, "db down")
	assert.Equal(t, "42", rec.BizNo)
	require.Len(t, f.observed, 1)
	assert.ErrorIs(t, f.observed[0].err, dbDown)
}

func TestAssembler_BeforeFormatter(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{Type: "USER", Success: "名称从{{NAME(id)}}修改为{{name}}"})

	ctx, inv := f.asm.Enter(context.Background(), p, map[string]any{"id": 42, "name": "new name"})
	f.names[42] = "new name"
	f.asm.Exit(ctx, inv, Outcome{})

	assert.Equal(t, "名称从old name修改为new name", f.only(t).Action)
}

func TestAssembler_LiteralWithDollar(t *testing.T) {
	f := newFixture(t, Config{})
	p := f.plan(t, Operation{Type: "T", Success: "测试刀了符号10$,/666哈哈哈"})
	f.call(context.Background(), p, nil, Outcome{})
	assert.Equal(t, "测试刀了符号10$,/666哈哈哈", f.only(t).Action)
}

func TestAssembler_Compile_Errors(t *testing.T) {
	f := newFixture(t, Config{})
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"missing type", Operation{Success: "x"}, "type is required"},
		{"missing success", Operation{Type: "T"}, "success template is required"},
		{"snapshot without entity", Operation{Type: "T", Success: "x", Before: &SnapshotSource{Arg: "a"}}, "require an entity"},
		{"unknown entity", Operation{Type: "T", Success: "x", Entity: "nope"}, "unknown entity"},
		{"bad template", Operation{Type: "T", Success: "{{ a"}, "success"},
		{"unknown formatter", Operation{Type: "T", Success: "x", Fail: "{{ NOPE(a) }}"}, "fail"},
		{"bad condition", Operation{Type: "T", Success: "x", Condition: "a &&"}, "condition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.asm.Compile(tt.op)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := f.asm.Compile(Operation{Type: "T", Success: "{{ NOPE() }}"})
	var ue *formatter.UnknownError
	assert.True(t, errors.As(err, &ue))
}
