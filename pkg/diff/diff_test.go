package diff

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/bizlog/pkg/descriptor"
	"github.com/getmockd/bizlog/pkg/formatter"
	"github.com/getmockd/bizlog/pkg/snapshot"
)

func orderFormatters(t *testing.T) *formatter.Registry {
	t.Helper()
	reg := formatter.NewRegistry()
	require.NoError(t, reg.Register("ORDER", formatter.Simple(func(v any) string {
		return "xxxx(" + formatter.Display(v) + ")"
	})))
	require.NoError(t, reg.Register("BOOM", func(...any) (string, error) {
		return "", errors.New("boom")
	}))
	return reg
}

func orderTable() *descriptor.Table {
	user := descriptor.NewTable(
		descriptor.ScalarField("userId", "用户ID", ""),
		descriptor.ScalarField("userName", "用户姓名", ""),
	)
	return descriptor.NewTable(
		descriptor.ObjectField("creator", "创建人", user),
		descriptor.CollectionField("items", "列表项", "ORDER"),
		descriptor.ScalarField("orderId", "订单ID", "ORDER"),
		descriptor.ScalarField("orderNo", "订单号", ""),
	)
}

func order(id int64, no string, creator snapshot.Map, items ...string) snapshot.Map {
	m := snapshot.Map{"orderId": id, "orderNo": no, "items": items}
	if creator != nil {
		m["creator"] = creator
	}
	return m
}

func user(id int, name string) snapshot.Map {
	return snapshot.Map{"userId": id, "userName": name}
}

func TestEngine_Compute_FullOrder(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	before := order(99, "MT0000011", user(9001, "用户1"), "123", "bbb")
	after := order(88, "MT0000011", user(9002, "用户2"), "123", "aaa")

	res, err := e.Compute(before, after, orderTable())
	require.NoError(t, err)

	want := Result{
		{Path: "creator.userId", Label: "创建人的用户ID", Kind: Modified, Old: "9001", New: "9002"},
		{Path: "creator.userName", Label: "创建人的用户姓名", Kind: Modified, Old: "用户1", New: "用户2"},
		{
			Path: "items", Label: "列表项", Kind: Modified, Old: "xxxx(bbb)", New: "xxxx(aaa)",
			Added: []string{"xxxx(aaa)"}, Removed: []string{"xxxx(bbb)"}, Collection: true,
		},
		{Path: "orderId", Label: "订单ID", Kind: Modified, Old: "xxxx(99)", New: "xxxx(88)"},
	}
	if d := cmp.Diff(want, res); d != "" {
		t.Errorf("Compute mismatch (-want +got):\n%s", d)
	}

	assert.Equal(t,
		"【创建人的用户ID】从【9001】修改为【9002】；【创建人的用户姓名】从【用户1】修改为【用户2】；"+
			"【列表项】添加了【xxxx(aaa)】删除了【xxxx(bbb)】；【订单ID】从【xxxx(99)】修改为【xxxx(88)】",
		e.Render(res))
}

func TestEngine_Compute_Identical(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	o := order(99, "MT1", user(1, "a"), "x", "y")
	res, err := e.Compute(o, o, orderTable())
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, "", e.Render(res))
}

func TestEngine_Compute_BothAbsent(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	var typedNil snapshot.Map
	res, err := e.Compute(nil, typedNil, orderTable())
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestEngine_Compute_NullBefore(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	after := snapshot.Map{"orderId": 88, "orderNo": "MT0000099"}

	res, err := e.Compute(nil, after, orderTable())
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, Created, res[0].Kind)
	assert.Equal(t, "【订单ID】从【空】修改为【xxxx(88)】；【订单号】从【空】修改为【MT0000099】", e.Render(res))
}

func TestEngine_Compute_NullAfter(t *testing.T) {
	e := NewEngine(orderFormatters(t), English)
	before := order(7, "MT7", user(1, "ann"), "a")

	res, err := e.Compute(before, nil, orderTable())
	require.NoError(t, err)
	want := Result{
		{Path: "creator.userId", Label: "创建人 用户ID", Kind: Removed, Old: "1", New: "empty"},
		{Path: "creator.userName", Label: "创建人 用户姓名", Kind: Removed, Old: "ann", New: "empty"},
		{Path: "items", Label: "列表项", Kind: Deleted, Old: "xxxx(a)", Removed: []string{"xxxx(a)"}, Collection: true},
		{Path: "orderId", Label: "订单ID", Kind: Deleted, Old: "xxxx(7)", New: "empty"},
		{Path: "orderNo", Label: "订单号", Kind: Deleted, Old: "MT7", New: "empty"},
	}
	if d := cmp.Diff(want, res); d != "" {
		t.Errorf("Compute mismatch (-want +got):\n%s", d)
	}
}

func TestEngine_Compute_NestedRemoval(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	before := order(1, "MT1", user(9001, "用户1"))
	after := order(1, "MT1", nil)

	res, err := e.Compute(before, after, orderTable())
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, entry := range res {
		assert.Equal(t, Removed, entry.Kind)
	}
	assert.Equal(t, "删除了【创建人的用户ID】：【9001】", Chinese.RenderEntry(res[0]))
	assert.Equal(t, "删除了【创建人的用户姓名】：【用户1】", Chinese.RenderEntry(res[1]))
}

func TestEngine_Compute_NestedAddition(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	before := order(1, "MT1", nil)
	after := order(1, "MT1", user(5, "新"))

	res, err := e.Compute(before, after, orderTable())
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "添加了【创建人的用户ID】：【5】", Chinese.RenderEntry(res[0]))
}

func TestEngine_Compute_Collections(t *testing.T) {
	tests := []struct {
		name   string
		before []string
		after  []string
		kind   ChangeKind
		render string
	}{
		{"only added", []string{"a"}, []string{"a", "b", "c"}, Added, "【列表项】添加了【xxxx(b)，xxxx(c)】"},
		{"only removed", []string{"a", "b"}, []string{"b"}, Removed, "【列表项】删除了【xxxx(a)】"},
		{"from empty", nil, []string{"a"}, Added, "【列表项】添加了【xxxx(a)】"},
		{"duplicates collapse", []string{"a"}, []string{"b", "b", "a"}, Added, "【列表项】添加了【xxxx(b)】"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(orderFormatters(t), Chinese)
			res, err := e.Compute(order(1, "n", nil, tt.before...), order(1, "n", nil, tt.after...), orderTable())
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, tt.kind, res[0].Kind)
			assert.Equal(t, tt.render, e.Render(res))
		})
	}

	t.Run("reordered is unchanged", func(t *testing.T) {
		e := NewEngine(orderFormatters(t), Chinese)
		res, err := e.Compute(order(1, "n", nil, "a", "b"), order(1, "n", nil, "b", "a"), orderTable())
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestEngine_Compute_NumericTypesCompareByValue(t *testing.T) {
	e := NewEngine(nil, English)
	table := descriptor.NewTable(descriptor.CollectionField("ids", "IDs", ""))
	res, err := e.Compute(snapshot.Map{"ids": []any{1, 2}}, snapshot.Map{"ids": []any{int64(2), float64(1)}}, table)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestEngine_Compute_FormatterError(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	table := descriptor.NewTable(descriptor.ScalarField("status", "状态", "BOOM"))

	_, err := e.Compute(snapshot.Map{"status": 1}, snapshot.Map{"status": 2}, table)
	require.Error(t, err)
	var ce *formatter.CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "BOOM", ce.Name)
	assert.Equal(t, "status", ce.Field)
}

type plainUser struct {
	UserID   int `json:"userId"`
	UserName string
}

func TestEngine_Compute_StructNestedObject(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	user := descriptor.NewTable(
		descriptor.ScalarField("userID", "用户ID", ""),
		descriptor.ScalarField("userName", "用户姓名", ""),
	)
	table := descriptor.NewTable(descriptor.ObjectField("creator", "创建人", user))

	res, err := e.Compute(
		snapshot.Map{"creator": plainUser{1, "a"}},
		snapshot.Map{"creator": &plainUser{2, "b"}},
		table,
	)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "creator.userID", res[0].Path)
	assert.Equal(t, "1", res[0].Old)
	assert.Equal(t, "2", res[0].New)
	assert.Equal(t, "creator.userName", res[1].Path)
	assert.Equal(t, "b", res[1].New)

	var nilUser *plainUser
	res, err = e.Compute(snapshot.Map{"creator": nilUser}, snapshot.Map{"creator": plainUser{2, "b"}}, table)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, Added, res[0].Kind)
}

func TestEngine_Compute_ObjectFieldHoldsScalar(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	_, err := e.Compute(
		order(1, "MT1", user(1, "a")),
		snapshot.Map{"orderId": 1, "orderNo": "MT1", "creator": "garbage"},
		orderTable(),
	)
	var ne *NotObjectError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "creator", ne.Path)
	assert.EqualError(t, err, "diff: creator: string is not an object")
}

func TestEngine_Compute_TypedNilSnapshot(t *testing.T) {
	e := NewEngine(orderFormatters(t), Chinese)
	var before snapshot.Map
	after := snapshot.Map{"orderNo": "MT2"}
	res, err := e.Compute(before, after, orderTable())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, Created, res[0].Kind)
}

func TestStyleFor(t *testing.T) {
	tests := map[string]string{
		"zh":      "zh",
		"zh-CN":   "zh",
		"zh_Hans": "zh",
		"en-US":   "en",
		"fr":      "en",
		"":        "en",
		"!!":      "en",
	}
	for in, want := range tests {
		assert.Equal(t, want, StyleFor(in).Locale, in)
	}
}

func TestChangeKind_Text(t *testing.T) {
	b, err := Removed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "REMOVED", string(b))

	var k ChangeKind
	require.NoError(t, k.UnmarshalText([]byte("created")))
	assert.Equal(t, Created, k)
	assert.Error(t, k.UnmarshalText([]byte("renamed")))
}
