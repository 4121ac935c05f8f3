package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rw/scope"
)

func TestTable_LiteralBeatsVariableRegardlessOfOrder(t *testing.T) {
	for _, literalFirst := range []bool{true, false} {
		table := NewTable("users")
		register := []func(){
			func() { _, err := table.Get("/user/new", "new", "new-handler"); require.NoError(t, err) },
			func() { _, err := table.Get("/user/<id>", "show", "show-handler"); require.NoError(t, err) },
		}
		if !literalFirst {
			register[0], register[1] = register[1], register[0]
		}
		for _, r := range register {
			r()
		}
		require.NoError(t, table.Finalize())

		_, ep, args := table.FindRoute("get", "/user/new")
		require.NotNil(t, ep)
		assert.Equal(t, "new-handler", ep.Handler)
		assert.Empty(t, args)

		_, ep, args = table.FindRoute("GET", "/user/17")
		require.NotNil(t, ep)
		assert.Equal(t, "show-handler", ep.Handler)
		assert.Equal(t, Args{"id": "17"}, args)
	}
}

func TestTable_ShopScenario(t *testing.T) {
	table := NewTable("shop")
	_, err := table.Get("/shop/<category:str>/item/<id:int>", "item", "item-handler")
	require.NoError(t, err)
	require.NoError(t, table.Finalize())

	prefix, ep, args := table.FindRoute("get", "/shop/shoes/item/42")
	require.NotNil(t, ep)
	assert.Equal(t, "", prefix)
	assert.Equal(t, Args{"category": "shoes", "id": 42}, args)

	prefix, ep, args = table.FindRoute("get", "/shop/shoes/item/abc")
	assert.Equal(t, "", prefix)
	assert.Nil(t, ep)
	assert.Nil(t, args)

	_, ep, _ = table.FindRoute("post", "/shop/shoes/item/42")
	assert.Nil(t, ep, "methods are separate")
	assert.Equal(t, []string{"GET"}, table.Allowed("/shop/shoes/item/42"))
}

func TestTable_MountScenario(t *testing.T) {
	b := NewTable("b")
	bIndex, err := b.Get("/", "index", "b-index")
	require.NoError(t, err)

	a := NewTable("a")
	require.NoError(t, a.Mount("/sub", b))
	require.NoError(t, a.Finalize())

	prefix, ep, args := a.FindRoute("get", "/sub")
	require.NotNil(t, ep)
	assert.Same(t, bIndex, ep)
	assert.Equal(t, "b-index", ep.Handler)
	assert.Equal(t, Args{}, args)
	assert.Equal(t, "sub", prefix)

	assert.True(t, b.Finalized(), "children are finalized with the parent")
}

func TestTable_NestedMountsAndNames(t *testing.T) {
	inner := NewTable("inner")
	_, err := inner.Get("/<id:int>", "show", "show")
	require.NoError(t, err)

	mid := NewTable("mid")
	_, err = mid.Get("/", "index", "index")
	require.NoError(t, err)
	require.NoError(t, mid.Mount("/items", inner))

	root := NewTable("root")
	_, err = root.Get("/", "home", "home")
	require.NoError(t, err)
	require.NoError(t, root.Mount("/api/v1", mid))
	require.NoError(t, root.Finalize())

	prefix, ep, args := root.FindRoute("GET", "/api/v1/items/5")
	require.NotNil(t, ep)
	assert.Equal(t, "api.v1.items", prefix)
	assert.Equal(t, Args{"id": 5}, args)

	ctx := context.Background()
	u, err := root.URLFor(ctx, "api.v1.items.show", Args{"id": 9})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/items/9", u)

	u, err = root.URLFor(ctx, "home", nil)
	require.NoError(t, err)
	assert.Equal(t, "/", u)

	_, err = root.URLFor(ctx, "api.v1.nope", nil)
	assert.ErrorIs(t, err, ErrUnknownRoute)
	_, err = root.URLFor(ctx, 42, nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	var names []string
	for _, r := range root.Routes() {
		names = append(names, r.FullName())
	}
	assert.ElementsMatch(t, []string{"home", "api.v1.index", "api.v1.items.show"}, names)
}

func TestTable_URLForEndpoint(t *testing.T) {
	base := func() (*Table, *Endpoint) {
		tb := NewTable("base")
		ep, err := tb.Get("/foo", "foo", "foo")
		require.NoError(t, err)
		return tb, ep
	}
	a, aFoo := base()
	b, bFoo := base()

	main := NewTable("main")
	require.NoError(t, main.Mount("/a", a))
	require.NoError(t, main.Mount("/b", b))
	require.NoError(t, main.Finalize())

	ctx := context.Background()
	u, err := main.URLFor(ctx, aFoo, nil)
	require.NoError(t, err)
	assert.Equal(t, "/a/foo", u)
	u, err = URLFor(ctx, bFoo, nil)
	require.NoError(t, err)
	assert.Equal(t, "/b/foo", u)
}

func TestURLFor_RelativeToPrefix(t *testing.T) {
	child := NewTable("sub")
	_, err := child.Get("/x/<n:int>", "x", "x")
	require.NoError(t, err)
	root := NewTable("root")
	_, err = root.Get("/x", "x", "root-x")
	require.NoError(t, err)
	require.NoError(t, root.Mount("/sub", child))
	require.NoError(t, root.Finalize())

	s := scope.New()
	s.Set(TableKey, root)
	s.Set(PrefixKey, "sub")
	ctx := scope.Enter(context.Background(), s)

	u, err := URLFor(ctx, ".x", Args{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, "/sub/x/3", u)

	u, err = URLFor(ctx, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "/x", u)

	s.Set(PrefixKey, "")
	u, err = URLFor(ctx, ".x", nil)
	require.NoError(t, err)
	assert.Equal(t, "/x", u)

	_, err = URLFor(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestTable_DuplicateNames(t *testing.T) {
	table := NewTable("dup")
	_, err := table.Get("/a", "page", "a")
	require.NoError(t, err)
	_, err = table.Get("/b", "page", "b")
	require.NoError(t, err)
	assert.ErrorIs(t, table.Finalize(), ErrDuplicateRouteName)

	table = NewTable("same-path")
	_, err = table.Get("/form", "form", "show")
	require.NoError(t, err)
	_, err = table.Post("/form", "form", "save")
	require.NoError(t, err)
	assert.NoError(t, table.Finalize(), "one name may serve several methods on one path")
}

func TestTable_FinalizeIsIdempotentAndFreezes(t *testing.T) {
	table := NewTable("t")
	_, err := table.Put("/x", "x", "x")
	require.NoError(t, err)
	require.NoError(t, table.Finalize())
	before := table.Routes()
	require.NoError(t, table.Finalize())
	assert.Equal(t, before, table.Routes())

	_, err = table.Delete("/y", "y", "y")
	assert.ErrorIs(t, err, ErrTableFinalized)
	assert.ErrorIs(t, table.Mount("/z", NewTable("z")), ErrTableFinalized)
}

func TestTable_NotFinalized(t *testing.T) {
	table := NewTable("t")
	_, err := table.Patch("/x", "x", "x")
	require.NoError(t, err)

	_, ep, _ := table.FindRoute("PATCH", "/x")
	assert.Nil(t, ep)
	assert.Nil(t, table.Routes())
}

func TestTable_MergeKeepsFirstRegistration(t *testing.T) {
	child := NewTable("child")
	ep, err := child.Options("/", "opts", "child")
	require.NoError(t, err)

	parent := NewTable("parent")
	require.NoError(t, parent.MountAs("/c", "c", child))
	require.NoError(t, parent.MountAs("/c", "c", child))
	require.NoError(t, parent.Finalize())

	routes := parent.Routes()
	require.Len(t, routes, 1)
	assert.Same(t, ep, routes[0].Endpoint)
}

func TestTable_MountCycle(t *testing.T) {
	a, b := NewTable("a"), NewTable("b")
	require.NoError(t, a.Mount("/b", b))
	require.NoError(t, b.Mount("/a", a))
	assert.ErrorIs(t, a.Finalize(), ErrMalformedRule)
	assert.ErrorIs(t, a.Mount("/self", a), ErrMalformedRule)
}

func TestTable_CustomConvertersFromScope(t *testing.T) {
	convs := DefaultConverters().With("lang", func(remaining, _ string) (int, any, error) {
		if len(remaining) >= 2 && (remaining[:2] == "en" || remaining[:2] == "de") {
			return 2, remaining[:2], nil
		}
		return 0, nil, ErrNoMatch
	})
	s := scope.New()
	s.Set(ConvertersKey, convs)
	ctx := scope.Enter(context.Background(), s)

	table := NewTable("i18n", WithConverters(ConvertersFrom(ctx)))
	_, err := table.Get("/<l:lang>/about", "about", "about")
	require.NoError(t, err)
	require.NoError(t, table.Finalize())

	_, ep, args := table.FindRoute("GET", "/de/about")
	require.NotNil(t, ep)
	assert.Equal(t, Args{"l": "de"}, args)
	_, ep, _ = table.FindRoute("GET", "/fr/about")
	assert.Nil(t, ep)

	_, err = ParseContext(ctx, "/<l:lang>")
	assert.NoError(t, err)
	_, err = ParseContext(context.Background(), "/<l:lang>")
	assert.ErrorIs(t, err, ErrMalformedRule)
}
